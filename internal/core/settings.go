package core

import (
	"encoding/json"
	"errors"
)

// DashboardRange values accepted by the display settings endpoint.
const (
	RangeMonth   = "month"
	RangeQuarter = "quarter"
	RangeYear    = "year"
	RangeAll     = "all"
)

var ErrInvalidSettings = errors.New("invalid settings")

type (
	BudgetSettings struct {
		MonthlyBudget         *float64             `json:"monthlyBudget,omitempty"`
		CategoryLimits        []map[string]float64 `json:"categoryLimits,omitempty"`
		OverSpendingThreshold *float64             `json:"overSpendingThreshold,omitempty"`
	}

	DisplaySettings struct {
		DisplayCurrency       string `json:"displayCurrency,omitempty"`
		TimeZone              string `json:"timeZone,omitempty"`
		DateFormat            string `json:"dateFormat,omitempty"`
		DefaultDashboardRange string `json:"defaultDashboardRange,omitempty"`
		NotificationsEnabled  *bool  `json:"notificationsEnabled,omitempty"`
		IncomeAffectsBudget   *bool  `json:"incomeAffectsBudget,omitempty"`
	}

	// Settings is the combined user settings document.
	Settings struct {
		BudgetSettings
		DisplaySettings
	}

	// AuthStatus is the body of the auth status endpoint.
	AuthStatus struct {
		Authenticated bool `json:"authenticated"`
	}
)

func (b BudgetSettings) Validate() error {
	if b.MonthlyBudget != nil && *b.MonthlyBudget < 0 {
		return errors.Join(ErrInvalidSettings, errors.New("monthly budget must not be negative"))
	}
	if b.OverSpendingThreshold != nil && (*b.OverSpendingThreshold < 0 || *b.OverSpendingThreshold > 100) {
		return errors.Join(ErrInvalidSettings, errors.New("over-spending threshold must be between 0 and 100"))
	}
	return nil
}

func (d DisplaySettings) Validate() error {
	switch d.DefaultDashboardRange {
	case "", RangeMonth, RangeQuarter, RangeYear, RangeAll:
		return nil
	default:
		return errors.Join(ErrInvalidSettings, errors.New("unknown dashboard range "+d.DefaultDashboardRange))
	}
}

// UnmarshalJSON decodes both embedded halves from the flat settings document.
func (s *Settings) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &s.BudgetSettings); err != nil {
		return err
	}
	return json.Unmarshal(b, &s.DisplaySettings)
}

// MarshalJSON flattens both halves into one object.
func (s Settings) MarshalJSON() ([]byte, error) {
	budget, err := json.Marshal(s.BudgetSettings)
	if err != nil {
		return nil, err
	}
	display, err := json.Marshal(s.DisplaySettings)
	if err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(budget, &out); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(display, &out); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

package api

import (
	"context"
	"fmt"
	"net/http"

	"fintrack/internal/core"
)

const (
	settingsPath        = "/user/settings/"
	budgetSettingsPath  = "/user/settings/budget/"
	displaySettingsPath = "/user/settings/display/"
)

// Settings is the user settings resource.
type Settings struct {
	req Requester
}

func (s *Settings) Get(ctx context.Context) (core.Settings, error) {
	var out core.Settings
	if err := s.req.DoJSON(ctx, http.MethodGet, settingsPath, nil, nil, &out); err != nil {
		return core.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return out, nil
}

func (s *Settings) UpdateBudget(ctx context.Context, b core.BudgetSettings) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := s.req.DoJSON(ctx, http.MethodPost, budgetSettingsPath, nil, b, nil); err != nil {
		return fmt.Errorf("update budget settings: %w", err)
	}
	return nil
}

func (s *Settings) UpdateDisplay(ctx context.Context, d core.DisplaySettings) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := s.req.DoJSON(ctx, http.MethodPost, displaySettingsPath, nil, d, nil); err != nil {
		return fmt.Errorf("update display settings: %w", err)
	}
	return nil
}

package core

import "encoding/json"

// Bank linking types. The linking provider is opaque; only the fields the
// dashboard reads are modelled and the rest is kept raw.
type (
	LinkToken struct {
		LinkToken  string `json:"link_token"`
		Expiration string `json:"expiration,omitempty"`
	}

	// PublicTokenExchange is the result of trading a public token for a
	// long-lived bank access token.
	PublicTokenExchange struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id,omitempty"`
	}

	BankTransaction struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Category    string `json:"category"`
		Amount      Money  `json:"amount"`
		Currency    string `json:"currency,omitempty"`
		Description string `json:"description,omitempty"`
		Date        Date   `json:"date"`
	}

	BankBalance struct {
		Accounts []BankAccount   `json:"accounts"`
		Raw      json.RawMessage `json:"-"`
	}

	BankAccount struct {
		AccountID string `json:"account_id"`
		Name      string `json:"name"`
		Mask      string `json:"mask,omitempty"`
		Type      string `json:"type,omitempty"`
		Subtype   string `json:"subtype,omitempty"`
		Balances  struct {
			Available *float64 `json:"available"`
			Current   *float64 `json:"current"`
			Currency  string   `json:"iso_currency_code"`
		} `json:"balances"`
	}
)

// UnmarshalJSON tolerates the category arriving as a list (first element wins).
func (t *BankTransaction) UnmarshalJSON(b []byte) error {
	type alias BankTransaction
	var raw struct {
		alias
		Category json.RawMessage `json:"category"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = BankTransaction(raw.alias)
	if len(raw.Category) == 0 || string(raw.Category) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw.Category, &list); err == nil {
		if len(list) > 0 {
			t.Category = list[0]
		}
		return nil
	}
	return json.Unmarshal(raw.Category, &t.Category)
}

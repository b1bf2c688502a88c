package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Type   TransactionType `json:"type"`
	Amount Money           `json:"amount"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Income     Money            `json:"income"`
	Expenses   Money            `json:"expenses"`
	Net        Money            `json:"net"`
	ByCategory []CategoryAmount `json:"by_category"`
}

// Summarize reduces the transactions dated in year/month into a MonthOverview.
// Categories keep first-seen order; income and expense categories with the
// same name are reported separately.
func Summarize(year, month int, txs []Transaction) MonthOverview {
	ov := MonthOverview{Year: year, Month: month}
	type key struct {
		name string
		typ  TransactionType
	}
	byCat := map[key]int64{}
	var order []key
	for _, t := range txs {
		if t.Date.Year() != year || int(t.Date.Month()) != month {
			continue
		}
		k := key{name: t.Category, typ: t.Type}
		if k.name == "" {
			k.name = "(uncategorized)"
		}
		if _, seen := byCat[k]; !seen {
			order = append(order, k)
		}
		byCat[k] += t.Amount.Cents
		if t.Type == Income {
			ov.Income.Cents += t.Amount.Cents
		} else {
			ov.Expenses.Cents += t.Amount.Cents
		}
	}
	ov.Net = Money{Cents: ov.Income.Cents - ov.Expenses.Cents}
	ov.ByCategory = make([]CategoryAmount, 0, len(order))
	for _, k := range order {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: k.name, Type: k.typ, Amount: Money{Cents: byCat[k]}})
	}
	return ov
}

package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-15T10:11:12Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "2024-03-15" {
		t.Fatalf("got %s", d)
	}
	if _, err := ParseDate("15/03/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Name:     "Groceries",
		Type:     Expense,
		Category: "Food",
		Amount:   Money{Cents: 100},
		Date:     NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	mutate := func(f func(*Transaction)) Transaction {
		tx := good
		f(&tx)
		return tx
	}
	bads := map[string]Transaction{
		"zero date":      mutate(func(tx *Transaction) { tx.Date = Date{} }),
		"empty name":     mutate(func(tx *Transaction) { tx.Name = "  " }),
		"zero amount":    mutate(func(tx *Transaction) { tx.Amount = Money{} }),
		"empty category": mutate(func(tx *Transaction) { tx.Category = "" }),
		"bad type":       mutate(func(tx *Transaction) { tx.Type = "Transfer" }),
		"bad frequency":  mutate(func(tx *Transaction) { tx.Frequency = "hourly" }),
		"negative period": mutate(func(tx *Transaction) {
			tx.Frequency = Monthly
			tx.Period = -1
		}),
	}
	for name, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestTransactionJSONWireFormat(t *testing.T) {
	in := `{"id":7,"name":"Salary","type":"Income","category":"Job","amount":"2500.00",
		"currency":"USD","frequency":null,"period":null,"date":"2024-03-01","notes":null,
		"updated_at":"2024-03-01T08:00:00.123456Z"}`
	var tx Transaction
	if err := json.Unmarshal([]byte(in), &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tx.ID != 7 || tx.Type != Income || tx.Amount.Cents != 250000 || tx.Date.String() != "2024-03-01" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.Signed() != 250000 {
		t.Fatalf("income should be positive, got %d", tx.Signed())
	}

	out, err := json.Marshal(Transaction{Name: "Rent", Type: Expense, Category: "Home", Amount: Money{Cents: 90000}, Date: NewDate(2024, 3, 2)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(out, &generic); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if generic["amount"] != 900.0 || generic["date"] != "2024-03-02" || generic["type"] != "Expense" {
		t.Fatalf("unexpected wire form: %s", out)
	}
	if _, ok := generic["id"]; ok {
		t.Fatalf("zero id should be omitted: %s", out)
	}
}

func TestParseTransactionType(t *testing.T) {
	if typ, err := ParseTransactionType("income"); err != nil || typ != Income {
		t.Fatalf("got %q, %v", typ, err)
	}
	if _, err := ParseTransactionType("transfer"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	txs := []Transaction{
		{Name: "a", Type: Expense, Category: "Food", Amount: Money{Cents: 1000}, Date: NewDate(2024, 3, 1)},
		{Name: "b", Type: Expense, Category: "Home", Amount: Money{Cents: 5000}, Date: NewDate(2024, 3, 5)},
		{Name: "c", Type: Expense, Category: "Food", Amount: Money{Cents: 250}, Date: NewDate(2024, 3, 9)},
		{Name: "d", Type: Income, Category: "Job", Amount: Money{Cents: 20000}, Date: NewDate(2024, 3, 28)},
		{Name: "e", Type: Expense, Category: "Food", Amount: Money{Cents: 999}, Date: NewDate(2024, 4, 1)},
	}
	ov := Summarize(2024, 3, txs)
	if ov.Expenses.Cents != 6250 || ov.Income.Cents != 20000 || ov.Net.Cents != 13750 {
		t.Fatalf("unexpected totals: %+v", ov)
	}
	if len(ov.ByCategory) != 3 {
		t.Fatalf("expected 3 categories, got %+v", ov.ByCategory)
	}
	if ov.ByCategory[0].Name != "Food" || ov.ByCategory[0].Amount.Cents != 1250 {
		t.Fatalf("first category should be Food=1250, got %+v", ov.ByCategory[0])
	}
	if ov.ByCategory[2].Type != Income {
		t.Fatalf("expected income category last, got %+v", ov.ByCategory[2])
	}
}

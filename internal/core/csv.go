package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrInvalidCSV = errors.New("invalid CSV")

// csvColumns maps accepted header names to the field they fill. "title"
// is the dashboard's export name for the transaction name.
var csvColumns = map[string]string{
	"title":    "name",
	"name":     "name",
	"category": "category",
	"amount":   "amount",
	"date":     "date",
	"notes":    "notes",
	"type":     "type",
	"currency": "currency",
}

var requiredCSVColumns = []string{"name", "category", "amount", "date"}

// ReadTransactionsCSV parses a headed CSV of transactions. The header must
// name title (or name), category, amount and date; notes, type and
// currency are optional and unknown columns are ignored. Rows without a
// type column get defaultType. Every row is validated, and the first bad
// row fails the whole file, reported with its line number.
func ReadTransactionsCSV(r io.Reader, defaultType TransactionType) ([]Transaction, error) {
	if !defaultType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, defaultType)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := csvColumns[h]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	for _, field := range requiredCSVColumns {
		if _, ok := index[field]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", ErrInvalidCSV, field)
		}
	}

	var txs []Transaction
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		line, _ := cr.FieldPos(0)

		get := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if isBlank(record) {
			continue
		}

		tx := Transaction{
			Name:     get("name"),
			Category: get("category"),
			Notes:    get("notes"),
			Currency: strings.ToUpper(get("currency")),
			Type:     defaultType,
		}
		if s := get("type"); s != "" {
			if tx.Type, err = ParseTransactionType(s); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		cents, err := ParseDecimalToCents(get("amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %q", line, err, get("amount"))
		}
		tx.Amount = Money{Cents: cents}
		if tx.Date, err = ParseDate(get("date")); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

package sheets

import (
	"context"
	"fmt"
	"sort"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionWriter appends transactions to the sheet for a given year.
	TransactionWriter interface {
		Append(ctx context.Context, year int, txs []core.Transaction) (rowRef string, err error)
	}

	// TransactionLister returns what has already been exported for a year.
	TransactionLister interface {
		ListTransactions(ctx context.Context, year int) ([]core.Transaction, error)
	}

	Exporter interface {
		TransactionWriter
		TransactionLister
	}
)

// ExportResult reports what happened to one year's sheet.
type ExportResult struct {
	Year    int
	Written int
	Skipped int
	RowRef  string
}

// Export groups txs by year and appends each group to its sheet. Transactions
// whose ID is already present in the sheet are skipped, so re-running an
// export only adds what is new.
func Export(ctx context.Context, dst Exporter, txs []core.Transaction) ([]ExportResult, error) {
	byYear := map[int][]core.Transaction{}
	for _, tx := range txs {
		if tx.Date.IsZero() {
			continue
		}
		y := tx.Date.Year()
		byYear[y] = append(byYear[y], tx)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	results := make([]ExportResult, 0, len(years))
	for _, year := range years {
		existing, err := dst.ListTransactions(ctx, year)
		if err != nil {
			return results, fmt.Errorf("list %d: %w", year, err)
		}
		seen := make(map[int64]struct{}, len(existing))
		for _, tx := range existing {
			if tx.ID != 0 {
				seen[tx.ID] = struct{}{}
			}
		}

		res := ExportResult{Year: year}
		pending := make([]core.Transaction, 0, len(byYear[year]))
		for _, tx := range byYear[year] {
			if _, dup := seen[tx.ID]; dup && tx.ID != 0 {
				res.Skipped++
				continue
			}
			pending = append(pending, tx)
		}
		sort.SliceStable(pending, func(i, j int) bool {
			return pending[i].Date.Before(pending[j].Date.Time)
		})

		if len(pending) > 0 {
			ref, err := dst.Append(ctx, year, pending)
			if err != nil {
				return results, fmt.Errorf("append %d: %w", year, err)
			}
			res.RowRef = ref
			res.Written = len(pending)
		}
		results = append(results, res)
	}
	return results, nil
}

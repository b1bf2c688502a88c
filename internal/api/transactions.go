package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync/atomic"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

const transactionsPath = "/transactions/"

var ErrNoIDs = errors.New("no transaction ids given")

// Transactions is the expense/income CRUD resource.
type Transactions struct {
	req    Requester
	cache  cache.Cache[[]core.Transaction]
	logger *log.Logger

	// gen advances on every purge; a listing fetched under an older
	// generation is returned but not cached.
	gen atomic.Uint64
}

// transactionList accepts the list under "expenses", under
// "transactions", or as a bare array.
type transactionList []core.Transaction

func (l *transactionList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, (*[]core.Transaction)(l))
	}
	var wrapped struct {
		Expenses     []core.Transaction `json:"expenses"`
		Transactions []core.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	if wrapped.Expenses != nil {
		*l = wrapped.Expenses
	} else {
		*l = wrapped.Transactions
	}
	return nil
}

// List returns every transaction of the user.
func (t *Transactions) List(ctx context.Context) ([]core.Transaction, error) {
	var out transactionList
	if err := t.req.DoJSON(ctx, http.MethodGet, transactionsPath, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// ListByMonth returns one month's transactions, served from the cache
// while fresh.
func (t *Transactions) ListByMonth(ctx context.Context, month, year int) ([]core.Transaction, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d: must be between 1 and 12", month)
	}
	key := monthKey(month, year)
	if t.cache != nil {
		if txs, ok := t.cache.Get(key); ok {
			t.logger.DebugContext(ctx, "Month listing served from cache", log.FieldYear, year, log.FieldMonth, month)
			return slices.Clone(txs), nil
		}
	}
	gen := t.gen.Load()

	q := url.Values{}
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))

	var out transactionList
	if err := t.req.DoJSON(ctx, http.MethodGet, transactionsPath, q, nil, &out); err != nil {
		return nil, fmt.Errorf("list transactions for %04d-%02d: %w", year, month, err)
	}
	if t.cache != nil && t.gen.Load() == gen {
		t.cache.Set(key, slices.Clone(out))
	}
	return out, nil
}

// Create adds one transaction and returns it as stored by the backend.
func (t *Transactions) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var out core.Transaction
	if err := t.req.DoJSON(ctx, http.MethodPost, transactionsPath, nil, tx, &out); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	t.invalidate()
	t.logger.InfoContext(ctx, "Transaction created", log.FieldOperation, log.OpCreate, "id", out.ID)
	return out, nil
}

// CreateBatch adds several transactions in one request.
func (t *Transactions) CreateBatch(ctx context.Context, txs []core.Transaction) ([]core.Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	var out transactionList
	if err := t.req.DoJSON(ctx, http.MethodPost, transactionsPath, nil, txs, &out); err != nil {
		return nil, fmt.Errorf("create transactions: %w", err)
	}
	t.invalidate()
	t.logger.InfoContext(ctx, "Transactions created", log.FieldOperation, log.OpCreate, log.FieldCount, len(out))
	return out, nil
}

// Update sends tx as a PATCH for transaction id.
func (t *Transactions) Update(ctx context.Context, id int64, tx core.Transaction) (core.Transaction, error) {
	if id <= 0 {
		return core.Transaction{}, fmt.Errorf("invalid transaction id %d", id)
	}
	var out core.Transaction
	path := transactionsPath + strconv.FormatInt(id, 10) + "/"
	if err := t.req.DoJSON(ctx, http.MethodPatch, path, nil, tx, &out); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}
	t.invalidate()
	return out, nil
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

// Delete removes the given transactions in one bulk request.
func (t *Transactions) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return ErrNoIDs
	}
	if err := t.req.DoJSON(ctx, http.MethodDelete, transactionsPath, nil, deleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	t.invalidate()
	t.logger.InfoContext(ctx, "Transactions deleted", log.FieldOperation, log.OpDelete, log.FieldCount, len(ids))
	return nil
}

// Overview fetches a month and reduces it to totals.
func (t *Transactions) Overview(ctx context.Context, month, year int) (core.MonthOverview, error) {
	txs, err := t.ListByMonth(ctx, month, year)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return core.Summarize(year, month, txs), nil
}

// invalidate drops every cached month: a write may move a transaction
// between months, so per-key invalidation is not enough. It also runs on
// every session reset so one identity never sees another's listings.
func (t *Transactions) invalidate() {
	t.gen.Add(1)
	if t.cache != nil {
		t.cache.Purge()
	}
}

func monthKey(month, year int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// Package api wraps the backend's REST resources on top of the session
// client. Every call goes through the session pipeline, so a stale token
// is recovered transparently and a terminated session surfaces as
// session.ErrSessionTerminated.
package api

import (
	"context"
	"net/url"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Requester sends a JSON request through the authenticated pipeline.
// *session.Client implements it.
type Requester interface {
	DoJSON(ctx context.Context, method, path string, query url.Values, in, out any) error
}

// BankTokens reads and writes the stored bank-link access token.
// *session.Client implements it.
type BankTokens interface {
	BankToken(ctx context.Context) (string, error)
	SetBankToken(ctx context.Context, token string) error
}

// Session is everything the API consumers need from the session client.
type Session interface {
	Requester
	BankTokens
}

// resetNotifier is implemented by *session.Client: fn runs on every login,
// logout and session termination.
type resetNotifier interface {
	OnReset(fn func())
}

// Options tunes the month-listing cache. A zero CacheSize disables it.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	// Caches, when set, evicts expired month listings in the background.
	Caches *cache.Manager
	Logger *log.Logger
}

// API groups the resource clients.
type API struct {
	Transactions *Transactions
	Settings     *Settings
	Bank         *Bank
	Investments  *Investments
	User         *User
	Categories   *Categories
}

func New(s Session, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAPI)

	var months cache.Cache[[]core.Transaction]
	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		lru := cache.NewLRUCache[[]core.Transaction](opts.CacheSize, opts.CacheTTL)
		if opts.Caches != nil {
			opts.Caches.Register(lru)
		}
		months = lru
	}

	txs := &Transactions{req: s, cache: months, logger: logger}
	if n, ok := s.(resetNotifier); ok {
		n.OnReset(txs.invalidate)
	}

	return &API{
		Transactions: txs,
		Settings:     &Settings{req: s},
		Bank:         &Bank{req: s, tokens: s, logger: logger},
		Investments:  &Investments{req: s},
		User:         &User{req: s},
		Categories:   &Categories{req: s},
	}
}

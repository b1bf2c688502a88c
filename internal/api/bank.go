package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

const (
	linkTokenPath     = "/create-link-token/"
	exchangeTokenPath = "/exchange-public-token/"
	bankTxPath        = "/get-transactions/"
	bankBalancePath   = "/get-balance/"
)

// ErrNoBankLink is returned when no bank account has been linked yet.
var ErrNoBankLink = errors.New("no linked bank account: run a public token exchange first")

// Bank talks to the bank-linking endpoints. The provider behind them is
// opaque; only the fields the dashboard reads are decoded.
type Bank struct {
	req    Requester
	tokens BankTokens
	logger *log.Logger
}

func (b *Bank) CreateLinkToken(ctx context.Context) (core.LinkToken, error) {
	var out core.LinkToken
	if err := b.req.DoJSON(ctx, http.MethodPost, linkTokenPath, nil, struct{}{}, &out); err != nil {
		return core.LinkToken{}, fmt.Errorf("create link token: %w", err)
	}
	return out, nil
}

type exchangeRequest struct {
	PublicToken string `json:"public_token"`
}

// ExchangePublicToken trades a public token for a long-lived bank token
// and stores it for later reads.
func (b *Bank) ExchangePublicToken(ctx context.Context, publicToken string) (core.PublicTokenExchange, error) {
	if publicToken == "" {
		return core.PublicTokenExchange{}, errors.New("public token is required")
	}
	var out core.PublicTokenExchange
	if err := b.req.DoJSON(ctx, http.MethodPost, exchangeTokenPath, nil, exchangeRequest{PublicToken: publicToken}, &out); err != nil {
		return core.PublicTokenExchange{}, fmt.Errorf("exchange public token: %w", err)
	}
	if out.AccessToken == "" {
		return core.PublicTokenExchange{}, errors.New("exchange public token: response carried no access token")
	}
	if err := b.tokens.SetBankToken(ctx, out.AccessToken); err != nil {
		return core.PublicTokenExchange{}, fmt.Errorf("store bank token: %w", err)
	}
	b.logger.InfoContext(ctx, "Bank account linked", "item_id", out.ItemID)
	return out, nil
}

func (b *Bank) tokenQuery(ctx context.Context) (url.Values, error) {
	tok, err := b.tokens.BankToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("read bank token: %w", err)
	}
	if tok == "" {
		return nil, ErrNoBankLink
	}
	q := url.Values{}
	q.Set("access_token", tok)
	return q, nil
}

// Transactions returns the linked account's recent transactions.
func (b *Bank) Transactions(ctx context.Context) ([]core.BankTransaction, error) {
	q, err := b.tokenQuery(ctx)
	if err != nil {
		return nil, err
	}
	var out struct {
		Transactions []core.BankTransaction `json:"transactions"`
	}
	if err := b.req.DoJSON(ctx, http.MethodGet, bankTxPath, q, nil, &out); err != nil {
		return nil, fmt.Errorf("get bank transactions: %w", err)
	}
	return out.Transactions, nil
}

// Balance returns account balances. The full provider payload is kept in Raw.
func (b *Bank) Balance(ctx context.Context) (core.BankBalance, error) {
	q, err := b.tokenQuery(ctx)
	if err != nil {
		return core.BankBalance{}, err
	}
	var raw json.RawMessage
	if err := b.req.DoJSON(ctx, http.MethodGet, bankBalancePath, q, nil, &raw); err != nil {
		return core.BankBalance{}, fmt.Errorf("get bank balance: %w", err)
	}
	var out core.BankBalance
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return core.BankBalance{}, fmt.Errorf("decode bank balance: %w", err)
		}
	}
	out.Raw = raw
	return out, nil
}

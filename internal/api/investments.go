package api

import (
	"context"
	"fmt"
	"net/http"

	"fintrack/internal/core"
)

const investmentsPath = "/get-investments/"

// Investments is the read-only holdings resource.
type Investments struct {
	req Requester
}

func (i *Investments) List(ctx context.Context) ([]core.Investment, error) {
	var out []core.Investment
	if err := i.req.DoJSON(ctx, http.MethodGet, investmentsPath, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	return out, nil
}

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	txs, err := s.transactions.ListByMonth(ctx, params.Month, params.Year)
	if err != nil {
		s.upstreamResponse(ctx, log.OpList, err).Write(w)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewJSONResponse().Body(txs).Write(w)
}

// handleCreateTransactions accepts one transaction object or an array of them.
func (s *Server) handleCreateTransactions(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := DecodeJSON(w, r, &raw); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var txs []core.Transaction
		if err := json.Unmarshal(raw, &txs); err != nil {
			BadRequestError("invalid transaction list: " + err.Error()).Write(w)
			return
		}
		if len(txs) == 0 {
			BadRequestError("no transactions given").Write(w)
			return
		}
		for i, tx := range txs {
			if err := tx.Validate(); err != nil {
				UnprocessableEntityError(fmt.Sprintf("transaction %d: %v", i, err)).Write(w)
				return
			}
		}
		created, err := s.transactions.CreateBatch(ctx, txs)
		if err != nil {
			s.upstreamResponse(ctx, log.OpCreate, err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).Body(created).Write(w)
		return
	}

	var tx core.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		BadRequestError("invalid transaction: " + err.Error()).Write(w)
		return
	}
	if err := tx.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	created, err := s.transactions.Create(ctx, tx)
	if err != nil {
		s.upstreamResponse(ctx, log.OpCreate, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(created).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r.PathValue("id"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var tx core.Transaction
	if err := DecodeJSON(w, r, &tx); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	updated, err := s.transactions.Update(ctx, id, tx)
	if err != nil {
		s.upstreamResponse(ctx, log.OpUpdate, err).Write(w)
		return
	}
	NewJSONResponse().Body(updated).Write(w)
}

// handleDeleteTransactions takes ids from a JSON body ({"ids":[...]}) or
// from the ids query parameter ("1,2,3").
func (s *Server) handleDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	if q := r.URL.Query().Get("ids"); q != "" {
		parsed, err := ParseIDList(q)
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		ids = parsed
	} else {
		var body struct {
			IDs []int64 `json:"ids"`
		}
		if err := DecodeJSON(w, r, &body); err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		ids = body.IDs
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	if err := s.transactions.Delete(ctx, ids); err != nil {
		s.upstreamResponse(ctx, log.OpDelete, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	ov, err := s.transactions.Overview(ctx, params.Month, params.Year)
	if err != nil {
		s.upstreamResponse(ctx, log.OpList, err).Write(w)
		return
	}
	NewJSONResponse().Body(ov).Write(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.upstreamResponse(ctx, "settings", err).Write(w)
		return
	}
	NewJSONResponse().Body(settings).Write(w)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var b core.BudgetSettings
	if err := DecodeJSON(w, r, &b); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	if err := s.settings.UpdateBudget(ctx, b); err != nil {
		s.upstreamResponse(ctx, log.OpUpdate, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleUpdateDisplay(w http.ResponseWriter, r *http.Request) {
	var d core.DisplaySettings
	if err := DecodeJSON(w, r, &d); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := s.upstreamContext(r)
	defer cancel()

	if err := s.settings.UpdateDisplay(ctx, d); err != nil {
		s.upstreamResponse(ctx, log.OpUpdate, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

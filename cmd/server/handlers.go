package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pricefeed/internal/fetcher"
	"pricefeed/internal/pricecache"
	"pricefeed/internal/quote"
	"pricefeed/internal/session"
	"pricefeed/internal/source"
	"pricefeed/internal/wire"
)

type handler struct {
	prices   pricecache.Fetcher
	sessions *session.Resolver
	log      *slog.Logger
	timeout  time.Duration
	maxBatch int
	now      func() time.Time
}

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/price", h.getPrice)
	mux.HandleFunc("POST /api/prices/batch", h.postBatch)
	mux.HandleFunc("GET /api/session", h.getSession)
	return mux
}

func (h *handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *handler) getPrice(w http.ResponseWriter, r *http.Request) {
	sym := quote.NormalizeSymbol(r.URL.Query().Get("symbol"))
	if sym == "" {
		writeError(w, http.StatusBadRequest, "missing symbol query param")
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	q, err := h.prices.Fetch(ctx, sym)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.log.Warn("price lookup failed", "symbol", sym, "err", err)
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wire.FromQuote(q))
}

func (h *handler) postBatch(w http.ResponseWriter, r *http.Request) {
	var body wire.BatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols cannot be empty")
		return
	}
	if h.maxBatch > 0 && len(body.Symbols) > h.maxBatch {
		writeError(w, http.StatusBadRequest, "too many symbols")
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	res := h.prices.FetchBatch(ctx, body.Symbols)
	writeJSON(w, http.StatusOK, wire.FromBatch(res))
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	sym := quote.NormalizeSymbol(r.URL.Query().Get("symbol"))
	if sym == "" {
		writeError(w, http.StatusBadRequest, "missing symbol query param")
		return
	}
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	writeJSON(w, http.StatusOK, h.sessions.Status(sym, now()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrNoSource), errors.Is(err, source.ErrNotFound), errors.Is(err, source.ErrUnsupported):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, wire.ErrorResponse{Error: strings.TrimSpace(msg)})
}

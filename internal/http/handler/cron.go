package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"

	"leetmail/internal/auth"
	"leetmail/internal/runs"
	"leetmail/internal/scheduler"
)

type Runner interface {
	Run(ctx context.Context, trigger string, now time.Time) (scheduler.Report, error)
}

type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]runs.CycleRun, error)
}

type CronHandler struct {
	Secret auth.Secret
	JWT    *auth.JWT
	Runner Runner
	Runs   RunHistory
	Now    func() time.Time

	// CycleTimeout bounds a cycle started over HTTP. The cycle does not
	// follow the request: a caller that hangs up early must not cancel it.
	CycleTimeout time.Duration
}

const defaultCycleTimeout = 5 * time.Minute

type tokenReq struct {
	Secret string `json:"secret"`
}

// Token exchanges the shared cron secret for a short-lived bearer token.
func (h *CronHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := h.Secret.Compare(req.Secret); err != nil {
		hlog.FromRequest(r).Warn().Msg("cron token: secret mismatch")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	token, exp, err := h.JWT.Sign()
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

// Run executes one cycle. ?at=RFC3339 evaluates slots at that instant
// instead of now.
func (h *CronHandler) Run(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	if at := strings.TrimSpace(r.URL.Query().Get("at")); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			http.Error(w, "invalid at (RFC3339)", http.StatusBadRequest)
			return
		}
		now = t
	}

	timeout := h.CycleTimeout
	if timeout <= 0 {
		timeout = defaultCycleTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	rep, err := h.Runner.Run(ctx, runs.TriggerHTTP, now)
	switch {
	case errors.Is(err, scheduler.ErrFatalRun):
		writeJSON(w, http.StatusBadGateway, rep)
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, rep)
		return
	case err != nil:
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *CronHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	items, err := h.Runs.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"leetmail/internal/leetcode"
	"leetmail/internal/mail"
	"leetmail/internal/subscription"
)

type Subscriptions interface {
	Subscribe(ctx context.Context, in subscription.SubscribeInput) (subscription.Status, error)
	Verify(ctx context.Context, token string) (already bool, err error)
	Unsubscribe(ctx context.Context, token string) error
}

type SubscriptionHandler struct {
	Svc Subscriptions
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req subscription.SubscribeInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	status, err := h.Svc.Subscribe(r.Context(), req)
	switch {
	case errors.Is(err, subscription.ErrInvalidEmail),
		errors.Is(err, subscription.ErrInvalidTimezone),
		errors.Is(err, subscription.ErrInvalidUsername):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, leetcode.ErrUnreachable), errors.Is(err, leetcode.ErrMalformedResponse):
		http.Error(w, "cannot verify username right now, try again later", http.StatusServiceUnavailable)
		return
	case errors.Is(err, mail.ErrAuth), errors.Is(err, mail.ErrTransient):
		http.Error(w, "cannot send verification email right now, try again later", http.StatusBadGateway)
		return
	case err != nil:
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if status == subscription.VerificationSent {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"message": status.Message(),
	})
}

func (h *SubscriptionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	already, err := h.Svc.Verify(r.Context(), r.URL.Query().Get("token"))
	if errors.Is(err, subscription.ErrInvalidToken) {
		http.Error(w, "invalid or expired token", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	msg := "Email verified. Daily reminders start with the next slot."
	if already {
		msg = "Email already verified."
	}
	writeText(w, msg)
}

func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	err := h.Svc.Unsubscribe(r.Context(), r.URL.Query().Get("token"))
	if errors.Is(err, subscription.ErrInvalidToken) {
		http.Error(w, "invalid or expired token", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeText(w, "You have been unsubscribed.")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(msg))
}

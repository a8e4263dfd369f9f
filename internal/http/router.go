package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"leetmail/internal/auth"
	"leetmail/internal/config"
	"leetmail/internal/http/handler"
	mw "leetmail/internal/http/middleware"
	"leetmail/internal/logging"
)

type Deps struct {
	Subscriptions handler.Subscriptions
	Runner        handler.Runner
	Runs          handler.RunHistory
	JWT           *auth.JWT
	Secret        auth.Secret
	CycleTimeout  time.Duration
	Log           zerolog.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(logging.Middleware(d.Log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	sh := &handler.SubscriptionHandler{Svc: d.Subscriptions}
	r.Post("/subscriptions", sh.Create)
	r.Get("/verify", sh.Verify)
	r.Get("/unsubscribe", sh.Unsubscribe)

	ch := &handler.CronHandler{
		Secret:       d.Secret,
		JWT:          d.JWT,
		Runner:       d.Runner,
		Runs:         d.Runs,
		CycleTimeout: d.CycleTimeout,
	}
	r.Route("/cron", func(r chi.Router) {
		r.Post("/token", ch.Token)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireTrigger(d.JWT))
			r.Post("/run", ch.Run)
			r.Get("/runs", ch.Recent)
		})
	})

	return r
}

package main

import (
	"net/http"
	"os"
	"time"

	"leetmail/internal/logging"
	"leetmail/internal/mockapi"
)

func main() {
	log := logging.New(os.Getenv("LOG_LEVEL"), true)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	srv := mockapi.New("Two Sum", "two-sum")
	for _, u := range []string{"alice", "bob", "carol"} {
		srv.AddUser(u)
	}

	addr := ":" + port
	log.Info().Str("addr", addr).Msg("mock leetcode api listening")
	s := &http.Server{
		Addr:              addr,
		Handler:           logging.Middleware(log)(srv.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := s.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("mock api stopped")
	}
}

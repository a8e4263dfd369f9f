package mail

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

var (
	ErrAuth      = errors.New("mail auth failed")
	ErrTransient = errors.New("mail delivery failed")
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a single message to a single recipient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender only logs. Used for dry runs and local development.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrTransient, err)
	}
	s.Log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("bytes", len(msg.HTML)).
		Msg("mail (dry run)")
	return nil
}

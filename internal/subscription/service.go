package subscription

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leetmail/internal/mail"
	"leetmail/internal/slot"
	"leetmail/internal/subscriber"
)

var (
	ErrInvalidUsername = errors.New("invalid leetcode username")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidToken    = errors.New("invalid or expired token")
)

type Status string

const (
	VerificationSent   Status = "verification_sent"
	VerificationResent Status = "verification_resent"
	AlreadySubscribed  Status = "already_subscribed"
	Resubscribed       Status = "resubscribed"
)

// Message is what the subscriber is told for each status.
func (s Status) Message() string {
	switch s {
	case VerificationSent:
		return "Verification email sent. Please check your inbox."
	case VerificationResent:
		return "Verification email resent. Please check your inbox."
	case AlreadySubscribed:
		return "This email is already subscribed."
	case Resubscribed:
		return "Subscription reactivated."
	}
	return string(s)
}

type Store interface {
	Create(ctx context.Context, sub *subscriber.Subscriber) error
	ByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error)
	Verify(ctx context.Context, token string) (already bool, err error)
	Unsubscribe(ctx context.Context, token string) error
	Resubscribe(ctx context.Context, id uint64, username, timezone string) error
}

// UserChecker looks a username up on the problem site.
type UserChecker interface {
	UserExists(ctx context.Context, username string) (bool, error)
}

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type Service struct {
	Store  Store
	Users  UserChecker
	Sender mail.Sender
	Links  subscriber.Links
	Log    zerolog.Logger
}

type SubscribeInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (Status, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Timezone = strings.TrimSpace(in.Timezone)

	if !emailRe.MatchString(in.Email) {
		return "", ErrInvalidEmail
	}
	if _, err := slot.LoadLocation(in.Timezone); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimezone, in.Timezone)
	}
	if err := s.checkUser(ctx, in.Username); err != nil {
		return "", err
	}

	existing, err := s.Store.ByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, subscriber.ErrNotFound):
		return s.create(ctx, in)
	case err != nil:
		return "", err
	}

	log := s.Log.With().Uint64("sub", existing.ID).Logger()
	switch {
	case existing.EmailVerified && !existing.Unsubscribed:
		return AlreadySubscribed, nil
	case existing.EmailVerified:
		if err := s.Store.Resubscribe(ctx, existing.ID, in.Username, in.Timezone); err != nil {
			return "", err
		}
		log.Info().Msg("resubscribed")
		return Resubscribed, nil
	default:
		if err := s.sendVerification(ctx, existing.Email, existing.VerificationToken); err != nil {
			return "", err
		}
		log.Info().Msg("verification resent")
		return VerificationResent, nil
	}
}

func (s *Service) create(ctx context.Context, in SubscribeInput) (Status, error) {
	sub := &subscriber.Subscriber{
		LeetcodeUsername:  in.Username,
		Email:             in.Email,
		Timezone:          in.Timezone,
		VerificationToken: uuid.NewString(),
	}
	if err := s.Store.Create(ctx, sub); err != nil {
		if errors.Is(err, subscriber.ErrDuplicate) {
			// lost a race with a concurrent signup for the same address
			return VerificationResent, nil
		}
		return "", err
	}
	if err := s.sendVerification(ctx, sub.Email, sub.VerificationToken); err != nil {
		return "", err
	}
	s.Log.Info().Uint64("sub", sub.ID).Msg("subscriber created")
	return VerificationSent, nil
}

func (s *Service) checkUser(ctx context.Context, username string) error {
	if len(username) < 3 {
		return fmt.Errorf("%w: too short", ErrInvalidUsername)
	}
	ok, err := s.Users.UserExists(ctx, username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q not found", ErrInvalidUsername, username)
	}
	return nil
}

func (s *Service) sendVerification(ctx context.Context, email, token string) error {
	link := s.Links.Verify(token)
	msg := mail.Message{
		To:      email,
		Subject: "Verify your LeetCode daily reminder subscription",
		HTML: fmt.Sprintf(`<p>Confirm your subscription to daily LeetCode reminders:</p>
<p><a href="%s">Verify email</a></p>`, link),
	}
	if err := s.Sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send verification: %w", err)
	}
	return nil
}

// Verify is idempotent: verifying twice is not an error.
func (s *Service) Verify(ctx context.Context, token string) (already bool, err error) {
	already, err = s.Store.Verify(ctx, token)
	if errors.Is(err, subscriber.ErrNotFound) {
		return false, ErrInvalidToken
	}
	return already, err
}

func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	err := s.Store.Unsubscribe(ctx, token)
	if errors.Is(err, subscriber.ErrNotFound) {
		return ErrInvalidToken
	}
	return err
}

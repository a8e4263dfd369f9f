package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound        = errors.New("subscriber not found")
	ErrDuplicate       = errors.New("subscriber already exists")
	ErrBusy            = errors.New("subscriber held by another cycle")
	ErrAlreadyNotified = errors.New("subscriber already notified for this slot")
)

const uniqueViolation = "23505"

const dateLayout = "2006-01-02"

// Store persists subscribers in Postgres.
type Store struct {
	DB *gorm.DB
}

func (s *Store) Create(ctx context.Context, sub *Subscriber) error {
	if err := s.DB.WithContext(ctx).Create(sub).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ByEmail(ctx context.Context, email string) (*Subscriber, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *Store) ByToken(ctx context.Context, token string) (*Subscriber, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.first(ctx, "verification_token = ?", token)
}

func (s *Store) first(ctx context.Context, query string, args ...any) (*Subscriber, error) {
	var sub Subscriber
	if err := s.DB.WithContext(ctx).Where(query, args...).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// Verify flips email_verified for the token's owner. A second call is a no-op
// and reports already=true.
func (s *Store) Verify(ctx context.Context, token string) (already bool, err error) {
	sub, err := s.ByToken(ctx, token)
	if err != nil {
		return false, err
	}
	if sub.EmailVerified {
		return true, nil
	}
	err = s.DB.WithContext(ctx).Model(&Subscriber{}).
		Where("id = ? AND email_verified = false", sub.ID).
		Updates(map[string]any{"email_verified": true, "updated_at": time.Now()}).Error
	return false, err
}

func (s *Store) Unsubscribe(ctx context.Context, token string) error {
	if token == "" {
		return ErrNotFound
	}
	res := s.DB.WithContext(ctx).Model(&Subscriber{}).
		Where("verification_token = ?", token).
		Updates(map[string]any{"unsubscribed": true, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Resubscribe reactivates a subscriber and clears the dedup marker so the
// next slot goes out even if one was already sent today.
func (s *Store) Resubscribe(ctx context.Context, id uint64, username, timezone string) error {
	res := s.DB.WithContext(ctx).Model(&Subscriber{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"unsubscribed":      false,
			"leetcode_username": username,
			"timezone":          timezone,
			"last_sent_date":    gorm.Expr("NULL"),
			"last_sent_slot":    gorm.Expr("NULL"),
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListEligible(ctx context.Context) ([]Subscriber, error) {
	var subs []Subscriber
	err := s.DB.WithContext(ctx).
		Where("email_verified = true AND unsubscribed = false").
		Order("id asc").
		Find(&subs).Error
	return subs, err
}

// UpdateNotified writes the marker only if it does not already hold
// (date, slot). ok is false when another writer got there first.
func (s *Store) UpdateNotified(ctx context.Context, id uint64, date time.Time, slotName string) (ok bool, err error) {
	return updateNotified(s.DB.WithContext(ctx), id, date, slotName)
}

func updateNotified(tx *gorm.DB, id uint64, date time.Time, slotName string) (bool, error) {
	d := date.Format(dateLayout)
	res := tx.Model(&Subscriber{}).
		Where("id = ?", id).
		Where("last_sent_date IS DISTINCT FROM ?::date OR last_sent_slot IS DISTINCT FROM ?", d, slotName).
		Updates(map[string]any{
			"last_sent_date": d,
			"last_sent_slot": slotName,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Reservation holds a subscriber row for one delivery attempt.
// Exactly one of Commit or Release must be called.
type Reservation interface {
	Subscriber() Subscriber
	Commit() error
	Release()
}

// Reserve locks the subscriber row (FOR UPDATE SKIP LOCKED) and re-checks
// the marker under the lock. A concurrent cycle holding the row yields
// ErrBusy instead of waiting; a marker that already matches yields
// ErrAlreadyNotified. ctx bounds the whole reservation, including Commit.
func (s *Store) Reserve(ctx context.Context, id uint64, date time.Time, slotName string) (Reservation, error) {
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var sub Subscriber
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ? AND email_verified = true AND unsubscribed = false", id).
		First(&sub).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// locked elsewhere, or no longer eligible
			return nil, ErrBusy
		}
		return nil, err
	}
	if sub.Notified(date, slotName) {
		tx.Rollback()
		return nil, ErrAlreadyNotified
	}
	return &txReservation{tx: tx, sub: sub, date: date, slot: slotName}, nil
}

type txReservation struct {
	tx   *gorm.DB
	sub  Subscriber
	date time.Time
	slot string
	done bool
}

func (r *txReservation) Subscriber() Subscriber { return r.sub }

func (r *txReservation) Commit() error {
	if r.done {
		return errors.New("reservation already closed")
	}
	r.done = true

	ok, err := updateNotified(r.tx, r.sub.ID, r.date, r.slot)
	if err != nil {
		r.tx.Rollback()
		return fmt.Errorf("update marker: %w", err)
	}
	if !ok {
		r.tx.Rollback()
		return ErrAlreadyNotified
	}
	return r.tx.Commit().Error
}

func (r *txReservation) Release() {
	if r.done {
		return
	}
	r.done = true
	r.tx.Rollback()
}

package subscriber_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"leetmail/internal/db"
	"leetmail/internal/subscriber"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	gdb, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func newVerified(t *testing.T, st *subscriber.Store) *subscriber.Subscriber {
	t.Helper()
	ctx := context.Background()
	sub := &subscriber.Subscriber{
		LeetcodeUsername:  "alice",
		Email:             uuid.NewString() + "@example.com",
		Timezone:          "Asia/Kolkata",
		VerificationToken: uuid.NewString(),
	}
	if err := st.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Verify(ctx, sub.VerificationToken); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	t.Cleanup(func() { st.DB.Delete(&subscriber.Subscriber{}, sub.ID) })
	return sub
}

var day = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func TestStoreDuplicateEmail(t *testing.T) {
	st := &subscriber.Store{DB: testDB(t)}
	sub := newVerified(t, st)
	dup := &subscriber.Subscriber{
		LeetcodeUsername:  "bob",
		Email:             sub.Email,
		Timezone:          "UTC",
		VerificationToken: uuid.NewString(),
	}
	if err := st.Create(context.Background(), dup); !errors.Is(err, subscriber.ErrDuplicate) {
		t.Fatalf("Create duplicate = %v, want ErrDuplicate", err)
	}
}

func TestStoreVerifyIdempotent(t *testing.T) {
	st := &subscriber.Store{DB: testDB(t)}
	sub := newVerified(t, st)
	already, err := st.Verify(context.Background(), sub.VerificationToken)
	if err != nil || !already {
		t.Fatalf("second Verify = (%v, %v), want (true, nil)", already, err)
	}
	if _, err := st.Verify(context.Background(), "missing"); !errors.Is(err, subscriber.ErrNotFound) {
		t.Fatalf("Verify unknown = %v, want ErrNotFound", err)
	}
}

func TestStoreUpdateNotifiedIsConditional(t *testing.T) {
	st := &subscriber.Store{DB: testDB(t)}
	sub := newVerified(t, st)
	ctx := context.Background()

	ok, err := st.UpdateNotified(ctx, sub.ID, day, "morning")
	if err != nil || !ok {
		t.Fatalf("first UpdateNotified = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = st.UpdateNotified(ctx, sub.ID, day, "morning")
	if err != nil || ok {
		t.Fatalf("repeat UpdateNotified = (%v, %v), want (false, nil)", ok, err)
	}
	ok, _ = st.UpdateNotified(ctx, sub.ID, day, "afternoon")
	if !ok {
		t.Fatal("next slot must be writable")
	}

	got, _ := st.ByEmail(ctx, sub.Email)
	if !got.Notified(day, "afternoon") {
		t.Fatalf("marker = (%v, %v), want (%s, afternoon)", got.LastSentDate, got.LastSentSlot, day.Format("2006-01-02"))
	}
}

func TestStoreReserve(t *testing.T) {
	st := &subscriber.Store{DB: testDB(t)}
	sub := newVerified(t, st)
	ctx := context.Background()

	res, err := st.Reserve(ctx, sub.ID, day, "morning")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := st.Reserve(ctx, sub.ID, day, "morning"); !errors.Is(err, subscriber.ErrBusy) {
		t.Fatalf("concurrent Reserve = %v, want ErrBusy", err)
	}
	res.Release()

	res, err = st.Reserve(ctx, sub.ID, day, "morning")
	if err != nil {
		t.Fatalf("Reserve after release: %v", err)
	}
	if err := res.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := st.Reserve(ctx, sub.ID, day, "morning"); !errors.Is(err, subscriber.ErrAlreadyNotified) {
		t.Fatalf("Reserve after commit = %v, want ErrAlreadyNotified", err)
	}
}

func TestStoreReserveRace(t *testing.T) {
	st := &subscriber.Store{DB: testDB(t)}
	sub := newVerified(t, st)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := st.Reserve(context.Background(), sub.ID, day, "night")
			if err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
			if res.Commit() == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if committed != 1 {
		t.Fatalf("committed = %d, want 1", committed)
	}
}

func TestStoreResubscribeClearsMarker(t *testing.T) {
	st := &subscriber.Store{DB: testDB(t)}
	sub := newVerified(t, st)
	ctx := context.Background()

	if _, err := st.UpdateNotified(ctx, sub.ID, day, "morning"); err != nil {
		t.Fatal(err)
	}
	if err := st.Unsubscribe(ctx, sub.VerificationToken); err != nil {
		t.Fatal(err)
	}
	if err := st.Resubscribe(ctx, sub.ID, "bob", "Europe/Berlin"); err != nil {
		t.Fatal(err)
	}
	got, _ := st.ByEmail(ctx, sub.Email)
	if !got.Eligible() || got.LastSentDate != nil || got.LastSentSlot != nil {
		t.Fatalf("after resubscribe: %+v", got)
	}
	if got.LeetcodeUsername != "bob" || got.Timezone != "Europe/Berlin" {
		t.Fatalf("profile not updated: %+v", got)
	}

	eligible, err := st.ListEligible(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, s := range eligible {
		found = found || s.ID == sub.ID
	}
	if !found {
		t.Fatal("resubscribed subscriber missing from ListEligible")
	}
}

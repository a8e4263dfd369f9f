package subscriber

import (
	"testing"
	"time"
)

func TestNotified(t *testing.T) {
	t.Parallel()
	day := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	morning := "morning"
	// dates read back from a date column carry no zone information that matters
	stored := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.FixedZone("", 0))

	tests := []struct {
		name string
		sub  Subscriber
		date time.Time
		slot string
		want bool
	}{
		{"no marker", Subscriber{}, day, "morning", false},
		{"same date and slot", Subscriber{LastSentDate: &stored, LastSentSlot: &morning}, day, "morning", true},
		{"same date other slot", Subscriber{LastSentDate: &stored, LastSentSlot: &morning}, day, "night", false},
		{"next day same slot", Subscriber{LastSentDate: &stored, LastSentSlot: &morning}, day.AddDate(0, 0, 1), "morning", false},
		{"slot without date", Subscriber{LastSentSlot: &morning}, day, "morning", false},
	}
	for _, tt := range tests {
		if got := tt.sub.Notified(tt.date, tt.slot); got != tt.want {
			t.Fatalf("%s: Notified = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEligible(t *testing.T) {
	t.Parallel()
	for _, tt := range []struct {
		verified, unsubscribed, want bool
	}{
		{true, false, true},
		{false, false, false},
		{true, true, false},
		{false, true, false},
	} {
		s := Subscriber{EmailVerified: tt.verified, Unsubscribed: tt.unsubscribed}
		if got := s.Eligible(); got != tt.want {
			t.Fatalf("Eligible(verified=%v, unsubscribed=%v) = %v, want %v", tt.verified, tt.unsubscribed, got, tt.want)
		}
	}
}

func TestLinks(t *testing.T) {
	t.Parallel()
	l := Links{Base: "https://notify.example.com/"}
	if got := l.Verify("a b"); got != "https://notify.example.com/verify?token=a+b" {
		t.Fatalf("Verify = %q", got)
	}
	if got := l.Unsubscribe("tok"); got != "https://notify.example.com/unsubscribe?token=tok" {
		t.Fatalf("Unsubscribe = %q", got)
	}
}

package scheduler

import (
	"strings"
	"testing"

	"leetmail/internal/leetcode"
	"leetmail/internal/slot"
)

func TestComposeEscalates(t *testing.T) {
	t.Parallel()
	p := leetcode.Problem{Title: "Two Sum", Slug: "two-sum"}
	tests := []struct {
		slot   string
		prefix string
	}{
		{"morning", "Today's LeetCode: "},
		{"afternoon", "Reminder: "},
		{"night", "Final reminder: "},
	}
	for _, tt := range tests {
		s := slot.Default[slot.Default.Index(tt.slot)]
		msg, err := compose(slot.Default, s, p, "a@example.com", "https://x.test/unsubscribe?token=t1")
		if err != nil {
			t.Fatalf("compose(%s) error: %v", tt.slot, err)
		}
		if msg.Subject != tt.prefix+"Two Sum" {
			t.Fatalf("compose(%s) subject = %q, want prefix %q", tt.slot, msg.Subject, tt.prefix)
		}
		if !strings.Contains(msg.HTML, p.URL()) {
			t.Fatalf("compose(%s) body lacks problem url: %s", tt.slot, msg.HTML)
		}
		if !strings.Contains(msg.HTML, "https://x.test/unsubscribe?token=t1") {
			t.Fatalf("compose(%s) body lacks unsubscribe link: %s", tt.slot, msg.HTML)
		}
	}
}

func TestComposeEscapesTitle(t *testing.T) {
	t.Parallel()
	p := leetcode.Problem{Title: "<script>x</script>", Slug: "x"}
	msg, err := compose(slot.Default, slot.Default[0], p, "a@example.com", "https://x.test/u")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("title not escaped: %s", msg.HTML)
	}
}

func TestUrgencySingleSlotTable(t *testing.T) {
	t.Parallel()
	tbl := slot.Table{{Name: "only", Hour: 8}}
	if got := urgencyOf(tbl, tbl[0]); got != urgencyFirst {
		t.Fatalf("urgencyOf = %v, want first", got)
	}
}

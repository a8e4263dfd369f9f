package slot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidTable    = errors.New("invalid slot table")
)

// Slot is a named local hour-of-day at which a reminder may go out.
type Slot struct {
	Name string
	Hour int
}

// Table is ordered by Hour; later slots are more urgent.
type Table []Slot

// Default mirrors the hours the service has always used.
var Default = Table{
	{Name: "morning", Hour: 9},
	{Name: "afternoon", Hour: 15},
	{Name: "night", Hour: 20},
}

// ParseTable reads "morning=9,afternoon=15,night=20".
func ParseTable(raw string) (Table, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTable)
	}

	var t Table
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, hourStr, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: expected name=hour, got %q", ErrInvalidTable, part)
		}
		hour, err := strconv.Atoi(strings.TrimSpace(hourStr))
		if err != nil {
			return nil, fmt.Errorf("%w: hour of %q: %v", ErrInvalidTable, name, err)
		}
		t = append(t, Slot{Name: strings.ToLower(strings.TrimSpace(name)), Hour: hour})
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate requires unique non-empty names and strictly increasing hours in 0..23.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no slots", ErrInvalidTable)
	}
	seen := make(map[string]struct{}, len(t))
	for i, s := range t {
		if s.Name == "" {
			return fmt.Errorf("%w: slot %d has no name", ErrInvalidTable, i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: duplicate slot %q", ErrInvalidTable, s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Hour < 0 || s.Hour > 23 {
			return fmt.Errorf("%w: hour %d of %q out of range", ErrInvalidTable, s.Hour, s.Name)
		}
		if i > 0 && s.Hour <= t[i-1].Hour {
			return fmt.Errorf("%w: %q (%d) must come after %q (%d)", ErrInvalidTable, s.Name, s.Hour, t[i-1].Name, t[i-1].Hour)
		}
	}
	return nil
}

// Index returns the position of the named slot or -1.
func (t Table) Index(name string) int {
	for i, s := range t {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// At matches the wall-clock hour of local exactly. It does not look at ranges:
// a cycle has to run during the configured hour for the slot to fire.
func (t Table) At(local time.Time) (Slot, bool) {
	h := local.Hour()
	for _, s := range t {
		if s.Hour == h {
			return s, true
		}
	}
	return Slot{}, false
}

func (t Table) String() string {
	parts := make([]string, 0, len(t))
	for _, s := range t {
		parts = append(parts, s.Name+"="+strconv.Itoa(s.Hour))
	}
	return strings.Join(parts, ",")
}

var locations sync.Map // map[string]*time.Location

// LoadLocation resolves an IANA name. Unlike time.LoadLocation it refuses ""
// and "Local", which would silently map to the server's zone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	if v, ok := locations.Load(name); ok {
		return v.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	locations.Store(name, loc)
	return loc, nil
}

// Resolve maps an instant to the slot active in timezone tz, if any.
func Resolve(now time.Time, tz string, t Table) (Slot, bool, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return Slot{}, false, err
	}
	s, ok := t.At(now.In(loc))
	return s, ok, nil
}

// LocalDate is the calendar date of now in loc, as midnight UTC so it
// compares cleanly with values read back from a DATE column.
func LocalDate(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate compares calendar dates regardless of location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

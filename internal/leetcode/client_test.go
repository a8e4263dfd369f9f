package leetcode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"leetmail/internal/mockapi"
)

func init() { gin.SetMode(gin.TestMode) }

var fixedNow = time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)

func newMock(t *testing.T) (*mockapi.Server, *Client) {
	t.Helper()
	m := mockapi.New("Two Sum", "two-sum")
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)
	c := New(srv.URL, 2*time.Second).WithClock(func() time.Time { return fixedNow })
	return m, c
}

func TestDailyProblem(t *testing.T) {
	t.Parallel()
	for _, legacy := range []bool{false, true} {
		m, c := newMock(t)
		m.SetLegacyDaily(legacy)

		p, err := c.DailyProblem(context.Background())
		if err != nil {
			t.Fatalf("DailyProblem(legacy=%v) error: %v", legacy, err)
		}
		if p.Title != "Two Sum" || p.Slug != "two-sum" {
			t.Fatalf("DailyProblem(legacy=%v) = %+v", legacy, p)
		}
		if p.URL() != "https://leetcode.com/problems/two-sum/" {
			t.Fatalf("URL = %q", p.URL())
		}
	}
}

func TestDailyProblemUnreachable(t *testing.T) {
	t.Parallel()
	m, c := newMock(t)
	m.SetFailing(true)
	if _, err := c.DailyProblem(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
}

func TestDailyProblemTimeout(t *testing.T) {
	t.Parallel()
	m := mockapi.New("Two Sum", "two-sum")
	m.SetDelay(500 * time.Millisecond)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	c := New(srv.URL, 50*time.Millisecond)
	if _, err := c.DailyProblem(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
}

func TestDailyProblemMalformed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"question": "?"}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, time.Second).DailyProblem(context.Background()); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestSolvedTodayShapes(t *testing.T) {
	t.Parallel()
	for _, shape := range []mockapi.Shape{mockapi.ShapeSubmission, mockapi.ShapeData, mockapi.ShapeArray} {
		shape := shape
		t.Run(string(shape), func(t *testing.T) {
			t.Parallel()
			m, c := newMock(t)
			m.SetShape(shape)
			m.AddUser("alice")

			solved, err := c.SolvedToday(context.Background(), "alice", "two-sum")
			if err != nil {
				t.Fatalf("SolvedToday error: %v", err)
			}
			if solved {
				t.Fatal("solved = true before any submission")
			}

			m.Solve("alice", "add-two-numbers", fixedNow.Add(-time.Hour))
			m.Solve("alice", "two-sum", fixedNow.Add(-30*time.Hour))
			solved, _ = c.SolvedToday(context.Background(), "alice", "two-sum")
			if solved {
				t.Fatal("solved = true for yesterday's submission")
			}

			m.Solve("alice", "two-sum", fixedNow.Add(-time.Minute))
			solved, err = c.SolvedToday(context.Background(), "alice", "two-sum")
			if err != nil || !solved {
				t.Fatalf("SolvedToday = (%v, %v), want (true, nil)", solved, err)
			}
		})
	}
}

func TestSolvedTodayUnknownUserIsError(t *testing.T) {
	t.Parallel()
	_, c := newMock(t)
	solved, err := c.SolvedToday(context.Background(), "ghost", "two-sum")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
	if solved {
		t.Fatal("solved must be false alongside an error")
	}
}

func TestParseSubmissionsMalformed(t *testing.T) {
	t.Parallel()
	for _, body := range []string{`"nope"`, `{"items": []}`, `{"submission": {}}`, `[`} {
		if _, err := parseSubmissions([]byte(body)); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("parseSubmissions(%s) error = %v, want ErrMalformedResponse", body, err)
		}
	}
}

func TestParseSubmissionsSkipsJunk(t *testing.T) {
	t.Parallel()
	subs, err := parseSubmissions([]byte(`[1, {"titleSlug": "a"}, {"titleSlug": "b", "timestamp": 1700000000}, {"titleSlug": "c", "timestamp": "1700000001"}]`))
	if err != nil {
		t.Fatalf("parseSubmissions error: %v", err)
	}
	if len(subs) != 2 || subs[0].slug != "b" || subs[1].at.Unix() != 1700000001 {
		t.Fatalf("subs = %+v", subs)
	}
}

func TestUserExists(t *testing.T) {
	t.Parallel()
	m, c := newMock(t)
	m.AddUser("bob")

	ok, err := c.UserExists(context.Background(), "bob")
	if err != nil || !ok {
		t.Fatalf("UserExists(bob) = (%v, %v)", ok, err)
	}
	ok, err = c.UserExists(context.Background(), "nobody")
	if err != nil || ok {
		t.Fatalf("UserExists(nobody) = (%v, %v)", ok, err)
	}

	m.SetFailing(true)
	if _, err := c.UserExists(context.Background(), "bob"); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
}

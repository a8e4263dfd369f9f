package leetcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnreachable       = errors.New("leetcode api unreachable")
	ErrMalformedResponse = errors.New("leetcode api malformed response")
)

const DefaultBaseURL = "https://leetcode-api-vercel.vercel.app"

// submissionWindow bounds how many recent accepted submissions are scanned.
const submissionWindow = 20

// Problem is the daily problem shared by every subscriber in one cycle.
type Problem struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

func (p Problem) URL() string {
	return "https://leetcode.com/problems/" + url.PathEscape(p.Slug) + "/"
}

// Client talks to the public LeetCode proxy API. Upstream endpoints do not
// agree on field names; everything is normalized here.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// WithClock overrides the clock used to decide what "today" is.
func (c *Client) WithClock(now func() time.Time) *Client {
	cp := *c
	cp.now = now
	return &cp
}

// DailyProblem fetches today's problem.
func (c *Client) DailyProblem(ctx context.Context) (Problem, error) {
	body, err := c.get(ctx, "/daily")
	if err != nil {
		return Problem{}, err
	}

	var raw struct {
		QuestionTitle string `json:"questionTitle"`
		Title         string `json:"title"`
		TitleSlug     string `json:"titleSlug"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Problem{}, fmt.Errorf("%w: daily: %v", ErrMalformedResponse, err)
	}

	p := Problem{Title: raw.QuestionTitle, Slug: raw.TitleSlug}
	if p.Title == "" {
		p.Title = raw.Title
	}
	if p.Title == "" || p.Slug == "" {
		return Problem{}, fmt.Errorf("%w: daily: missing title or slug", ErrMalformedResponse)
	}
	return p, nil
}

// SolvedToday reports whether username has an accepted submission for slug
// since the start of the current problem day. The daily problem rolls over
// at 00:00 UTC, so that is the boundary used.
func (c *Client) SolvedToday(ctx context.Context, username, slug string) (bool, error) {
	if username == "" || slug == "" {
		return false, fmt.Errorf("%w: empty username or slug", ErrMalformedResponse)
	}
	path := "/" + url.PathEscape(username) + "/acSubmission?limit=" + strconv.Itoa(submissionWindow)
	body, err := c.get(ctx, path)
	if err != nil {
		return false, err
	}

	subs, err := parseSubmissions(body)
	if err != nil {
		return false, err
	}

	y, m, d := c.now().UTC().Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for _, s := range subs {
		if s.slug != slug {
			continue
		}
		if !s.at.Before(dayStart) {
			return true, nil
		}
	}
	return false, nil
}

// UserExists is used to validate usernames on subscription.
func (c *Client) UserExists(ctx context.Context, username string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(username), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, nil
	default:
		return false, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// timeouts and cancellations land here too
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

type submission struct {
	slug string
	at   time.Time
}

// parseSubmissions accepts {"submission": [...]}, {"data": [...]} or a bare array.
func parseSubmissions(body []byte) ([]submission, error) {
	var list []json.RawMessage

	trimmed := strings.TrimSpace(string(body))
	switch {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("%w: submissions: %v", ErrMalformedResponse, err)
		}
	case strings.HasPrefix(trimmed, "{"):
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: submissions: %v", ErrMalformedResponse, err)
		}
		inner, ok := wrapper["submission"]
		if !ok {
			inner, ok = wrapper["data"]
		}
		if !ok {
			return nil, fmt.Errorf("%w: submissions: no submission list", ErrMalformedResponse)
		}
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, fmt.Errorf("%w: submissions: %v", ErrMalformedResponse, err)
		}
	default:
		return nil, fmt.Errorf("%w: submissions: unexpected body", ErrMalformedResponse)
	}

	out := make([]submission, 0, len(list))
	for _, item := range list {
		var s struct {
			TitleSlug string      `json:"titleSlug"`
			Timestamp json.Number `json:"timestamp"`
		}
		// Entries that are not objects are ignored, as upstream sometimes pads lists.
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if s.TitleSlug == "" || s.Timestamp == "" {
			continue
		}
		sec, err := s.Timestamp.Int64()
		if err != nil {
			continue
		}
		out = append(out, submission{slug: s.TitleSlug, at: time.Unix(sec, 0).UTC()})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

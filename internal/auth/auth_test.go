package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Parallel()
	j := NewJWT("s3cret", time.Minute)
	tok, exp, err := j.Sign()
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) > time.Minute || time.Until(exp) <= 0 {
		t.Fatalf("expires_at = %v, want within a minute", exp)
	}
	if err := j.Verify(tok); err != nil {
		t.Fatalf("Verify = %v, want nil", err)
	}
}

func TestJWTRejects(t *testing.T) {
	t.Parallel()
	j := NewJWT("s3cret", time.Minute)
	good, _, _ := j.Sign()

	expired := NewJWT("s3cret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, _ := expired.Sign()

	otherKey, _, _ := NewJWT("other", time.Minute).Sign()

	wrongSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "scheduler",
	}).SignedString([]byte("s3cret"))

	for name, tok := range map[string]string{
		"garbage":   "not.a.token",
		"expired":   old,
		"other key": otherKey,
		"wrong sub": wrongSub,
		"no exp":    noExp,
		"tampered":  good + "x",
	} {
		if err := j.Verify(tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Verify(%s) = %v, want ErrUnauthorized", name, err)
		}
	}
}

func TestSecretCompare(t *testing.T) {
	t.Parallel()
	hash, err := HashSecret("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		secret Secret
		in     string
		ok     bool
	}{
		{"hash match", Secret{Hash: hash}, "hunter2", true},
		{"hash mismatch", Secret{Hash: hash}, "hunter3", false},
		{"hash wins over plain", Secret{Hash: hash, Plain: "plain"}, "plain", false},
		{"plain match", Secret{Plain: "plain"}, "plain", true},
		{"plain mismatch", Secret{Plain: "plain"}, "plainx", false},
		{"unconfigured", Secret{}, "", false},
	}
	for _, tt := range tests {
		err := tt.secret.Compare(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("%s: Compare = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

func TestRequireTrigger(t *testing.T) {
	t.Parallel()
	j := NewJWT("s3cret", time.Minute)
	tok, _, _ := j.Sign()

	called := 0
	h := RequireTrigger(j)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tt := range []struct {
		header string
		code   int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer " + tok, http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodPost, "/cron/run", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.code {
			t.Fatalf("Authorization %q: code = %d, want %d", tt.header, rec.Code, tt.code)
		}
	}
	if called != 1 {
		t.Fatalf("handler called %d times, want 1", called)
	}
}

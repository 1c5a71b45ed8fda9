package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
)

func newTestVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		Secret:   []byte("test-secret"),
		Issuer:   "studysprint",
		Audience: "sessions",
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	token, err := v.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != "alice" {
		t.Fatalf("subject = %q want alice", got)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)
	valid, err := v.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	expired, err := newTestVerifier(t, now.Add(-2*time.Hour)).Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	other, err := NewVerifier(Config{Secret: []byte("other"), Issuer: "studysprint", Audience: "sessions"})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	forged, err := other.Issue("mallory", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	foreign, err := NewVerifier(Config{Secret: []byte("test-secret"), Issuer: "elsewhere"})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	wrongIssuer, err := foreign.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"bad signature", forged},
		{"wrong issuer", wrongIssuer},
		{"truncated", valid[:len(valid)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
				t.Fatalf("Verify() error = %v want unauthenticated", err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q %v want %q %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestUserFromRequest(t *testing.T) {
	v := newTestVerifier(t, time.Now())
	token, err := v.Issue("bob", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	r := httptest.NewRequest("GET", "/ws/sessions?token="+token, nil)
	if got, err := v.UserFromRequest(r); err != nil || got != "bob" {
		t.Fatalf("query token = %q %v", got, err)
	}

	r = httptest.NewRequest("GET", "/api/sessions/x/snapshot", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	if got, err := v.UserFromRequest(r); err != nil || got != "bob" {
		t.Fatalf("header token = %q %v", got, err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

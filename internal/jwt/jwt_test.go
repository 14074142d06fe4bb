package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef" // 32 bytes

func TestNewIssuer_SecretLength(t *testing.T) {
	t.Parallel()
	if _, err := NewIssuer("http://localhost", "short", time.Minute); err == nil {
		t.Fatal("short secret should fail")
	}
	if _, err := NewIssuer("http://localhost", testSecret, time.Minute); err != nil {
		t.Fatalf("valid secret err: %v", err)
	}
}

func TestIssueParse_RoundTrip(t *testing.T) {
	t.Parallel()
	iss, err := NewIssuer("https://homesentry.local", testSecret, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	tok, exp, err := iss.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess err: %v", err)
	}
	if time.Until(exp) < 14*time.Minute {
		t.Fatalf("exp demasiado cercana: %v", exp)
	}

	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if got := ClaimString(claims, "sub"); got != "user-123" {
		t.Fatalf("sub: got %q", got)
	}
	if got := ClaimString(claims, "iss"); got != "https://homesentry.local" {
		t.Fatalf("iss: got %q", got)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	t.Parallel()
	a, _ := NewIssuer("x", testSecret, time.Minute)
	b, _ := NewIssuer("x", strings.Repeat("z", 32), time.Minute)

	tok, _, err := a.IssueAccess("u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParse_TamperedToken(t *testing.T) {
	t.Parallel()
	iss, _ := NewIssuer("x", testSecret, time.Minute)
	tok, _, _ := iss.IssueAccess("u1")

	mutated := []byte(tok)
	// tocar un byte del payload
	mid := len(mutated) / 2
	if mutated[mid] == 'A' {
		mutated[mid] = 'B'
	} else {
		mutated[mid] = 'A'
	}
	if _, err := iss.Parse(string(mutated)); err == nil {
		t.Fatal("tampered token should fail")
	}
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()
	iss, _ := NewIssuer("x", testSecret, time.Minute)
	// TTL negativo fuerza exp en el pasado (más allá de la tolerancia de 30s)
	iss.AccessTTL = -2 * time.Minute

	tok, _, err := iss.IssueAccess("u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.Parse(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParse_WrongIssuer(t *testing.T) {
	t.Parallel()
	a, _ := NewIssuer("https://a.example", testSecret, time.Minute)
	tok, _, _ := a.IssueAccess("u1")

	if _, err := ParseHS256(tok, []byte(testSecret), "https://b.example"); !errors.Is(err, ErrInvalidIssuer) {
		t.Fatalf("expected ErrInvalidIssuer, got %v", err)
	}
}

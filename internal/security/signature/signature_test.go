package signature

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"event_type":"audio_trigger","details":{"energy":412}}`)

	sig, err := Sign("POST", ts, body, "device-secret")
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	if err := Verify("POST", ts, body, sig, "device-secret", now); err != nil {
		t.Fatalf("Verify err: %v", err)
	}
}

func TestVerify_SingleBitFlip(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"k":"v"}`)

	sig, err := Sign("POST", ts, body, "s3cret")
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}

	// flip un bit de cada byte de la firma; todas deben fallar
	for i := 0; i < len(sig); i++ {
		mutated := []byte(sig)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		if err := Verify("POST", ts, body, string(mutated), "s3cret", now); !errors.Is(err, ErrMismatch) {
			t.Fatalf("pos %d: expected ErrMismatch, got %v", i, err)
		}
	}
}

func TestVerify_WrongSecretOrBody(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	sig, _ := Sign("POST", ts, []byte("body"), "right")

	if err := Verify("POST", ts, []byte("body"), sig, "wrong", now); !errors.Is(err, ErrMismatch) {
		t.Fatalf("wrong secret: expected ErrMismatch, got %v", err)
	}
	if err := Verify("POST", ts, []byte("tampered"), sig, "right", now); !errors.Is(err, ErrMismatch) {
		t.Fatalf("tampered body: expected ErrMismatch, got %v", err)
	}
	if err := Verify("GET", ts, []byte("body"), sig, "right", now); !errors.Is(err, ErrMismatch) {
		t.Fatalf("wrong method: expected ErrMismatch, got %v", err)
	}
}

func TestVerify_ReplayWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []struct {
		offset time.Duration
		ok     bool
	}{
		{0, true},
		{30 * time.Second, true},
		{-30 * time.Second, true},
		{59 * time.Second, true},
		{-61 * time.Second, false},
		{61 * time.Second, false},
		{5 * time.Minute, false},
	}
	for _, c := range cases {
		ts := strconv.FormatInt(now.Add(c.offset).Unix(), 10)
		sig, err := Sign("POST", ts, []byte("x"), "k")
		if err != nil {
			t.Fatalf("Sign err: %v", err)
		}
		err = Verify("POST", ts, []byte("x"), sig, "k", now)
		if c.ok && err != nil {
			t.Fatalf("offset %v: expected ok, got %v", c.offset, err)
		}
		if !c.ok && !errors.Is(err, ErrStaleTimestamp) {
			t.Fatalf("offset %v: expected ErrStaleTimestamp, got %v", c.offset, err)
		}
	}
}

func TestVerify_MissingInputs(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)

	for i, err := range []error{
		Verify("", ts, nil, "sig", "k", now),
		Verify("POST", "", nil, "sig", "k", now),
		Verify("POST", ts, nil, "", "k", now),
		Verify("POST", ts, nil, "sig", "", now),
	} {
		if !errors.Is(err, ErrMissingInput) {
			t.Fatalf("case %d: expected ErrMissingInput, got %v", i, err)
		}
	}

	if _, err := Sign("POST", ts, nil, ""); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("Sign without secret: expected ErrMissingInput, got %v", err)
	}
}

func TestVerify_BadTimestampFormat(t *testing.T) {
	t.Parallel()

	for _, ts := range []string{"not-a-number", "2024-01-01T00:00:00Z", fmt.Sprintf("%d.5", time.Now().Unix())} {
		if err := Verify("POST", ts, nil, "deadbeef", "k", time.Now()); !errors.Is(err, ErrBadTimestamp) {
			t.Fatalf("ts %q: expected ErrBadTimestamp, got %v", ts, err)
		}
	}
}

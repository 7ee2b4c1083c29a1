package access

import (
	"testing"
	"time"
)

func TestOTPIssueAndVerify(t *testing.T) {
	m := NewOTPManager()
	code, err := m.Issue("telegram|123")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != otpLength {
		t.Fatalf("expected %d-digit code, got %q", otpLength, code)
	}
	if got := m.Verify("telegram|123", code); got != VerifyOK {
		t.Fatalf("Verify = %v, want VerifyOK", got)
	}
	// Consumed on success.
	if got := m.Verify("telegram|123", code); got != VerifyNoPending {
		t.Fatalf("Verify after consume = %v, want VerifyNoPending", got)
	}
}

func TestOTPMismatchLockout(t *testing.T) {
	m := NewOTPManager()
	code, _ := m.Issue("telegram|123")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < otpMaxAttempts-1; i++ {
		if got := m.Verify("telegram|123", wrong); got != VerifyMismatch {
			t.Fatalf("attempt %d: Verify = %v, want VerifyMismatch", i, got)
		}
	}
	if got := m.Verify("telegram|123", wrong); got != VerifyMismatch {
		t.Fatalf("final mismatch: Verify = %v, want VerifyMismatch", got)
	}
	if got := m.Verify("telegram|123", code); got != VerifyLockedOut {
		t.Fatalf("post-lockout Verify = %v, want VerifyLockedOut", got)
	}
}

func TestOTPExpiry(t *testing.T) {
	m := NewOTPManager()
	fakeNow := time.Now()
	m.now = func() time.Time { return fakeNow }

	code, _ := m.Issue("telegram|123")
	fakeNow = fakeNow.Add(otpTTL + time.Second)

	if got := m.Verify("telegram|123", code); got != VerifyExpired {
		t.Fatalf("Verify after TTL = %v, want VerifyExpired", got)
	}
}

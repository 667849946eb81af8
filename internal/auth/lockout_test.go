package auth

import (
	"testing"
	"time"
)

func TestLockout(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLockout()
	l.now = func() time.Time { return now }

	for i := 1; i < defaultMaxFailures; i++ {
		if l.Failure("10.0.0.1") {
			t.Fatalf("Failure() #%d blocked early", i)
		}
	}
	if !l.Failure("10.0.0.1") {
		t.Fatal("Failure() did not block at the threshold")
	}

	blocked, wait := l.Blocked("10.0.0.1")
	if !blocked || wait != defaultBlock {
		t.Errorf("Blocked() = %v, %v, want true, %v", blocked, wait, defaultBlock)
	}
	if blocked, _ := l.Blocked("10.0.0.2"); blocked {
		t.Error("unrelated client is blocked")
	}

	now = now.Add(defaultBlock + time.Second)
	if blocked, _ := l.Blocked("10.0.0.1"); blocked {
		t.Error("Blocked() = true after block expired")
	}
}

func TestLockoutWindowResets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLockout()
	l.now = func() time.Time { return now }

	for i := 0; i < defaultMaxFailures-1; i++ {
		l.Failure("c")
	}
	now = now.Add(defaultWindow + time.Second)
	if l.Failure("c") {
		t.Error("Failure() blocked after the window reset")
	}
}

func TestLockoutSuccessClears(t *testing.T) {
	l := NewLockout()
	for i := 0; i < defaultMaxFailures-1; i++ {
		l.Failure("c")
	}
	l.Success("c")
	if l.Failure("c") {
		t.Error("Failure() blocked after Success() cleared history")
	}
}

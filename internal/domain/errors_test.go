package domain

import (
	"errors"
	"testing"
)

func TestSupervisorErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := NewTransientError(ComponentCore, "heartbeat failed", cause)

	if err.Error() != "core: heartbeat failed: dial tcp: timeout" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose cause via errors.Is")
	}
}

func TestSupervisorErrorMessageNoCause(t *testing.T) {
	err := NewPermanentError(ComponentUpdater, "no update path available", nil)
	if err.Error() != "updater: no update path available" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(errors.New("plain error")) {
		t.Error("plain errors should default to retryable")
	}
	if !IsRetryable(NewTransientError(ComponentCore, "x", nil)) {
		t.Error("transient errors should be retryable")
	}
	if IsRetryable(NewPermanentError(ComponentCore, "x", nil)) {
		t.Error("permanent errors should not be retryable")
	}
}

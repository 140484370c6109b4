package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrReplayAttack
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestReplayAttackIsDistinctFromInvalidCode(t *testing.T) {
	if ErrReplayAttack.Code == ErrCodeInvalid.Code {
		t.Fatal("replay attacks must carry their own error code")
	}
	if ErrReplayAttack.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", ErrReplayAttack.StatusCode)
	}
}

func TestErrorsIsMatchesSentinels(t *testing.T) {
	wrapped := ErrUserNotFound.WithInternal(stdErrors.New("missing row"))
	var appErr *AppError
	if !stdErrors.As(wrapped, &appErr) {
		t.Fatal("expected errors.As to unwrap AppError")
	}
	if appErr.Code != ErrUserNotFound.Code {
		t.Fatalf("expected %s, got %s", ErrUserNotFound.Code, appErr.Code)
	}
}

func TestErrorsIsSurvivesWithInternal(t *testing.T) {
	// WithInternal returns a copy; identity must still hold by code.
	for _, sentinel := range []*AppError{ErrUserNotFound, ErrReplayAttack, ErrInvalidState, ErrCodeInvalid} {
		wrapped := sentinel.WithInternal(stdErrors.New("context"))
		if !stdErrors.Is(wrapped, sentinel) {
			t.Fatalf("expected errors.Is to match %s after WithInternal", sentinel.Code)
		}
	}

	if stdErrors.Is(ErrReplayAttack.WithInternal(stdErrors.New("x")), ErrCodeInvalid) {
		t.Fatal("distinct codes must not match")
	}
	if stdErrors.Is(stdErrors.New("plain"), ErrInvalidState) {
		t.Fatal("non-AppError must not match a sentinel")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}

package common

import (
	"encoding/hex"
	"errors"
	"testing"
)

// ---------- MakeRandHexString ----------

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	s, err := MakeRandHexString(ResetTokenBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != ResetTokenBytes*2 {
		t.Fatalf("expected hex length %d, got %d", ResetTokenBytes*2, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		t.Fatalf("string is not valid hex: %v", err)
	}
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	if err != nil {
		t.Fatalf("unexpected error for size=0: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string for size=0, got %q", s)
	}
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	a, _ := MakeRandHexString(32)
	b, _ := MakeRandHexString(32)
	if a == b {
		t.Fatalf("two 256-bit random values are identical: %s", a)
	}
}

// ---------- error types ----------

func TestValidationError_IsValidation(t *testing.T) {
	err := error(NewValidationError("email", "invalid email address"))
	if !errors.Is(err, ErrorValidation) {
		t.Fatalf("expected ErrorValidation, got %v", err)
	}
	if err.Error() != "email: invalid email address" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Message != "invalid email address" {
		t.Fatalf("errors.As failed: %v", err)
	}
}

func TestConsistencyError_UnwrapsBoth(t *testing.T) {
	cause := errors.New("db down")
	err := error(&ConsistencyError{Op: "delete_subscription", UserID: "u1", EntityID: "s1", Err: cause})

	if !errors.Is(err, ErrorConsistency) {
		t.Fatalf("expected ErrorConsistency")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "delete_subscription: user=u1 entity=s1: db down" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

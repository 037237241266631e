package account

import "testing"

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"alice", "Bob42", "X"} {
		if err := ValidateUsername(ok); err != nil {
			t.Fatalf("%q: unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"", "al ice", "алиса", "a_b", "a-b"} {
		if err := ValidateUsername(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("123456"); err != nil {
		t.Fatalf("6 chars should pass: %v", err)
	}
	if err := ValidatePassword("12345"); err == nil {
		t.Fatalf("5 chars should fail")
	}
	if err := ValidatePassword(""); err == nil {
		t.Fatalf("empty should fail")
	}
}

func TestValidateConfirmation(t *testing.T) {
	if err := ValidateConfirmation("abcdef", ""); err != nil {
		t.Fatalf("missing confirmation should be skipped")
	}
	if err := ValidateConfirmation("abcdef", "abcdef"); err != nil {
		t.Fatalf("matching confirmation should pass")
	}
	if err := ValidateConfirmation("abcdef", "abcdeg"); err == nil {
		t.Fatalf("mismatch should fail")
	}
}

func TestNormalizeGender(t *testing.T) {
	g, err := NormalizeGender(" Male ")
	if err != nil || g != "male" {
		t.Fatalf("expected male, got %q %v", g, err)
	}
	if g, err := NormalizeGender(""); err != nil || g != "" {
		t.Fatalf("empty gender should be allowed")
	}
	if _, err := NormalizeGender("unknown"); err == nil {
		t.Fatalf("expected error")
	}
}

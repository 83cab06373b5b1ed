package auth

import "testing"

func TestHashAndVerify(t *testing.T) {
	digest, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if digest == "secret" {
		t.Fatal("digest must not equal the plaintext password")
	}

	if !VerifyPassword("secret", digest) {
		t.Error("VerifyPassword rejected the correct password")
	}
	if VerifyPassword("wrong", digest) {
		t.Error("VerifyPassword accepted a wrong password")
	}
	if VerifyPassword("secret", "not-a-digest") {
		t.Error("VerifyPassword accepted a garbage digest")
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	a, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	b, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if a == b {
		t.Error("two digests of the same password should differ (random salt)")
	}
}

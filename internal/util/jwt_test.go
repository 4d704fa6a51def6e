package util

import (
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "student", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "student" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if _, err := ParseJWT(token, "other-secret"); err == nil {
		t.Error("token signed with another secret must be rejected")
	}

	expired, _ := GenerateJWT(42, "student", "secret", -time.Minute)
	if _, err := ParseJWT(expired, "secret"); err == nil {
		t.Error("expired token must be rejected")
	}
}

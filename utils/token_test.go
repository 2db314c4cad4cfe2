package utils

import (
	"testing"
)

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("TOKEN_HOUR_LIFESPAN", "24")

	token, err := JwtGenerate(7, "alice")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		t.Fatalf("unexpected claims type %T", parsed.Claims)
	}
	if claims.ID != 7 || claims.Username != "alice" {
		t.Fatalf("claims not preserved: id=%d username=%q", claims.ID, claims.Username)
	}
}

func TestJwtValidateRejectsGarbage(t *testing.T) {
	if _, err := JwtValidate("not-a-token"); err == nil {
		t.Fatalf("garbage token must not validate")
	}
}

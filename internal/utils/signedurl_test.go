package utils

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func parseSigned(t *testing.T, signed string) (path, exp, sig string) {
	t.Helper()
	i := strings.Index(signed, "?")
	if i < 0 {
		t.Fatalf("no query in %q", signed)
	}
	q, err := url.ParseQuery(signed[i+1:])
	if err != nil {
		t.Fatal(err)
	}
	return signed[:i], q.Get("exp"), q.Get("sig")
}

func TestSignedPathRoundTrip(t *testing.T) {
	signed := SignPath("secret", "/deliveries/a.zip", time.Minute)
	path, exp, sig := parseSigned(t, signed)
	if !VerifySignedPath("secret", path, exp, sig) {
		t.Error("freshly signed path must verify")
	}
}

func TestSignedPathExpired(t *testing.T) {
	signed := SignPath("secret", "/deliveries/a.zip", -time.Minute)
	path, exp, sig := parseSigned(t, signed)
	if VerifySignedPath("secret", path, exp, sig) {
		t.Error("expired path must not verify")
	}
}

func TestSignedPathTamperResistant(t *testing.T) {
	signed := SignPath("secret", "/deliveries/a.zip", time.Minute)
	path, exp, sig := parseSigned(t, signed)

	if VerifySignedPath("secret", "/deliveries/b.zip", exp, sig) {
		t.Error("signature must bind the path")
	}
	if VerifySignedPath("other", path, exp, sig) {
		t.Error("wrong key must not verify")
	}
	if VerifySignedPath("secret", path, "9999999999", sig) {
		t.Error("signature must bind the expiry")
	}
}

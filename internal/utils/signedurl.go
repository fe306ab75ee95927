package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// SignPath returns a short-lived signed URL path for an uploaded object.
// Deliverables are never served by bare path; the signature binds path and
// expiry.
func SignPath(key, path string, ttl time.Duration) string {
	exp := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s?exp=%d&sig=%s", path, exp, pathSignature(key, path, exp))
}

// VerifySignedPath checks signature and expiry for a previously signed path.
func VerifySignedPath(key, path, expStr, sig string) bool {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return false
	}
	if time.Now().Unix() > exp {
		return false
	}
	expected := pathSignature(key, path, exp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func pathSignature(key, path string, exp int64) string {
	h := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(h, "%s|%d", path, exp)
	return hex.EncodeToString(h.Sum(nil))
}

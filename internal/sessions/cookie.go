package sessions

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// The session cookie value is "<sessionId>.<hex hmac-sha256(sessionId)>".
// The format is shared with the deployed frontend so it must not change.

func signSessionID(sessionID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

// MakeSignedValue returns the signed cookie value for a session id.
func MakeSignedValue(sessionID, secret string) string {
	return sessionID + "." + signSessionID(sessionID, secret)
}

// VerifySignedValue extracts the session id from a signed cookie value.
// A malformed value or a signature mismatch yields ("", false); the caller
// treats forged cookies the same as absent ones.
func VerifySignedValue(value, secret string) (string, bool) {
	sessionID, sig, ok := strings.Cut(value, ".")
	if !ok || sessionID == "" {
		return "", false
	}
	expected := signSessionID(sessionID, secret)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", false
	}
	return sessionID, true
}

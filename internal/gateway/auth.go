package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

// ErrBadToken rejects a handshake before any session interaction.
var ErrBadToken = staticErr("invalid auth token")

// TokenVerifier resolves a handshake token to a user id. The
// registration/login layer that issues tokens lives outside this
// process; the gateway only needs the seam.
type TokenVerifier func(token string) (userID string, err error)

// HMACVerifier accepts tokens of the form "<userID>.<hex hmac-sha256>"
// signed with the shared secret.
func HMACVerifier(secret string) TokenVerifier {
	key := []byte(secret)
	return func(token string) (string, error) {
		userID, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
		if !ok || userID == "" {
			return "", ErrBadToken
		}
		want, err := hex.DecodeString(sig)
		if err != nil {
			return "", ErrBadToken
		}
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(userID))
		if !hmac.Equal(mac.Sum(nil), want) {
			return "", ErrBadToken
		}
		return userID, nil
	}
}

// SignToken issues a token the HMACVerifier accepts. Exported for the
// auth collaborator and tests.
func SignToken(secret, userID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID))
	return userID + "." + hex.EncodeToString(mac.Sum(nil))
}

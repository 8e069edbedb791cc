// Package keyring holds account credentials and produces the HMAC-SHA256
// signatures used by both the realtime auth handshake and signed REST calls.
package keyring

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// RealtimePath is the verb+path the exchange expects in the streaming auth signature.
const RealtimePath = "/realtime"

// APIKey is one account identity. Secret is empty for anonymous accounts.
type APIKey struct {
	Key    string
	Secret string
}

// New returns an APIKey for key and secret.
func New(key, secret string) *APIKey {
	return &APIKey{Key: key, Secret: secret}
}

// CanSign reports whether both halves of the credential are present.
func (k *APIKey) CanSign() bool {
	return k != nil && k.Key != "" && k.Secret != ""
}

// Expires returns the unix-seconds deadline now+ttl, truncated to whole seconds.
func Expires(now time.Time, ttl time.Duration) int64 {
	return now.Add(ttl).Unix()
}

// Sign returns hex(HMAC-SHA256(secret, verb + path + expires + body)).
func Sign(secret, verb, path string, expires int64, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(verb))
	mac.Write([]byte(path))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// RealtimeSignature signs "GET/realtime" + expires for the authKeyExpires op.
func RealtimeSignature(secret string, expires int64) string {
	return Sign(secret, "GET", RealtimePath, expires, "")
}

// Headers returns the api-expires, api-key and api-signature headers for a REST call.
func (k *APIKey) Headers(verb, path string, expires int64, body string) map[string]string {
	return map[string]string{
		"api-expires":   strconv.FormatInt(expires, 10),
		"api-key":       k.Key,
		"api-signature": Sign(k.Secret, verb, path, expires, body),
	}
}

func (k *APIKey) String() string {
	return fmt.Sprintf("APIKey{Key:%s}", MaskKey(k.Key))
}

// MaskKey hides all but the first and last four characters of key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

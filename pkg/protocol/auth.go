package protocol

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// HashAuthKey derives the credential placed in the connection URI from a
// system's pre-shared key: base64(SHA-256(trimmed key)). An empty key
// yields an empty credential.
func HashAuthKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Endpoint builds the master URI for a system
func Endpoint(address string, port int, authKey string) string {
	return fmt.Sprintf("ws://%s:%d/client?authKey=%s",
		address, port, url.QueryEscape(HashAuthKey(authKey)))
}

package protocol

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestHashAuthKey(t *testing.T) {
	sum := sha256.Sum256([]byte("secret"))
	want := base64.StdEncoding.EncodeToString(sum[:])

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"plain", "secret", want},
		{"surrounding whitespace is trimmed", "  secret\n", want},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashAuthKey(tt.key); got != tt.expected {
				t.Errorf("HashAuthKey(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	uri := Endpoint("master.example.net", 3000, "secret")

	prefix := "ws://master.example.net:3000/client?authKey="
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("Unexpected endpoint %q", uri)
	}

	query := strings.TrimPrefix(uri, prefix)
	if strings.ContainsAny(query, "+/=") {
		t.Errorf("Credential should be query-escaped, got %q", query)
	}

	if got := Endpoint("10.0.0.1", 80, ""); got != "ws://10.0.0.1:80/client?authKey=" {
		t.Errorf("Empty key endpoint = %q", got)
	}
}

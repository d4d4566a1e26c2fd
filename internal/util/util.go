package util

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// WritablePath returns the cleaned CARDHUB_WRITABLE_PATH environment variable when it is set.
// Relative log directories are resolved against it.
func WritablePath() string {
	for _, key := range []string{"CARDHUB_WRITABLE_PATH", "WRITABLE_PATH"} {
		if value, ok := os.LookupEnv(key); ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return filepath.Clean(trimmed)
			}
		}
	}
	return ""
}

// MaskSecret obscures a passcode or token for logging. Complete passcodes keep
// their three-letter location code; everything else keeps one character per side.
func MaskSecret(secret string) string {
	switch n := len(secret); {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return secret[:3] + strings.Repeat("*", n-3)
	default:
		return secret[:1] + "..." + secret[n-1:]
	}
}

// MaskSensitiveQuery masks credential query parameters, e.g. passcode, within the raw query string.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		if part == "" {
			continue
		}
		keyPart, valuePart, _ := strings.Cut(part, "=")
		decodedKey, err := url.QueryUnescape(keyPart)
		if err != nil {
			decodedKey = keyPart
		}
		if !shouldMaskQueryParam(decodedKey) {
			continue
		}
		decodedValue, err := url.QueryUnescape(valuePart)
		if err != nil {
			decodedValue = valuePart
		}
		parts[i] = keyPart + "=" + url.QueryEscape(MaskSecret(strings.TrimSpace(decodedValue)))
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

func shouldMaskQueryParam(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	for _, marker := range []string{"passcode", "password", "token", "secret"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

package settings

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var prefixPattern = regexp.MustCompile(`^[A-Z]{2,8}$`)

// stringValue decodes a JSON string setting, reporting whether it was set.
func stringValue(key string) (string, bool) {
	raw, ok := DBConfigValue(key)
	if !ok || len(raw) == 0 {
		return "", false
	}
	var value string
	if errDecode := json.Unmarshal(raw, &value); errDecode != nil {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// ControlNumberPrefix returns the stored prefix override or fallback.
func ControlNumberPrefix(fallback string) string {
	if value, ok := stringValue(ControlNumberPrefixKey); ok {
		return value
	}
	return fallback
}

// DefaultPerkTemplate returns the stored default template name, or "".
func DefaultPerkTemplate() string {
	value, _ := stringValue(DefaultPerkTemplateKey)
	return value
}

// SweepEnabled reports whether the expiry sweeper may run. Defaults to true.
func SweepEnabled() bool {
	raw, ok := DBConfigValue(SweepEnabledKey)
	if !ok || len(raw) == 0 {
		return true
	}
	var enabled bool
	if errDecode := json.Unmarshal(raw, &enabled); errDecode != nil {
		return true
	}
	return enabled
}

// ValidateValue checks a value an administrator wants to store under key.
func ValidateValue(key string, raw json.RawMessage) (json.RawMessage, error) {
	switch key {
	case ControlNumberPrefixKey:
		var value string
		if errDecode := json.Unmarshal(raw, &value); errDecode != nil {
			return nil, fmt.Errorf("%s must be a string", key)
		}
		value = strings.ToUpper(strings.TrimSpace(value))
		if !prefixPattern.MatchString(value) {
			return nil, fmt.Errorf("%s must be 2 to 8 letters", key)
		}
		return json.Marshal(value)
	case DefaultPerkTemplateKey:
		var value string
		if errDecode := json.Unmarshal(raw, &value); errDecode != nil {
			return nil, fmt.Errorf("%s must be a string", key)
		}
		return json.Marshal(strings.TrimSpace(value))
	case SweepEnabledKey:
		var value bool
		if errDecode := json.Unmarshal(raw, &value); errDecode != nil {
			return nil, fmt.Errorf("%s must be a boolean", key)
		}
		return json.Marshal(value)
	default:
		return nil, fmt.Errorf("unknown setting %q", key)
	}
}

// Keys lists the settings administrators may edit.
func Keys() []string {
	return []string{ControlNumberPrefixKey, DefaultPerkTemplateKey, SweepEnabledKey}
}

package cards

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strings"
)

// DefaultControlPrefix prefixes control numbers when no override is configured.
const DefaultControlPrefix = "MOC"

var (
	controlPrefixPattern    = regexp.MustCompile(`^[A-Z]{2,8}$`)
	controlNumberPattern    = regexp.MustCompile(`^[A-Z]{2,8}-\d{4,}$`)
	locationCodePattern     = regexp.MustCompile(`^[A-Z]{3}$`)
	completePasscodePattern = regexp.MustCompile(`^[A-Z]{3}\d{4}$`)
	passcodeTailPattern     = regexp.MustCompile(`^\d{4}$`)
)

// FormatControlNumber renders the printed control number of a card, e.g. MOC-0001.
func FormatControlNumber(prefix string, cardNumber uint64) string {
	return fmt.Sprintf("%s-%04d", prefix, cardNumber)
}

// NormalizeControlPrefix upper-cases and validates a control-number prefix.
func NormalizeControlPrefix(prefix string) (string, bool) {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	return p, controlPrefixPattern.MatchString(p)
}

// NormalizeControlNumber upper-cases and validates a control number.
func NormalizeControlNumber(controlNumber string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(controlNumber))
	return c, controlNumberPattern.MatchString(c)
}

// NormalizeLocationCode upper-cases and validates a three-letter location code.
func NormalizeLocationCode(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	return c, locationCodePattern.MatchString(c)
}

// NormalizeCompletePasscode upper-cases and validates a location-prefixed passcode.
func NormalizeCompletePasscode(passcode string) (string, bool) {
	p := strings.ToUpper(strings.TrimSpace(passcode))
	return p, completePasscodePattern.MatchString(p)
}

// CompletePasscode joins a location code with the four-digit tail.
func CompletePasscode(locationCode, tail string) string {
	return locationCode + tail
}

// randomPasscodeTail draws a uniform four-digit passcode tail from r.
func randomPasscodeTail(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("draw passcode: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

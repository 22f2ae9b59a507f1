package util

import (
	"os"
	"strings"
)

// GetEnv returns the trimmed value of key, or defaultValue when unset or blank.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// MaskPhone keeps the leading "+", the first two digits and the last two
// digits of a phone number. Anything shorter than five runes is fully masked.
func MaskPhone(phone string) string {
	runes := []rune(phone)
	if len(runes) < 5 {
		return strings.Repeat("*", len(runes))
	}
	head := 2
	if runes[0] == '+' {
		head = 3
	}
	if head+2 >= len(runes) {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:head]) + strings.Repeat("*", len(runes)-head-2) + string(runes[len(runes)-2:])
}

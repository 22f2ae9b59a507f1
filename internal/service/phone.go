package service

import (
	"regexp"
	"strings"
	"unicode"
)

// A leading "+", a non-zero digit, then 10 to 14 more digits.
var internationalPhone = regexp.MustCompile(`^\+[1-9]\d{10,14}$`)

// NormalizePhone strips every whitespace rune from raw and checks the result
// against the international format. It returns ErrPhoneRequired for blank
// input and ErrInvalidPhone for anything that does not match.
func NormalizePhone(raw string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	if phone == "" {
		return "", ErrPhoneRequired
	}
	if !internationalPhone.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

package service

import (
	"strings"

	"otp-gateway/internal/models"
)

// ErrorKind is the small taxonomy adapter failures are mapped to.
type ErrorKind string

const (
	ErrorKindPhoneInvalid       ErrorKind = "PhoneInvalid"
	ErrorKindFloodLimited       ErrorKind = "FloodLimited"
	ErrorKindCredentialsInvalid ErrorKind = "CredentialsInvalid"
	ErrorKindUnknown            ErrorKind = "Unknown"
)

// ClassifiedError is a caller-safe description of an adapter failure.
type ClassifiedError struct {
	Kind         ErrorKind
	HumanMessage string
}

// Reason converts the kind to the simulation reason reported to callers.
func (c ClassifiedError) Reason() models.Reason {
	switch c.Kind {
	case ErrorKindPhoneInvalid:
		return models.ReasonPhoneInvalid
	case ErrorKindFloodLimited:
		return models.ReasonFloodLimited
	case ErrorKindCredentialsInvalid:
		return models.ReasonCredentialsInvalid
	default:
		return models.ReasonUnknown
	}
}

var humanMessages = map[ErrorKind]string{
	ErrorKindPhoneInvalid:       "The phone number was rejected by Telegram",
	ErrorKindFloodLimited:       "Too many attempts, please wait before retrying",
	ErrorKindCredentialsInvalid: "Telegram delivery is misconfigured on the server",
	ErrorKindUnknown:            "Telegram delivery is temporarily unavailable",
}

// Order matters: the first matching substring wins.
var classificationTable = []struct {
	substring string
	kind      ErrorKind
}{
	{"PHONE_NUMBER_INVALID", ErrorKindPhoneInvalid},
	{"FLOOD_WAIT", ErrorKindFloodLimited},
	{"API_ID_INVALID", ErrorKindCredentialsInvalid},
}

// Classify maps a platform failure message to a ClassifiedError. The raw
// message is never copied into the result.
func Classify(message string) ClassifiedError {
	for _, entry := range classificationTable {
		if strings.Contains(message, entry.substring) {
			return ClassifiedError{Kind: entry.kind, HumanMessage: humanMessages[entry.kind]}
		}
	}
	return ClassifiedError{Kind: ErrorKindUnknown, HumanMessage: humanMessages[ErrorKindUnknown]}
}

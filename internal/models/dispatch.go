package models

import "time"

// OTPRequest is the inbound body of POST /send-otp.
type OTPRequest struct {
	Phone string `json:"phone"`
}

// DispatchKind tags which variant a DispatchResult holds.
type DispatchKind string

const (
	DispatchRealSuccess       DispatchKind = "real_success"
	DispatchSimulated         DispatchKind = "simulated"
	DispatchValidationFailure DispatchKind = "validation_failure"
)

// Reason records why a simulated code was issued instead of a real delivery.
type Reason string

const (
	ReasonNoCredentials      Reason = "NoCredentials"
	ReasonPhoneInvalid       Reason = "PhoneInvalid"
	ReasonFloodLimited       Reason = "FloodLimited"
	ReasonCredentialsInvalid Reason = "CredentialsInvalid"
	ReasonUnknown            Reason = "Unknown"
	ReasonInternalError      Reason = "InternalError"
)

// Dispatch methods as reported to callers and audit sinks.
const (
	MethodTelegram   = "TELEGRAM"
	MethodSimulation = "SIMULATION"
)

// DispatchResult is the outcome of one dispatch. Only the fields belonging to
// Kind are meaningful:
//   - DispatchRealSuccess: Phone, DeliveryReference
//   - DispatchSimulated: Phone, Code, Reason, Message
//   - DispatchValidationFailure: Message
type DispatchResult struct {
	Kind              DispatchKind
	Phone             string
	DeliveryReference string
	Code              int
	Reason            Reason
	Message           string
}

// Method returns the delivery method reported for the result.
func (r *DispatchResult) Method() string {
	if r.Kind == DispatchRealSuccess {
		return MethodTelegram
	}
	return MethodSimulation
}

// DispatchRecord is the short-lived trace of the latest dispatch for a phone,
// kept for a later verification step. Simulated codes are stored hashed.
type DispatchRecord struct {
	DispatchID        string    `json:"dispatch_id"`
	Phone             string    `json:"phone"`
	Method            string    `json:"method"`
	Reason            string    `json:"reason,omitempty"`
	DeliveryReference string    `json:"delivery_reference,omitempty"`
	CodeHash          string    `json:"code_hash,omitempty"`
	CodeSalt          string    `json:"code_salt,omitempty"`
	PepperVersion     int       `json:"pepper_version,omitempty"`
	HashAlgorithm     string    `json:"hash_algorithm,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// DispatchEvent is the audit view of a dispatch. It never carries the code,
// the plaintext phone or the raw platform error.
type DispatchEvent struct {
	DispatchID     string    `json:"dispatch_id"`
	PhoneHash      string    `json:"phone_hash"`
	PhoneEncrypted string    `json:"phone_encrypted,omitempty"`
	PhoneDEK       string    `json:"phone_dek,omitempty"`
	PhoneKeyID     string    `json:"phone_key_id,omitempty"`
	PhoneBucket    int       `json:"phone_bucket"`
	Method         string    `json:"method"`
	Reason         string    `json:"reason,omitempty"`
	Delivered      bool      `json:"delivered"`
	DurationMillis int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"otp-gateway/internal/config"
	"otp-gateway/internal/util"

	"golang.org/x/crypto/argon2"
)

const algorithm = "argon2id-v1"

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible hash algorithm")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes fallback codes before they are written anywhere. The pepper
// comes from configuration so hashes stay verifiable across restarts; without
// one a random per-process pepper is used.
type Hasher struct {
	params Argon2Params
	pepper string
}

type HashResult struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) *Hasher {
	params := Argon2Params{
		Memory:      uint32(max(cfg.Hashing.Argon2MemoryCost, 8*1024)),
		Iterations:  uint32(max(cfg.Hashing.Argon2TimeCost, 1)),
		Parallelism: uint8(max(cfg.Hashing.Argon2Parallelism, 1)),
		SaltLength:  16,
		KeyLength:   32,
	}

	pepper := cfg.Hashing.Pepper
	if pepper == "" {
		pepperBytes := make([]byte, 32)
		if _, err := rand.Read(pepperBytes); err != nil {
			util.Fatal("Failed to generate pepper", util.ErrorField(err))
		}
		pepper = base64.RawURLEncoding.EncodeToString(pepperBytes)
		util.Warn("OTP_PEPPER not set, using an ephemeral pepper")
	}

	return &Hasher{params: params, pepper: pepper}
}

// HashOTP hashes a code with a fresh salt.
func (h *Hasher) HashOTP(otp string) (*HashResult, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := h.derive(otp, salt, h.params.KeyLength)

	return &HashResult{
		Hash:          base64.RawURLEncoding.EncodeToString(hash),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: 1,
		Algorithm:     algorithm,
	}, nil
}

// VerifyOTP reports whether otp matches a HashResult produced by HashOTP.
func (h *Hasher) VerifyOTP(otp string, hashResult *HashResult) (bool, error) {
	if hashResult == nil {
		return false, ErrInvalidHash
	}
	if hashResult.Algorithm != algorithm {
		return false, ErrIncompatibleVersion
	}

	salt, err := base64.RawURLEncoding.DecodeString(hashResult.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(hashResult.Hash)
	if err != nil || len(expected) == 0 {
		return false, ErrInvalidHash
	}

	computed := h.derive(otp, salt, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *Hasher) derive(data string, salt []byte, keyLen uint32) []byte {
	// context suffix keeps these hashes from being reused for other secrets
	return argon2.IDKey(
		[]byte(data+h.pepper+"otp"),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		keyLen,
	)
}

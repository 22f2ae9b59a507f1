package hashing

import (
	"testing"

	"otp-gateway/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(pepper string) *config.Config {
	return &config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            pepper,
		},
	}
}

func TestHashAndVerifyOTP(t *testing.T) {
	h := NewHasher(testConfig("unit-test-pepper"))

	result, err := h.HashOTP("48213")
	require.NoError(t, err)
	assert.Equal(t, "argon2id-v1", result.Algorithm)
	assert.NotContains(t, result.Hash, "48213")

	ok, err := h.VerifyOTP("48213", result)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyOTP("48214", result)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashOTPUsesFreshSalt(t *testing.T) {
	h := NewHasher(testConfig("unit-test-pepper"))

	first, err := h.HashOTP("11111")
	require.NoError(t, err)
	second, err := h.HashOTP("11111")
	require.NoError(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestVerifyOTPRejectsDifferentPepper(t *testing.T) {
	result, err := NewHasher(testConfig("pepper-a")).HashOTP("55555")
	require.NoError(t, err)

	ok, err := NewHasher(testConfig("pepper-b")).VerifyOTP("55555", result)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyOTPMalformed(t *testing.T) {
	h := NewHasher(testConfig("unit-test-pepper"))

	_, err := h.VerifyOTP("12345", nil)
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = h.VerifyOTP("12345", &HashResult{Algorithm: "bcrypt"})
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	_, err = h.VerifyOTP("12345", &HashResult{Algorithm: "argon2id-v1", Salt: "!!", Hash: "abc"})
	assert.ErrorIs(t, err, ErrInvalidHash)
}

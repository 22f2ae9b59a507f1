package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"international", "+628123456789", "+62********89"},
		{"no plus", "0812345", "08***45"},
		{"short", "+12", "***"},
		{"empty", "", ""},
		{"exactly five with plus", "+1234", "*****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskPhone(tt.phone))
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("OTP_GATEWAY_TEST_VALUE", "  configured ")
	assert.Equal(t, "configured", GetEnv("OTP_GATEWAY_TEST_VALUE", "fallback"))

	t.Setenv("OTP_GATEWAY_TEST_VALUE", "   ")
	assert.Equal(t, "fallback", GetEnv("OTP_GATEWAY_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnv("OTP_GATEWAY_TEST_UNSET", "fallback"))
}

package service

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"
)

const (
	MinCode = 10000
	MaxCode = 99999
)

var codeSpan = big.NewInt(MaxCode - MinCode + 1)

// GenerateCode returns a code drawn uniformly from [MinCode, MaxCode].
func GenerateCode() int {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		// system CSPRNG unavailable; the code is still uniform, just not secret
		return MinCode + mrand.IntN(MaxCode-MinCode+1)
	}
	return MinCode + int(n.Int64())
}

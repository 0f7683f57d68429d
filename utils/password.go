package utils

import (
	"crypto/rand"
	"math/big"
)

// NumericPassword returns a random numeric lobby password of n digits.
func NumericPassword(n int) string {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			digits[i] = '0'
			continue
		}
		digits[i] = '0' + byte(v.Int64())
	}
	return string(digits)
}

package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// AccountNumberGenerator produces candidate account numbers
type AccountNumberGenerator func() (string, error)

var accountNumberSpan = big.NewInt(9_000_000_000)

// RandomAccountNumber returns a uniformly random 10 digit number without a leading zero
func RandomAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberSpan)
	if err != nil {
		return "", fmt.Errorf("failed to generate account number: %w", err)
	}
	return fmt.Sprintf("%010d", n.Int64()+1_000_000_000), nil
}

package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	AccountNumberLength = 10
	CardNumberLength    = 16
	PinLength           = 4

	// card numbers are issued on the 4xxx range
	cardPrefix = "4"
)

// IDGenerator produces every identifier the ledger hands out.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// TransactionID returns a ULID, sortable by creation time.
func (g *IDGenerator) TransactionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return id.String()
}

func (g *IDGenerator) UserID() string {
	return uuid.NewString()
}

// AccountNumber returns 10 random digits with a non-zero leading digit.
func (g *IDGenerator) AccountNumber() string {
	return randomDigit(1, 9) + randomDigits(AccountNumberLength-1)
}

// CardNumber returns a 16 digit number starting with 4 whose last digit is
// a Luhn check digit.
func (g *IDGenerator) CardNumber() string {
	body := cardPrefix + randomDigits(CardNumberLength-len(cardPrefix)-1)
	return body + string(rune('0'+calculateLuhnChecksum(body)))
}

// Pin returns a 4 digit PIN in 1000-9999.
func (g *IDGenerator) Pin() string {
	return randomDigit(1, 9) + randomDigits(PinLength-1)
}

// ========================================
// VALIDATION
// ========================================

func ValidateAccountNumber(s string) bool {
	return len(s) == AccountNumberLength && IsDigits(s) && s[0] != '0'
}

func ValidateCardNumber(s string) bool {
	if len(s) != CardNumberLength || !IsDigits(s) || !strings.HasPrefix(s, cardPrefix) {
		return false
	}
	return calculateLuhnChecksum(s[:len(s)-1]) == int(s[len(s)-1]-'0')
}

func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func randomDigits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(randomDigit(0, 9))
	}
	return b.String()
}

func randomDigit(min, max int64) string {
	num, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return string(rune('0' + min + num.Int64()))
}

// calculateLuhnChecksum calculates the digit that makes s+digit Luhn-valid.
func calculateLuhnChecksum(s string) int {
	sum := 0
	isEven := true

	// Process from right to left; the check digit will occupy the odd slot
	for i := len(s) - 1; i >= 0; i-- {
		digit := int(s[i] - '0')

		if isEven {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
		isEven = !isEven
	}

	return (10 - (sum % 10)) % 10
}

package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

var ErrInvalidSignature = errors.New("invalid signature")

type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	signature := mac.Sum(nil)
	return hex.EncodeToString(signature)
}

func (s *Signer) Verify(data []byte, signature string) (bool, error) {
	expectedSignature := s.Sign(data)

	if !hmac.Equal([]byte(expectedSignature), []byte(signature)) {
		s.logger.Warn("Signature verification failed",
			slog.Int("payload_bytes", len(data)))
		return false, ErrInvalidSignature
	}

	return true, nil
}

// transferPayload is the canonical form clients sign: from:to:amount:key.
// The amount is normalised so "100", "100.0" and "100.00" sign the same.
func transferPayload(fromAccountID, toAccountID string, amount decimal.Decimal, idempotencyKey string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s", fromAccountID, toAccountID, amount.StringFixed(2), idempotencyKey))
}

func (s *Signer) SignTransfer(fromAccountID, toAccountID string, amount decimal.Decimal, idempotencyKey string) string {
	return s.Sign(transferPayload(fromAccountID, toAccountID, amount, idempotencyKey))
}

func (s *Signer) VerifyTransfer(fromAccountID, toAccountID string, amount decimal.Decimal, idempotencyKey, signature string) (bool, error) {
	return s.Verify(transferPayload(fromAccountID, toAccountID, amount, idempotencyKey), signature)
}

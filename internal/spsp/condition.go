package spsp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentRequest is what a receiver hands to a paying wallet.
type PaymentRequest struct {
	Address   string
	Amount    string
	ExpiresAt time.Time
	Condition string
}

// ConditionGenerator derives execution conditions from a secret, so the matching
// fulfillment can be recomputed later from the request terms alone.
type ConditionGenerator struct {
	secret []byte
	prefix string
	ttl    time.Duration

	now   func() time.Time
	newID func() string
}

func NewConditionGenerator(secret, ledgerPrefix string, ttl time.Duration) *ConditionGenerator {
	return &ConditionGenerator{
		secret: []byte(secret),
		prefix: ledgerPrefix,
		ttl:    ttl,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Generate binds a fresh condition to the receiving account and amount.
func (g *ConditionGenerator) Generate(username, amount string) PaymentRequest {
	address := g.prefix + username + "." + g.newID()
	expiresAt := g.now().UTC().Add(g.ttl).Truncate(time.Millisecond)

	return PaymentRequest{
		Address:   address,
		Amount:    amount,
		ExpiresAt: expiresAt,
		Condition: Condition(g.preimage(address, amount, expiresAt)),
	}
}

// Fulfillment recomputes the fulfillment of a condition produced by Generate.
func (g *ConditionGenerator) Fulfillment(address, amount string, expiresAt time.Time) string {
	return "cf:0:" + base64.RawURLEncoding.EncodeToString(g.preimage(address, amount, expiresAt))
}

func (g *ConditionGenerator) preimage(address, amount string, expiresAt time.Time) []byte {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%s\n%s\n%s", address, amount, expiresAt.UTC().Format(time.RFC3339Nano))
	return mac.Sum(nil)
}

// Condition is the preimage-sha-256 condition URI of a 32 byte preimage.
func Condition(preimage []byte) string {
	digest := sha256.Sum256(preimage)
	return fmt.Sprintf("cc:0:3:%s:%d", base64.RawURLEncoding.EncodeToString(digest[:]), len(preimage))
}

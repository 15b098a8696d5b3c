package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrBadSignature is returned when a recharge callback fails verification.
var ErrBadSignature = errors.New("payment signature verification failed")

// GatewayOrder is the provider-side order a client pays against.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PaymentGateway abstracts the recharge payment provider. VerifyPayment
// returns the amount the provider recorded for the order; callers must credit
// that amount, never one supplied by the client.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, ownerID uuid.UUID, amount int64) (*GatewayOrder, error)
	VerifyPayment(gatewayOrderID, paymentID, signature string) (int64, error)
}

// SandboxGateway is an in-process provider for development and tests. It
// issues order ids and verifies the same HMAC-SHA256 signature scheme the
// production provider uses.
type SandboxGateway struct {
	secret []byte

	mu     sync.Mutex
	orders map[string]int64
}

func NewSandboxGateway(secret string) *SandboxGateway {
	return &SandboxGateway{secret: []byte(secret), orders: make(map[string]int64)}
}

func (g *SandboxGateway) CreateOrder(_ context.Context, _ uuid.UUID, amount int64) (*GatewayOrder, error) {
	id := "sbx_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:14]
	g.mu.Lock()
	g.orders[id] = amount
	g.mu.Unlock()
	return &GatewayOrder{ID: id, Amount: amount, Currency: "INR"}, nil
}

func (g *SandboxGateway) VerifyPayment(gatewayOrderID, paymentID, signature string) (int64, error) {
	g.mu.Lock()
	amount, known := g.orders[gatewayOrderID]
	g.mu.Unlock()
	if !known {
		return 0, ErrBadSignature
	}
	if !hmac.Equal([]byte(signature), []byte(g.Sign(gatewayOrderID, paymentID))) {
		return 0, ErrBadSignature
	}
	return amount, nil
}

// Sign computes the signature a client would present for the given pair.
// Exposed for tests and the sandbox payment page.
func (g *SandboxGateway) Sign(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%s|%s", gatewayOrderID, paymentID)
	return hex.EncodeToString(mac.Sum(nil))
}

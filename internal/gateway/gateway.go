// Package gateway talks to external payment providers. Each provider builds a
// redirect URL for a pending payment and verifies the signed callbacks it sends.
package gateway

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature  = errors.New("invalid callback signature")
	ErrMissingField      = errors.New("missing callback field")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// ProviderError is a well-formed rejection from the provider.
type ProviderError struct {
	Method  string
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s rejected request: code=%s message=%s", e.Method, e.Code, e.Message)
}

// PaymentRequest describes one redirect attempt. RequestID is unique per
// attempt and comes back in the callback.
type PaymentRequest struct {
	OrderID   int64
	RequestID string
	Amount    decimal.Decimal
	OrderInfo string
	ReturnURL string
	ClientIP  string
}

type PaymentResponse struct {
	RequestID string `json:"requestId"`
	PayURL    string `json:"payUrl"`
}

// CallbackResult is a verified provider notification.
type CallbackResult struct {
	Method    string          `json:"method"`
	RequestID string          `json:"requestId"`
	TxID      string          `json:"txId"`
	Amount    decimal.Decimal `json:"amount"`
	Success   bool            `json:"success"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
}

// SettlementAmount is what the provider charges for amount and echoes back in
// its callback. MoMo only takes whole dong; VNPay carries two decimals in its
// x100 amount field.
func SettlementAmount(method string, amount decimal.Decimal) decimal.Decimal {
	if method == models.PaymentMethodMoMo {
		return amount.Round(0)
	}
	return amount
}

type Gateway interface {
	Method() string
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
	// ParseCallback verifies the signature and decodes the provider fields.
	ParseCallback(params map[string]string) (*CallbackResult, error)
}

// Registry resolves a gateway by payment method.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Method()] = g
	}
	return r
}

func (r *Registry) Get(method string) (Gateway, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	g, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return g, nil
}

func sign(newHash func() hash.Hash, secret, data string) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(newHash func() hash.Hash, secret, data, signature string) bool {
	expected := sign(newHash, secret, data)
	return hmac.Equal([]byte(expected), []byte(signature))
}

package gateway

import (
	"context"
	"crypto/sha512"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

type VNPayConfig struct {
	PayURL     string
	TmnCode    string
	HashSecret string
	ReturnURL  string
}

// VNPay builds signed redirect URLs locally; no network call is made on create.
type VNPay struct {
	cfg VNPayConfig
	now func() time.Time
}

var vnpayZone = time.FixedZone("ICT", 7*60*60)

const vnpayTimeLayout = "20060102150405"

func NewVNPay(cfg VNPayConfig, now func() time.Time) *VNPay {
	if now == nil {
		now = time.Now
	}
	return &VNPay{cfg: cfg, now: now}
}

func (v *VNPay) Method() string {
	return models.PaymentMethodVNPay
}

func (v *VNPay) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = v.cfg.ReturnURL
	}
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}
	created := v.now().In(vnpayZone)

	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    v.cfg.TmnCode,
		"vnp_Amount":     req.Amount.Mul(decimal.NewFromInt(100)).StringFixed(0),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     req.RequestID,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  returnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": created.Format(vnpayTimeLayout),
		"vnp_ExpireDate": created.Add(15 * time.Minute).Format(vnpayTimeLayout),
	}

	query := canonicalQuery(params)
	secureHash := sign(sha512.New, v.cfg.HashSecret, query)

	return &PaymentResponse{
		RequestID: req.RequestID,
		PayURL:    v.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + secureHash,
	}, nil
}

// ParseCallback verifies a VNPay IPN or return query.
func (v *VNPay) ParseCallback(params map[string]string) (*CallbackResult, error) {
	signature := params["vnp_SecureHash"]
	if signature == "" {
		return nil, fmt.Errorf("%w: vnp_SecureHash", ErrMissingField)
	}
	for _, f := range []string{"vnp_TxnRef", "vnp_Amount", "vnp_ResponseCode"} {
		if params[f] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}

	signed := make(map[string]string, len(params))
	for k, val := range params {
		if strings.HasPrefix(k, "vnp_") && k != "vnp_SecureHash" && k != "vnp_SecureHashType" {
			signed[k] = val
		}
	}
	if !verify(sha512.New, v.cfg.HashSecret, canonicalQuery(signed), strings.ToLower(signature)) {
		return nil, ErrInvalidSignature
	}

	raw, err := decimal.NewFromString(params["vnp_Amount"])
	if err != nil {
		return nil, fmt.Errorf("invalid vnpay amount %q: %w", params["vnp_Amount"], err)
	}

	code := params["vnp_ResponseCode"]
	status, hasStatus := params["vnp_TransactionStatus"]
	return &CallbackResult{
		Method:    v.Method(),
		RequestID: params["vnp_TxnRef"],
		TxID:      params["vnp_TransactionNo"],
		Amount:    raw.Div(decimal.NewFromInt(100)),
		Success:   code == "00" && (!hasStatus || status == "00"),
		Code:      code,
		Message:   params["vnp_OrderInfo"],
	}, nil
}

// SignParams returns the secure hash VNPay would attach to params.
func (v *VNPay) SignParams(params map[string]string) string {
	return sign(sha512.New, v.cfg.HashSecret, canonicalQuery(params))
}

// canonicalQuery encodes params sorted by key, the form VNPay signs.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, val := range params {
		if val != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

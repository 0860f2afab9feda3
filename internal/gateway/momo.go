package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

type MoMoConfig struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	IPNURL      string
	RedirectURL string
}

type MoMo struct {
	cfg    MoMoConfig
	client *http.Client
}

func NewMoMo(cfg MoMoConfig, client *http.Client) *MoMo {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &MoMo{cfg: cfg, client: client}
}

func (m *MoMo) Method() string {
	return models.PaymentMethodMoMo
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	PartnerCode string `json:"partnerCode"`
	OrderID     string `json:"orderId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	ResultCode  int    `json:"resultCode"`
	Message     string `json:"message"`
	PayURL      string `json:"payUrl"`
}

const momoRequestType = "captureWallet"

// CreatePayment calls the MoMo create endpoint. The request id doubles as
// MoMo's orderId so callbacks map straight back to the payment.
func (m *MoMo) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	redirectURL := req.ReturnURL
	if redirectURL == "" {
		redirectURL = m.cfg.RedirectURL
	}

	body := momoCreateRequest{
		PartnerCode: m.cfg.PartnerCode,
		RequestID:   req.RequestID,
		Amount:      SettlementAmount(m.Method(), req.Amount).IntPart(),
		OrderID:     req.RequestID,
		OrderInfo:   req.OrderInfo,
		RedirectURL: redirectURL,
		IPNURL:      m.cfg.IPNURL,
		RequestType: momoRequestType,
		ExtraData:   "",
		Lang:        "vi",
	}
	body.Signature = sign(sha256.New, m.cfg.SecretKey, m.createSignatureData(body))

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal momo request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("momo request failed: %w", err)
	}
	defer resp.Body.Close()

	var out momoCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode momo response (status %d): %w", resp.StatusCode, err)
	}
	if out.ResultCode != 0 || out.PayURL == "" {
		return nil, &ProviderError{Method: m.Method(), Code: strconv.Itoa(out.ResultCode), Message: out.Message}
	}

	return &PaymentResponse{RequestID: req.RequestID, PayURL: out.PayURL}, nil
}

func (m *MoMo) createSignatureData(r momoCreateRequest) string {
	return "accessKey=" + m.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(r.Amount, 10) +
		"&extraData=" + r.ExtraData +
		"&ipnUrl=" + r.IPNURL +
		"&orderId=" + r.OrderID +
		"&orderInfo=" + r.OrderInfo +
		"&partnerCode=" + r.PartnerCode +
		"&redirectUrl=" + r.RedirectURL +
		"&requestId=" + r.RequestID +
		"&requestType=" + r.RequestType
}

var momoIPNFields = []string{
	"amount", "extraData", "message", "orderId", "orderInfo", "orderType", "partnerCode",
	"payType", "requestId", "responseTime", "resultCode", "transId",
}

// ParseCallback verifies a MoMo IPN payload.
func (m *MoMo) ParseCallback(params map[string]string) (*CallbackResult, error) {
	signature := params["signature"]
	if signature == "" {
		return nil, fmt.Errorf("%w: signature", ErrMissingField)
	}
	for _, f := range []string{"orderId", "amount", "resultCode"} {
		if params[f] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}

	if !verify(sha256.New, m.cfg.SecretKey, m.ipnSignatureData(params), signature) {
		return nil, ErrInvalidSignature
	}

	amount, err := decimal.NewFromString(params["amount"])
	if err != nil {
		return nil, fmt.Errorf("invalid momo amount %q: %w", params["amount"], err)
	}

	return &CallbackResult{
		Method:    m.Method(),
		RequestID: params["orderId"],
		TxID:      params["transId"],
		Amount:    amount,
		Success:   params["resultCode"] == "0",
		Code:      params["resultCode"],
		Message:   params["message"],
	}, nil
}

func (m *MoMo) ipnSignatureData(params map[string]string) string {
	parts := make([]string, 0, len(momoIPNFields)+1)
	parts = append(parts, "accessKey="+m.cfg.AccessKey)
	for _, f := range momoIPNFields {
		parts = append(parts, f+"="+params[f])
	}
	return strings.Join(parts, "&")
}

// SignIPN produces the signature MoMo would attach to params. Used by the
// sandbox relay and tests.
func (m *MoMo) SignIPN(params map[string]string) string {
	return sign(sha256.New, m.cfg.SecretKey, m.ipnSignatureData(params))
}

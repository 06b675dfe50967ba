package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telehealth-core/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SignatureHeader carries the hex HMAC-SHA512 of a webhook body.
const SignatureHeader = "x-paystack-signature"

var tracer = otel.Tracer("telehealth-core/gateway")

// ErrUpstream marks a gateway fault the caller may retry: timeout, transport error or 5xx.
var ErrUpstream = errors.New("payment gateway unavailable")

// APIError is a 4xx answer from the gateway. Retrying the same request will not help.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment gateway rejected request (%d): %s", e.StatusCode, e.Message)
}

type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Reference   string
	CallbackURL string
	Metadata    any
}

type InitializeResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type VerifyResponse struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Channel   string
	PaidAt    *time.Time
	Metadata  json.RawMessage
}

// Client is the gateway surface the payment flows depend on.
type Client interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	Verify(ctx context.Context, reference string) (*VerifyResponse, error)
	VerifySignature(payload []byte, signature string) bool
}

type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type paystackClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewPaystackClient(cfg Config, m *metrics.Metrics, log *zap.Logger) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &paystackClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    m,
		log:        log.With(zap.String("component", "paystack")),
	}
}

// envelope is the shape of every Paystack API answer.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *paystackClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	ctx, span := tracer.Start(ctx, "paystack.initialize")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", req.Reference))

	body := map[string]any{
		"email":     req.Email,
		"amount":    ToKobo(req.Amount),
		"reference": req.Reference,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if req.Metadata != nil {
		body["metadata"] = req.Metadata
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}

	c.log.Info("Transaction initialized", zap.String("reference", data.Reference))

	return &InitializeResponse{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (c *paystackClient) Verify(ctx context.Context, reference string) (*VerifyResponse, error) {
	ctx, span := tracer.Start(ctx, "paystack.verify")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", reference))

	var data struct {
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    int64           `json:"amount"`
		Channel   string          `json:"channel"`
		PaidAt    *time.Time      `json:"paid_at"`
		Metadata  json.RawMessage `json:"metadata"`
	}
	if err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}

	return &VerifyResponse{
		Reference: data.Reference,
		Status:    data.Status,
		Amount:    FromKobo(data.Amount),
		Channel:   data.Channel,
		PaidAt:    data.PaidAt,
		Metadata:  data.Metadata,
	}, nil
}

// VerifySignature checks the hex HMAC-SHA512 of payload under the secret key in constant time.
func (c *paystackClient) VerifySignature(payload []byte, signature string) bool {
	if c.secretKey == "" || signature == "" {
		return false
	}
	expected := Sign(c.secretKey, payload)
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(expected))
}

// Sign returns the hex HMAC-SHA512 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *paystackClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: %s marshal: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gateway: %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveGateway(op, "transport_error")
		c.log.Warn("Gateway call failed", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("gateway: %s: %w: %v", op, ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.metrics.ObserveGateway(op, "transport_error")
		return fmt.Errorf("gateway: %s read body: %w: %v", op, ErrUpstream, err)
	}

	var env envelope
	_ = json.Unmarshal(respBody, &env)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		c.metrics.ObserveGateway(op, "5xx")
		c.log.Error("Gateway server error",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.Message),
		)
		return fmt.Errorf("gateway: %s status %d: %w", op, resp.StatusCode, ErrUpstream)
	case resp.StatusCode >= http.StatusBadRequest:
		c.metrics.ObserveGateway(op, "4xx")
		c.log.Warn("Gateway rejected request",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.Message),
		)
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if !env.Status {
		c.metrics.ObserveGateway(op, "rejected")
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			c.metrics.ObserveGateway(op, "decode_error")
			return fmt.Errorf("gateway: %s decode: %w", op, err)
		}
	}

	c.metrics.ObserveGateway(op, "ok")
	return nil
}

// ToKobo converts a major-unit amount to the gateway's minor unit.
func ToKobo(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromKobo(kobo int64) decimal.Decimal {
	return decimal.New(kobo, -2)
}

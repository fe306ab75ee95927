package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
)

// Service is the payment-gateway client. It is the sole source of truth for
// fund movement: callers never assume success without querying it.
type Service struct {
	Client       *http.Client
	APIKey       string
	PrivateKey   string
	MerchantCode string
	BaseURL      string
}

func NewService(apiKey, privateKey, merchantCode string) *Service {
	baseURL := "https://pay.sandbox.juniorlance.id/api" // Default to sandbox
	if os.Getenv("GATEWAY_ENV") == "production" {
		baseURL = "https://pay.juniorlance.id/api"
	}

	return &Service{
		Client:       &http.Client{Timeout: 15 * time.Second},
		APIKey:       apiKey,
		PrivateKey:   privateKey,
		MerchantCode: merchantCode,
		BaseURL:      baseURL,
	}
}

// Session is an open checkout the payer completes on the gateway's side.
type Session struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	CheckoutURL string `json:"checkout_url"`
	Amount      int64  `json:"amount"`
}

// Status is the gateway's own view of a transaction.
type Status string

const (
	StatusUnpaid  Status = "UNPAID"
	StatusPaid    Status = "PAID"
	StatusExpired Status = "EXPIRED"
	StatusFailed  Status = "FAILED"
)

type sessionRequest struct {
	MerchantRef   string `json:"merchant_ref"`
	Amount        int64  `json:"amount"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	ItemName      string `json:"item_name"`
	CallbackURL   string `json:"callback_url"`
	ReturnURL     string `json:"return_url"`
	ExpiredTime   int64  `json:"expired_time"` // Unix timestamp
	Signature     string `json:"signature"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateSession opens a hold session for merchantRef. The signature is
// HMAC-SHA256(merchant_code + merchant_ref + amount, private_key).
func (s *Service) CreateSession(ctx context.Context, merchantRef string, amount int64, customerName, customerEmail, itemName, returnURL string) (*Session, error) {
	sigData := fmt.Sprintf("%s%s%d", s.MerchantCode, merchantRef, amount)

	baseURL := os.Getenv("APP_BASE_URL")

	reqBody := sessionRequest{
		MerchantRef:   merchantRef,
		Amount:        amount,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		ItemName:      itemName,
		CallbackURL:   baseURL + "/api/payments/callback",
		ReturnURL:     returnURL,
		ExpiredTime:   time.Now().Add(24 * time.Hour).Unix(),
		Signature:     s.generateSignature(sigData),
	}

	var sess Session
	if err := s.post(ctx, "/session/create", reqBody, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetStatus asks the gateway for its own record of the transaction. A client
// callback only triggers this check; its payload is never trusted directly.
func (s *Service) GetStatus(ctx context.Context, externalRef string) (Status, error) {
	var data struct {
		Status Status `json:"status"`
	}
	if err := s.get(ctx, "/transaction/detail?reference="+externalRef, &data); err != nil {
		return "", err
	}
	return data.Status, nil
}

type payoutRequest struct {
	AccountRef string `json:"account_ref"`
	Amount     int64  `json:"amount"`
	Reference  string `json:"reference"`
	Signature  string `json:"signature"`
}

// Payout transfers amount to the freelancer's linked account and returns the
// gateway's payout reference.
func (s *Service) Payout(ctx context.Context, accountRef string, amount int64, reference string) (string, error) {
	sigData := fmt.Sprintf("%s%s%d", s.MerchantCode, reference, amount)
	reqBody := payoutRequest{
		AccountRef: accountRef,
		Amount:     amount,
		Reference:  reference,
		Signature:  s.generateSignature(sigData),
	}

	var data struct {
		PayoutRef string `json:"payout_ref"`
	}
	if err := s.post(ctx, "/payout/create", reqBody, &data); err != nil {
		return "", err
	}
	return data.PayoutRef, nil
}

func (s *Service) post(ctx context.Context, path string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", s.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Service) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	return s.do(req, out)
}

func (s *Service) do(req *http.Request, out any) error {
	resp, err := s.Client.Do(req)
	if err != nil {
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return &apperr.GatewayError{Kind: apperr.GatewayTimeout, Err: err}
		}
		return &apperr.GatewayError{Kind: apperr.GatewayUnreachable, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return &apperr.GatewayError{Kind: apperr.GatewayUnreachable, Err: fmt.Errorf("parse response: %w", err)}
	}
	if !env.Success {
		return &apperr.GatewayError{Kind: apperr.GatewayDeclined, Err: errors.New(env.Message)}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &apperr.GatewayError{Kind: apperr.GatewayUnreachable, Err: fmt.Errorf("parse data: %w", err)}
		}
	}
	return nil
}

func (s *Service) generateSignature(data string) string {
	h := hmac.New(sha256.New, []byte(s.PrivateKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSignature checks a callback signature:
// HMAC-SHA256(JSON_BODY, private_key).
func (s *Service) ValidateSignature(incomingSig, jsonBody string) bool {
	h := hmac.New(sha256.New, []byte(s.PrivateKey))
	h.Write([]byte(jsonBody))
	calculated := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(calculated), []byte(incomingSig))
}

package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/guonaihong/gout"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
)

// RazorpayProvider creates hosted payment links through the Razorpay
// Payment Links API and verifies its webhook signatures.
type RazorpayProvider struct {
	baseURL string
	timeout time.Duration
}

// NewRazorpayProvider creates the adapter. baseURL is overridable for tests.
func NewRazorpayProvider(baseURL string) *RazorpayProvider {
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}
	return &RazorpayProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 20 * time.Second,
	}
}

type razorpayLinkRequest struct {
	Amount      int64             `json:"amount"` // minor units
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Customer    razorpayCustomer  `json:"customer"`
	Notes       map[string]string `json:"notes"`
}

type razorpayCustomer struct {
	Contact string `json:"contact"`
}

type razorpayLinkResponse struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Status   string `json:"status"`
	Error    *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

func (r *RazorpayProvider) CreateLink(creds *models.ProviderCredentials, req *LinkRequest) (string, error) {
	payload := razorpayLinkRequest{
		Amount:      int64(math.Round(req.Amount * 100)),
		Currency:    req.Currency,
		Description: req.Description,
		Customer:    razorpayCustomer{Contact: req.CustomerPhone},
		Notes: map[string]string{
			"order_id":     req.OrderID,
			"order_number": req.OrderNumber,
		},
	}

	var resp razorpayLinkResponse
	code := 0
	err := gout.POST(r.baseURL + "/payment_links").
		SetHeader(gout.H{"Authorization": basicAuth(creds.KeyID, creds.KeySecret)}).
		SetJSON(payload).
		BindJSON(&resp).
		Code(&code).
		SetTimeout(r.timeout).
		Do()
	if err != nil {
		return "", &apperrors.ProviderError{Provider: "razorpay", Code: "transport", Message: err.Error()}
	}

	if code >= 400 || resp.Error != nil {
		errCode := fmt.Sprintf("http_%d", code)
		msg := "payment link creation failed"
		if resp.Error != nil {
			errCode = resp.Error.Code
			msg = resp.Error.Description
		}
		return "", &apperrors.ProviderError{Provider: "razorpay", Code: errCode, Message: msg, HTTPStatus: code}
	}
	if resp.ShortURL == "" {
		return "", &apperrors.ProviderError{Provider: "razorpay", Code: "empty_response",
			Message: "no link URL in response", HTTPStatus: code}
	}

	return resp.ShortURL, nil
}

// VerifyWebhook checks the X-Razorpay-Signature header: hex-encoded
// HMAC-SHA256 of the raw body keyed with the webhook secret.
func (r *RazorpayProvider) VerifyWebhook(creds *models.ProviderCredentials, body []byte, signature string) error {
	if signature == "" {
		return &apperrors.ProviderError{Provider: "razorpay", Code: "missing_signature",
			Message: "webhook carried no signature"}
	}

	mac := hmac.New(sha256.New, []byte(creds.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return &apperrors.ProviderError{Provider: "razorpay", Code: "bad_signature",
			Message: "webhook signature mismatch"}
	}
	return nil
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

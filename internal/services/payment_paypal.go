package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/guonaihong/gout"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
)

// PayPalProvider creates checkout orders through the PayPal Orders v2 API
// and returns the buyer approval URL as the payment link. Webhooks are
// verified through PayPal's verify-webhook-signature endpoint rather than
// locally, which is the provider-documented method.
type PayPalProvider struct {
	baseURL string
	timeout time.Duration
}

// NewPayPalProvider creates the adapter. baseURL is overridable for tests
// (and for the sandbox environment).
func NewPayPalProvider(baseURL string) *PayPalProvider {
	if baseURL == "" {
		baseURL = "https://api-m.paypal.com"
	}
	return &PayPalProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 20 * time.Second,
	}
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type paypalOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

// The custom_id on a purchase unit is echoed back on the capture
// resource, which is how the webhook handler finds its way back to the
// order.
type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id"`
	CustomID    string       `json:"custom_id"`
	Description string       `json:"description"`
	Amount      paypalAmount `json:"amount"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

func (p *PayPalProvider) accessToken(creds *models.ProviderCredentials) (string, error) {
	var resp paypalTokenResponse
	code := 0
	err := gout.POST(p.baseURL + "/v1/oauth2/token").
		SetHeader(gout.H{"Authorization": basicAuth(creds.KeyID, creds.KeySecret)}).
		SetWWWForm(gout.H{"grant_type": "client_credentials"}).
		BindJSON(&resp).
		Code(&code).
		SetTimeout(p.timeout).
		Do()
	if err != nil {
		return "", &apperrors.ProviderError{Provider: "paypal", Code: "transport", Message: err.Error()}
	}
	if code >= 400 || resp.AccessToken == "" {
		return "", &apperrors.ProviderError{Provider: "paypal", Code: "oauth",
			Message: "client credential grant rejected", HTTPStatus: code}
	}
	return resp.AccessToken, nil
}

func (p *PayPalProvider) CreateLink(creds *models.ProviderCredentials, req *LinkRequest) (string, error) {
	token, err := p.accessToken(creds)
	if err != nil {
		return "", err
	}

	payload := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: req.OrderID,
			CustomID:    req.OrderID,
			Description: req.Description,
			Amount: paypalAmount{
				CurrencyCode: req.Currency,
				Value:        fmt.Sprintf("%.2f", req.Amount),
			},
		}},
	}

	var resp paypalOrderResponse
	code := 0
	err = gout.POST(p.baseURL + "/v2/checkout/orders").
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		SetJSON(payload).
		BindJSON(&resp).
		Code(&code).
		SetTimeout(p.timeout).
		Do()
	if err != nil {
		return "", &apperrors.ProviderError{Provider: "paypal", Code: "transport", Message: err.Error()}
	}
	if code >= 400 {
		msg := resp.Message
		if msg == "" {
			msg = "order creation failed"
		}
		return "", &apperrors.ProviderError{Provider: "paypal", Code: resp.Name, Message: msg, HTTPStatus: code}
	}

	for _, link := range resp.Links {
		if link.Rel == "approve" {
			return link.Href, nil
		}
	}
	return "", &apperrors.ProviderError{Provider: "paypal", Code: "no_approve_link",
		Message: "order response carried no approval link", HTTPStatus: code}
}

type paypalVerifyRequest struct {
	TransmissionID   string          `json:"transmission_id"`
	TransmissionTime string          `json:"transmission_time"`
	CertURL          string          `json:"cert_url"`
	AuthAlgo         string          `json:"auth_algo"`
	TransmissionSig  string          `json:"transmission_sig"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type paypalVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhook validates a webhook delivery through PayPal's
// verify-webhook-signature API. The signature argument carries the
// pipe-joined transmission headers:
// transmissionID|transmissionTime|certURL|authAlgo|transmissionSig.
func (p *PayPalProvider) VerifyWebhook(creds *models.ProviderCredentials, body []byte, signature string) error {
	parts := strings.SplitN(signature, "|", 5)
	if len(parts) != 5 {
		return &apperrors.ProviderError{Provider: "paypal", Code: "missing_signature",
			Message: "webhook carried incomplete transmission headers"}
	}

	token, err := p.accessToken(creds)
	if err != nil {
		return err
	}

	payload := paypalVerifyRequest{
		TransmissionID:   parts[0],
		TransmissionTime: parts[1],
		CertURL:          parts[2],
		AuthAlgo:         parts[3],
		TransmissionSig:  parts[4],
		WebhookID:        creds.WebhookSecret,
		WebhookEvent:     json.RawMessage(body),
	}

	var resp paypalVerifyResponse
	code := 0
	err = gout.POST(p.baseURL + "/v1/notifications/verify-webhook-signature").
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		SetJSON(payload).
		BindJSON(&resp).
		Code(&code).
		SetTimeout(p.timeout).
		Do()
	if err != nil {
		return &apperrors.ProviderError{Provider: "paypal", Code: "transport", Message: err.Error()}
	}
	if code >= 400 || resp.VerificationStatus != "SUCCESS" {
		return &apperrors.ProviderError{Provider: "paypal", Code: "bad_signature",
			Message: "webhook verification failed", HTTPStatus: code}
	}
	return nil
}

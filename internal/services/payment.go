package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/crypto"
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// LinkRequest describes the payment link to create for an order.
type LinkRequest struct {
	OrderID       string
	OrderNumber   string
	Amount        float64
	Currency      string
	CustomerPhone string
	Description   string
}

// PaymentProvider is the capability interface one payment adapter
// implements. Adapters own their provider's authentication and request
// shapes and stay independently testable.
type PaymentProvider interface {
	CreateLink(creds *models.ProviderCredentials, req *LinkRequest) (string, error)
	VerifyWebhook(creds *models.ProviderCredentials, body []byte, signature string) error
}

// PaymentService is the payment link broker: it resolves the tenant's
// primary provider config, enforces amount bounds and dispatches to the
// registered adapter.
type PaymentService struct {
	store     storage.Store
	cipher    *crypto.Cipher
	providers map[string]PaymentProvider
}

// NewPaymentService creates a broker with an empty adapter registry.
func NewPaymentService(store storage.Store, cipher *crypto.Cipher) *PaymentService {
	return &PaymentService{
		store:     store,
		cipher:    cipher,
		providers: make(map[string]PaymentProvider),
	}
}

// Register adds an adapter for a provider type.
func (p *PaymentService) Register(providerType string, provider PaymentProvider) {
	p.providers[providerType] = provider
}

// CreateLink creates a provider-hosted payment link for an order. Amount
// bounds are checked before any network call. On success the link is
// persisted on the order and the config's usage counters are bumped.
func (p *PaymentService) CreateLink(tenantID string, req *LinkRequest) (string, error) {
	config, err := p.store.GetPrimaryPaymentConfig(tenantID)
	if err != nil {
		return "", err
	}

	if req.Amount < config.MinAmount || (config.MaxAmount > 0 && req.Amount > config.MaxAmount) {
		return "", &apperrors.OutOfRangeError{
			Amount:   req.Amount,
			Min:      config.MinAmount,
			Max:      config.MaxAmount,
			Currency: req.Currency,
		}
	}

	provider, ok := p.providers[config.ProviderType]
	if !ok {
		return "", fmt.Errorf("no payment adapter registered for provider %q", config.ProviderType)
	}

	creds, err := p.decryptCredentials(config)
	if err != nil {
		return "", err
	}

	url, err := provider.CreateLink(creds, req)
	if err != nil {
		return "", err
	}

	if order, gerr := p.store.GetOrder(tenantID, req.OrderID); gerr == nil {
		order.PaymentLink = url
		if uerr := p.store.UpdateOrder(order); uerr != nil {
			log.Printf("⚠️  Failed to persist payment link on order %s: %v", req.OrderID, uerr)
		}
	}
	if err := p.store.RecordPaymentLinkIssued(config.ID, time.Now()); err != nil {
		log.Printf("⚠️  Failed to bump usage counters for config %s: %v", config.ID, err)
	}

	return url, nil
}

// LinkForOrder wraps CreateLink with the fallback policy: a payment-link
// failure must never abort checkout, so any error degrades to the tenant's
// static contact/payment link.
func (p *PaymentService) LinkForOrder(tenant *models.Tenant, order *models.Order) string {
	url, err := p.CreateLink(tenant.ID, &LinkRequest{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Amount:        order.Total,
		Currency:      order.Currency,
		CustomerPhone: order.CustomerPhone,
		Description:   fmt.Sprintf("Order %s", order.OrderNumber),
	})
	if err != nil {
		log.Printf("⚠️  Payment link failed for order %s (tenant %s): %v - using fallback link",
			order.OrderNumber, tenant.ID, err)
		return tenant.FallbackPaymentLink
	}
	return url
}

// VerifyWebhook checks a payment webhook signature with the adapter of the
// tenant's primary provider.
func (p *PaymentService) VerifyWebhook(tenantID string, body []byte, signature string) (*models.PaymentConfig, error) {
	config, err := p.store.GetPrimaryPaymentConfig(tenantID)
	if err != nil {
		return nil, err
	}

	provider, ok := p.providers[config.ProviderType]
	if !ok {
		return nil, fmt.Errorf("no payment adapter registered for provider %q", config.ProviderType)
	}

	creds, err := p.decryptCredentials(config)
	if err != nil {
		return nil, err
	}

	if err := provider.VerifyWebhook(creds, body, signature); err != nil {
		return nil, err
	}
	return config, nil
}

func (p *PaymentService) decryptCredentials(config *models.PaymentConfig) (*models.ProviderCredentials, error) {
	raw, err := p.cipher.Decrypt(config.EncryptedCredentials)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payment credentials for config %s: %w", config.ID, err)
	}

	var creds models.ProviderCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("malformed payment credentials for config %s: %w", config.ID, err)
	}
	return &creds, nil
}

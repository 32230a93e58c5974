package models

import "time"

// Payment provider types
const (
	PaymentProviderRazorpay = "razorpay"
	PaymentProviderPayPal   = "paypal"
)

// PaymentConfig holds a tenant's credentials and routing rules for one
// payment provider. Exactly one active primary config exists per tenant;
// the store enforces this, not convention.
type PaymentConfig struct {
	ID       string `json:"id" gorm:"primaryKey"`
	TenantID string `json:"tenant_id" gorm:"index"`

	ProviderType string `json:"provider_type"`

	// EncryptedCredentials is the provider credential blob (JSON),
	// encrypted at rest.
	EncryptedCredentials string `json:"-"`

	MinAmount float64 `json:"min_amount"`
	MaxAmount float64 `json:"max_amount"`

	FeePercent float64 `json:"fee_percent"`
	FeeFlat    float64 `json:"fee_flat"`

	IsPrimary bool `json:"is_primary"`
	IsActive  bool `json:"is_active"`

	LinksCreated      int        `json:"links_created"`
	LastTransactionAt *time.Time `json:"last_transaction_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProviderCredentials is the decrypted form of PaymentConfig credentials.
type ProviderCredentials struct {
	KeyID         string `json:"key_id"`
	KeySecret     string `json:"key_secret"`
	WebhookSecret string `json:"webhook_secret"`
}

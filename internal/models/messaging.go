package models

import "time"

// MessagingAccount status constants
const (
	AccountStatusPending      = "pending"
	AccountStatusActive       = "active"
	AccountStatusSuspended    = "suspended"
	AccountStatusDisconnected = "disconnected"
	AccountStatusError        = "error"
)

// MessagingAccount stores a tenant's provider credentials and line metadata.
// Exactly one per tenant. The access token is stored encrypted and only
// decrypted at send time.
type MessagingAccount struct {
	ID       string `json:"id" gorm:"primaryKey"`
	TenantID string `json:"tenant_id" gorm:"uniqueIndex"`

	// Provider identifiers discovered during credential exchange.
	BusinessAccountID string `json:"business_account_id"`
	PhoneLineID       string `json:"phone_line_id" gorm:"uniqueIndex"`
	DisplayName       string `json:"display_name"`
	DisplayPhone      string `json:"display_phone"`

	EncryptedToken string `json:"-"`
	TokenType      string `json:"token_type"`
	WebhookSecret  string `json:"-"`

	// SubscribedFields is the comma-separated list of webhook field
	// subscriptions registered for this account.
	SubscribedFields string `json:"subscribed_fields"`

	Status        string `json:"status"`
	ErrorMessage  string `json:"error_message"`
	QualityRating string `json:"quality_rating"`

	LastHealthCheckAt     *time.Time `json:"last_health_check_at"`
	LastMessageSentAt     *time.Time `json:"last_message_sent_at"`
	LastMessageReceivedAt *time.Time `json:"last_message_received_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

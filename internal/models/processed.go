package models

import "time"

// ProcessedMessage records a provider message id that has already been
// handled. The provider delivers at least once; replays of a recorded id
// are dropped without touching the session. Rows expire with a TTL sweep.
type ProcessedMessage struct {
	ProviderMessageID string    `json:"provider_message_id" gorm:"primaryKey"`
	TenantID          string    `json:"tenant_id" gorm:"index"`
	ReceivedAt        time.Time `json:"received_at"`
	ExpiresAt         time.Time `json:"expires_at" gorm:"index"`
}

package models

import "time"

// Tenant represents a business account. Each tenant owns its own messaging
// credentials, catalog, payment configs and orders.
type Tenant struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Name         string `json:"name"`
	Slug         string `json:"slug" gorm:"uniqueIndex"`
	ContactPhone string `json:"contact_phone"`
	Currency     string `json:"currency"` // ISO 4217, default for catalog prices

	// Greeting sent by the welcome step. Falls back to a generic greeting
	// when empty.
	Greeting string `json:"greeting"`

	// FallbackPaymentLink is the static contact/payment URL handed to the
	// customer when no payment provider link could be created.
	FallbackPaymentLink string `json:"fallback_payment_link"`

	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

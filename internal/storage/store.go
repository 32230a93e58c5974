package storage

import (
	"errors"
	"time"

	"github.com/chatcart-io/chatcart-backend/internal/models"
)

// ErrVersionConflict is returned by UpdateSession when the session row was
// modified since it was loaded. Callers reload and retry.
var ErrVersionConflict = errors.New("session version conflict")

// Store defines the interface for storage operations
type Store interface {
	// Tenant operations
	CreateTenant(tenant *models.Tenant) error
	GetTenant(id string) (*models.Tenant, error)
	GetTenantBySlug(slug string) (*models.Tenant, error)

	// Messaging account operations
	SaveMessagingAccount(account *models.MessagingAccount) error
	GetMessagingAccount(tenantID string) (*models.MessagingAccount, error)
	GetMessagingAccountByPhoneLine(phoneLineID string) (*models.MessagingAccount, error)
	UpdateMessagingAccount(account *models.MessagingAccount) error
	ListActiveMessagingAccounts() ([]*models.MessagingAccount, error)

	// Session operations. UpdateSession performs a compare-and-set on the
	// Version field and returns ErrVersionConflict on mismatch.
	CreateSession(session *models.ConversationSession) error
	GetSession(tenantID, customerPhone string) (*models.ConversationSession, error)
	UpdateSession(session *models.ConversationSession) error
	DeleteSession(id string) error
	DeleteExpiredSessions(now time.Time) (int, error)

	// Catalog reads (catalog writes live in the admin surface)
	GetCategories(tenantID string) ([]*models.Category, error)
	GetProductsByCategory(tenantID, categoryID string) ([]*models.Product, error)
	GetProduct(tenantID, productID string) (*models.Product, error)

	// Order operations. CreateOrder allocates the per-tenant-per-day
	// sequence number collision-safely.
	CreateOrder(order *models.Order) error
	GetOrder(tenantID, orderID string) (*models.Order, error)
	GetOrderByNumber(tenantID, orderNumber string) (*models.Order, error)
	ListOrders(tenantID string, filter *models.OrderFilter) ([]*models.Order, int64, error)
	UpdateOrder(order *models.Order) error

	// Payment config operations. SavePaymentConfig demotes any other
	// primary config for the tenant so exactly one primary stays active.
	SavePaymentConfig(config *models.PaymentConfig) error
	GetPrimaryPaymentConfig(tenantID string) (*models.PaymentConfig, error)
	GetPaymentConfig(id string) (*models.PaymentConfig, error)
	RecordPaymentLinkIssued(configID string, at time.Time) error

	// Idempotency. MarkMessageProcessed returns false when the provider
	// message id was already recorded.
	MarkMessageProcessed(record *models.ProcessedMessage) (bool, error)
	DeleteExpiredProcessedMessages(now time.Time) (int, error)
}

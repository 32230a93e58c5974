package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
)

// DatabaseStore implements Store on PostgreSQL via GORM.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Tenant operations

func (d *DatabaseStore) CreateTenant(tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	return d.db.Create(tenant).Error
}

func (d *DatabaseStore) GetTenant(id string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.First(&tenant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "tenant", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (d *DatabaseStore) GetTenantBySlug(slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.First(&tenant, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "tenant", ID: slug}
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Messaging account operations

func (d *DatabaseStore) SaveMessagingAccount(account *models.MessagingAccount) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	return d.db.Save(account).Error
}

func (d *DatabaseStore) GetMessagingAccount(tenantID string) (*models.MessagingAccount, error) {
	var account models.MessagingAccount
	err := d.db.First(&account, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "messaging account", ID: tenantID}
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (d *DatabaseStore) GetMessagingAccountByPhoneLine(phoneLineID string) (*models.MessagingAccount, error) {
	var account models.MessagingAccount
	err := d.db.First(&account, "phone_line_id = ?", phoneLineID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "messaging account", ID: phoneLineID}
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (d *DatabaseStore) UpdateMessagingAccount(account *models.MessagingAccount) error {
	return d.db.Save(account).Error
}

func (d *DatabaseStore) ListActiveMessagingAccounts() ([]*models.MessagingAccount, error) {
	var accounts []*models.MessagingAccount
	err := d.db.Where("status = ?", models.AccountStatusActive).Find(&accounts).Error
	return accounts, err
}

// Session operations

func (d *DatabaseStore) CreateSession(session *models.ConversationSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Version = 1
	return d.db.Create(session).Error
}

func (d *DatabaseStore) GetSession(tenantID, customerPhone string) (*models.ConversationSession, error) {
	var session models.ConversationSession
	err := d.db.First(&session, "tenant_id = ? AND customer_phone = ?", tenantID, customerPhone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "session", ID: customerPhone}
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession performs an optimistic compare-and-set on the version column.
func (d *DatabaseStore) UpdateSession(session *models.ConversationSession) error {
	loaded := session.Version
	session.Version = loaded + 1

	res := d.db.Model(&models.ConversationSession{}).
		Where("id = ? AND version = ?", session.ID, loaded).
		Updates(map[string]interface{}{
			"current_step":    session.CurrentStep,
			"previous_step":   session.PreviousStep,
			"version":         session.Version,
			"cart":            session.Cart,
			"context":         session.Context,
			"customer_name":   session.CustomerName,
			"last_message_at": session.LastMessageAt,
			"expires_at":      session.ExpiresAt,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		session.Version = loaded
		return res.Error
	}
	if res.RowsAffected == 0 {
		session.Version = loaded
		return ErrVersionConflict
	}
	return nil
}

func (d *DatabaseStore) DeleteSession(id string) error {
	return d.db.Delete(&models.ConversationSession{}, "id = ?", id).Error
}

func (d *DatabaseStore) DeleteExpiredSessions(now time.Time) (int, error) {
	res := d.db.Delete(&models.ConversationSession{}, "expires_at < ?", now)
	return int(res.RowsAffected), res.Error
}

// Catalog reads

func (d *DatabaseStore) GetCategories(tenantID string) ([]*models.Category, error) {
	var categories []*models.Category
	err := d.db.
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("sort_order, name").
		Find(&categories).Error
	return categories, err
}

func (d *DatabaseStore) GetProductsByCategory(tenantID, categoryID string) ([]*models.Product, error) {
	var products []*models.Product
	err := d.db.
		Where("tenant_id = ? AND category_id = ? AND is_available = ?", tenantID, categoryID, true).
		Order("name").
		Find(&products).Error
	return products, err
}

func (d *DatabaseStore) GetProduct(tenantID, productID string) (*models.Product, error) {
	var product models.Product
	err := d.db.First(&product, "tenant_id = ? AND id = ?", tenantID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Order operations

// CreateOrder allocates the (tenant, date) sequence inside a transaction
// and retries on unique-index collisions from concurrent checkouts.
func (d *DatabaseStore) CreateOrder(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.SeqTenant = order.TenantID

	const maxAttempts = 5
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := d.db.Transaction(func(tx *gorm.DB) error {
			var maxSeq int
			row := tx.Model(&models.Order{}).
				Where("seq_tenant = ? AND seq_date = ?", order.TenantID, order.SeqDate).
				Select("COALESCE(MAX(seq_no), 0)").
				Row()
			if err := row.Scan(&maxSeq); err != nil {
				return err
			}

			order.SeqNo = maxSeq + 1
			order.OrderNumber = orderNumber(order)
			return tx.Create(order).Error
		})
		if err == nil {
			return nil
		}
		lastErr = err
		// Unique-index violation from a concurrent checkout; re-read and retry.
	}

	return fmt.Errorf("failed to allocate order number after %d attempts: %w", maxAttempts, lastErr)
}

// orderNumber mints a globally unique, human-readable order number. The
// tenant token keeps numbers from colliding across tenants on the same day.
func orderNumber(order *models.Order) string {
	token := order.TenantID
	if len(token) > 8 {
		token = token[:8]
	}
	return fmt.Sprintf("ORD-%s-%s-%04d", token, order.SeqDate, order.SeqNo)
}

func (d *DatabaseStore) GetOrder(tenantID, orderID string) (*models.Order, error) {
	var order models.Order
	err := d.db.Preload("Items").First(&order, "tenant_id = ? AND id = ?", tenantID, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "order", ID: orderID}
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DatabaseStore) GetOrderByNumber(tenantID, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := d.db.Preload("Items").First(&order, "tenant_id = ? AND order_number = ?", tenantID, orderNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "order", ID: orderNumber}
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DatabaseStore) ListOrders(tenantID string, filter *models.OrderFilter) ([]*models.Order, int64, error) {
	if filter == nil {
		filter = &models.OrderFilter{}
	}

	query := d.db.Model(&models.Order{}).Where("tenant_id = ?", tenantID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}
	if filter.Search != "" {
		needle := "%" + filter.Search + "%"
		query = query.Where(
			"order_number ILIKE ? OR customer_name ILIKE ? OR customer_phone LIKE ?",
			needle, needle, needle,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}

	var orders []*models.Order
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&orders).Error
	return orders, total, err
}

func (d *DatabaseStore) UpdateOrder(order *models.Order) error {
	return d.db.Save(order).Error
}

// Payment config operations

func (d *DatabaseStore) SavePaymentConfig(config *models.PaymentConfig) error {
	if config.ID == "" {
		config.ID = uuid.NewString()
	}

	return d.db.Transaction(func(tx *gorm.DB) error {
		if config.IsPrimary {
			if err := tx.Model(&models.PaymentConfig{}).
				Where("tenant_id = ? AND id <> ?", config.TenantID, config.ID).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(config).Error
	})
}

func (d *DatabaseStore) GetPrimaryPaymentConfig(tenantID string) (*models.PaymentConfig, error) {
	var config models.PaymentConfig
	err := d.db.First(&config, "tenant_id = ? AND is_primary = ? AND is_active = ?", tenantID, true, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "payment config", ID: tenantID}
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (d *DatabaseStore) GetPaymentConfig(id string) (*models.PaymentConfig, error) {
	var config models.PaymentConfig
	err := d.db.First(&config, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Resource: "payment config", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (d *DatabaseStore) RecordPaymentLinkIssued(configID string, at time.Time) error {
	return d.db.Model(&models.PaymentConfig{}).
		Where("id = ?", configID).
		Updates(map[string]interface{}{
			"links_created":       gorm.Expr("links_created + 1"),
			"last_transaction_at": at,
		}).Error
}

// Idempotency operations

func (d *DatabaseStore) MarkMessageProcessed(record *models.ProcessedMessage) (bool, error) {
	res := d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *DatabaseStore) DeleteExpiredProcessedMessages(now time.Time) (int, error) {
	res := d.db.Delete(&models.ProcessedMessage{}, "expires_at < ?", now)
	return int(res.RowsAffected), res.Error
}

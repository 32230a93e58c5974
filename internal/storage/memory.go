package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
)

// MemoryStore holds all data in memory for tests and local development.
type MemoryStore struct {
	tenants    map[string]*models.Tenant
	accounts   map[string]*models.MessagingAccount // keyed by tenant id
	sessions   map[string]*models.ConversationSession
	categories map[string]*models.Category
	products   map[string]*models.Product
	orders     map[string]*models.Order
	configs    map[string]*models.PaymentConfig
	processed  map[string]*models.ProcessedMessage

	// Per-(tenant, date) order sequence counters.
	orderSeq map[string]int

	tenantMu    sync.RWMutex
	accountMu   sync.RWMutex
	sessionMu   sync.RWMutex
	catalogMu   sync.RWMutex
	orderMu     sync.RWMutex
	configMu    sync.RWMutex
	processedMu sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:    make(map[string]*models.Tenant),
		accounts:   make(map[string]*models.MessagingAccount),
		sessions:   make(map[string]*models.ConversationSession),
		categories: make(map[string]*models.Category),
		products:   make(map[string]*models.Product),
		orders:     make(map[string]*models.Order),
		configs:    make(map[string]*models.PaymentConfig),
		processed:  make(map[string]*models.ProcessedMessage),
		orderSeq:   make(map[string]int),
	}
}

// Tenant operations

func (m *MemoryStore) CreateTenant(tenant *models.Tenant) error {
	m.tenantMu.Lock()
	defer m.tenantMu.Unlock()

	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = time.Now()
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *MemoryStore) GetTenant(id string) (*models.Tenant, error) {
	m.tenantMu.RLock()
	defer m.tenantMu.RUnlock()

	tenant, exists := m.tenants[id]
	if !exists {
		return nil, &apperrors.NotFoundError{Resource: "tenant", ID: id}
	}
	return cloneTenant(tenant), nil
}

func (m *MemoryStore) GetTenantBySlug(slug string) (*models.Tenant, error) {
	m.tenantMu.RLock()
	defer m.tenantMu.RUnlock()

	for _, tenant := range m.tenants {
		if tenant.Slug == slug {
			return cloneTenant(tenant), nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "tenant", ID: slug}
}

// Reads hand out copies so callers cannot reach into the stored records;
// writes go through the Create/Update/Save methods.
func cloneTenant(t *models.Tenant) *models.Tenant {
	copied := *t
	return &copied
}

// Messaging account operations

func (m *MemoryStore) SaveMessagingAccount(account *models.MessagingAccount) error {
	m.accountMu.Lock()
	defer m.accountMu.Unlock()

	if account.ID == "" {
		account.ID = uuid.NewString()
		account.CreatedAt = time.Now()
	}
	account.UpdatedAt = time.Now()
	m.accounts[account.TenantID] = account
	return nil
}

func (m *MemoryStore) GetMessagingAccount(tenantID string) (*models.MessagingAccount, error) {
	m.accountMu.RLock()
	defer m.accountMu.RUnlock()

	account, exists := m.accounts[tenantID]
	if !exists {
		return nil, &apperrors.NotFoundError{Resource: "messaging account", ID: tenantID}
	}
	return cloneAccount(account), nil
}

func (m *MemoryStore) GetMessagingAccountByPhoneLine(phoneLineID string) (*models.MessagingAccount, error) {
	m.accountMu.RLock()
	defer m.accountMu.RUnlock()

	for _, account := range m.accounts {
		if account.PhoneLineID == phoneLineID {
			return cloneAccount(account), nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "messaging account", ID: phoneLineID}
}

func (m *MemoryStore) UpdateMessagingAccount(account *models.MessagingAccount) error {
	return m.SaveMessagingAccount(account)
}

func (m *MemoryStore) ListActiveMessagingAccounts() ([]*models.MessagingAccount, error) {
	m.accountMu.RLock()
	defer m.accountMu.RUnlock()

	result := []*models.MessagingAccount{}
	for _, account := range m.accounts {
		if account.Status == models.AccountStatusActive {
			result = append(result, cloneAccount(account))
		}
	}
	return result, nil
}

func cloneAccount(a *models.MessagingAccount) *models.MessagingAccount {
	copied := *a
	return &copied
}

// Session operations

func sessionKey(tenantID, phone string) string {
	return tenantID + "|" + phone
}

func (m *MemoryStore) CreateSession(session *models.ConversationSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Version = 1
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()

	key := sessionKey(session.TenantID, session.CustomerPhone)
	if _, exists := m.sessions[key]; exists {
		return fmt.Errorf("session already exists for %s", key)
	}
	m.sessions[key] = cloneSession(session)
	return nil
}

func (m *MemoryStore) GetSession(tenantID, customerPhone string) (*models.ConversationSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	session, exists := m.sessions[sessionKey(tenantID, customerPhone)]
	if !exists {
		return nil, &apperrors.NotFoundError{Resource: "session", ID: customerPhone}
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) UpdateSession(session *models.ConversationSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	key := sessionKey(session.TenantID, session.CustomerPhone)
	current, exists := m.sessions[key]
	if !exists {
		return &apperrors.NotFoundError{Resource: "session", ID: session.CustomerPhone}
	}
	if current.Version != session.Version {
		return ErrVersionConflict
	}

	session.Version++
	session.UpdatedAt = time.Now()
	m.sessions[key] = cloneSession(session)
	return nil
}

func (m *MemoryStore) DeleteSession(id string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	for key, session := range m.sessions {
		if session.ID == id {
			delete(m.sessions, key)
			return nil
		}
	}
	return &apperrors.NotFoundError{Resource: "session", ID: id}
}

func (m *MemoryStore) DeleteExpiredSessions(now time.Time) (int, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	removed := 0
	for key, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// cloneSession guards callers from mutating the stored copy outside the
// CAS protocol.
func cloneSession(s *models.ConversationSession) *models.ConversationSession {
	copied := *s
	copied.Cart = append([]models.CartLine(nil), s.Cart...)
	return &copied
}

// Catalog reads

func (m *MemoryStore) GetCategories(tenantID string) ([]*models.Category, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	result := []*models.Category{}
	for _, category := range m.categories {
		if category.TenantID == tenantID && category.IsActive {
			result = append(result, category)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SortOrder != result[j].SortOrder {
			return result[i].SortOrder < result[j].SortOrder
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (m *MemoryStore) GetProductsByCategory(tenantID, categoryID string) ([]*models.Product, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	result := []*models.Product{}
	for _, product := range m.products {
		if product.TenantID == tenantID && product.CategoryID == categoryID && product.IsAvailable {
			result = append(result, product)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryStore) GetProduct(tenantID, productID string) (*models.Product, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	product, exists := m.products[productID]
	if !exists || product.TenantID != tenantID {
		return nil, &apperrors.NotFoundError{Resource: "product", ID: productID}
	}
	return product, nil
}

// SeedCategory and SeedProduct populate the catalog for tests and local
// development; production catalog writes happen in the admin service.
func (m *MemoryStore) SeedCategory(category *models.Category) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	m.categories[category.ID] = category
}

func (m *MemoryStore) SeedProduct(product *models.Product) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	m.products[product.ID] = product
}

// Order operations

func (m *MemoryStore) CreateOrder(order *models.Order) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	seqKey := order.TenantID + "|" + order.SeqDate
	m.orderSeq[seqKey]++
	order.SeqNo = m.orderSeq[seqKey]
	order.SeqTenant = order.TenantID
	order.OrderNumber = orderNumber(order)

	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryStore) GetOrder(tenantID, orderID string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	order, exists := m.orders[orderID]
	if !exists || order.TenantID != tenantID {
		return nil, &apperrors.NotFoundError{Resource: "order", ID: orderID}
	}
	return cloneOrder(order), nil
}

func (m *MemoryStore) GetOrderByNumber(tenantID, orderNumber string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	for _, order := range m.orders {
		if order.TenantID == tenantID && order.OrderNumber == orderNumber {
			return cloneOrder(order), nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "order", ID: orderNumber}
}

func (m *MemoryStore) ListOrders(tenantID string, filter *models.OrderFilter) ([]*models.Order, int64, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	if filter == nil {
		filter = &models.OrderFilter{}
	}

	matched := []*models.Order{}
	for _, order := range m.orders {
		if order.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.DateFrom != nil && order.CreatedAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && order.CreatedAt.After(*filter.DateTo) {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(order.OrderNumber), needle) &&
				!strings.Contains(strings.ToLower(order.CustomerName), needle) &&
				!strings.Contains(order.CustomerPhone, filter.Search) {
				continue
			}
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return []*models.Order{}, total, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	result := make([]*models.Order, 0, end-start)
	for _, order := range matched[start:end] {
		result = append(result, cloneOrder(order))
	}
	return result, total, nil
}

func cloneOrder(o *models.Order) *models.Order {
	copied := *o
	copied.Items = append([]models.OrderItem(nil), o.Items...)
	copied.Timeline = append([]models.TimelineEntry(nil), o.Timeline...)
	return &copied
}

func (m *MemoryStore) UpdateOrder(order *models.Order) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	if _, exists := m.orders[order.ID]; !exists {
		return &apperrors.NotFoundError{Resource: "order", ID: order.ID}
	}
	order.UpdatedAt = time.Now()
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

// Payment config operations

func (m *MemoryStore) SavePaymentConfig(config *models.PaymentConfig) error {
	m.configMu.Lock()
	defer m.configMu.Unlock()

	if config.ID == "" {
		config.ID = uuid.NewString()
		config.CreatedAt = time.Now()
	}
	config.UpdatedAt = time.Now()

	// Exactly one primary active config per tenant.
	if config.IsPrimary {
		for _, other := range m.configs {
			if other.TenantID == config.TenantID && other.ID != config.ID {
				other.IsPrimary = false
			}
		}
	}

	m.configs[config.ID] = config
	return nil
}

func (m *MemoryStore) GetPrimaryPaymentConfig(tenantID string) (*models.PaymentConfig, error) {
	m.configMu.RLock()
	defer m.configMu.RUnlock()

	for _, config := range m.configs {
		if config.TenantID == tenantID && config.IsPrimary && config.IsActive {
			return cloneConfig(config), nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "payment config", ID: tenantID}
}

func (m *MemoryStore) GetPaymentConfig(id string) (*models.PaymentConfig, error) {
	m.configMu.RLock()
	defer m.configMu.RUnlock()

	config, exists := m.configs[id]
	if !exists {
		return nil, &apperrors.NotFoundError{Resource: "payment config", ID: id}
	}
	return cloneConfig(config), nil
}

func cloneConfig(c *models.PaymentConfig) *models.PaymentConfig {
	copied := *c
	return &copied
}

func (m *MemoryStore) RecordPaymentLinkIssued(configID string, at time.Time) error {
	m.configMu.Lock()
	defer m.configMu.Unlock()

	config, exists := m.configs[configID]
	if !exists {
		return &apperrors.NotFoundError{Resource: "payment config", ID: configID}
	}
	config.LinksCreated++
	config.LastTransactionAt = &at
	return nil
}

// Idempotency operations

func (m *MemoryStore) MarkMessageProcessed(record *models.ProcessedMessage) (bool, error) {
	m.processedMu.Lock()
	defer m.processedMu.Unlock()

	if _, exists := m.processed[record.ProviderMessageID]; exists {
		return false, nil
	}
	m.processed[record.ProviderMessageID] = record
	return true, nil
}

func (m *MemoryStore) DeleteExpiredProcessedMessages(now time.Time) (int, error) {
	m.processedMu.Lock()
	defer m.processedMu.Unlock()

	removed := 0
	for id, record := range m.processed {
		if now.After(record.ExpiresAt) {
			delete(m.processed, id)
			removed++
		}
	}
	return removed, nil
}

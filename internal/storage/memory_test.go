package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
)

func TestSessionOptimisticUpdate(t *testing.T) {
	store := NewMemoryStore()

	session := &models.ConversationSession{
		TenantID:      "tenant-1",
		CustomerPhone: "919876543210",
		CurrentStep:   models.StepWelcome,
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	require.NoError(t, store.CreateSession(session))
	assert.Equal(t, 1, session.Version)

	// Two copies loaded concurrently
	a, err := store.GetSession("tenant-1", "919876543210")
	require.NoError(t, err)
	b, err := store.GetSession("tenant-1", "919876543210")
	require.NoError(t, err)

	a.CurrentStep = models.StepCategorySelect
	require.NoError(t, store.UpdateSession(a))
	assert.Equal(t, 2, a.Version)

	// The stale copy loses
	b.CurrentStep = models.StepCart
	assert.ErrorIs(t, store.UpdateSession(b), ErrVersionConflict)

	// The winning write stuck
	current, err := store.GetSession("tenant-1", "919876543210")
	require.NoError(t, err)
	assert.Equal(t, models.StepCategorySelect, current.CurrentStep)
}

func TestGetSessionReturnsCopy(t *testing.T) {
	store := NewMemoryStore()

	session := &models.ConversationSession{
		TenantID:      "tenant-1",
		CustomerPhone: "919876543210",
		Cart:          []models.CartLine{{Name: "Cola", Subtotal: 40}},
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	require.NoError(t, store.CreateSession(session))

	loaded, err := store.GetSession("tenant-1", "919876543210")
	require.NoError(t, err)
	loaded.Cart[0].Name = "mutated"

	again, err := store.GetSession("tenant-1", "919876543210")
	require.NoError(t, err)
	assert.Equal(t, "Cola", again.Cart[0].Name)
}

func TestCreateSessionRejectsDuplicate(t *testing.T) {
	store := NewMemoryStore()

	first := &models.ConversationSession{TenantID: "tenant-1", CustomerPhone: "919876543210"}
	require.NoError(t, store.CreateSession(first))

	second := &models.ConversationSession{TenantID: "tenant-1", CustomerPhone: "919876543210"}
	assert.Error(t, store.CreateSession(second))
}

func TestDeleteExpiredSessions(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.CreateSession(&models.ConversationSession{
		TenantID: "tenant-1", CustomerPhone: "111", ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.CreateSession(&models.ConversationSession{
		TenantID: "tenant-1", CustomerPhone: "222", ExpiresAt: now.Add(time.Hour),
	}))

	removed, err := store.DeleteExpiredSessions(now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetSession("tenant-1", "111")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = store.GetSession("tenant-1", "222")
	assert.NoError(t, err)
}

func TestMarkMessageProcessedDedup(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	record := &models.ProcessedMessage{
		ProviderMessageID: "wamid.ABC",
		TenantID:          "tenant-1",
		ReceivedAt:        now,
		ExpiresAt:         now.Add(48 * time.Hour),
	}

	fresh, err := store.MarkMessageProcessed(record)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.MarkMessageProcessed(record)
	require.NoError(t, err)
	assert.False(t, fresh)

	removed, err := store.DeleteExpiredProcessedMessages(now.Add(72 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// After expiry the id can be recorded again
	fresh, err = store.MarkMessageProcessed(record)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestSavePaymentConfigKeepsSinglePrimary(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.SavePaymentConfig(&models.PaymentConfig{
		ID: "cfg-1", TenantID: "tenant-1", ProviderType: models.PaymentProviderRazorpay,
		IsPrimary: true, IsActive: true,
	}))
	require.NoError(t, store.SavePaymentConfig(&models.PaymentConfig{
		ID: "cfg-2", TenantID: "tenant-1", ProviderType: models.PaymentProviderPayPal,
		IsPrimary: true, IsActive: true,
	}))

	primary, err := store.GetPrimaryPaymentConfig("tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "cfg-2", primary.ID)

	demoted, err := store.GetPaymentConfig("cfg-1")
	require.NoError(t, err)
	assert.False(t, demoted.IsPrimary)
}

func TestOrderSequencePerTenantDay(t *testing.T) {
	store := NewMemoryStore()

	for i := 1; i <= 3; i++ {
		order := &models.Order{TenantID: "tenant-1", SeqDate: "20260831", Currency: "INR"}
		require.NoError(t, store.CreateOrder(order))
		assert.Equal(t, i, order.SeqNo)
		assert.NotEmpty(t, order.OrderNumber)
	}

	// New day restarts the sequence
	nextDay := &models.Order{TenantID: "tenant-1", SeqDate: "20260901", Currency: "INR"}
	require.NoError(t, store.CreateOrder(nextDay))
	assert.Equal(t, 1, nextDay.SeqNo)

	// Other tenants are independent
	other := &models.Order{TenantID: "tenant-2", SeqDate: "20260831", Currency: "INR"}
	require.NoError(t, store.CreateOrder(other))
	assert.Equal(t, 1, other.SeqNo)
}

func TestListOrdersFilters(t *testing.T) {
	store := NewMemoryStore()

	mk := func(tenantID, status, name string) *models.Order {
		order := &models.Order{
			TenantID: tenantID, SeqDate: "20260831", Status: status,
			CustomerName: name, CustomerPhone: "919876543210", Currency: "INR",
		}
		require.NoError(t, store.CreateOrder(order))
		return order
	}

	mk("tenant-1", models.OrderStatusPending, "Asha")
	mk("tenant-1", models.OrderStatusConfirmed, "Ravi")
	mk("tenant-2", models.OrderStatusPending, "Meera")

	orders, total, err := store.ListOrders("tenant-1", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, orders, 2)

	orders, total, err = store.ListOrders("tenant-1", &models.OrderFilter{Status: models.OrderStatusConfirmed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, "Ravi", orders[0].CustomerName)

	orders, total, err = store.ListOrders("tenant-1", &models.OrderFilter{Search: "asha"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	// Pagination
	orders, total, err = store.ListOrders("tenant-1", &models.OrderFilter{Page: 2, PageSize: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, orders, 1)
}

func TestReadsReturnCopies(t *testing.T) {
	store := NewMemoryStore()

	tenant := &models.Tenant{ID: "tenant-1", Name: "Luigi's", Slug: "luigis"}
	require.NoError(t, store.CreateTenant(tenant))

	require.NoError(t, store.SaveMessagingAccount(&models.MessagingAccount{
		TenantID:    "tenant-1",
		PhoneLineID: "phone-line-1",
		Status:      models.AccountStatusActive,
	}))

	order := &models.Order{
		TenantID: "tenant-1", SeqDate: "20260831", Currency: "INR",
		Items:    []models.OrderItem{{Name: "Cola", Quantity: 1, UnitPrice: 40, Subtotal: 40}},
		Timeline: []models.TimelineEntry{{Status: models.OrderStatusPending, Actor: "customer"}},
	}
	require.NoError(t, store.CreateOrder(order))

	t.Run("tenant", func(t *testing.T) {
		loaded, err := store.GetTenant("tenant-1")
		require.NoError(t, err)
		loaded.Name = "mutated"

		again, err := store.GetTenant("tenant-1")
		require.NoError(t, err)
		assert.Equal(t, "Luigi's", again.Name)

		bySlug, err := store.GetTenantBySlug("luigis")
		require.NoError(t, err)
		bySlug.Slug = "mutated"
		_, err = store.GetTenantBySlug("luigis")
		assert.NoError(t, err)
	})

	t.Run("messaging account", func(t *testing.T) {
		loaded, err := store.GetMessagingAccount("tenant-1")
		require.NoError(t, err)
		loaded.Status = models.AccountStatusError

		again, err := store.GetMessagingAccount("tenant-1")
		require.NoError(t, err)
		assert.Equal(t, models.AccountStatusActive, again.Status)

		byLine, err := store.GetMessagingAccountByPhoneLine("phone-line-1")
		require.NoError(t, err)
		byLine.PhoneLineID = "mutated"
		_, err = store.GetMessagingAccountByPhoneLine("phone-line-1")
		assert.NoError(t, err)

		active, err := store.ListActiveMessagingAccounts()
		require.NoError(t, err)
		require.Len(t, active, 1)
		active[0].Status = models.AccountStatusSuspended
		again, err = store.GetMessagingAccount("tenant-1")
		require.NoError(t, err)
		assert.Equal(t, models.AccountStatusActive, again.Status)
	})

	t.Run("order", func(t *testing.T) {
		loaded, err := store.GetOrder("tenant-1", order.ID)
		require.NoError(t, err)
		loaded.Status = models.OrderStatusCancelled
		loaded.Items[0].Name = "mutated"
		loaded.Timeline[0].Actor = "mutated"

		again, err := store.GetOrder("tenant-1", order.ID)
		require.NoError(t, err)
		assert.Empty(t, again.Status)
		assert.Equal(t, "Cola", again.Items[0].Name)
		assert.Equal(t, "customer", again.Timeline[0].Actor)

		listed, _, err := store.ListOrders("tenant-1", nil)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		listed[0].Items[0].Name = "mutated"
		again, err = store.GetOrderByNumber("tenant-1", order.OrderNumber)
		require.NoError(t, err)
		assert.Equal(t, "Cola", again.Items[0].Name)
	})
}

func TestTenantLookup(t *testing.T) {
	store := NewMemoryStore()

	tenant := &models.Tenant{Name: "Luigi's", Slug: "luigis"}
	require.NoError(t, store.CreateTenant(tenant))
	assert.NotEmpty(t, tenant.ID)

	byID, err := store.GetTenant(tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Luigi's", byID.Name)

	bySlug, err := store.GetTenantBySlug("luigis")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, bySlug.ID)

	_, err = store.GetTenant("missing")
	assert.True(t, apperrors.IsNotFound(err))
}

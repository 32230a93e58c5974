package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

func cartSession(tenantID string, lines ...models.CartLine) *models.ConversationSession {
	return &models.ConversationSession{
		TenantID:      tenantID,
		CustomerPhone: "919876543210",
		CustomerName:  "Asha",
		Cart:          lines,
	}
}

func TestMaterializeSnapshotsCart(t *testing.T) {
	store := storage.NewMemoryStore()
	orders := NewOrderService(store)

	session := cartSession("tenant-1",
		models.CartLine{ProductID: "p1", Name: "Margherita (Large)", Quantity: 1, UnitPrice: 200, Currency: "INR", VariantLabels: []string{"Large"}, Subtotal: 300},
		models.CartLine{ProductID: "p2", Name: "Cola", Quantity: 1, UnitPrice: 40, Currency: "INR", Subtotal: 40},
	)

	order, err := orders.Materialize(session)
	require.NoError(t, err)

	assert.Equal(t, "tenant-1", order.TenantID)
	assert.Equal(t, 340.0, order.Subtotal)
	assert.Equal(t, 340.0, order.Total)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.OrderSourceChat, order.Source)
	require.Len(t, order.Items, 2)
	assert.Equal(t, []string{"Large"}, order.Items[0].VariantLabels)

	require.Len(t, order.Timeline, 1)
	assert.Equal(t, "system", order.Timeline[0].Actor)
}

func TestMaterializeRejectsEmptyCart(t *testing.T) {
	store := storage.NewMemoryStore()
	orders := NewOrderService(store)

	_, err := orders.Materialize(cartSession("tenant-1"))
	assert.True(t, apperrors.IsValidation(err))

	_, total, err := store.ListOrders("tenant-1", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestOrderNumbersSequencePerTenantDay(t *testing.T) {
	store := storage.NewMemoryStore()
	orders := NewOrderService(store)

	var numbers []string
	for i := 0; i < 3; i++ {
		order, err := orders.Materialize(cartSession("tenant-1",
			models.CartLine{ProductID: "p1", Name: "Cola", Quantity: 1, UnitPrice: 40, Currency: "INR", Subtotal: 40}))
		require.NoError(t, err)
		numbers = append(numbers, order.OrderNumber)
		assert.Equal(t, i+1, order.SeqNo)
	}

	// All distinct, all suffixed with the running sequence
	seen := map[string]bool{}
	for i, number := range numbers {
		assert.False(t, seen[number], "duplicate order number %s", number)
		seen[number] = true
		assert.Contains(t, number, fmt.Sprintf("%04d", i+1))
	}

	// A different tenant starts its own sequence
	other, err := orders.Materialize(cartSession("tenant-2",
		models.CartLine{ProductID: "p1", Name: "Cola", Quantity: 1, UnitPrice: 40, Currency: "INR", Subtotal: 40}))
	require.NoError(t, err)
	assert.Equal(t, 1, other.SeqNo)
	assert.False(t, seen[other.OrderNumber])
}

func TestUpdateStatusAppendsTimeline(t *testing.T) {
	store := storage.NewMemoryStore()
	orders := NewOrderService(store)

	order, err := orders.Materialize(cartSession("tenant-1",
		models.CartLine{ProductID: "p1", Name: "Cola", Quantity: 1, UnitPrice: 40, Currency: "INR", Subtotal: 40}))
	require.NoError(t, err)

	updated, err := orders.UpdateStatus("tenant-1", order.ID, models.OrderStatusPreparing, "operator", "in the kitchen")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, updated.Status)
	require.Len(t, updated.Timeline, 2)
	assert.Equal(t, "operator", updated.Timeline[1].Actor)
	assert.Equal(t, "in the kitchen", updated.Timeline[1].Note)

	// Items stay immutable through transitions
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "Cola", updated.Items[0].Name)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	store := storage.NewMemoryStore()
	orders := NewOrderService(store)

	order, err := orders.Materialize(cartSession("tenant-1",
		models.CartLine{ProductID: "p1", Name: "Cola", Quantity: 1, UnitPrice: 40, Currency: "INR", Subtotal: 40}))
	require.NoError(t, err)

	_, err = orders.UpdateStatus("tenant-1", order.ID, "teleported", "operator", "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateStatusScopedToTenant(t *testing.T) {
	store := storage.NewMemoryStore()
	orders := NewOrderService(store)

	order, err := orders.Materialize(cartSession("tenant-1",
		models.CartLine{ProductID: "p1", Name: "Cola", Quantity: 1, UnitPrice: 40, Currency: "INR", Subtotal: 40}))
	require.NoError(t, err)

	_, err = orders.UpdateStatus("tenant-2", order.ID, models.OrderStatusConfirmed, "operator", "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMarkPaid(t *testing.T) {
	store := storage.NewMemoryStore()
	orders := NewOrderService(store)

	order, err := orders.Materialize(cartSession("tenant-1",
		models.CartLine{ProductID: "p1", Name: "Cola", Quantity: 1, UnitPrice: 40, Currency: "INR", Subtotal: 40}))
	require.NoError(t, err)

	paid, err := orders.MarkPaid("tenant-1", order.ID, "pay_ABC123")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, models.OrderStatusConfirmed, paid.Status)
	assert.Equal(t, "pay_ABC123", paid.PaymentRef)
	require.Len(t, paid.Timeline, 2)
	assert.Equal(t, "payment-webhook", paid.Timeline[1].Actor)
}

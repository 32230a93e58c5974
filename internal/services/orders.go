package services

import (
	"fmt"
	"log"
	"time"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// OrderService materializes completed carts into durable orders and owns
// post-creation status transitions.
type OrderService struct {
	store storage.Store
}

// NewOrderService creates a new order service.
func NewOrderService(store storage.Store) *OrderService {
	return &OrderService{store: store}
}

// Materialize converts a session's cart into an immutable-snapshot order
// with a tenant-scoped sequential number. An empty cart is a validation
// failure and creates nothing.
func (o *OrderService) Materialize(session *models.ConversationSession) (*models.Order, error) {
	if len(session.Cart) == 0 {
		return nil, &apperrors.ValidationError{Field: "cart", Reason: "cart is empty"}
	}

	currency := session.Cart[0].Currency
	items := make([]models.OrderItem, 0, len(session.Cart))
	for _, line := range session.Cart {
		items = append(items, models.OrderItem{
			ProductID:     line.ProductID,
			Name:          line.Name,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			Currency:      line.Currency,
			VariantLabels: append([]string(nil), line.VariantLabels...),
			Subtotal:      line.Subtotal,
		})
	}

	subtotal := CartTotal(session.Cart)
	now := time.Now()

	order := &models.Order{
		TenantID:      session.TenantID,
		CustomerPhone: session.CustomerPhone,
		CustomerName:  session.CustomerName,
		SeqDate:       now.Format("20060102"),
		Items:         items,
		Subtotal:      subtotal,
		Total:         subtotal,
		Currency:      currency,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		Source:        models.OrderSourceChat,
		Timeline: []models.TimelineEntry{{
			Status: models.OrderStatusPending,
			At:     now,
			Actor:  "system",
			Note:   "order placed via chat",
		}},
	}

	if err := o.store.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	log.Printf("🧾 Order %s created for tenant %s (%.2f %s)",
		order.OrderNumber, order.TenantID, order.Total, order.Currency)
	return order, nil
}

// UpdateStatus transitions an order and appends to its timeline. Items stay
// immutable; only status fields and the timeline change.
func (o *OrderService) UpdateStatus(tenantID, orderID, status, actor, note string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, &apperrors.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	order, err := o.store.GetOrder(tenantID, orderID)
	if err != nil {
		return nil, err
	}

	order.Status = status
	order.Timeline = append(order.Timeline, models.TimelineEntry{
		Status: status,
		At:     time.Now(),
		Actor:  actor,
		Note:   note,
	})

	if err := o.store.UpdateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkPaid records a successful payment against an order.
func (o *OrderService) MarkPaid(tenantID, orderID, paymentRef string) (*models.Order, error) {
	order, err := o.store.GetOrder(tenantID, orderID)
	if err != nil {
		return nil, err
	}

	order.PaymentStatus = models.PaymentStatusPaid
	order.PaymentRef = paymentRef
	order.Status = models.OrderStatusConfirmed
	order.Timeline = append(order.Timeline, models.TimelineEntry{
		Status: models.OrderStatusConfirmed,
		At:     time.Now(),
		Actor:  "payment-webhook",
		Note:   "payment captured: " + paymentRef,
	})

	if err := o.store.UpdateOrder(order); err != nil {
		return nil, err
	}

	log.Printf("💰 Order %s marked paid (%s)", order.OrderNumber, paymentRef)
	return order, nil
}

// List returns the tenant's orders with filters and pagination.
func (o *OrderService) List(tenantID string, filter *models.OrderFilter) ([]*models.Order, int64, error) {
	return o.store.ListOrders(tenantID, filter)
}

// Get returns one order scoped to the tenant.
func (o *OrderService) Get(tenantID, orderID string) (*models.Order, error) {
	return o.store.GetOrder(tenantID, orderID)
}

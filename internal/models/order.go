package models

import "time"

// Order status constants
const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusPreparing      = "preparing"
	OrderStatusReady          = "ready"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"

	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusCancelled = "cancelled"

	OrderSourceChat   = "chat"
	OrderSourceManual = "manual"
	OrderSourceWeb    = "web"
	OrderSourcePhone  = "phone"
)

// validOrderStatuses for update validation.
var validOrderStatuses = map[string]bool{
	OrderStatusPending:        true,
	OrderStatusConfirmed:      true,
	OrderStatusPreparing:      true,
	OrderStatusReady:          true,
	OrderStatusOutForDelivery: true,
	OrderStatusDelivered:      true,
	OrderStatusCancelled:      true,
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool { return validOrderStatuses[s] }

// TimelineEntry is one append-only status event on an order.
type TimelineEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Note   string    `json:"note,omitempty"`
}

// Order is the durable record materialized from a completed cart.
// Items are an immutable snapshot; only status, payment fields and the
// timeline mutate after creation.
type Order struct {
	ID            string `json:"id" gorm:"primaryKey"`
	TenantID      string `json:"tenant_id" gorm:"index"`
	CustomerPhone string `json:"customer_phone" gorm:"index"`
	CustomerName  string `json:"customer_name"`

	// OrderNumber is unique and human-readable; SeqDate/SeqNo back the
	// per-tenant-per-day monotonic sequence it is minted from.
	OrderNumber string `json:"order_number" gorm:"uniqueIndex"`
	SeqDate     string `json:"-" gorm:"uniqueIndex:ux_order_seq,priority:2"`
	SeqNo       int    `json:"-" gorm:"uniqueIndex:ux_order_seq,priority:3"`
	// TenantID participates in ux_order_seq via SeqTenant to keep the
	// sequence scoped per tenant.
	SeqTenant string `json:"-" gorm:"uniqueIndex:ux_order_seq,priority:1"`

	Items []OrderItem `json:"items" gorm:"foreignKey:OrderID"`

	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Fee      float64 `json:"fee"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`

	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentLink   string `json:"payment_link"`
	PaymentRef    string `json:"payment_ref"`
	Source        string `json:"source"`

	Timeline []TimelineEntry `json:"timeline" gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderItem is an immutable line snapshot taken from the cart at checkout.
type OrderItem struct {
	ID            uint     `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderID       string   `json:"-" gorm:"index"`
	ProductID     string   `json:"product_id"`
	Name          string   `json:"name"`
	Quantity      int      `json:"quantity"`
	UnitPrice     float64  `json:"unit_price"`
	Currency      string   `json:"currency"`
	VariantLabels []string `json:"variant_labels,omitempty" gorm:"type:jsonb;serializer:json"`
	Subtotal      float64  `json:"subtotal"`
}

// OrderFilter narrows tenant-scoped order listings.
type OrderFilter struct {
	Status   string
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string // matched against order number and customer fields
	Page     int
	PageSize int
}

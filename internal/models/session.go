package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Conversation step constants. Only the transitions documented on the
// step handlers are reachable; anything else resets to welcome.
const (
	StepWelcome        = "welcome"
	StepCategorySelect = "category_selection"
	StepProductSelect  = "product_selection"
	StepVariantSelect  = "variant_selection"
	StepCart           = "cart"
	StepCheckout       = "checkout"
	StepCompleted      = "completed"
)

// CartLine is one selected product in a session cart. Quantity is always 1;
// repeated adds create additional lines rather than incrementing.
type CartLine struct {
	ProductID     string   `json:"product_id"`
	Name          string   `json:"name"`
	Quantity      int      `json:"quantity"`
	UnitPrice     float64  `json:"unit_price"`
	Currency      string   `json:"currency"`
	VariantLabels []string `json:"variant_labels,omitempty"`
	Subtotal      float64  `json:"subtotal"`
}

// ConversationSession is the state-machine instance for one
// (tenant, customer phone) conversation.
type ConversationSession struct {
	ID            string `json:"id" gorm:"primaryKey"`
	TenantID      string `json:"tenant_id" gorm:"uniqueIndex:ux_session_tenant_phone,priority:1"`
	CustomerPhone string `json:"customer_phone" gorm:"uniqueIndex:ux_session_tenant_phone,priority:2"`
	CustomerName  string `json:"customer_name"`

	CurrentStep  string `json:"current_step"`
	PreviousStep string `json:"previous_step"`

	// Version supports optimistic concurrency: updates carry the version
	// they loaded and fail on mismatch.
	Version int `json:"version"`

	Cart    []CartLine  `json:"cart" gorm:"type:jsonb;serializer:json"`
	Context StepContext `json:"context" gorm:"type:jsonb;serializer:json"`

	LastMessageAt time.Time `json:"last_message_at"`
	ExpiresAt     time.Time `json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the session TTL has lapsed.
func (s *ConversationSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CategoryRef is a rendered catalog category entry the customer picks by
// 1-based index.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductRef is a rendered product entry.
type ProductRef struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	BasePrice float64 `json:"base_price"`
}

// StepData is the per-step context variant. Each step handler asserts the
// variant it expects; a missing or mismatched variant resets the
// conversation to welcome.
type StepData interface {
	stepKind() string
}

// CategoryBrowse holds the category list rendered to the customer.
type CategoryBrowse struct {
	Categories []CategoryRef `json:"categories"`
}

func (CategoryBrowse) stepKind() string { return "category_browse" }

// ProductBrowse holds the selected category and its rendered product list.
type ProductBrowse struct {
	Category CategoryRef  `json:"category"`
	Products []ProductRef `json:"products"`
}

func (ProductBrowse) stepKind() string { return "product_browse" }

// VariantSelect tracks progress through a product's variant groups.
type VariantSelect struct {
	Category    CategoryRef `json:"category"`
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	GroupCursor int         `json:"group_cursor"`
	Labels      []string    `json:"labels,omitempty"`
}

func (VariantSelect) stepKind() string { return "variant_select" }

// StepContext is a tagged union over the StepData variants. It serializes
// as {"kind": ..., "data": ...} so sessions survive storage round-trips.
type StepContext struct {
	Data StepData
}

type stepContextEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (c StepContext) MarshalJSON() ([]byte, error) {
	if c.Data == nil {
		return json.Marshal(stepContextEnvelope{Kind: "none"})
	}

	raw, err := json.Marshal(c.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stepContextEnvelope{Kind: c.Data.stepKind(), Data: raw})
}

func (c *StepContext) UnmarshalJSON(b []byte) error {
	var env stepContextEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	switch env.Kind {
	case "", "none":
		c.Data = nil
	case "category_browse":
		var v CategoryBrowse
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return err
		}
		c.Data = v
	case "product_browse":
		var v ProductBrowse
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return err
		}
		c.Data = v
	case "variant_select":
		var v VariantSelect
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return err
		}
		c.Data = v
	default:
		return fmt.Errorf("unknown step context kind %q", env.Kind)
	}

	return nil
}

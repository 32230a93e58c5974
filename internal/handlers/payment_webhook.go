package handlers

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/services"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// PaymentWebhookHandler receives payment provider callbacks and marks
// orders paid once the adapter has verified the delivery's signature.
type PaymentWebhookHandler struct {
	store     storage.Store
	payments  *services.PaymentService
	orders    *services.OrderService
	messenger services.Messenger
}

// NewPaymentWebhookHandler creates the payment webhook handler.
func NewPaymentWebhookHandler(store storage.Store, payments *services.PaymentService, orders *services.OrderService, messenger services.Messenger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		store:     store,
		payments:  payments,
		orders:    orders,
		messenger: messenger,
	}
}

// capturedPayment is the provider-neutral result of parsing a capture
// event: the provider's payment id plus the order id planted at link
// creation time.
type capturedPayment struct {
	PaymentID string
	OrderID   string
}

// razorpayEvent mirrors Razorpay's webhook envelope; the order id rides
// in the payment entity's notes.
type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID    string            `json:"id"`
				Notes map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// paypalEvent mirrors PayPal's webhook envelope; the capture resource
// echoes the custom_id set on the purchase unit.
type paypalEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
	} `json:"resource"`
}

// HandleEvent processes POST /webhook/payments/:tenantID. The signature is
// verified with the tenant's provider adapter before anything is trusted.
func (h *PaymentWebhookHandler) HandleEvent(c *fiber.Ctx) error {
	tenantID := c.Params("tenantID")
	body := c.Body()

	signature := c.Get("X-Razorpay-Signature")
	if signature == "" {
		// PayPal transmissions arrive as discrete headers; join them the
		// way the adapter expects.
		signature = fmt.Sprintf("%s|%s|%s|%s|%s",
			c.Get("Paypal-Transmission-Id"),
			c.Get("Paypal-Transmission-Time"),
			c.Get("Paypal-Cert-Url"),
			c.Get("Paypal-Auth-Algo"),
			c.Get("Paypal-Transmission-Sig"),
		)
	}

	config, err := h.payments.VerifyWebhook(tenantID, body, signature)
	if err != nil {
		log.Printf("❌ Payment webhook rejected for tenant %s: %v", tenantID, err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
	}

	captured, err := parseCapture(config.ProviderType, body)
	if err != nil {
		log.Printf("⚠️  Unparseable payment webhook for tenant %s: %v", tenantID, err)
		return c.SendStatus(fiber.StatusOK)
	}
	if captured == nil {
		return c.SendStatus(fiber.StatusOK)
	}

	h.handleCaptured(tenantID, captured)
	return c.SendStatus(fiber.StatusOK)
}

// parseCapture decodes the provider's event envelope and returns the
// captured payment, or nil for event types that need no action.
func parseCapture(providerType string, body []byte) (*capturedPayment, error) {
	switch providerType {
	case models.PaymentProviderPayPal:
		var event paypalEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, err
		}
		if event.EventType != "PAYMENT.CAPTURE.COMPLETED" {
			log.Printf("📭 Unhandled paypal event %q", event.EventType)
			return nil, nil
		}
		return &capturedPayment{PaymentID: event.Resource.ID, OrderID: event.Resource.CustomID}, nil
	default:
		var event razorpayEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, err
		}
		switch event.Event {
		case "payment_link.paid", "payment.captured":
			return &capturedPayment{
				PaymentID: event.Payload.Payment.Entity.ID,
				OrderID:   event.Payload.Payment.Entity.Notes["order_id"],
			}, nil
		default:
			log.Printf("📭 Unhandled razorpay event %q", event.Event)
			return nil, nil
		}
	}
}

func (h *PaymentWebhookHandler) handleCaptured(tenantID string, captured *capturedPayment) {
	paymentID := captured.PaymentID
	orderID := captured.OrderID
	if orderID == "" {
		log.Printf("⚠️  Payment %s carries no order reference (tenant %s)", paymentID, tenantID)
		return
	}

	order, err := h.orders.MarkPaid(tenantID, orderID, paymentID)
	if err != nil {
		log.Printf("❌ Failed to mark order %s paid (tenant %s): %v", orderID, tenantID, err)
		return
	}

	confirmation := fmt.Sprintf("🎉 Payment received! Your order *%s* is confirmed and being prepared.", order.OrderNumber)
	if _, err := h.messenger.SendText(tenantID, order.CustomerPhone, confirmation); err != nil {
		log.Printf("⚠️  Could not send payment confirmation for order %s: %v", order.OrderNumber, err)
	}
}

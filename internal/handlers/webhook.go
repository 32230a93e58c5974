package handlers

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/services"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// WebhookHandler ingests provider webhook deliveries: GET verification and
// POST event batches.
type WebhookHandler struct {
	store       storage.Store
	engine      *services.ConversationEngine
	verifyToken string

	// How long a processed message id is remembered for dedup.
	dedupTTL time.Duration
}

// NewWebhookHandler creates the inbound gateway handler.
func NewWebhookHandler(store storage.Store, engine *services.ConversationEngine, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		store:       store,
		engine:      engine,
		verifyToken: verifyToken,
		dedupTTL:    48 * time.Hour,
	}
}

// HandleVerify answers the provider's GET verification: the challenge is
// echoed iff the mode and token match configuration. No state changes.
func (h *WebhookHandler) HandleVerify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		log.Println("✅ Webhook verification succeeded")
		return c.SendString(challenge)
	}

	log.Printf("❌ Webhook verification rejected (mode=%s)", mode)
	return c.SendStatus(fiber.StatusForbidden)
}

// Webhook envelope shapes for the provider's event delivery.

type webhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []webhookContact `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
	Statuses []webhookStatus  `json:"statuses"`
}

type webhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

type webhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// HandleEvents processes a POST delivery. The provider redelivers on
// non-success, so this handler always acknowledges; internal failures are
// logged, never surfaced.
func (h *WebhookHandler) HandleEvents(c *fiber.Ctx) error {
	var envelope webhookEnvelope
	if err := c.BodyParser(&envelope); err != nil {
		log.Printf("⚠️  Unparseable webhook payload: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			h.processValue(&change.Value)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *WebhookHandler) processValue(value *webhookValue) {
	account, err := h.store.GetMessagingAccountByPhoneLine(value.Metadata.PhoneNumberID)
	if err != nil {
		log.Printf("⚠️  Dropping event for unknown phone line %s", value.Metadata.PhoneNumberID)
		return
	}

	names := map[string]string{}
	for _, contact := range value.Contacts {
		names[contact.WaID] = contact.Profile.Name
	}

	for i := range value.Messages {
		h.processMessage(account, &value.Messages[i], names[value.Messages[i].From])
	}

	for _, status := range value.Statuses {
		log.Printf("📬 Delivery status %s for message %s (tenant %s)",
			status.Status, status.ID, account.TenantID)
	}
}

func (h *WebhookHandler) processMessage(account *models.MessagingAccount, msg *webhookMessage, senderName string) {
	now := time.Now()

	fresh, err := h.store.MarkMessageProcessed(&models.ProcessedMessage{
		ProviderMessageID: msg.ID,
		TenantID:          account.TenantID,
		ReceivedAt:        now,
		ExpiresAt:         now.Add(h.dedupTTL),
	})
	if err != nil {
		log.Printf("❌ Dedup check failed for message %s: %v", msg.ID, err)
		return
	}
	if !fresh {
		// Redelivery of an already-processed event: genuine duplicate, drop.
		return
	}

	account.LastMessageReceivedAt = &now
	if err := h.store.UpdateMessagingAccount(account); err != nil {
		log.Printf("⚠️  Failed to record last received time for tenant %s: %v", account.TenantID, err)
	}

	if msg.Type != "text" {
		log.Printf("📎 Ignoring %s message %s from %s", msg.Type, msg.ID, msg.From)
		return
	}

	inbound := &services.InboundMessage{
		ProviderMessageID: msg.ID,
		From:              msg.From,
		Name:              senderName,
		Type:              msg.Type,
		Body:              msg.Text.Body,
		Timestamp:         parseEpoch(msg.Timestamp, now),
	}

	if err := h.engine.HandleInbound(account.TenantID, inbound); err != nil {
		log.Printf("❌ Failed to process message %s (tenant %s, from %s): %v",
			msg.ID, account.TenantID, msg.From, err)
	}
}

func parseEpoch(raw string, fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0)
}

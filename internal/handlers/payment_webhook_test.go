package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/crypto"
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/services"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// stubProvider stands in for a payment adapter so the handler tests can
// exercise verification outcomes without a network.
type stubProvider struct {
	verifyErr error
}

func (s *stubProvider) CreateLink(creds *models.ProviderCredentials, req *services.LinkRequest) (string, error) {
	return "https://pay.test/link", nil
}

func (s *stubProvider) VerifyWebhook(creds *models.ProviderCredentials, body []byte, signature string) error {
	return s.verifyErr
}

type paymentWebhookFixture struct {
	app       *fiber.App
	store     *storage.MemoryStore
	messenger *recordingMessenger
	provider  *stubProvider
	order     *models.Order
}

func newPaymentWebhookFixture(t *testing.T, providerType string) *paymentWebhookFixture {
	t.Helper()

	store := storage.NewMemoryStore()
	require.NoError(t, store.CreateTenant(&models.Tenant{ID: "tenant-1", Name: "Luigi's Pizzeria", Slug: "luigis", IsActive: true}))

	cipher, err := crypto.NewCipher([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210"))
	require.NoError(t, err)

	payments := services.NewPaymentService(store, cipher)
	provider := &stubProvider{}
	payments.Register(providerType, provider)

	creds, err := json.Marshal(models.ProviderCredentials{KeyID: "key", KeySecret: "secret", WebhookSecret: "whsec"})
	require.NoError(t, err)
	encrypted, err := cipher.Encrypt(string(creds))
	require.NoError(t, err)
	require.NoError(t, store.SavePaymentConfig(&models.PaymentConfig{
		ID:                   "cfg-1",
		TenantID:             "tenant-1",
		ProviderType:         providerType,
		EncryptedCredentials: encrypted,
		IsPrimary:            true,
		IsActive:             true,
	}))

	order := &models.Order{
		TenantID:      "tenant-1",
		CustomerPhone: "919876543210",
		Total:         340,
		Currency:      "INR",
		SeqDate:       "20260831",
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	require.NoError(t, store.CreateOrder(order))

	messenger := &recordingMessenger{}
	handler := NewPaymentWebhookHandler(store, payments, services.NewOrderService(store), messenger)

	app := fiber.New()
	app.Post("/webhook/payments/:tenantID", handler.HandleEvent)

	return &paymentWebhookFixture{app: app, store: store, messenger: messenger, provider: provider, order: order}
}

func (f *paymentWebhookFixture) post(t *testing.T, body []byte, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook/payments/tenant-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRazorpayCaptureMarksOrderPaid(t *testing.T) {
	f := newPaymentWebhookFixture(t, models.PaymentProviderRazorpay)

	body := []byte(`{
		"event": "payment_link.paid",
		"payload": {"payment": {"entity": {"id": "pay_ABC", "notes": {"order_id": "` + f.order.ID + `"}}}}
	}`)
	resp := f.post(t, body, map[string]string{"X-Razorpay-Signature": "sig"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	order, err := f.store.GetOrder("tenant-1", f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, "pay_ABC", order.PaymentRef)
	assert.Equal(t, 1, f.messenger.sent)
}

func TestPayPalCaptureMarksOrderPaid(t *testing.T) {
	f := newPaymentWebhookFixture(t, models.PaymentProviderPayPal)

	body := []byte(`{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {"id": "8FH12345", "custom_id": "` + f.order.ID + `"}
	}`)
	resp := f.post(t, body, map[string]string{
		"Paypal-Transmission-Id":   "tx-1",
		"Paypal-Transmission-Time": "2026-08-31T10:00:00Z",
		"Paypal-Cert-Url":          "https://api.paypal.com/cert",
		"Paypal-Auth-Algo":         "SHA256withRSA",
		"Paypal-Transmission-Sig":  "sig",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	order, err := f.store.GetOrder("tenant-1", f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "8FH12345", order.PaymentRef)
	assert.Equal(t, 1, f.messenger.sent)
}

func TestPayPalIgnoresOtherEventTypes(t *testing.T) {
	f := newPaymentWebhookFixture(t, models.PaymentProviderPayPal)

	body := []byte(`{"event_type": "CHECKOUT.ORDER.APPROVED", "resource": {"id": "x", "custom_id": "` + f.order.ID + `"}}`)
	resp := f.post(t, body, map[string]string{"Paypal-Transmission-Sig": "sig"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	order, err := f.store.GetOrder("tenant-1", f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Zero(t, f.messenger.sent)
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	f := newPaymentWebhookFixture(t, models.PaymentProviderRazorpay)
	f.provider.verifyErr = &apperrors.ProviderError{Provider: "razorpay", Code: "bad_signature"}

	resp := f.post(t, []byte(`{"event": "payment_link.paid"}`), map[string]string{"X-Razorpay-Signature": "bogus"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	order, err := f.store.GetOrder("tenant-1", f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Zero(t, f.messenger.sent)
}

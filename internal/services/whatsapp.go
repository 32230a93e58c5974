package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/guonaihong/gout"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/crypto"
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// Messenger is the outbound messaging surface the conversation engine uses.
type Messenger interface {
	SendText(tenantID, to, body string) (string, error)
	SendTemplate(tenantID, to, templateName string, params []string) (string, error)
}

// WhatsAppService is the tenant messaging gateway. It decrypts the stored
// access token per send, calls the provider's Cloud API and classifies
// failures. Sends are never retried automatically; HealthCheck is the only
// call allowed retries.
type WhatsAppService struct {
	store   storage.Store
	cipher  *crypto.Cipher
	baseURL string
	timeout time.Duration
}

// NewWhatsAppService creates the messaging gateway. baseURL points at the
// provider Graph endpoint (overridable for tests).
func NewWhatsAppService(store storage.Store, cipher *crypto.Cipher, baseURL string) *WhatsAppService {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	return &WhatsAppService{
		store:   store,
		cipher:  cipher,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 15 * time.Second,
	}
}

type sendTextPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textPayload `json:"text,omitempty"`
}

type textPayload struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *graphError `json:"error,omitempty"`
}

type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

// SendText sends a free-form text message on behalf of a tenant and returns
// the provider message id.
func (w *WhatsAppService) SendText(tenantID, to, body string) (string, error) {
	account, token, err := w.accountAndToken(tenantID)
	if err != nil {
		return "", err
	}

	payload := sendTextPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: body},
	}

	var resp sendResponse
	code := 0
	err = gout.POST(fmt.Sprintf("%s/%s/messages", w.baseURL, account.PhoneLineID)).
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		SetJSON(payload).
		BindJSON(&resp).
		Code(&code).
		SetTimeout(w.timeout).
		Do()
	if err != nil {
		return "", &apperrors.ProviderError{Provider: "whatsapp", Code: "transport", Message: err.Error()}
	}

	if code >= 400 || resp.Error != nil {
		return "", w.classifySendError(account, code, resp.Error)
	}
	if len(resp.Messages) == 0 {
		return "", &apperrors.ProviderError{Provider: "whatsapp", Code: "empty_response",
			Message: "send succeeded but no message id returned", HTTPStatus: code}
	}

	now := time.Now()
	account.LastMessageSentAt = &now
	if err := w.store.UpdateMessagingAccount(account); err != nil {
		log.Printf("⚠️  Failed to record last sent time for tenant %s: %v", tenantID, err)
	}

	return resp.Messages[0].ID, nil
}

type sendTemplatePayload struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendTemplate sends a pre-approved template message. This is the fallback
// when the free-form messaging window has expired.
func (w *WhatsAppService) SendTemplate(tenantID, to, templateName string, params []string) (string, error) {
	account, token, err := w.accountAndToken(tenantID)
	if err != nil {
		return "", err
	}

	tpl := templatePayload{
		Name:     templateName,
		Language: templateLanguage{Code: "en"},
	}
	if len(params) > 0 {
		parameters := make([]templateParameter, 0, len(params))
		for _, p := range params {
			parameters = append(parameters, templateParameter{Type: "text", Text: p})
		}
		tpl.Components = []templateComponent{{Type: "body", Parameters: parameters}}
	}

	payload := sendTemplatePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tpl,
	}

	var resp sendResponse
	code := 0
	err = gout.POST(fmt.Sprintf("%s/%s/messages", w.baseURL, account.PhoneLineID)).
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		SetJSON(payload).
		BindJSON(&resp).
		Code(&code).
		SetTimeout(w.timeout).
		Do()
	if err != nil {
		return "", &apperrors.ProviderError{Provider: "whatsapp", Code: "transport", Message: err.Error()}
	}
	if code >= 400 || resp.Error != nil {
		return "", w.classifySendError(account, code, resp.Error)
	}
	if len(resp.Messages) == 0 {
		return "", &apperrors.ProviderError{Provider: "whatsapp", Code: "empty_response",
			Message: "template send succeeded but no message id returned", HTTPStatus: code}
	}

	now := time.Now()
	account.LastMessageSentAt = &now
	if err := w.store.UpdateMessagingAccount(account); err != nil {
		log.Printf("⚠️  Failed to record last sent time for tenant %s: %v", tenantID, err)
	}

	return resp.Messages[0].ID, nil
}

func (w *WhatsAppService) accountAndToken(tenantID string) (*models.MessagingAccount, string, error) {
	account, err := w.store.GetMessagingAccount(tenantID)
	if err != nil {
		return nil, "", err
	}
	if account.Status == models.AccountStatusSuspended || account.Status == models.AccountStatusDisconnected {
		return nil, "", &apperrors.ProviderError{Provider: "whatsapp", Code: "account_" + account.Status,
			Message: fmt.Sprintf("messaging account is %s", account.Status)}
	}

	token, err := w.cipher.Decrypt(account.EncryptedToken)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decrypt access token for tenant %s: %w", tenantID, err)
	}
	return account, token, nil
}

// Provider error codes. 190 is an expired/invalid OAuth token; 131047 with
// subcode 2018278 means the 24h customer service window has lapsed.
const (
	graphCodeInvalidToken    = 190
	graphCodeReEngagement    = 131047
	graphSubcodeWindowClosed = 2018278
)

func (w *WhatsAppService) classifySendError(account *models.MessagingAccount, httpStatus int, gerr *graphError) error {
	if gerr == nil {
		gerr = &graphError{Message: fmt.Sprintf("provider returned http %d", httpStatus)}
	}

	switch {
	case gerr.Code == graphCodeInvalidToken || httpStatus == 401:
		account.Status = models.AccountStatusError
		account.ErrorMessage = gerr.Message
		if err := w.store.UpdateMessagingAccount(account); err != nil {
			log.Printf("⚠️  Failed to degrade messaging account %s: %v", account.TenantID, err)
		}
		log.Printf("❌ Credential rejected for tenant %s: %s", account.TenantID, gerr.Message)
		return &apperrors.AuthError{TenantID: account.TenantID, Code: fmt.Sprintf("%d", gerr.Code), Message: gerr.Message}

	case gerr.Code == graphCodeReEngagement || gerr.Subcode == graphSubcodeWindowClosed:
		return &apperrors.WindowExpiredError{To: account.DisplayPhone}

	default:
		return &apperrors.ProviderError{
			Provider:   "whatsapp",
			Code:       fmt.Sprintf("%d", gerr.Code),
			Message:    gerr.Message,
			HTTPStatus: httpStatus,
		}
	}
}

type phoneLineInfo struct {
	VerifiedName       string      `json:"verified_name"`
	DisplayPhoneNumber string      `json:"display_phone_number"`
	QualityRating      string      `json:"quality_rating"`
	Error              *graphError `json:"error,omitempty"`
}

// HealthCheck re-validates the tenant's token and phone-line metadata and
// refreshes status and quality fields. It is an idempotent read, so it is
// the one gateway call permitted automatic retries.
func (w *WhatsAppService) HealthCheck(tenantID string) error {
	account, token, err := w.accountAndToken(tenantID)
	if err != nil {
		return err
	}

	const attempts = 3
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i) * time.Second)
		}

		var info phoneLineInfo
		code := 0
		err := gout.GET(fmt.Sprintf("%s/%s", w.baseURL, account.PhoneLineID)).
			SetHeader(gout.H{"Authorization": "Bearer " + token}).
			SetQuery(gout.H{"fields": "verified_name,display_phone_number,quality_rating"}).
			BindJSON(&info).
			Code(&code).
			SetTimeout(w.timeout).
			Do()
		if err != nil {
			lastErr = err
			continue
		}

		now := time.Now()
		account.LastHealthCheckAt = &now

		if code >= 400 || info.Error != nil {
			if info.Error != nil && (info.Error.Code == graphCodeInvalidToken || code == 401) {
				account.Status = models.AccountStatusError
				account.ErrorMessage = info.Error.Message
				_ = w.store.UpdateMessagingAccount(account)
				return &apperrors.AuthError{TenantID: tenantID, Code: fmt.Sprintf("%d", info.Error.Code), Message: info.Error.Message}
			}
			lastErr = fmt.Errorf("health check returned http %d", code)
			continue
		}

		account.Status = models.AccountStatusActive
		account.ErrorMessage = ""
		account.DisplayName = info.VerifiedName
		account.DisplayPhone = info.DisplayPhoneNumber
		account.QualityRating = info.QualityRating
		return w.store.UpdateMessagingAccount(account)
	}

	return fmt.Errorf("health check failed for tenant %s after %d attempts: %w", tenantID, attempts, lastErr)
}

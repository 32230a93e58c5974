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

// ConnectService performs the one-time credential exchange for a tenant:
// it swaps an authorization code for a long-lived token, discovers the
// business account and phone line, persists the encrypted credential and
// subscribes the webhook.
type ConnectService struct {
	store     storage.Store
	cipher    *crypto.Cipher
	baseURL   string
	appID     string
	appSecret string
	timeout   time.Duration
}

// NewConnectService creates the credential exchange service.
func NewConnectService(store storage.Store, cipher *crypto.Cipher, baseURL, appID, appSecret string) *ConnectService {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	return &ConnectService{
		store:     store,
		cipher:    cipher,
		baseURL:   strings.TrimRight(baseURL, "/"),
		appID:     appID,
		appSecret: appSecret,
		timeout:   20 * time.Second,
	}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	Error       *graphError `json:"error,omitempty"`
}

type debugTokenResponse struct {
	Data struct {
		GranularScopes []struct {
			Scope     string   `json:"scope"`
			TargetIDs []string `json:"target_ids"`
		} `json:"granular_scopes"`
	} `json:"data"`
	Error *graphError `json:"error,omitempty"`
}

type phoneNumbersResponse struct {
	Data []struct {
		ID                 string `json:"id"`
		DisplayPhoneNumber string `json:"display_phone_number"`
		VerifiedName       string `json:"verified_name"`
		QualityRating      string `json:"quality_rating"`
	} `json:"data"`
	Error *graphError `json:"error,omitempty"`
}

type subscribeResponse struct {
	Success bool        `json:"success"`
	Error   *graphError `json:"error,omitempty"`
}

// ExchangeCode runs the full connect flow for a tenant and returns the
// persisted messaging account.
func (s *ConnectService) ExchangeCode(tenantID, code string) (*models.MessagingAccount, error) {
	if _, err := s.store.GetTenant(tenantID); err != nil {
		return nil, err
	}

	token, tokenType, err := s.exchangeToken(code)
	if err != nil {
		return nil, err
	}

	wabaID, err := s.discoverBusinessAccount(token)
	if err != nil {
		return nil, err
	}

	line, err := s.discoverPhoneLine(token, wabaID)
	if err != nil {
		return nil, err
	}

	if err := s.subscribeWebhook(token, wabaID); err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(token)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	// Reuse the existing account row on reconnect so webhook history and
	// timestamps survive.
	account, err := s.store.GetMessagingAccount(tenantID)
	if err != nil {
		account = &models.MessagingAccount{TenantID: tenantID}
	}

	account.BusinessAccountID = wabaID
	account.PhoneLineID = line.id
	account.DisplayName = line.verifiedName
	account.DisplayPhone = line.displayPhone
	account.QualityRating = line.qualityRating
	account.EncryptedToken = encrypted
	account.TokenType = tokenType
	account.SubscribedFields = "messages"
	account.Status = models.AccountStatusActive
	account.ErrorMessage = ""

	if err := s.store.SaveMessagingAccount(account); err != nil {
		return nil, fmt.Errorf("failed to persist messaging account: %w", err)
	}

	log.Printf("✅ Tenant %s connected: line %s (%s)", tenantID, line.id, line.displayPhone)
	return account, nil
}

func (s *ConnectService) exchangeToken(code string) (string, string, error) {
	var resp tokenResponse
	httpCode := 0
	err := gout.GET(s.baseURL + "/oauth/access_token").
		SetQuery(gout.H{
			"client_id":     s.appID,
			"client_secret": s.appSecret,
			"code":          code,
		}).
		BindJSON(&resp).
		Code(&httpCode).
		SetTimeout(s.timeout).
		Do()
	if err != nil {
		return "", "", &apperrors.ProviderError{Provider: "whatsapp", Code: "transport", Message: err.Error()}
	}
	if httpCode >= 400 || resp.Error != nil || resp.AccessToken == "" {
		msg := "authorization code rejected"
		errCode := "oauth"
		if resp.Error != nil {
			msg = resp.Error.Message
			errCode = fmt.Sprintf("%d", resp.Error.Code)
		}
		return "", "", &apperrors.ProviderError{Provider: "whatsapp", Code: errCode, Message: msg, HTTPStatus: httpCode}
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return resp.AccessToken, tokenType, nil
}

func (s *ConnectService) discoverBusinessAccount(token string) (string, error) {
	var resp debugTokenResponse
	httpCode := 0
	err := gout.GET(s.baseURL + "/debug_token").
		SetQuery(gout.H{
			"input_token":  token,
			"access_token": s.appID + "|" + s.appSecret,
		}).
		BindJSON(&resp).
		Code(&httpCode).
		SetTimeout(s.timeout).
		Do()
	if err != nil {
		return "", &apperrors.ProviderError{Provider: "whatsapp", Code: "transport", Message: err.Error()}
	}
	if httpCode >= 400 || resp.Error != nil {
		msg := "token inspection failed"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", &apperrors.ProviderError{Provider: "whatsapp", Code: "debug_token", Message: msg, HTTPStatus: httpCode}
	}

	for _, scope := range resp.Data.GranularScopes {
		if scope.Scope == "whatsapp_business_management" && len(scope.TargetIDs) > 0 {
			return scope.TargetIDs[0], nil
		}
	}
	return "", &apperrors.ProviderError{Provider: "whatsapp", Code: "no_business_account",
		Message: "token grants no business account access"}
}

type discoveredLine struct {
	id            string
	displayPhone  string
	verifiedName  string
	qualityRating string
}

func (s *ConnectService) discoverPhoneLine(token, wabaID string) (*discoveredLine, error) {
	var resp phoneNumbersResponse
	httpCode := 0
	err := gout.GET(fmt.Sprintf("%s/%s/phone_numbers", s.baseURL, wabaID)).
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		BindJSON(&resp).
		Code(&httpCode).
		SetTimeout(s.timeout).
		Do()
	if err != nil {
		return nil, &apperrors.ProviderError{Provider: "whatsapp", Code: "transport", Message: err.Error()}
	}
	if httpCode >= 400 || resp.Error != nil {
		msg := "phone number discovery failed"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return nil, &apperrors.ProviderError{Provider: "whatsapp", Code: "phone_numbers", Message: msg, HTTPStatus: httpCode}
	}
	if len(resp.Data) == 0 {
		return nil, &apperrors.ProviderError{Provider: "whatsapp", Code: "no_phone_line",
			Message: "business account has no phone lines"}
	}

	first := resp.Data[0]
	return &discoveredLine{
		id:            first.ID,
		displayPhone:  first.DisplayPhoneNumber,
		verifiedName:  first.VerifiedName,
		qualityRating: first.QualityRating,
	}, nil
}

func (s *ConnectService) subscribeWebhook(token, wabaID string) error {
	var resp subscribeResponse
	httpCode := 0
	err := gout.POST(fmt.Sprintf("%s/%s/subscribed_apps", s.baseURL, wabaID)).
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		BindJSON(&resp).
		Code(&httpCode).
		SetTimeout(s.timeout).
		Do()
	if err != nil {
		return &apperrors.ProviderError{Provider: "whatsapp", Code: "transport", Message: err.Error()}
	}
	if httpCode >= 400 || resp.Error != nil || !resp.Success {
		msg := "webhook subscription failed"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return &apperrors.ProviderError{Provider: "whatsapp", Code: "subscribe", Message: msg, HTTPStatus: httpCode}
	}
	return nil
}

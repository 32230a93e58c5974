package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name         string
		httpStatus   int
		gerr         *graphError
		wantAuth     bool
		wantWindow   bool
		wantDegraded bool
	}{
		{
			name:         "invalid token code degrades the account",
			httpStatus:   400,
			gerr:         &graphError{Code: 190, Message: "Error validating access token"},
			wantAuth:     true,
			wantDegraded: true,
		},
		{
			name:         "http 401 without a graph code degrades the account",
			httpStatus:   401,
			gerr:         &graphError{Code: 0, Message: "Unauthorized"},
			wantAuth:     true,
			wantDegraded: true,
		},
		{
			name:       "re-engagement code maps to window expiry",
			httpStatus: 400,
			gerr:       &graphError{Code: 131047, Message: "Re-engagement message"},
			wantWindow: true,
		},
		{
			name:       "window closed subcode maps to window expiry",
			httpStatus: 400,
			gerr:       &graphError{Code: 131000, Subcode: 2018278, Message: "Message failed to send"},
			wantWindow: true,
		},
		{
			name:       "other graph codes stay provider errors",
			httpStatus: 400,
			gerr:       &graphError{Code: 100, Message: "Invalid parameter"},
		},
		{
			name:       "missing error body is synthesized from the status",
			httpStatus: 500,
			gerr:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			svc := NewWhatsAppService(store, testCrypto(t), "")

			account := &models.MessagingAccount{
				TenantID:     "tenant-1",
				PhoneLineID:  "phone-line-1",
				DisplayPhone: "15550001111",
				Status:       models.AccountStatusActive,
			}
			require.NoError(t, store.SaveMessagingAccount(account))

			err := svc.classifySendError(account, tt.httpStatus, tt.gerr)
			require.Error(t, err)

			assert.Equal(t, tt.wantAuth, apperrors.IsAuth(err))
			assert.Equal(t, tt.wantWindow, apperrors.IsWindowExpired(err))
			if !tt.wantAuth && !tt.wantWindow {
				assert.True(t, apperrors.IsProvider(err))
			}

			stored, gerr := store.GetMessagingAccount("tenant-1")
			require.NoError(t, gerr)
			if tt.wantDegraded {
				assert.Equal(t, models.AccountStatusError, stored.Status)
				assert.NotEmpty(t, stored.ErrorMessage)
			} else {
				assert.Equal(t, models.AccountStatusActive, stored.Status)
			}
		})
	}
}

func TestSendRejectsSuspendedAccount(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewWhatsAppService(store, testCrypto(t), "")

	require.NoError(t, store.SaveMessagingAccount(&models.MessagingAccount{
		TenantID:    "tenant-1",
		PhoneLineID: "phone-line-1",
		Status:      models.AccountStatusSuspended,
	}))

	_, err := svc.SendText("tenant-1", "919876543210", "hello")
	require.Error(t, err)
	assert.True(t, apperrors.IsProvider(err))
	assert.Contains(t, err.Error(), "suspended")
}

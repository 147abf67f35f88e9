package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateInvitation(t *testing.T) {
	var gotAuth string
	var gotBody CreateInvitationRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/invitations", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"inv_1","email_address":"alice@example.com","status":"pending"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", zap.NewNop())

	inv, err := client.CreateInvitation(context.Background(), &CreateInvitationRequest{
		Email:    "alice@example.com",
		Metadata: map[string]string{"role": "org_member"},
	})
	require.NoError(t, err)

	assert.Equal(t, "inv_1", inv.ID)
	assert.Equal(t, "alice@example.com", inv.Email)
	assert.Equal(t, "Bearer sk_test", gotAuth)
	assert.Equal(t, "org_member", gotBody.Metadata["role"])
}

func TestCreateInvitation_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"code":"duplicate_record","message":"already invited"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", zap.NewNop())

	_, err := client.CreateInvitation(context.Background(), &CreateInvitationRequest{Email: "alice@example.com"})
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnprocessableEntity, provErr.StatusCode)
	assert.Equal(t, "duplicate_record", provErr.Code)
	assert.Equal(t, "already invited", provErr.Message)
	assert.False(t, provErr.IsRetryable())
}

func TestCreateInvitation_UnstructuredErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", zap.NewNop())

	_, err := client.CreateInvitation(context.Background(), &CreateInvitationRequest{Email: "alice@example.com"})

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusBadGateway, provErr.StatusCode)
	assert.Equal(t, "", provErr.Code)
	assert.Equal(t, "upstream exploded", provErr.Message)
	assert.True(t, provErr.IsRetryable())
}

func TestRevokeInvitation(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", zap.NewNop())

	require.NoError(t, client.RevokeInvitation(context.Background(), "inv_1"))
	assert.Equal(t, "/v1/invitations/inv_1/revoke", gotPath)
}

func TestListPendingInvitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invitations", r.URL.Path)
		assert.Equal(t, "alice@example.com", r.URL.Query().Get("email_address"))
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		w.Write([]byte(`[{"id":"inv_1","email_address":"alice@example.com","status":"pending"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", zap.NewNop())

	invitations, err := client.ListPendingInvitations(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	assert.Equal(t, "inv_1", invitations[0].ID)
}

func TestListPendingInvitations_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", zap.NewNop())

	invitations, err := client.ListPendingInvitations(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, invitations)
	assert.Equal(t, 2, attempts)
}

func TestGetUserRole(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/user_123", r.URL.Path)
		w.Write([]byte(`{"public_metadata":{"role":"org_admin","org_id":"abc"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", zap.NewNop())

	role, err := client.GetUserRole(context.Background(), "user_123")
	require.NoError(t, err)
	assert.Equal(t, "org_admin", role)
}

func TestUpdateUserRole(t *testing.T) {
	var gotBody map[string]map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/users/user_123/metadata", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", zap.NewNop())

	require.NoError(t, client.UpdateUserRole(context.Background(), "user_123", "org_member"))
	assert.Equal(t, "org_member", gotBody["public_metadata"]["role"])
}

func TestWebhookUser_FullName(t *testing.T) {
	assert.Equal(t, "Alice Jones", (&WebhookUser{FirstName: "Alice", LastName: "Jones"}).FullName())
	assert.Equal(t, "Alice", (&WebhookUser{FirstName: "Alice"}).FullName())
	assert.Equal(t, "", (&WebhookUser{}).FullName())
}

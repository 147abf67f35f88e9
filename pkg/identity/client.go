// Package identity provides a client for the hosted identity provider:
// invitation lifecycle calls and webhook payload verification.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/logging"
	"github.com/mentora-hq/portal-engine/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for provider responses.
const DefaultTimeout = 30 * time.Second

// Invitation is the provider-side invitation record.
type Invitation struct {
	ID        string            `json:"id"`
	Email     string            `json:"email_address"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"public_metadata,omitempty"`
	ExpiresAt int64             `json:"expires_at,omitempty"`
}

// CreateInvitationRequest is the payload for creating an invitation.
// Role, organisation ID and course IDs travel as provider-side metadata and
// are read back after acceptance to reconstruct the user's effective role.
type CreateInvitationRequest struct {
	Email     string            `json:"email_address"`
	Metadata  map[string]string `json:"public_metadata,omitempty"`
	ExpiresAt int64             `json:"expires_at,omitempty"`
}

// ProviderError carries the provider's HTTP status and error code so callers
// can distinguish per-row failures from outages.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsRetryable reports whether the failure is transient. 5xx and 429 are
// worth retrying; everything else is a permanent per-request failure.
func (e *ProviderError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client defines the provider operations the import pipeline needs.
type Client interface {
	// CreateInvitation creates a provider invitation and returns it.
	CreateInvitation(ctx context.Context, req *CreateInvitationRequest) (*Invitation, error)
	// RevokeInvitation revokes a provider invitation by ID.
	RevokeInvitation(ctx context.Context, invitationID string) error
	// ListPendingInvitations returns pending invitations for an email.
	ListPendingInvitations(ctx context.Context, email string) ([]*Invitation, error)
	// GetUserRole reads the role stored in a user's provider metadata.
	GetUserRole(ctx context.Context, externalUserID string) (string, error)
	// UpdateUserRole writes the role into a user's provider metadata.
	UpdateUserRole(ctx context.Context, externalUserID, role string) error
}

// httpClient implements Client over the provider's REST API.
type httpClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *zap.Logger
}

// NewClient creates a provider client.
func NewClient(baseURL, secretKey string, logger *zap.Logger) Client {
	return &httpClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: DefaultTimeout},
		logger:    logger.Named("identity"),
	}
}

var _ Client = (*httpClient)(nil)

func (c *httpClient) CreateInvitation(ctx context.Context, req *CreateInvitationRequest) (*Invitation, error) {
	var inv Invitation
	if err := c.do(ctx, http.MethodPost, []string{"v1", "invitations"}, nil, req, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *httpClient) RevokeInvitation(ctx context.Context, invitationID string) error {
	return c.do(ctx, http.MethodPost, []string{"v1", "invitations", invitationID, "revoke"}, nil, nil, nil)
}

// ListPendingInvitations is a read, so transient provider failures are
// retried; permanent (4xx) errors are returned immediately.
func (c *httpClient) ListPendingInvitations(ctx context.Context, email string) ([]*Invitation, error) {
	query := url.Values{}
	query.Set("email_address", email)
	query.Set("status", "pending")

	var invitations []*Invitation
	err := retry.DoIfRetryable(ctx, nil, func() error {
		invitations = nil
		return c.do(ctx, http.MethodGet, []string{"v1", "invitations"}, query, nil, &invitations)
	})
	if err != nil {
		return nil, err
	}
	return invitations, nil
}

func (c *httpClient) GetUserRole(ctx context.Context, externalUserID string) (string, error) {
	type userResponse struct {
		PublicMetadata map[string]string `json:"public_metadata"`
	}

	var user userResponse
	err := retry.DoIfRetryable(ctx, nil, func() error {
		return c.do(ctx, http.MethodGet, []string{"v1", "users", externalUserID}, nil, nil, &user)
	})
	if err != nil {
		return "", err
	}
	return user.PublicMetadata["role"], nil
}

func (c *httpClient) UpdateUserRole(ctx context.Context, externalUserID, role string) error {
	body := map[string]map[string]string{
		"public_metadata": {"role": role},
	}
	return c.do(ctx, http.MethodPatch, []string{"v1", "users", externalUserID, "metadata"}, nil, body, nil)
}

// do executes one provider API call, decoding the response into out when non-nil.
func (c *httpClient) do(ctx context.Context, method string, segments []string, query url.Values, body, out interface{}) error {
	endpoint, err := buildURL(c.baseURL, segments, query)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Identity provider request failed",
			zap.String("method", method),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("failed to call identity provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		provErr := &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
		// Providers wrap errors as {"errors":[{"code":...,"message":...}]}
		var wrapped struct {
			Errors []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"errors"`
		}
		if json.Unmarshal(respBody, &wrapped) == nil && len(wrapped.Errors) > 0 {
			provErr.Code = wrapped.Errors[0].Code
			provErr.Message = wrapped.Errors[0].Message
		}
		c.logger.Error("Identity provider returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("code", provErr.Code),
			zap.String("message", logging.TruncateString(provErr.Message, 200)),
			zap.String("method", method),
			zap.String("url", endpoint))
		return provErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// buildURL joins base URL with path segments and a query string.
func buildURL(baseURL string, segments []string, query url.Values) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(append([]string{u.Path}, segments...)...)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

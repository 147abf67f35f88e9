package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/database"
	"github.com/mentora-hq/portal-engine/pkg/identity"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/services"
)

// maxWebhookBody caps webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// WebhookHandler consumes identity-provider webhooks. Once a payload's
// signature checks out, the handler always acknowledges with 200: a local
// processing bug must not make the provider retry-storm us.
type WebhookHandler struct {
	verifier       *identity.SignatureVerifier
	webhookService services.WebhookService
	scopes         *database.TenantScopeProvider
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(
	verifier *identity.SignatureVerifier,
	webhookService services.WebhookService,
	scopes *database.TenantScopeProvider,
	m *metrics.Metrics,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifier:       verifier,
		webhookService: webhookService,
		scopes:         scopes,
		metrics:        m,
		logger:         logger,
	}
}

// RegisterRoutes registers the webhook handler's routes on the given mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/identity", h.metrics.InstrumentHandler("/webhooks/identity", h.Receive))
}

// Receive handles POST /webhooks/identity.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		if err := ErrorResponse(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Webhook payload exceeds limit"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	err = h.verifier.Verify(
		r.Header.Get(identity.HeaderWebhookID),
		r.Header.Get(identity.HeaderWebhookTimestamp),
		r.Header.Get(identity.HeaderWebhookSignature),
		body,
	)
	if err != nil {
		h.logger.Warn("Webhook signature verification failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Signature is good. From here on, every outcome is a 200.
	defer func() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received":true}`))
	}()

	var event identity.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.metrics.WebhookFailures.Inc()
		h.logger.Error("Failed to decode webhook payload", zap.Error(err))
		return
	}

	// Webhook processing writes platform-level mirrors, so it runs under
	// the admin scope rather than a tenant scope.
	ctx, cleanup, err := h.scopes.WithAdminScope(r.Context())
	if err != nil {
		h.metrics.WebhookFailures.Inc()
		h.logger.Error("Failed to acquire database scope for webhook", zap.Error(err))
		return
	}
	defer cleanup()

	if err := h.webhookService.HandleEvent(ctx, &event); err != nil {
		h.metrics.WebhookFailures.Inc()
		h.logger.Error("Webhook processing failed",
			zap.String("type", event.Type),
			zap.Error(err))
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/models"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
	"github.com/AnshRaj112/sparklink-backend/internal/services"
)

const maxWebhookBody = 1 << 20

// IdentityEvents queues the follow-up work for identity webhook events.
type IdentityEvents interface {
	IdentityCreated(ctx context.Context, p models.IdentityProfile) error
	IdentityUpdated(ctx context.Context, p models.IdentityProfile) error
	IdentityDeleted(ctx context.Context, userID string) error
}

// SignatureVerifier checks the Svix signature headers Clerk sends with every
// webhook. The zero secret leaves it unconfigured.
type SignatureVerifier struct {
	wh *svix.Webhook
}

func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if secret == "" {
		return &SignatureVerifier{}, nil
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("webhook secret: %w", err)
	}
	return &SignatureVerifier{wh: wh}, nil
}

func (v *SignatureVerifier) Configured() bool { return v.wh != nil }

// Sign returns the v1 signature for the given message.
func (v *SignatureVerifier) Sign(id string, ts time.Time, body []byte) (string, error) {
	return v.wh.Sign(id, ts, body)
}

// Verify checks the svix-id, svix-timestamp and svix-signature headers
// against body. Timestamps more than five minutes off are rejected.
func (v *SignatureVerifier) Verify(header http.Header, body []byte) error {
	return v.wh.Verify(body, header)
}

type clerkEvent struct {
	Type string     `json:"type"`
	Data clerk.User `json:"data"`
}

type WebhookHandler struct {
	verifier *SignatureVerifier
	events   IdentityEvents
	log      *zap.SugaredLogger
}

func NewWebhookHandler(verifier *SignatureVerifier, events IdentityEvents, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, events: events, log: log}
}

// Clerk accepts signed user.* events and queues them; the worker applies them.
func (h *WebhookHandler) Clerk(w http.ResponseWriter, r *http.Request) {
	if !h.verifier.Configured() {
		response.Error(w, apierrors.ErrServiceUnavailable.WithMessage("Webhook secret is not configured"))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		response.Error(w, apierrors.ErrPayloadTooLarge)
		return
	}
	if err := h.verifier.Verify(r.Header, body); err != nil {
		h.log.Warnw("webhook rejected", "error", err)
		response.Error(w, apierrors.ErrUnauthorized.WithMessage("Invalid webhook signature"))
		return
	}

	var evt clerkEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid webhook payload"))
		return
	}

	ctx := r.Context()
	switch evt.Type {
	case "user.created":
		err = h.events.IdentityCreated(ctx, services.ProfileFromClerk(&evt.Data))
	case "user.updated":
		err = h.events.IdentityUpdated(ctx, services.ProfileFromClerk(&evt.Data))
	case "user.deleted":
		err = h.events.IdentityDeleted(ctx, evt.Data.ID)
	default:
		h.log.Debugw("webhook event ignored", "type", evt.Type)
	}
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, nil)
}

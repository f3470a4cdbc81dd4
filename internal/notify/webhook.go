package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/crypto"
)

// WebhookSender posts {"title","message","sent_at"} to an arbitrary endpoint.
// With auth set the request carries the HMAC headers of internal/crypto so the
// receiver can verify it came from the engine.
type WebhookSender struct {
	url    string
	auth   *crypto.HMACAuth
	client *http.Client
	now    func() time.Time
}

// NewWebhookSender creates a WebhookSender. auth may be nil.
func NewWebhookSender(url string, auth *crypto.HMACAuth) *WebhookSender {
	return &WebhookSender{url: url, auth: auth, client: defaultClient, now: time.Now}
}

type webhookPayload struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	now := w.now()
	body, err := json.Marshal(webhookPayload{Title: title, Message: message, SentAt: now.UTC()})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	var headers map[string]string
	if w.auth != nil {
		headers = w.auth.HeadersAt(http.MethodPost, "/", string(body), now.Unix())
	}
	if err := postBody(ctx, w.client, w.url, body, headers); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (w *WebhookSender) Name() string { return "webhook" }

package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body
const SignatureHeader = "X-Signature"

// WebhookNotifier POSTs events as JSON to an operator endpoint
type WebhookNotifier struct {
	client *resty.Client
	url    string
	secret []byte
}

// NewWebhookNotifier creates a WebhookNotifier. Requests are signed when
// secret is not empty. Transport errors and 5xx answers are retried twice.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	client := resty.New().
		SetTimeout(5*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError // Retry transport errors and 5xx
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "vps-billing-webhook/1.0")
	return &WebhookNotifier{client: client, url: url, secret: []byte(secret)}
}

// Notify sends event and fails on any non-2xx answer
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req := n.client.R().SetContext(ctx).SetBody(body)
	if len(n.secret) > 0 {
		req.SetHeader(SignatureHeader, Sign(n.secret, body))
	}
	resp, err := req.Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

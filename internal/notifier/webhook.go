package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// WebhookTransport posts alert text as an HMAC-signed JSON payload to a
// configured chat-bot webhook. The chat bot itself is an external
// collaborator; this is the signing/delivery surface on our side.
type WebhookTransport struct {
	url        string
	secret     []byte
	httpClient *http.Client
}

// NewWebhookTransport builds a transport posting to url, signing each body
// with secret.
func NewWebhookTransport(url string, secret []byte) *WebhookTransport {
	return &WebhookTransport{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Send posts text to the webhook, signing the body with HMAC-SHA256 the
// same way this codebase's other webhook sender does.
func (t *WebhookTransport) Send(ctx context.Context, text string) SendResult {
	body, err := json.Marshal(webhookPayload{Text: text, Timestamp: time.Now().Unix()})
	if err != nil {
		return SendResult{Err: fmt.Errorf("marshal webhook payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return SendResult{Err: fmt.Errorf("build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signBody(t.secret, body))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return SendResult{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := 5 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
		return SendResult{RetryAfter: wait}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SendResult{OK: true}
	}
	return SendResult{Err: fmt.Errorf("webhook returned status %d", resp.StatusCode)}
}

func signBody(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

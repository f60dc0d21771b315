package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/carverauto/faultradar/pkg/config"
)

var (
	errWebhookDisabled   = fmt.Errorf("webhook sender is disabled")
	errInvalidJSON       = fmt.Errorf("invalid JSON generated")
	errWebhookStatus     = fmt.Errorf("webhook returned non-200 status")
	errTemplateParse     = fmt.Errorf("template parsing failed")
	errTemplateExecution = fmt.Errorf("template execution failed")
)

// webhookPayload is the default body posted to a webhook target.
type webhookPayload struct {
	ID          int64    `json:"id"`
	Level       Level    `json:"level"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	ComponentID string   `json:"component_id,omitempty"`
	Codes       []string `json:"codes,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// WebhookSender posts notifications to a configured HTTP endpoint. A
// non-empty template replaces the default payload; the result must be
// valid JSON.
type WebhookSender struct {
	config        config.WebhookConfig
	client        *http.Client
	lastSentTimes map[string]time.Time
	mu            sync.RWMutex
	bufferPool    *sync.Pool
}

// NewWebhookSender creates a webhook sender for one target.
func NewWebhookSender(cfg config.WebhookConfig) *WebhookSender {
	return &WebhookSender{
		config: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		lastSentTimes: make(map[string]time.Time),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// IsEnabled returns whether the sender is enabled.
func (w *WebhookSender) IsEnabled() bool {
	return w.config.Enabled
}

// Name identifies the target in delivery records.
func (w *WebhookSender) Name() string {
	return w.config.URL
}

func (w *WebhookSender) getTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) (string, error) {
			buf := w.bufferPool.Get().(*bytes.Buffer)
			buf.Reset()
			defer w.bufferPool.Put(buf)

			enc := json.NewEncoder(buf)
			if err := enc.Encode(v); err != nil {
				return "", fmt.Errorf("JSON marshaling failed: %w", err)
			}

			return buf.String(), nil
		},
	}
}

// Send delivers the notification to the webhook endpoint.
func (w *WebhookSender) Send(ctx context.Context, notification *Notification) error {
	if !w.IsEnabled() {
		return errWebhookDisabled
	}

	if err := w.checkCooldown(notification.DedupeKey); err != nil {
		return err
	}

	payload, err := w.preparePayload(notification)
	if err != nil {
		return fmt.Errorf("failed to prepare payload: %w", err)
	}

	return w.sendRequest(ctx, payload)
}

func (w *WebhookSender) checkCooldown(dedupeKey string) error {
	cooldown := time.Duration(w.config.Cooldown)
	if cooldown <= 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	lastSent, exists := w.lastSentTimes[dedupeKey]
	if exists && time.Since(lastSent) < cooldown {
		return fmt.Errorf("%w: %q", ErrCooldown, dedupeKey)
	}

	w.lastSentTimes[dedupeKey] = time.Now()

	return nil
}

func (w *WebhookSender) preparePayload(notification *Notification) ([]byte, error) {
	if w.config.Template != "" {
		return w.executeTemplate(notification)
	}

	buf := w.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer w.bufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	if err := enc.Encode(webhookPayload{
		ID:          notification.ID,
		Level:       notification.Level,
		Title:       notification.Title,
		Message:     notification.Message,
		ComponentID: notification.ComponentID,
		Codes:       notification.Codes,
		Timestamp:   notification.CreatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

func (w *WebhookSender) executeTemplate(notification *Notification) ([]byte, error) {
	tmpl, err := template.New("webhook").
		Funcs(w.getTemplateFuncs()).
		Parse(w.config.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTemplateParse, err)
	}

	buf := w.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer w.bufferPool.Put(buf)

	if err := tmpl.Execute(buf, map[string]interface{}{
		"notification": notification,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", errTemplateExecution, err)
	}

	if !json.Valid(buf.Bytes()) {
		return nil, errInvalidJSON
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

func (w *WebhookSender) sendRequest(ctx context.Context, payload []byte) error {
	buf := w.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer w.bufferPool.Put(buf)

	buf.Write(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	w.setHeaders(req)

	resp, err := w.client.Do(req) //nolint:bodyclose // Response body is closed later
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBuf := w.bufferPool.Get().(*bytes.Buffer)
		errBuf.Reset()
		defer w.bufferPool.Put(errBuf)

		_, _ = io.Copy(errBuf, resp.Body)

		return fmt.Errorf("%w: status=%d body=%s", errWebhookStatus, resp.StatusCode, errBuf.String())
	}

	return nil
}

func (w *WebhookSender) setHeaders(req *http.Request) {
	hasContentType := false

	for _, header := range w.config.Headers {
		if strings.EqualFold(header.Key, "content-type") {
			hasContentType = true
		}

		req.Header.Set(header.Key, header.Value)
	}

	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}
}

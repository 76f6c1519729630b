package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultCloseGrace bounds how long Close lets in-flight deliveries finish.
// Anything slower is abandoned when the process exits.
const DefaultCloseGrace = 500 * time.Millisecond

// WebhookNotifier POSTs each alert as JSON on its own goroutine. Close
// waits for in-flight deliveries for at most the close grace.
type WebhookNotifier struct {
	url     string
	timeout time.Duration
	grace   time.Duration
	headers map[string]string
	client  *http.Client

	mu     sync.Mutex
	wg     sync.WaitGroup
	errs   []error
	closed bool
}

func NewWebhookNotifier(url string, timeout time.Duration, headers map[string]string) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	hcopy := map[string]string{}
	for k, v := range headers {
		hcopy[k] = v
	}
	grace := DefaultCloseGrace
	if timeout < grace {
		grace = timeout
	}
	return &WebhookNotifier{
		url:     url,
		timeout: timeout,
		grace:   grace,
		headers: hcopy,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (w *WebhookNotifier) Notify(a Alert) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("webhook notifier closed")
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.post(ctx, a); err != nil {
			w.mu.Lock()
			w.errs = append(w.errs, err)
			w.mu.Unlock()
		}
	}()
	return nil
}

// Close waits for pending deliveries and returns the first failure.
func (w *WebhookNotifier) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.grace):
		return fmt.Errorf("webhook delivery still pending after %s", w.grace)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.errs) > 0 {
		return w.errs[0]
	}
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, a Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}

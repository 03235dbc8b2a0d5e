package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"resto-platform/internal/models"
)

// PushClient delivers push payloads to the external push provider. The
// provider deduplicates on alert ID, so retries after a consumer restart
// are harmless.
type PushClient struct {
	providerURL string
	httpClient  *http.Client
}

// NewPushClient creates a push provider client
func NewPushClient(providerURL string, timeout time.Duration) *PushClient {
	return &PushClient{
		providerURL: providerURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Send posts one push message to the provider
func (p *PushClient) Send(ctx context.Context, msg models.PushMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.providerURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push provider returned status %d", resp.StatusCode)
	}
	return nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type webhook struct {
	url    string
	client *http.Client
}

func newWebhook(url string) webhook {
	return webhook{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// post sends body as JSON and decodes the gateway's reply. Only the listed
// status codes count as accepted.
func (w webhook) post(ctx context.Context, body any, accepted ...int) (webhookResponse, error) {
	var wr webhookResponse

	reqBody, err := json.Marshal(body)
	if err != nil {
		return wr, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(reqBody))
	if err != nil {
		return wr, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return wr, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	ok := false
	for _, code := range accepted {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		return wr, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return wr, nil
	}
	if err := json.Unmarshal(raw, &wr); err != nil {
		return wr, fmt.Errorf("failed to decode json: %w body=%q", err, string(raw))
	}
	return wr, nil
}

package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RelaySender posts rendered messages as JSON to an HTTP mail relay.
type RelaySender struct {
	client *http.Client
	url    string
	from   string
}

type relayRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type relayResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewRelaySender(config *EmailConfig) (*RelaySender, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("email relay URL is required")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &RelaySender{
		client: &http.Client{Timeout: timeout},
		url:    config.BaseURL,
		from:   config.FromEmail,
	}, nil
}

func (s *RelaySender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(relayRequest{From: s.from, To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach email relay: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read relay response: %w", err)
	}

	var out relayResponse
	if resp.StatusCode/100 != 2 {
		if json.Unmarshal(body, &out) == nil && out.Error != "" {
			return fmt.Errorf("email relay error: %s", out.Error)
		}
		return fmt.Errorf("email relay returned status %d", resp.StatusCode)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err == nil && !out.Success {
			return fmt.Errorf("email relay rejected message: %s", out.Error)
		}
	}
	return nil
}

package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pitchloop/sales-trainer/internal/model/conversation"
)

// maxResponseSize caps provider response reads (1 MB); thread listings are
// small and anything larger indicates a broken response.
const maxResponseSize = 1 << 20

// ProviderConfig carries connection settings for the hosted thread store.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Provider talks to the external conversational-memory service over its
// thread REST API.
type Provider struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewProvider builds a client for the configured memory service.
func NewProvider(cfg ProviderConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type threadEnvelope struct {
	ID string `json:"id"`
}

type messageList struct {
	Data []conversation.Message `json:"data"`
}

// CreateThread provisions a new empty thread on the provider.
func (p *Provider) CreateThread(ctx context.Context) (string, error) {
	body, status, err := p.do(ctx, http.MethodPost, "/threads", struct{}{})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("memory: create thread failed with status %d", status)
	}

	var env threadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("memory: decode thread response: %w", err)
	}
	if env.ID == "" {
		return "", fmt.Errorf("memory: provider returned empty thread id")
	}
	return env.ID, nil
}

// AppendMessage writes one turn to the end of the thread.
func (p *Provider) AppendMessage(ctx context.Context, threadRef, role, content string) error {
	payload := conversation.Message{Role: role, Content: content}

	_, status, err := p.do(ctx, http.MethodPost, "/threads/"+threadRef+"/messages", payload)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return ErrThreadNotFound
	case status < 200 || status > 299:
		return fmt.Errorf("memory: append message failed with status %d", status)
	}
	return nil
}

// ListMessages fetches the full thread in chronological order.
func (p *Provider) ListMessages(ctx context.Context, threadRef string) ([]conversation.Message, error) {
	body, status, err := p.do(ctx, http.MethodGet, "/threads/"+threadRef+"/messages", nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, ErrThreadNotFound
	case status < 200 || status > 299:
		return nil, fmt.Errorf("memory: list messages failed with status %d", status)
	}

	var list messageList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("memory: decode message list: %w", err)
	}
	return list.Data, nil
}

// do issues an authenticated JSON request and returns the limited body.
func (p *Provider) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("memory: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("memory: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("memory: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("memory: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

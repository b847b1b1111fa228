// Package mailer sends the post-interview summary email to the admin who set
// the interview up. Sending is best-effort: a failed summary is logged and
// never retried automatically.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.resend.com"
	defaultFrom    = "Raayon <onboarding@resend.dev>"
	sendTimeout    = 30 * time.Second
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Client sends email through the Resend HTTP API. A Client with an empty API
// key is valid and fails every send with a clear error.
type Client struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, from string) *Client {
	if from == "" {
		from = defaultFrom
	}
	return &Client{
		apiKey:  apiKey,
		from:    from,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: sendTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, from, baseURL string) *Client {
	c := NewClient(apiKey, from)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Enabled reports whether the client has credentials to send mail.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers one HTML email and returns the provider message ID.
func (c *Client) Send(ctx context.Context, to, subject, html string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("mailer disabled: no API key")
	}
	if !emailRe.MatchString(to) {
		return "", fmt.Errorf("invalid recipient address %q", to)
	}

	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var sr sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return sr.ID, nil
}

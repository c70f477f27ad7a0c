package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGraphURL = "https://graph.facebook.com/v17.0"
	defaultTimeout  = 10 * time.Second
	maxErrorBody    = 4 << 10
)

// GraphConfig configures the Graph API client.
type GraphConfig struct {
	BaseURL     string
	PageID      string
	AccessToken string
	Timeout     time.Duration
}

// GraphClient sends messages through the page's /messages endpoint.
type GraphClient struct {
	config GraphConfig
	client *http.Client
}

// NewGraphClient creates a client. A nil httpClient gets one with config.Timeout.
func NewGraphClient(cfg GraphConfig, httpClient *http.Client) *GraphClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &GraphClient{config: cfg, client: httpClient}
}

func (g *GraphClient) Name() string { return "graph" }

type sendRequest struct {
	Recipient map[string]string `json:"recipient"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

func (g *GraphClient) SendPrivateReply(ctx context.Context, commentID, text string) Result {
	if err := validateSend(commentID, text); err != nil {
		return Result{Error: fmt.Errorf("private reply: %w", err)}
	}
	return g.send(ctx, map[string]string{"comment_id": commentID}, text)
}

func (g *GraphClient) SendMessage(ctx context.Context, psid, text string) Result {
	if err := validateSend(psid, text); err != nil {
		return Result{Error: fmt.Errorf("direct message: %w", err)}
	}
	return g.send(ctx, map[string]string{"id": psid}, text)
}

func (g *GraphClient) endpoint() (string, error) {
	if g.config.PageID == "" || g.config.AccessToken == "" {
		return "", fmt.Errorf("page id and access token are required")
	}
	q := url.Values{"access_token": {g.config.AccessToken}}
	return fmt.Sprintf("%s/%s/messages?%s", g.config.BaseURL, url.PathEscape(g.config.PageID), q.Encode()), nil
}

func (g *GraphClient) send(ctx context.Context, recipient map[string]string, text string) Result {
	endpoint, err := g.endpoint()
	if err != nil {
		return Result{Error: err}
	}

	var body sendRequest
	body.Recipient = recipient
	body.Message.Text = text
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to encode message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{Error: sanitizeTransportError(err, g.config.AccessToken)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Error: &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}}
	}

	var out sendResponse
	// A 2xx with an unexpected body still counts as delivered.
	_ = json.Unmarshal(data, &out)
	return Result{Success: true, MessageID: out.MessageID, RecipientID: out.RecipientID}
}

// sanitizeTransportError keeps the access token out of logged URLs.
func sanitizeTransportError(err error, token string) error {
	msg := err.Error()
	if token != "" {
		msg = strings.ReplaceAll(msg, url.QueryEscape(token), "REDACTED")
		msg = strings.ReplaceAll(msg, token, "REDACTED")
	}
	return fmt.Errorf("messaging API request failed: %s", msg)
}

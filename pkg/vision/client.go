package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel   = "google/gemini-2.5-flash"
	maxErrorBody   = 2048
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("vision model api key is not configured")

// StatusError reports a non-200 answer from the model endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vision api returned status %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Retry      *RetryConfig
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Image is an encoded picture sent alongside the prompt.
type Image struct {
	Data     []byte
	MimeType string
}

// Client talks to an OpenAI-compatible chat completions endpoint that accepts
// images as data URIs (OpenRouter, Gemini's compatibility layer).
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	retry      *RetryConfig
	httpClient *http.Client
	logger     *zap.Logger
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient builds a client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryConfig()
		if cfg.MaxRetries > 0 {
			cfg.Retry.MaxRetries = cfg.MaxRetries
		}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		retry:      cfg.Retry,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Complete sends prompt and image in a single user turn and returns the text
// of the first choice. The caller's context bounds every attempt.
func (c *Client) Complete(ctx context.Context, prompt string, img Image) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", ErrNotConfigured
	}
	if len(img.Data) == 0 {
		return "", errors.New("vision image is empty")
	}

	body, err := json.Marshal(c.buildRequest(prompt, img))
	if err != nil {
		return "", fmt.Errorf("marshal vision request: %w", err)
	}

	start := time.Now()
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-Title", "Marksheet OCR")
		return c.httpClient.Do(req)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", fmt.Errorf("vision api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("vision response has no choices")
	}

	c.logger.Debug("vision completion",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("finish_reason", out.Choices[0].FinishReason),
	)
	return out.Choices[0].Message.Content, nil
}

func (c *Client) buildRequest(prompt string, img Image) completionRequest {
	mime := img.MimeType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)

	return completionRequest{
		Model: c.model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		}},
		Temperature: 0,
		Stream:      false,
	}
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/speaklab-backend/internal/logger"
)

// OpenAIClient is the raw provider transport. Every call is attempted
// exactly once; classification and fallbacks live in the orchestrator.
type OpenAIClient interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	Speech(ctx context.Context, req SpeechRequest) ([]byte, error)
	Transcribe(ctx context.Context, req TranscribeRequest) (string, error)
	Probe(ctx context.Context) error
	KeyFingerprint() string
}

type ChatRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

type SpeechRequest struct {
	Model  string
	Voice  string
	Input  string
	Speed  float64
	Format string
}

type TranscribeRequest struct {
	Model    string
	Audio    []byte
	Filename string
	Language string
}

type openAIClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewOpenAIClient(log *logger.Logger) (OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	timeoutSec := 120
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &openAIClient{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (c *openAIClient) doJSON(ctx context.Context, method, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req)
}

func (c *openAIClient) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// ---- Chat completions ----

type chatCompletionsRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	body := chatCompletionsRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: req.User})

	raw, err := c.doJSON(ctx, "POST", "/v1/chat/completions", body)
	if err != nil {
		return "", err
	}

	var resp chatCompletionsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("openai decode error: %w; raw=%s", err, string(raw))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty message content in response")
	}
	return content, nil
}

// ---- Speech synthesis ----

type speechSynthesisRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

func (c *openAIClient) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	body := speechSynthesisRequest{
		Model:          req.Model,
		Input:          req.Input,
		Voice:          req.Voice,
		Speed:          req.Speed,
		ResponseFormat: req.Format,
	}
	raw, err := c.doJSON(ctx, "POST", "/v1/audio/speech", body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty audio payload in response")
	}
	return raw, nil
}

// ---- Transcription ----

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *openAIClient) Transcribe(ctx context.Context, req TranscribeRequest) (string, error) {
	filename := req.Filename
	if filename == "" {
		filename = "recording.webm"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", req.Model); err != nil {
		return "", err
	}
	if req.Language != "" {
		if err := writer.WriteField("language", req.Language); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	raw, err := c.send(httpReq)
	if err != nil {
		return "", err
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("openai decode error: %w; raw=%s", err, string(raw))
	}
	return strings.TrimSpace(resp.Text), nil
}

// ---- Key probe ----

// Probe issues the cheapest authenticated call the API offers.
func (c *openAIClient) Probe(ctx context.Context) error {
	_, err := c.doJSON(ctx, "GET", "/v1/models", nil)
	return err
}

func (c *openAIClient) KeyFingerprint() string {
	return keyFingerprint(c.apiKey)
}

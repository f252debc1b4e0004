package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Ollama implements the Scanner interface using a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama Scanner instance
// Vision models known to read receipts reasonably well: llava:1.6,
// qwen2.5vl, llama3.2-vision.
func NewOllama(baseURL string, modelName string, client *http.Client) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client:  client,
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ScanReceipt analyzes a receipt frame and extracts the order data
func (o *Ollama) ScanReceipt(ctx context.Context, pngData []byte) (*ReceiptRecord, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemInstruction},
			{
				Role:    "user",
				Content: receiptScanPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
		Options: ollamaOptions{Temperature: temperature, NumPredict: maxOutputTokens},
	}

	var chatResp ollamaChatResponse
	if err := doJSON(ctx, o.client, http.MethodPost, o.baseURL+"/api/chat", nil, reqBody, &chatResp); err != nil {
		return nil, err
	}

	if strings.TrimSpace(chatResp.Message.Content) == "" {
		return nil, malformedReply(fmt.Errorf("empty response from ollama"))
	}
	return parseReceiptReply(chatResp.Message.Content)
}

// Ping lists local models, which fails fast when the server is down
func (o *Ollama) Ping(ctx context.Context) error {
	return doJSON(ctx, o.client, http.MethodGet, o.baseURL+"/api/tags", nil, nil, nil)
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}

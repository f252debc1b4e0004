package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	ping   *genai.GenerativeModel
}

// NewGemini creates a new Gemini Scanner instance. The models are configured
// once here and only read afterwards, so the scanner is safe for concurrent use.
func NewGemini(apiKey string, modelName string, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(maxOutputTokens)

	ping := client.GenerativeModel(modelName)
	ping.SetMaxOutputTokens(pingMaxTokens)

	return &Gemini{
		client: client,
		model:  model,
		ping:   ping,
	}, nil
}

// ScanReceipt analyzes a receipt frame and extracts the order data
func (g *Gemini) ScanReceipt(ctx context.Context, pngData []byte) (*ReceiptRecord, error) {
	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	parts := []genai.Part{
		genai.Text(receiptScanPrompt),
		genai.ImageData("png", pngData),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, malformedReply(fmt.Errorf("no response from gemini"))
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return parseReceiptReply(responseText.String())
}

// Ping sends a one-word prompt capped at a handful of output tokens
func (g *Gemini) Ping(ctx context.Context) error {
	if _, err := g.ping.GenerateContent(ctx, genai.Text(pingPrompt)); err != nil {
		return classifyGeminiError(err)
	}
	return nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// classifyGeminiError maps client errors onto the failure taxonomy. Any
// status the API reports (quota, credentials, safety blocks, server errors)
// is a rejection; a failure to reach the API is unreachable.
func classifyGeminiError(err error) *RecognitionFailure {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return backendRejected(err)
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPCode() <= 0 {
			if st := apiErr.GRPCStatus(); st != nil && (st.Code() == codes.Unavailable || st.Code() == codes.DeadlineExceeded) {
				return backendUnreachable(err)
			}
		}
		return backendRejected(err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return backendRejected(err)
	}

	if isTransportError(err) {
		return backendUnreachable(err)
	}
	return unexpectedFailure(err)
}

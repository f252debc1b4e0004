package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

// OpenAI implements the Scanner interface against an OpenAI-compatible
// chat completions API
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a new OpenAI Scanner instance. The client never retries;
// a failed call is terminal for the request.
func NewOpenAI(apiKey, modelName, baseURL string, client *http.Client) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &OpenAI{
		client: openai.NewClient(
			openaioption.WithAPIKey(apiKey),
			openaioption.WithBaseURL(strings.TrimRight(baseURL, "/")),
			openaioption.WithHTTPClient(client),
			openaioption.WithMaxRetries(0),
		),
		model: modelName,
	}, nil
}

// ScanReceipt analyzes a receipt frame and extracts the order data
func (o *OpenAI) ScanReceipt(ctx context.Context, pngData []byte) (*ReceiptRecord, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(receiptScanPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData),
				}),
			}),
		},
		MaxTokens:   openai.Int(maxOutputTokens),
		Temperature: openai.Float(temperature),
	}

	text, err := o.complete(ctx, params)
	if err != nil {
		return nil, err
	}
	return parseReceiptReply(text)
}

// Ping sends a one-word completion capped at a handful of tokens
func (o *OpenAI) Ping(ctx context.Context) error {
	_, err := o.complete(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(o.model),
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(pingPrompt)},
		MaxTokens: openai.Int(pingMaxTokens),
	})
	return err
}

func (o *OpenAI) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	var raw *http.Response
	completion, err := o.client.Chat.Completions.New(ctx, params, openaioption.WithResponseInto(&raw))
	if err != nil {
		return "", classifyOpenAIError(err, raw)
	}
	if len(completion.Choices) == 0 {
		return "", malformedReply(fmt.Errorf("no choices in response"))
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// Close is a no-op; the HTTP client is shared
func (o *OpenAI) Close() error {
	return nil
}

// classifyOpenAIError maps SDK errors onto the failure taxonomy. Any status
// the API answered with is a rejection, a 2xx body that could not be decoded
// is a malformed reply, and a call that got no response is unreachable.
func classifyOpenAIError(err error, raw *http.Response) *RecognitionFailure {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return backendRejected(fmt.Errorf("status %d: %s", apiErr.StatusCode, msg))
	}
	if isTransportError(err) {
		return backendUnreachable(err)
	}
	if raw != nil {
		if raw.StatusCode >= http.StatusBadRequest {
			// Error bodies without the API's envelope still carry a status
			return backendRejected(fmt.Errorf("status %d: %w", raw.StatusCode, err))
		}
		return malformedReply(err)
	}
	return unexpectedFailure(err)
}

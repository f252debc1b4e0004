package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is kept for messages
const maxErrorBody = 4 << 10

// apiError is the error envelope returned by OpenAI-compatible APIs and Ollama
type apiError struct {
	Error json.RawMessage `json:"error"`
}

// message extracts a readable message from either {"error": "..."} or
// {"error": {"message": "..."}}.
func (e apiError) message() string {
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Error, &obj); err == nil {
		return obj.Message
	}
	return ""
}

// doJSON sends a request with an optional JSON body and decodes a JSON
// response into out. Failures come back classified: transport errors are
// unreachable, non-2xx statuses are rejections, undecodable bodies are
// malformed replies.
func doJSON(ctx context.Context, client *http.Client, method, url string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return unexpectedFailure(fmt.Errorf("marshaling request: %w", err))
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return unexpectedFailure(fmt.Errorf("creating request: %w", err))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return backendUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var envelope apiError
		if json.Unmarshal(raw, &envelope) == nil && envelope.message() != "" {
			msg = envelope.message()
		}
		return backendRejected(fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTransportError(err) {
			return backendUnreachable(err)
		}
		return malformedReply(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

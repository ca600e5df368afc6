package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// maxSTTResponse caps the transcription response body.
const maxSTTResponse = 1 << 20

// HTTPRoot converts a WebSocket service root to its HTTP origin, for the
// REST endpoints that live next to the streaming one.
func HTTPRoot(serviceRoot string) string {
	switch {
	case strings.HasPrefix(serviceRoot, "wss://"):
		return "https://" + strings.TrimPrefix(serviceRoot, "wss://")
	case strings.HasPrefix(serviceRoot, "ws://"):
		return "http://" + strings.TrimPrefix(serviceRoot, "ws://")
	default:
		return serviceRoot
	}
}

// sttResponse is the transcription result envelope. Services disagree on
// the field name, so both are accepted.
type sttResponse struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
}

// UploadSTT posts a complete recording to the service's one-shot
// transcription endpoint and returns the transcript. It is the fallback
// for audio that was captured without a live streaming connection.
func UploadSTT(ctx context.Context, client *http.Client, serviceRoot, filename string, payload []byte) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if filename == "" {
		filename = "audio.wav"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("audio", filename)
	if err != nil {
		return "", fmt.Errorf("transport: build upload form: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", fmt.Errorf("transport: write upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("transport: close upload form: %w", err)
	}

	target := strings.TrimRight(HTTPRoot(serviceRoot), "/") + "/stt"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return "", fmt.Errorf("transport: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: upload audio: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSTTResponse))
	if err != nil {
		return "", fmt.Errorf("transport: read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transport: upload audio: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded sttResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("transport: decode upload response: %w", err)
	}
	if decoded.Text != "" {
		return decoded.Text, nil
	}
	return decoded.Transcript, nil
}

package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseBody caps synthesized payload reads from the fallback
// endpoint.
const maxResponseBody = 32 << 20

// httpPath is the one-shot request/response synthesis fallback. It
// tolerates two common backend quirks: servers that reject an emotion
// field (a 500 whose body mentions emotion), retried without the field,
// and servers without POST support, retried as a query-string GET.
type httpPath struct {
	endpoint string
	voiceID  string
	client   *http.Client
}

func (p *httpPath) request(ctx context.Context, req Request) (Result, error) {
	audio, err := p.post(ctx, req, true)
	switch {
	case err == nil:
		return Result{Audio: audio}, nil
	case isEmotionRejection(err):
		slog.Debug("synthesis endpoint rejected emotion field, retrying without it")
		if audio, err = p.post(ctx, req, false); err == nil {
			return Result{Audio: audio}, nil
		}
	}
	if !isMethodRejection(err) {
		return Result{}, err
	}

	slog.Debug("synthesis endpoint rejected POST, retrying as GET")
	audio, err = p.get(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{Audio: audio}, nil
}

func (p *httpPath) post(ctx context.Context, req Request, withEmotion bool) ([]byte, error) {
	body := map[string]string{"text": req.Text, "voice_id": p.voiceID}
	if withEmotion {
		body["emotion"] = req.Emotion
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("synth: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("synth: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return p.do(ctx, httpReq)
}

func (p *httpPath) get(ctx context.Context, req Request) ([]byte, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("synth: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("text", req.Text)
	q.Set("emotion", req.Emotion)
	if p.voiceID != "" {
		q.Set("voice_id", p.voiceID)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("synth: build request: %w", err)
	}
	return p.do(ctx, httpReq)
}

// do executes the request and normalises the two success shapes: a direct
// audio body, or a JSON body naming an audio_url to fetch.
func (p *httpPath) do(ctx context.Context, httpReq *http.Request) ([]byte, error) {
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synth: %s %s: %w", httpReq.Method, httpReq.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("synth: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{
			method: httpReq.Method,
			status: resp.StatusCode,
			body:   string(body),
		}
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/") {
		return body, nil
	}

	var indirect struct {
		AudioURL string `json:"audio_url"`
	}
	if err := json.Unmarshal(body, &indirect); err != nil || indirect.AudioURL == "" {
		return nil, fmt.Errorf("synth: response is neither audio nor an audio_url reference")
	}
	return p.fetch(ctx, indirect.AudioURL)
}

// fetch retrieves an out-of-band audio payload. Relative URLs resolve
// against the synthesis endpoint.
func (p *httpPath) fetch(ctx context.Context, ref string) ([]byte, error) {
	base, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("synth: bad endpoint: %w", err)
	}
	target, err := base.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("synth: bad audio_url %q: %w", ref, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("synth: build fetch: %w", err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synth: fetch audio_url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synth: fetch audio_url: status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("synth: read audio_url body: %w", err)
	}
	return audio, nil
}

// statusError carries enough of a failed response to drive the relaxation
// retries.
type statusError struct {
	method string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("synth: %s returned status %d", e.method, e.status)
}

// isEmotionRejection detects servers that choke on the emotion field: a
// 500 whose body mentions emotion.
func isEmotionRejection(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.status == http.StatusInternalServerError &&
		strings.Contains(strings.ToLower(se.body), "emotion")
}

// isMethodRejection detects POST-unsupported backends.
func isMethodRejection(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.method == http.MethodPost &&
		(se.status == http.StatusMethodNotAllowed || se.status == http.StatusNotImplemented)
}

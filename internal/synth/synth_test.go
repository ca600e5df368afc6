package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/voxwire/voxwire/internal/resilience"
)

// fakeSender records every JSON request sent over the fake stream.
type fakeSender struct {
	mu   sync.Mutex
	sent []map[string]string
}

func (s *fakeSender) SendJSON(_ context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) requests() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.sent...)
}

func TestSynthesize_StreamPathAnswered(t *testing.T) {
	sender := &fakeSender{}
	s, err := New(WithStream(sender, 500*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Simulate the service reacting shortly after the first shape.
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.NotifyResponse()
	}()

	res, err := s.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !res.Streamed {
		t.Error("Streamed = false, want true")
	}

	reqs := sender.requests()
	if len(reqs) != 1 {
		t.Fatalf("sent %d shapes, want 1", len(reqs))
	}
	if reqs[0]["type"] != "tts_request" || reqs[0]["text"] != "hello" {
		t.Errorf("first shape = %v", reqs[0])
	}
	if reqs[0]["emotion"] != DefaultEmotion {
		t.Errorf("emotion = %q, want %q", reqs[0]["emotion"], DefaultEmotion)
	}
}

func TestSynthesize_StreamProbesAllShapes(t *testing.T) {
	sender := &fakeSender{}
	s, err := New(WithStream(sender, 60*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = s.Synthesize(context.Background(), Request{Text: "hi"})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("Synthesize = %v, want ErrAllFailed", err)
	}

	reqs := sender.requests()
	if len(reqs) != 3 {
		t.Fatalf("sent %d shapes, want 3", len(reqs))
	}
	if reqs[1]["action"] != "tts" || reqs[1]["message"] != "hi" {
		t.Errorf("second shape = %v", reqs[1])
	}
	if reqs[2]["type"] != "tts" || reqs[2]["text"] != "hi" {
		t.Errorf("third shape = %v", reqs[2])
	}
}

func TestSynthesize_FallsBackToHTTP(t *testing.T) {
	wav := []byte("RIFFxxxxWAVEfake-audio")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer srv.Close()

	sender := &fakeSender{}
	s, err := New(
		WithStream(sender, 30*time.Millisecond),
		WithEndpoint(srv.URL, "voice-1", srv.Client()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := s.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Streamed {
		t.Error("Streamed = true, want HTTP fallback result")
	}
	if !bytes.Equal(res.Audio, wav) {
		t.Errorf("Audio = %q, want %q", res.Audio, wav)
	}
}

func TestSynthesize_EmotionRejectionRetriedWithout(t *testing.T) {
	wav := []byte("RIFFxxxxWAVEfake-audio")
	var bodies []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]string
		json.Unmarshal(raw, &m)
		bodies = append(bodies, m)

		if _, ok := m["emotion"]; ok {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":"unknown field: emotion"}`)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer srv.Close()

	s, err := New(WithEndpoint(srv.URL, "voice-1", srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := s.Synthesize(context.Background(), Request{Text: "hello", Emotion: "happy"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(res.Audio, wav) {
		t.Errorf("Audio = %q, want %q", res.Audio, wav)
	}
	if len(bodies) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(bodies))
	}
	if _, ok := bodies[1]["emotion"]; ok {
		t.Error("retry still carried the emotion field")
	}
	if bodies[1]["voice_id"] != "voice-1" {
		t.Errorf("voice_id = %q, want voice-1", bodies[1]["voice_id"])
	}
}

func TestSynthesize_PostUnsupportedRetriedAsGET(t *testing.T) {
	wav := []byte("RIFFxxxxWAVEfake-audio")
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(wav)
	}))
	defer srv.Close()

	s, err := New(WithEndpoint(srv.URL, "voice-1", srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := s.Synthesize(context.Background(), Request{Text: "hello there"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(res.Audio, wav) {
		t.Errorf("Audio = %q, want %q", res.Audio, wav)
	}
	if gotQuery == nil {
		t.Fatal("server never saw a GET")
	}
	if got := gotQuery["text"]; len(got) != 1 || got[0] != "hello there" {
		t.Errorf("text query = %v", got)
	}
}

func TestSynthesize_AudioURLIndirection(t *testing.T) {
	wav := []byte("RIFFxxxxWAVEfake-audio")
	mux := http.NewServeMux()
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"audio_url":"/clips/reply.wav"}`)
	})
	mux.HandleFunc("/clips/reply.wav", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s, err := New(WithEndpoint(srv.URL+"/tts", "", srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := s.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(res.Audio, wav) {
		t.Errorf("Audio = %q, want %q", res.Audio, wav)
	}
}

func TestSynthesize_AllPathsExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := New(WithEndpoint(srv.URL, "", srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = s.Synthesize(context.Background(), Request{Text: "hello"})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("Synthesize = %v, want ErrAllFailed", err)
	}
}

func TestNew_RequiresAPath(t *testing.T) {
	if _, err := New(); !errors.Is(err, ErrNoPath) {
		t.Fatalf("New() = %v, want ErrNoPath", err)
	}
}

func TestSynthesize_StaleAckIgnored(t *testing.T) {
	sender := &fakeSender{}
	s, err := New(WithStream(sender, 60*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// An ack delivered before the request starts is stale and must not
	// satisfy the new request.
	s.NotifyResponse()

	_, err = s.Synthesize(context.Background(), Request{Text: "hi"})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("Synthesize = %v, want ErrAllFailed (stale ack consumed)", err)
	}
}

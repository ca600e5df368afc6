package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPRoot(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ws://voice.local:8080/api", "http://voice.local:8080/api"},
		{"wss://voice.example.com", "https://voice.example.com"},
		{"https://already.http", "https://already.http"},
	}
	for _, tt := range tests {
		if got := HTTPRoot(tt.in); got != tt.want {
			t.Errorf("HTTPRoot(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUploadSTT_PostsMultipartAndDecodes(t *testing.T) {
	var gotPath, gotField, gotFilename string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotField = "audio"
		gotFilename = header.Filename
		gotBody, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"pickles are great"}`)
	}))
	defer srv.Close()

	root := "ws" + strings.TrimPrefix(srv.URL, "http")
	text, err := UploadSTT(context.Background(), srv.Client(), root, "clip.wav", []byte("RIFFdata"))
	if err != nil {
		t.Fatalf("UploadSTT: %v", err)
	}
	if text != "pickles are great" {
		t.Errorf("transcript = %q, want %q", text, "pickles are great")
	}
	if gotPath != "/stt" {
		t.Errorf("path = %q, want /stt", gotPath)
	}
	if gotField != "audio" || gotFilename != "clip.wav" {
		t.Errorf("form part = (%q, %q), want (audio, clip.wav)", gotField, gotFilename)
	}
	if string(gotBody) != "RIFFdata" {
		t.Errorf("uploaded payload = %q", gotBody)
	}
}

func TestUploadSTT_TranscriptFieldFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"transcript":"other services spell it differently"}`)
	}))
	defer srv.Close()

	text, err := UploadSTT(context.Background(), srv.Client(), srv.URL, "", []byte{1, 2})
	if err != nil {
		t.Fatalf("UploadSTT: %v", err)
	}
	if text != "other services spell it differently" {
		t.Errorf("transcript = %q", text)
	}
}

func TestUploadSTT_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := UploadSTT(context.Background(), srv.Client(), srv.URL, "", nil)
	if err == nil {
		t.Fatal("UploadSTT accepted a 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error %q does not carry the status", err)
	}
}

package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	var got GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			t.Errorf("missing api key")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"a\":"},{"text":"1}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	cli := NewAIClient(srv.URL, "secret", time.Second)
	temp := 0.1
	text, err := cli.Generate(context.Background(), "gemini-2.5-flash", &GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{
			BytesPart("video/mp4", []byte{1, 2, 3}),
			TextPart("what happens"),
		}}},
		GenerationConfig: &GenerationConfig{Temperature: &temp, MaxOutputTokens: 2048},
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != `{"a": 1}` {
		t.Fatalf("unexpected text %q", text)
	}

	parts := got.Contents[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil || parts[0].InlineData.MimeType != "video/mp4" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	if parts[0].InlineData.Data != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Fatal("inline data must be base64")
	}
	if got.GenerationConfig.MaxOutputTokens != 2048 || *got.GenerationConfig.Temperature != 0.1 {
		t.Fatalf("unexpected config %+v", got.GenerationConfig)
	}
}

func TestGenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	_, err := NewAIClient(srv.URL, "bad", time.Second).Generate(context.Background(), "m", &GenerateRequest{
		Contents: []Content{{Parts: []Part{TextPart("hi")}}},
	})
	if err == nil {
		t.Fatal("expect error")
	}
	t.Logf("err: %v", err)
}

func TestResponseText(t *testing.T) {
	var r GenerateResponse
	if r.Text() != "" || r.FinishReason() != "" {
		t.Fatal("empty response")
	}
	r.Candidates = []Candidate{
		{FinishReason: "SAFETY"},
		{Content: Content{Parts: []Part{{Text: "ok"}}}},
	}
	if r.Text() != "ok" {
		t.Fatalf("got %q", r.Text())
	}
}

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lkarlslund/aigateway/pkg/config"
)

func testClient(baseURL string) *Client {
	cfg := config.UpstreamConfig{
		BaseURL:        baseURL,
		APIKey:         "sk-test",
		AssistantID:    "asst_default",
		ChatModel:      "gpt-4o",
		ImageModel:     "dall-e-3",
		TimeoutSeconds: 10,
	}
	return NewClient(cfg)
}

func TestCompleteChat(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected authorization: %q", got)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"a short summary"}}]}`))
	}))
	defer ts.Close()

	c := testClient(ts.URL + "/v1")
	out, err := c.CompleteChat(context.Background(), CompletionRequest{
		SystemPrompt: "You summarize text.",
		UserPrompt:   "Please summarize: hello",
		MaxTokens:    500,
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("complete chat: %v", err)
	}
	if out != "a short summary" {
		t.Fatalf("unexpected completion: %q", out)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Fatalf("unexpected model: %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(500) {
		t.Fatalf("unexpected max_tokens: %v", gotBody["max_tokens"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(msgs))
	}
}

func TestCompleteChatWithImageBuildsMultipart(t *testing.T) {
	var raw []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"a red square"}}]}`))
	}))
	defer ts.Close()

	c := testClient(ts.URL + "/v1")
	out, err := c.CompleteChat(context.Background(), CompletionRequest{
		UserPrompt:    "Describe this image in detail.",
		ImageData:     []byte{0x01, 0x02, 0x03},
		ImageMIMEType: "image/png",
		MaxTokens:     1000,
	})
	if err != nil {
		t.Fatalf("complete chat: %v", err)
	}
	if out != "a red square" {
		t.Fatalf("unexpected analysis: %q", out)
	}
	body := string(raw)
	if !strings.Contains(body, "data:image/png;base64,AQID") {
		t.Fatalf("expected inline data url in request, got %s", body)
	}
	if !strings.Contains(body, `"type":"image_url"`) || !strings.Contains(body, `"type":"text"`) {
		t.Fatalf("expected multi-part content, got %s", body)
	}
}

func TestCompleteChatUpstreamErrorKeepsMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer ts.Close()

	c := testClient(ts.URL + "/v1")
	_, err := c.CompleteChat(context.Background(), CompletionRequest{UserPrompt: "hi"})
	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("expected upstream.Error, got %v", err)
	}
	if upErr.Message != "rate limited" {
		t.Fatalf("unexpected message: %q", upErr.Message)
	}
}

func TestGenerateImageAlwaysRequestsOne(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://img.example/1.png","revised_prompt":"a refined fox"}]}`))
	}))
	defer ts.Close()

	c := testClient(ts.URL + "/v1")
	images, err := c.GenerateImage(context.Background(), "a fox", "1792x1024", "hd")
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if gotBody["n"] != float64(1) {
		t.Fatalf("expected n=1, got %v", gotBody["n"])
	}
	if gotBody["size"] != "1792x1024" || gotBody["quality"] != "hd" {
		t.Fatalf("unexpected size/quality: %v %v", gotBody["size"], gotBody["quality"])
	}
	if len(images) != 1 || images[0].URL != "https://img.example/1.png" {
		t.Fatalf("unexpected images: %+v", images)
	}
	if images[0].RevisedPrompt != "a refined fox" {
		t.Fatalf("unexpected revised prompt: %q", images[0].RevisedPrompt)
	}
}

func TestSynthesizeSpeechMapsModelNames(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer ts.Close()

	c := testClient(ts.URL + "/v1")
	audio, err := c.SynthesizeSpeech(context.Background(), "hello", "alloy", "high-quality", 1.5)
	if err != nil {
		t.Fatalf("synthesize speech: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("unexpected audio: %q", audio)
	}
	if gotBody["model"] != "tts-1-hd" {
		t.Fatalf("expected high-quality to map to tts-1-hd, got %v", gotBody["model"])
	}
	if gotBody["voice"] != "alloy" || gotBody["speed"] != 1.5 {
		t.Fatalf("unexpected voice/speed: %v %v", gotBody["voice"], gotBody["speed"])
	}
}

func TestSpeechModelIDPassthrough(t *testing.T) {
	if got := speechModelID("standard"); string(got) != "tts-1" {
		t.Fatalf("standard mapped to %q", got)
	}
	if got := speechModelID("high-quality"); string(got) != "tts-1-hd" {
		t.Fatalf("high-quality mapped to %q", got)
	}
	if got := speechModelID("tts-v9-experimental"); string(got) != "tts-v9-experimental" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

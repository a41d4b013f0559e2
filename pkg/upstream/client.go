// Package upstream adapts the external model provider's API to the five
// gateway capabilities. Every operation is a single pass-through call: no
// retries and no caching, so upstream failures surface to the caller with
// the provider's own message intact.
package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/aigateway/pkg/config"
)

// Error is a normalized upstream failure. Message carries the
// provider-supplied error text when one was present; callers fall back to
// their own wording when it is empty.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s failed", e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapError(op string, err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Op: op, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	return &Error{Op: op, Err: err}
}

type CompletionRequest struct {
	SystemPrompt  string
	UserPrompt    string
	ImageData     []byte
	ImageMIMEType string
	MaxTokens     int
	Temperature   float32
}

type GeneratedImage struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type Client struct {
	api       *openai.Client
	baseURL   string
	apiKey    string
	chatModel string
	imgModel  string
	assistant string
	// Streaming runs have no meaningful overall deadline; this client is
	// only used for the non-streaming calls issued directly over HTTP.
	streamClient *http.Client
}

// NewClient builds the capability client. The default assistant identifier is
// resolved once here and never mutated afterwards; per-request overrides are
// plain parameters.
func NewClient(cfg config.UpstreamConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	return &Client{
		api:          openai.NewClientWithConfig(apiCfg),
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		chatModel:    cfg.ChatModel,
		imgModel:     cfg.ImageModel,
		assistant:    cfg.AssistantID,
		streamClient: &http.Client{},
	}
}

// DefaultAssistantID reports the configured assistant target used when a
// request carries no override.
func (c *Client) DefaultAssistantID() string { return c.assistant }

// CompleteChat issues a single-shot chat completion. When ImageData is set
// the user message becomes a multi-part content list with the inline
// base64-encoded image, which is how vision interpretation rides on the same
// operation as summarization.
func (c *Client) CompleteChat(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	if len(req.ImageData) > 0 {
		dataURL := fmt.Sprintf("data:%s;base64,%s", req.ImageMIMEType, base64.StdEncoding.EncodeToString(req.ImageData))
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.UserPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		})
	} else {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		})
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", wrapError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Op: "chat completion", Message: "no completion returned"}
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage requests exactly one image. The image model accepts only a
// single image per call, so n is fixed rather than caller-controlled.
func (c *Client) GenerateImage(ctx context.Context, prompt, size, quality string) ([]GeneratedImage, error) {
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Model:   c.imgModel,
		Prompt:  prompt,
		Size:    size,
		Quality: quality,
		N:       1,
	})
	if err != nil {
		return nil, wrapError("image generation", err)
	}
	images := make([]GeneratedImage, 0, len(resp.Data))
	for _, d := range resp.Data {
		images = append(images, GeneratedImage{URL: d.URL, RevisedPrompt: d.RevisedPrompt})
	}
	return images, nil
}

// SynthesizeSpeech returns the encoded audio bytes for the given text. The
// gateway's model names map onto the provider's TTS models; unrecognized
// values pass through for the provider to judge.
func (c *Client) SynthesizeSpeech(ctx context.Context, text, voice, model string, speed float64) ([]byte, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: speechModelID(model),
		Input: text,
		Voice: openai.SpeechVoice(voice),
		Speed: speed,
	})
	if err != nil {
		return nil, wrapError("speech synthesis", err)
	}
	defer resp.Close()
	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, &Error{Op: "speech synthesis", Err: err}
	}
	return audio, nil
}

func speechModelID(model string) openai.SpeechModel {
	switch model {
	case "standard":
		return openai.TTSModel1
	case "high-quality":
		return openai.TTSModel1HD
	default:
		return openai.SpeechModel(model)
	}
}

// AppendMessageAndStreamRun appends the user message to the thread, then
// opens a streamed assistant run and returns its ordered token stream. The
// caller owns the stream and must Close it.
func (c *Client) AppendMessageAndStreamRun(ctx context.Context, threadID, content, assistantID string) (TokenStream, error) {
	if assistantID == "" {
		assistantID = c.assistant
	}
	_, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return nil, wrapError("thread message", err)
	}
	return c.streamRun(ctx, threadID, assistantID)
}

// streamRun issues the run request directly over HTTP with stream enabled;
// the SDK only supports polled runs.
func (c *Client) streamRun(ctx context.Context, threadID, assistantID string) (TokenStream, error) {
	payload, err := json.Marshal(map[string]any{
		"assistant_id": assistantID,
		"stream":       true,
	})
	if err != nil {
		return nil, &Error{Op: "run stream", Err: err}
	}
	u := c.baseURL + "/threads/" + threadID + "/runs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Op: "run stream", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, &Error{Op: "run stream", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		resp.Body.Close()
		return nil, &Error{
			Op:         "run stream",
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(b),
		}
	}
	return newRunStream(resp.Body), nil
}

func extractErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error.Message) != "" {
		return strings.TrimSpace(payload.Error.Message)
	}
	return strings.TrimSpace(string(body))
}

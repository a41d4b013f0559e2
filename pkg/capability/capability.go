// Package capability defines the gateway's request value objects, one per
// supported AI capability, together with their validation and normalization
// rules and the stable error contract.
package capability

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	KindChatThread       Kind = "chat-thread"
	KindSummarize        Kind = "summarize"
	KindImageGenerate    Kind = "image-generate"
	KindImageInterpret   Kind = "image-interpret"
	KindSpeechSynthesize Kind = "speech-synthesize"
)

const (
	DefaultImageSize       = "1024x1024"
	DefaultImageQuality    = "standard"
	DefaultVoice           = "alloy"
	DefaultSpeechModel     = "standard"
	DefaultSpeechSpeed     = 1.0
	MinSpeechSpeed         = 0.25
	MaxSpeechSpeed         = 4.0
	DefaultInterpretPrompt = "Describe this image in detail."
	DefaultImageMIMEType   = "image/jpeg"
)

// GatewayError is the stable {status, message} failure contract. StatusCode
// is 400 for client-caused input errors and 500 for upstream or internal
// failures.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

func InvalidInput(message string) *GatewayError {
	return &GatewayError{StatusCode: http.StatusBadRequest, Message: message}
}

func Internal(message string) *GatewayError {
	return &GatewayError{StatusCode: http.StatusInternalServerError, Message: message}
}

type ChatThreadRequest struct {
	ThreadID          string
	Content           string
	AssistantOverride string
}

// ParseChatThread validates a chat append+stream payload. Unknown body
// fields are ignored.
func ParseChatThread(threadID string, body []byte) (ChatThreadRequest, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return ChatThreadRequest{}, InvalidInput("thread id is required")
	}
	var payload struct {
		Content     string `json:"content"`
		AssistantID string `json:"assistantId"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ChatThreadRequest{}, InvalidInput("invalid json body")
	}
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		return ChatThreadRequest{}, InvalidInput("content is required")
	}
	return ChatThreadRequest{
		ThreadID:          threadID,
		Content:           content,
		AssistantOverride: strings.TrimSpace(payload.AssistantID),
	}, nil
}

type SummarizeRequest struct {
	Text string
}

func ParseSummarize(body []byte) (SummarizeRequest, error) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return SummarizeRequest{}, InvalidInput("invalid json body")
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return SummarizeRequest{}, InvalidInput("text is required")
	}
	return SummarizeRequest{Text: text}, nil
}

type ImageGenerateRequest struct {
	Prompt  string
	Size    string
	Quality string
}

// ParseImageGenerate applies size/quality defaults. Values outside the known
// enumerations are passed through uninterpreted; the upstream provider owns
// that validation.
func ParseImageGenerate(body []byte) (ImageGenerateRequest, error) {
	var payload struct {
		Prompt  string `json:"prompt"`
		Size    string `json:"size"`
		Quality string `json:"quality"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ImageGenerateRequest{}, InvalidInput("invalid json body")
	}
	prompt := strings.TrimSpace(payload.Prompt)
	if prompt == "" {
		return ImageGenerateRequest{}, InvalidInput("prompt is required")
	}
	size := strings.TrimSpace(payload.Size)
	if size == "" {
		size = DefaultImageSize
	}
	quality := strings.TrimSpace(payload.Quality)
	if quality == "" {
		quality = DefaultImageQuality
	}
	return ImageGenerateRequest{Prompt: prompt, Size: size, Quality: quality}, nil
}

type ImageInterpretRequest struct {
	Image    []byte
	MIMEType string
	Prompt   string
}

// NewImageInterpret validates the multipart fields of an image interpretation
// call. A missing image is a hard input error; a missing prompt falls back to
// the default instruction.
func NewImageInterpret(image []byte, mimeType, prompt string) (ImageInterpretRequest, error) {
	if len(image) == 0 {
		return ImageInterpretRequest{}, InvalidInput("image is required")
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = DefaultImageMIMEType
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultInterpretPrompt
	}
	return ImageInterpretRequest{Image: image, MIMEType: mimeType, Prompt: prompt}, nil
}

type SpeechRequest struct {
	Text  string
	Voice string
	Model string
	Speed float64
}

func ParseSpeech(body []byte) (SpeechRequest, error) {
	var payload struct {
		Text  string   `json:"text"`
		Voice string   `json:"voice"`
		Model string   `json:"model"`
		Speed *float64 `json:"speed"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return SpeechRequest{}, InvalidInput("invalid json body")
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return SpeechRequest{}, InvalidInput("text is required")
	}
	voice := strings.TrimSpace(payload.Voice)
	if voice == "" {
		voice = DefaultVoice
	}
	model := strings.TrimSpace(payload.Model)
	if model == "" {
		model = DefaultSpeechModel
	}
	speed := DefaultSpeechSpeed
	if payload.Speed != nil {
		speed = *payload.Speed
	}
	return SpeechRequest{
		Text:  text,
		Voice: voice,
		Model: model,
		Speed: ClampSpeed(speed),
	}, nil
}

// ClampSpeed forces the playback speed into [0.25, 4.0]. Speed is a tuning
// knob, not a correctness gate, so out-of-range values are adjusted rather
// than rejected.
func ClampSpeed(speed float64) float64 {
	if speed < MinSpeechSpeed {
		return MinSpeechSpeed
	}
	if speed > MaxSpeechSpeed {
		return MaxSpeechSpeed
	}
	return speed
}

package gateway

import (
	"errors"
	"io"
	"net/http"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/lkarlslund/aigateway/pkg/capability"
	"github.com/lkarlslund/aigateway/pkg/upstream"
)

const (
	summarizeSystemPrompt = "You are a helpful assistant that summarizes transcriptions. Produce a concise and informative summary of the given text."
	summarizeUserPrefix   = "Please summarize the following text:\n\n"
	summarizeMaxTokens    = 500
	summarizeTemperature  = 0.7
	interpretMaxTokens    = 1000

	maxJSONBodyBytes = 8 << 20
	maxImageBytes    = 16 << 20
)

func fallbackMessage(kind capability.Kind) string {
	switch kind {
	case capability.KindChatThread:
		return "failed to stream assistant response"
	case capability.KindSummarize:
		return "failed to summarize text"
	case capability.KindImageGenerate:
		return "failed to generate image"
	case capability.KindImageInterpret:
		return "failed to analyze image"
	case capability.KindSpeechSynthesize:
		return "failed to generate speech"
	default:
		return "internal error"
	}
}

// capabilityHandler is the single pipeline every capability goes through:
// parse and validate, invoke upstream, shape the response. Failures from any
// stage funnel into the same error normalizer.
func (s *Server) capabilityHandler(kind capability.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.invoke(r, kind)
		if err != nil {
			s.writeError(w, kind, err)
			return
		}
		resp.write(w, r)
	}
}

func (s *Server) invoke(r *http.Request, kind capability.Kind) (response, error) {
	ctx := r.Context()
	switch kind {
	case capability.KindChatThread:
		body, err := readJSONBody(r)
		if err != nil {
			return nil, err
		}
		req, err := capability.ParseChatThread(chi.URLParam(r, "threadId"), body)
		if err != nil {
			return nil, err
		}
		stream, err := s.upstream.AppendMessageAndStreamRun(ctx, req.ThreadID, req.Content, req.AssistantOverride)
		if err != nil {
			return nil, err
		}
		return streamResponse{stream: stream}, nil

	case capability.KindSummarize:
		body, err := readJSONBody(r)
		if err != nil {
			return nil, err
		}
		req, err := capability.ParseSummarize(body)
		if err != nil {
			return nil, err
		}
		summary, err := s.upstream.CompleteChat(ctx, upstream.CompletionRequest{
			SystemPrompt: summarizeSystemPrompt,
			UserPrompt:   summarizeUserPrefix + req.Text,
			MaxTokens:    summarizeMaxTokens,
			Temperature:  summarizeTemperature,
		})
		if err != nil {
			return nil, err
		}
		return jsonResponse{payload: map[string]string{"summary": summary}}, nil

	case capability.KindImageGenerate:
		body, err := readJSONBody(r)
		if err != nil {
			return nil, err
		}
		req, err := capability.ParseImageGenerate(body)
		if err != nil {
			return nil, err
		}
		images, err := s.upstream.GenerateImage(ctx, req.Prompt, req.Size, req.Quality)
		if err != nil {
			return nil, err
		}
		return jsonResponse{payload: map[string]any{"images": images}}, nil

	case capability.KindImageInterpret:
		req, err := parseImageInterpret(r)
		if err != nil {
			return nil, err
		}
		analysis, err := s.upstream.CompleteChat(ctx, upstream.CompletionRequest{
			UserPrompt:    req.Prompt,
			ImageData:     req.Image,
			ImageMIMEType: req.MIMEType,
			MaxTokens:     interpretMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return jsonResponse{payload: map[string]string{"analysis": analysis}}, nil

	case capability.KindSpeechSynthesize:
		body, err := readJSONBody(r)
		if err != nil {
			return nil, err
		}
		req, err := capability.ParseSpeech(body)
		if err != nil {
			return nil, err
		}
		audio, err := s.upstream.SynthesizeSpeech(ctx, req.Text, req.Voice, req.Model, req.Speed)
		if err != nil {
			return nil, err
		}
		return binaryResponse{data: audio, contentType: "audio/mpeg", filename: "speech.mp3"}, nil

	default:
		return nil, capability.Internal("unknown capability")
	}
}

func readJSONBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err != nil {
		return nil, capability.InvalidInput("failed to read request body")
	}
	return body, nil
}

func parseImageInterpret(r *http.Request) (capability.ImageInterpretRequest, error) {
	var image []byte
	var mimeType string
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		image, err = io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil {
			return capability.ImageInterpretRequest{}, capability.InvalidInput("failed to read image upload")
		}
		mimeType = header.Header.Get("Content-Type")
	}
	return capability.NewImageInterpret(image, mimeType, r.FormValue("prompt"))
}

// writeError is the request boundary: every failure becomes a stable
// {error, status} pair and nothing else escapes.
func (s *Server) writeError(w http.ResponseWriter, kind capability.Kind, err error) {
	gw := normalizeError(kind, err)
	if gw.StatusCode >= http.StatusInternalServerError {
		log.Error("capability failed", "capability", kind, "err", err)
	}
	writeJSON(w, gw.StatusCode, map[string]string{"error": gw.Message})
}

func normalizeError(kind capability.Kind, err error) *capability.GatewayError {
	var gw *capability.GatewayError
	if errors.As(err, &gw) {
		return gw
	}
	var up *upstream.Error
	if errors.As(err, &up) && up.Message != "" {
		return capability.Internal(up.Message)
	}
	return capability.Internal(fallbackMessage(kind))
}

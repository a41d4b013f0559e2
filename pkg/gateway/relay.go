package gateway

import (
	"context"
	"io"
	"net/http"

	log "github.com/charmbracelet/log"

	"github.com/lkarlslund/aigateway/pkg/upstream"
)

type relayState int

const (
	relayIdle relayState = iota
	relayStreaming
	relayCompleted
	relayAborted
)

func (s relayState) String() string {
	switch s {
	case relayIdle:
		return "idle"
	case relayStreaming:
		return "streaming"
	case relayCompleted:
		return "completed"
	case relayAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// relayTokens bridges an upstream token stream onto the client connection.
// Tokens are written in arrival order, one flush per token, with no
// buffering or transformation. The relay moves Idle -> Streaming on the
// first token, Completed on clean upstream close, and Aborted when the
// client disconnects, a write fails, or upstream errors mid-stream. On
// abort the upstream stream is closed so no orphaned subscription keeps
// pulling. When upstream errors mid-stream the relay panics with
// http.ErrAbortHandler to sever the connection: the status is already
// committed, and only an abrupt termination lets the client distinguish an
// incomplete answer from a completed one.
func relayTokens(ctx context.Context, w http.ResponseWriter, stream upstream.TokenStream) relayState {
	defer stream.Close()

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	state := relayIdle
	for {
		select {
		case <-ctx.Done():
			log.Debug("stream relay client disconnected", "state", state)
			return relayAborted
		case tok, ok := <-stream.Tokens():
			if !ok {
				if err := stream.Err(); err != nil {
					log.Error("stream relay upstream error", "err", err)
					// Recoverer re-panics this sentinel and net/http drops
					// the connection without a terminal chunk, so the
					// client's read ends in an error instead of EOF.
					panic(http.ErrAbortHandler)
				}
				return relayCompleted
			}
			state = relayStreaming
			if _, err := io.WriteString(w, tok); err != nil {
				log.Debug("stream relay write failed", "err", err)
				return relayAborted
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

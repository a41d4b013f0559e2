package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRelayTokensPreservesOrder(t *testing.T) {
	stream := newFakeTokenStream([]string{"A", "B", "C"}, nil)
	w := httptest.NewRecorder()

	state := relayTokens(context.Background(), w, stream)
	if state != relayCompleted {
		t.Fatalf("unexpected state: %v", state)
	}
	if got := w.Body.String(); got != "ABC" {
		t.Fatalf("tokens out of order or dropped: %q", got)
	}
	if !stream.wasClosed() {
		t.Fatal("stream not closed after relay")
	}
}

func TestRelayAbortsWhenClientGone(t *testing.T) {
	stream := &fakeTokenStream{ch: make(chan string)}
	w := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := relayTokens(ctx, w, stream)
	if state != relayAborted {
		t.Fatalf("unexpected state: %v", state)
	}
	if !stream.wasClosed() {
		t.Fatal("stream not closed after client disconnect")
	}
}

func TestRelaySeversConnectionOnMidStreamError(t *testing.T) {
	stream := newFakeTokenStream([]string{"partial"}, errors.New("run failed"))
	w := httptest.NewRecorder()

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Fatalf("expected http.ErrAbortHandler, got %v", r)
		}
		if got := w.Body.String(); got != "partial" {
			t.Fatalf("expected partial output to survive, got %q", got)
		}
		if w.Code != http.StatusOK {
			t.Fatalf("status already committed before failure, got %d", w.Code)
		}
		if !stream.wasClosed() {
			t.Fatal("stream not closed after mid-stream error")
		}
	}()
	relayTokens(context.Background(), w, stream)
	t.Fatal("relay returned cleanly after mid-stream error")
}

func TestRelayStateString(t *testing.T) {
	cases := map[relayState]string{
		relayIdle:      "idle",
		relayStreaming: "streaming",
		relayCompleted: "completed",
		relayAborted:   "aborted",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("state %d: got %q want %q", state, got, want)
		}
	}
}

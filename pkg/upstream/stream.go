package upstream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// TokenStream is an ordered sequence of incremental text fragments from a
// streamed assistant run. Tokens arrive in upstream order; the channel closes
// when the run completes or fails, after which Err reports a mid-stream
// failure if there was one. Close releases the upstream subscription and is
// safe to call at any time, including concurrently with reads.
type TokenStream interface {
	Tokens() <-chan string
	Err() error
	Close() error
}

type runStream struct {
	body   io.ReadCloser
	tokens chan string
	done   chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

func newRunStream(body io.ReadCloser) *runStream {
	rs := &runStream{
		body:   body,
		tokens: make(chan string),
		done:   make(chan struct{}),
	}
	go rs.consume()
	return rs
}

func (rs *runStream) Tokens() <-chan string { return rs.tokens }

func (rs *runStream) Err() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.err
}

func (rs *runStream) Close() error {
	rs.closeOnce.Do(func() {
		close(rs.done)
		rs.body.Close()
	})
	return nil
}

func (rs *runStream) setErr(err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.err == nil {
		rs.err = err
	}
}

func (rs *runStream) closed() bool {
	select {
	case <-rs.done:
		return true
	default:
		return false
	}
}

// consume parses the run's SSE event stream and forwards message delta text
// in arrival order. Sends block until the consumer reads, which is the
// back-pressure: we never pull from upstream faster than the client drains.
func (rs *runStream) consume() {
	defer close(rs.tokens)
	defer rs.body.Close()

	scanner := bufio.NewScanner(rs.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	event := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			switch event {
			case "thread.message.delta":
				for _, tok := range parseMessageDelta(data) {
					select {
					case rs.tokens <- tok:
					case <-rs.done:
						return
					}
				}
			case "thread.run.failed", "thread.run.expired", "error":
				rs.setErr(&Error{Op: "run stream", Message: parseRunError(data)})
				return
			case "thread.run.completed":
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && !rs.closed() {
		rs.setErr(&Error{Op: "run stream", Err: err})
	}
}

func parseMessageDelta(data string) []string {
	var payload struct {
		Delta struct {
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"delta"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil
	}
	out := make([]string, 0, len(payload.Delta.Content))
	for _, part := range payload.Delta.Content {
		if part.Type != "text" || part.Text.Value == "" {
			continue
		}
		out = append(out, part.Text.Value)
	}
	return out
}

func parseRunError(data string) string {
	var payload struct {
		LastError struct {
			Message string `json:"message"`
		} `json:"last_error"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.LastError.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error.Message)
}

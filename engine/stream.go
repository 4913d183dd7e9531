package engine

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentcore/core"
)

var wordChunk = regexp.MustCompile(`\S+\s*`)

// SplitWords segments text into word-sized chunks whose concatenation is text.
func SplitWords(text string) []string {
	locs := wordChunk.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	chunks := make([]string, len(locs))
	for i, l := range locs {
		start := l[0]
		if i == 0 {
			start = 0
		}
		chunks[i] = text[start:l[1]]
	}
	return chunks
}

// Stream executes req and delivers the response as ordered events: start,
// then chunk events and complete, or error. The channel is closed after the
// terminal event or when ctx is done.
func (o *Orchestrator) Stream(ctx context.Context, req core.ExecutionRequest) <-chan core.StreamEvent {
	size := o.config.StreamBufferSize
	if size <= 0 {
		size = 1
	}
	ch := make(chan core.StreamEvent, size)
	invocationID := uuid.NewString()
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	ctx, done := o.track(ctx, invocationID)

	go func() {
		defer close(ch)
		defer done()

		send := func(ev core.StreamEvent) bool {
			ev.InvocationID = invocationID
			ev.Timestamp = time.Now()
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		sendErr := func(msg string) {
			// best effort: the consumer may already be gone
			select {
			case ch <- core.StreamEvent{Type: core.StreamError, InvocationID: invocationID, Message: msg, Timestamp: time.Now()}:
			default:
			}
		}

		if !send(core.StreamEvent{Type: core.StreamStart, Metadata: map[string]any{
			"agent_id":   req.AgentID,
			"session_id": req.SessionID,
		}}) {
			return
		}

		res := o.execute(ctx, invocationID, req)
		if !res.Success {
			send(core.StreamEvent{Type: core.StreamError, Message: res.Error})
			return
		}

		chunks := SplitWords(res.Output)
		for i, c := range chunks {
			if !send(core.StreamEvent{
				Type:     core.StreamChunk,
				Text:     c,
				Progress: float64(i+1) * 100 / float64(len(chunks)),
			}) {
				sendErr(ctx.Err().Error())
				return
			}
			o.metrics.observeChunk()
			if i < len(chunks)-1 && o.config.StreamChunkDelay > 0 {
				t := time.NewTimer(o.config.StreamChunkDelay)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					sendErr(ctx.Err().Error())
					return
				}
			}
		}

		send(core.StreamEvent{Type: core.StreamComplete, Text: res.Output, Metadata: map[string]any{
			"model":      res.Model,
			"session_id": res.SessionID,
			"tools_used": res.ToolsUsed,
			"latency_ms": res.Latency.Milliseconds(),
			"chunks":     len(chunks),
		}})
	}()
	return ch
}

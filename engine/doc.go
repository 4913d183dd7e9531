// Package engine implements the agent execution orchestrator.
//
// One call walks a fixed state machine:
//
//	Received -> ProfileLoaded -> ToolsResolved -> PromptAssembled
//	         -> Generated -> MemoryUpdated -> Returned
//
// Any step may end in Failed instead. Failures never escape as Go errors;
// they are reported through core.ExecutionResult with Success=false, the
// typed cause in Err and the latency measured up to the failure.
//
// Failure semantics:
//   - unknown agent: core.ErrAgentNotFound, no retry
//   - tool failure: rendered as "Error: ..." text and fed to the model
//   - generation failure: *core.ExecutionError; the session buffer is not touched
//
// Model resolution order: request override, agent profile, system-wide default
// setting, Config.FallbackModel, backend default.
//
// Streaming:
//
// Stream generates the full response first and then re-segments it into
// word-sized chunks sent with a fixed delay. It is not token-level streaming
// from the backend. Cancelling the context (for example when the client
// disconnects) aborts the in-flight generation and stops chunk delivery.
//
//	for ev := range orch.Stream(ctx, req) {
//	    switch ev.Type {
//	    case core.StreamChunk:
//	        fmt.Print(ev.Text)
//	    case core.StreamError:
//	        log.Println(ev.Message)
//	    }
//	}
package engine

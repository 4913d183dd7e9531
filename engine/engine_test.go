package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/embedding"
	"github.com/hupe1980/agentcore/internal/testutil"
	"github.com/hupe1980/agentcore/memory"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/profile"
	"github.com/hupe1980/agentcore/tool"
)

var _ model.Backend = (*blockingBackend)(nil)

// blockingBackend blocks every generation until its context is done.
type blockingBackend struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{started: make(chan struct{})}
}

func (b *blockingBackend) Generate(ctx context.Context, _, _ string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return "", fmt.Errorf("%w: %w", core.ErrGenerationBackend, ctx.Err())
}

func (b *blockingBackend) Chat(ctx context.Context, _ []model.Message, m string) (string, error) {
	return b.Generate(ctx, "", m)
}

func (b *blockingBackend) ListModels(context.Context) ([]string, error) {
	return []string{"blocking"}, nil
}

func (b *blockingBackend) Info() model.Info {
	return model.Info{Provider: "blocking", DefaultModel: "blocking"}
}

func newTestOrchestrator(t *testing.T, backend model.Backend, optFns ...func(o *Options)) (*Orchestrator, *profile.InMemoryStore) {
	t.Helper()
	profiles := profile.NewInMemoryStore(
		testutil.NewProfileBuilder("1").Name("Helper").Tool(tool.NameCalculator).Build(),
		testutil.NewProfileBuilder("2").Name("Pinned").Model("pinned-model").Window(1).Build(),
	)
	fns := append([]func(o *Options){func(o *Options) { o.Config.StreamChunkDelay = 0 }}, optFns...)
	return New(profiles, backend, fns...), profiles
}

// -------------------- ExecuteAgent Tests --------------------

func TestExecuteAgent_SuccessWithTool(t *testing.T) {
	backend := model.NewMockBackend()
	backend.AddResponse("What is 2+2", "It is 4.")
	o, _ := newTestOrchestrator(t, backend)

	res := o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", SessionID: "s1", Query: "What is 2+2?"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "It is 4.", res.Output)
	assert.Equal(t, []string{tool.NameCalculator}, res.ToolsUsed)
	assert.Equal(t, "mock-model", res.Model)
	assert.Equal(t, "s1", res.SessionID)
	assert.NotEmpty(t, res.InvocationID)
	assert.Nil(t, res.Err)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "[TOOL_RESULT]")
	assert.Contains(t, calls[0].Prompt, "= 4")
	assert.Contains(t, calls[0].Prompt, "- calculator:")

	hist := o.Buffer().History("s1")
	require.Len(t, hist, 2)
	assert.Equal(t, core.RoleUser, hist[0].Role)
	assert.Equal(t, "What is 2+2?", hist[0].Content)
	assert.Equal(t, core.RoleAssistant, hist[1].Role)
	assert.Equal(t, "It is 4.", hist[1].Content)
	assert.Equal(t, 0, o.Active())
}

func TestExecuteAgent_UnknownAgent(t *testing.T) {
	backend := model.NewMockBackend()
	o, _ := newTestOrchestrator(t, backend)

	res := o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "999", SessionID: "s", Query: "hi"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
	assert.True(t, errors.Is(res.Err, core.ErrAgentNotFound))

	var execErr *core.ExecutionError
	require.ErrorAs(t, res.Err, &execErr)
	assert.Equal(t, StageProfile, execErr.Stage)
	assert.Empty(t, backend.Calls())
	assert.Empty(t, o.Buffer().History("s"))
}

func TestExecuteAgent_InvalidRequest(t *testing.T) {
	o, _ := newTestOrchestrator(t, model.NewMockBackend())

	for _, req := range []core.ExecutionRequest{
		{AgentID: "1", Query: "   "},
		{AgentID: "", Query: "hi"},
	} {
		res := o.ExecuteAgent(context.Background(), req)
		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Err, core.ErrInvalidRequest)
	}
}

func TestExecuteAgent_GeneratesSessionID(t *testing.T) {
	o, _ := newTestOrchestrator(t, model.NewMockBackend())

	res := o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", Query: "hello"})
	require.True(t, res.Success, res.Error)
	require.NotEmpty(t, res.SessionID)
	assert.Len(t, o.Buffer().History(res.SessionID), 2)
}

func TestExecuteAgent_GenerationFailureLeavesBuffer(t *testing.T) {
	backend := model.NewMockBackend()
	o, _ := newTestOrchestrator(t, backend)
	o.Buffer().AddTurn("s", core.RoleUser, "earlier", 5)

	backend.SetError(fmt.Errorf("%w: connection refused", core.ErrBackendUnreachable))
	res := o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", SessionID: "s", Query: "hello"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, core.ErrBackendUnreachable)
	assert.Equal(t, "mock-model", res.Model)

	var execErr *core.ExecutionError
	require.ErrorAs(t, res.Err, &execErr)
	assert.Equal(t, StageGenerate, execErr.Stage)
	assert.Equal(t, "mock-model", execErr.Model)

	hist := o.Buffer().History("s")
	require.Len(t, hist, 1)
	assert.Equal(t, "earlier", hist[0].Content)
}

func TestExecuteAgent_ModelResolution(t *testing.T) {
	backend := model.NewMockBackend("backend-default")
	o, profiles := newTestOrchestrator(t, backend, func(o *Options) { o.Config.FallbackModel = "fallback" })
	ctx := context.Background()

	res := o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "2", Query: "hi", ModelOverride: "override"})
	assert.Equal(t, "override", res.Model)

	res = o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "2", Query: "hi"})
	assert.Equal(t, "pinned-model", res.Model)

	res = o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "1", Query: "hi"})
	assert.Equal(t, "fallback", res.Model)

	profiles.SetDefaultModel("settings-default")
	res = o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "1", Query: "hi"})
	assert.Equal(t, "settings-default", res.Model)

	calls := backend.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "override", calls[0].Model)
	assert.Equal(t, "settings-default", calls[3].Model)

	o2, _ := newTestOrchestrator(t, backend)
	res = o2.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "1", Query: "hi"})
	assert.Equal(t, "backend-default", res.Model)
}

func TestExecuteAgent_HistoryWindow(t *testing.T) {
	backend := model.NewMockBackend()
	o, _ := newTestOrchestrator(t, backend)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res := o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "2", SessionID: "w", Query: fmt.Sprintf("question %d", i)})
		require.True(t, res.Success, res.Error)
	}

	hist := o.Buffer().History("w")
	require.Len(t, hist, 2)
	assert.Equal(t, "question 3", hist[0].Content)

	calls := backend.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[2].Prompt, "User: question 2")
	assert.NotContains(t, calls[2].Prompt, "User: question 1")
}

func TestExecuteAgent_HistoryIsolatedPerSession(t *testing.T) {
	backend := model.NewMockBackend()
	o, _ := newTestOrchestrator(t, backend)
	testutil.NewTurnBuilder().User("secret a").Assistant("noted").Load(o.Buffer(), "a", 5)

	res := o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", SessionID: "b", Query: "hi"})
	require.True(t, res.Success, res.Error)
	assert.NotContains(t, backend.Calls()[0].Prompt, "secret a")
}

func TestExecuteAgent_MemoryPersistAndRecall(t *testing.T) {
	store, err := memory.NewSQLiteStore(":memory:", embedding.NewHashEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	backend := model.NewMockBackend()
	backend.AddResponse("Tell me about channels", "Channels connect goroutines.")
	o, _ := newTestOrchestrator(t, backend, func(o *Options) {
		o.Memory = store
		o.Config.RecallThreshold = 0.1
	})
	ctx := context.Background()

	res := o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "1", SessionID: "m1", Query: "Tell me about channels"})
	require.True(t, res.Success, res.Error)
	assert.NotContains(t, backend.Calls()[0].Prompt, "[RELEVANT_MEMORY]")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.AgentMemories)

	res = o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "1", SessionID: "m2", Query: "Tell me about channels"})
	require.True(t, res.Success, res.Error)
	prompt := backend.Calls()[1].Prompt
	assert.Contains(t, prompt, "[RELEVANT_MEMORY]")
	assert.Contains(t, prompt, "Channels connect goroutines.")
}

func TestExecuteAgent_RecallIgnoresOtherAgentsMemories(t *testing.T) {
	store, err := memory.NewSQLiteStore(":memory:", embedding.NewHashEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	add := func(owner, content string) {
		t.Helper()
		_, err := store.Add(ctx, core.AddMemoryRequest{
			OwnerKind:  core.OwnerAgent,
			OwnerID:    owner,
			Content:    content,
			MemoryType: "fact",
		})
		require.NoError(t, err)
	}
	add("1", "agent one fact about channels")
	for i := 0; i < 3; i++ {
		add("other", "Tell me about channels")
	}

	backend := model.NewMockBackend()
	backend.AddResponse("Tell me about channels", "Channels connect goroutines.")
	o, _ := newTestOrchestrator(t, backend, func(o *Options) {
		o.Memory = store
		o.Config.RecallThreshold = 0.1
		o.Config.PersistMemory = false
	})

	res := o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "1", SessionID: "r1", Query: "Tell me about channels"})
	require.True(t, res.Success, res.Error)
	prompt := backend.Calls()[0].Prompt
	assert.Contains(t, prompt, "[RELEVANT_MEMORY]")
	assert.Contains(t, prompt, "agent one fact about channels")
	assert.Equal(t, 1, strings.Count(prompt, "Tell me about channels"))
}

func TestExecuteAgent_ConcurrencyLimit(t *testing.T) {
	backend := newBlockingBackend()
	o, _ := newTestOrchestrator(t, backend, func(o *Options) { o.Config.MaxConcurrent = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan core.ExecutionResult, 1)
	go func() { done <- o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "1", Query: "hi"}) }()
	<-backend.started

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	res := o.ExecuteAgent(waitCtx, core.ExecutionRequest{AgentID: "1", Query: "hi"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	var execErr *core.ExecutionError
	require.ErrorAs(t, res.Err, &execErr)
	assert.Equal(t, StageQueue, execErr.Stage)

	cancel()
	first := <-done
	assert.False(t, first.Success)
	assert.ErrorIs(t, first.Err, context.Canceled)
}

func TestCancel(t *testing.T) {
	backend := newBlockingBackend()
	cbs := NewCallbackManager()
	ids := make(chan string, 1)
	cbs.Register(NewFunctionCallback(CallbackBeforeAgent, func(_ context.Context, cc *CallbackContext) error {
		ids <- cc.InvocationID
		return nil
	}))
	o, _ := newTestOrchestrator(t, backend, func(o *Options) { o.Callbacks = cbs })

	done := make(chan core.ExecutionResult, 1)
	go func() {
		done <- o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", SessionID: "c", Query: "hi"})
	}()
	id := <-ids
	<-backend.started
	assert.Equal(t, 1, o.Active())

	require.NoError(t, o.Cancel(id))
	res := <-done
	assert.False(t, res.Success)
	assert.Equal(t, id, res.InvocationID)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, o.Buffer().History("c"))
	assert.Equal(t, 0, o.Active())

	assert.ErrorIs(t, o.Cancel(id), ErrInvocationNotFound)
}

// -------------------- Callback Tests --------------------

func TestCallbacks_Order(t *testing.T) {
	var (
		mu    sync.Mutex
		order []CallbackType
	)
	record := func(ct CallbackType) Callback {
		return NewFunctionCallback(ct, func(context.Context, *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, ct)
			return nil
		})
	}
	cbs := NewCallbackManager()
	for _, ct := range []CallbackType{
		CallbackBeforeAgent, CallbackAfterAgent, CallbackBeforeModel, CallbackAfterModel,
		CallbackBeforeTool, CallbackAfterTool, CallbackOnError,
	} {
		cbs.Register(record(ct))
	}
	o, _ := newTestOrchestrator(t, model.NewMockBackend(), func(o *Options) { o.Callbacks = cbs })

	res := o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", Query: "what is 3*3"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []CallbackType{
		CallbackBeforeAgent, CallbackBeforeTool, CallbackAfterTool,
		CallbackBeforeModel, CallbackAfterModel, CallbackAfterAgent,
	}, order)
}

func TestCallbacks_QueryGuardRejects(t *testing.T) {
	backend := model.NewMockBackend()
	cbs := NewCallbackManager()
	cbs.Register(NewQueryGuardCallback(func(q string) error {
		if strings.Contains(strings.ToLower(q), "forbidden") {
			return errors.New("query rejected")
		}
		return nil
	}))
	var onError *CallbackContext
	cbs.Register(NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
		onError = cc
		return nil
	}))
	o, _ := newTestOrchestrator(t, backend, func(o *Options) { o.Callbacks = cbs })

	res := o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", SessionID: "g", Query: "a forbidden topic"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "query rejected")
	assert.Empty(t, backend.Calls())
	assert.Empty(t, o.Buffer().History("g"))

	require.NotNil(t, onError)
	assert.Equal(t, StageCallback, onError.Stage)

	res = o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", SessionID: "g", Query: "a fine topic"})
	assert.True(t, res.Success, res.Error)
}

func TestCallbacks_BeforeToolSkipsTool(t *testing.T) {
	backend := model.NewMockBackend()
	cbs := NewCallbackManager()
	cbs.Register(NewFunctionCallback(CallbackBeforeTool, func(context.Context, *CallbackContext) error {
		return errors.New("no tools today")
	}))
	o, _ := newTestOrchestrator(t, backend, func(o *Options) { o.Callbacks = cbs })

	res := o.ExecuteAgent(context.Background(), core.ExecutionRequest{AgentID: "1", Query: "what is 3*3"})
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.ToolsUsed)
	assert.NotContains(t, backend.Calls()[0].Prompt, "[TOOL_RESULT]")
}

func TestCallbackManager_StopsAtFirstError(t *testing.T) {
	cbs := NewCallbackManager()
	second := false
	cbs.Register(
		NewFunctionCallback(CallbackAfterModel, func(context.Context, *CallbackContext) error { return errors.New("stop") }),
		NewFunctionCallback(CallbackAfterModel, func(context.Context, *CallbackContext) error { second = true; return nil }),
	)
	err := cbs.Execute(context.Background(), CallbackAfterModel, &CallbackContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after_model callback")
	assert.False(t, second)
	assert.NoError(t, cbs.Execute(context.Background(), CallbackBeforeAgent, &CallbackContext{}))
}

// -------------------- Metrics Tests --------------------

func TestMetrics_RecordsOutcomes(t *testing.T) {
	metrics := NewMetrics("agentcore")
	o, _ := newTestOrchestrator(t, model.NewMockBackend(), func(o *Options) { o.Metrics = metrics })
	ctx := context.Background()

	o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "1", SessionID: "x", Query: "what is 1+1"})
	o.ExecuteAgent(ctx, core.ExecutionRequest{AgentID: "999", Query: "hi"})

	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Executions.WithLabelValues(outcomeSuccess)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Executions.WithLabelValues(outcomeNotFound)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.ToolCalls.WithLabelValues(tool.NameCalculator, outcomeSuccess)))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(metrics.InFlight))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.ActiveSessions))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeExecution(outcomeSuccess, time.Second)
		m.observeTool("x", true)
		m.inFlight(1)
		m.observeChunk()
		m.setSessions(nil)
	})
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, outcomeSuccess, outcomeFor(nil))
	assert.Equal(t, outcomeNotFound, outcomeFor(&core.ExecutionError{Err: core.ErrAgentNotFound}))
	assert.Equal(t, outcomeInvalid, outcomeFor(core.ErrInvalidRequest))
	assert.Equal(t, outcomeUnreachable, outcomeFor(fmt.Errorf("x: %w", core.ErrBackendUnreachable)))
	assert.Equal(t, outcomeMalformed, outcomeFor(core.ErrMalformedResponse))
	assert.Equal(t, outcomeCanceled, outcomeFor(context.Canceled))
	assert.Equal(t, outcomeError, outcomeFor(errors.New("boom")))
}

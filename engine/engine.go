package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/prompt"
	"github.com/hupe1980/agentcore/session"
	"github.com/hupe1980/agentcore/tool"
)

// ErrInvocationNotFound is returned by Cancel for unknown or finished invocations.
var ErrInvocationNotFound = errors.New("invocation not found")

// MemoryTypeConversation tags exchanges persisted by the orchestrator.
const MemoryTypeConversation = "conversation"

// Execution stages reported in core.ExecutionError.Stage.
const (
	StageValidate = "validate"
	StageQueue    = "queue"
	StageProfile  = "load_profile"
	StagePrompt   = "assemble_prompt"
	StageCallback = "callback"
	StageGenerate = "generate"
)

// Config defines tuning parameters of the orchestrator.
type Config struct {
	// MaxConcurrent bounds in-flight executions. Zero means unlimited.
	MaxConcurrent int
	// DefaultWindow is the buffer window K for profiles that set none.
	DefaultWindow int
	// FallbackModel is used when neither request, profile nor settings name a
	// model. Empty defers to the backend default.
	FallbackModel string
	// GenerationTimeout bounds one backend call. Zero means no extra bound.
	GenerationTimeout time.Duration
	// PersistMemory stores each successful exchange as an agent memory.
	PersistMemory bool
	// RecallLimit is the number of related agent memories added to the
	// prompt. Zero disables recall.
	RecallLimit int
	// RecallThreshold is the minimum similarity of recalled memories.
	RecallThreshold float64
	// RecallCandidates is how many nearest agent memories are scanned before
	// keeping the caller's own. Search truncates before its owner filter, so
	// this must exceed RecallLimit when agents share the table. Values below
	// RecallLimit mean ten times RecallLimit.
	RecallCandidates int
	// StreamChunkDelay is the pause between streamed chunks.
	StreamChunkDelay time.Duration
	// StreamBufferSize is the capacity of the event channel.
	StreamBufferSize int
}

// DefaultConfig provides the defaults used by New.
var DefaultConfig = Config{
	MaxConcurrent:    10,
	DefaultWindow:    5,
	PersistMemory:    true,
	RecallLimit:      3,
	RecallThreshold:  0.35,
	StreamChunkDelay: 30 * time.Millisecond,
	StreamBufferSize: 16,
}

// Options configure an Orchestrator.
type Options struct {
	Config Config
	// Buffer holds per-session history. Defaults to session.NewInMemoryStore().
	Buffer core.ConversationBuffer
	// Memory is optional; without it recall and persistence are skipped.
	Memory core.MemoryStore
	// Tools builds executables for profile bindings. Defaults to the built-in catalog.
	Tools *tool.Registry
	// Prompts renders system prompts. Defaults to prompt.NewBuilder().
	Prompts *prompt.Builder
	// Metrics is optional.
	Metrics *Metrics
	// Callbacks is optional.
	Callbacks *CallbackManager
	Logger    logging.Logger
}

// Orchestrator composes profiles, session buffer, tools, prompts, memory and
// a generation backend into one request/response cycle. It is safe for
// concurrent use.
type Orchestrator struct {
	profiles core.ProfileStore
	backend  model.Backend
	buffer   core.ConversationBuffer
	memory   core.MemoryStore
	tools    *tool.Registry
	prompts  *prompt.Builder
	metrics  *Metrics
	cbs      *CallbackManager
	logger   logging.Logger
	config   Config

	sem chan struct{}

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates an Orchestrator reading profiles from profiles and generating
// with backend.
func New(profiles core.ProfileStore, backend model.Backend, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Buffer == nil {
		opts.Buffer = session.NewInMemoryStore(func(o *session.Options) {
			o.DefaultWindow = opts.Config.DefaultWindow
			o.Logger = opts.Logger
		})
	}
	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry(nil, func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
	}
	if opts.Prompts == nil {
		opts.Prompts = prompt.NewBuilder(func(o *prompt.Options) { o.Logger = opts.Logger })
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Config.DefaultWindow <= 0 {
		opts.Config.DefaultWindow = DefaultConfig.DefaultWindow
	}

	o := &Orchestrator{
		profiles: profiles,
		backend:  backend,
		buffer:   opts.Buffer,
		memory:   opts.Memory,
		tools:    opts.Tools,
		prompts:  opts.Prompts,
		metrics:  opts.Metrics,
		cbs:      opts.Callbacks,
		logger:   logging.OrNoOp(opts.Logger),
		config:   opts.Config,
		active:   make(map[string]context.CancelFunc),
	}
	if opts.Config.MaxConcurrent > 0 {
		o.sem = make(chan struct{}, opts.Config.MaxConcurrent)
	}
	return o
}

// Buffer returns the session buffer used by the orchestrator.
func (o *Orchestrator) Buffer() core.ConversationBuffer { return o.buffer }

// Backend returns the generation backend.
func (o *Orchestrator) Backend() model.Backend { return o.backend }

// ExecuteAgent runs one request/response cycle. It never returns an error;
// failures are reported in the result.
func (o *Orchestrator) ExecuteAgent(ctx context.Context, req core.ExecutionRequest) core.ExecutionResult {
	invocationID := uuid.NewString()
	ctx, done := o.track(ctx, invocationID)
	defer done()
	return o.execute(ctx, invocationID, req)
}

// Cancel aborts an in-flight invocation.
func (o *Orchestrator) Cancel(invocationID string) error {
	o.mu.Lock()
	cancel, ok := o.active[invocationID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvocationNotFound, invocationID)
	}
	cancel()
	return nil
}

// Active returns the number of tracked invocations.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// track registers a cancellable context for invocationID. The returned
// release func must be called when the invocation ends.
func (o *Orchestrator) track(ctx context.Context, invocationID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.active[invocationID] = cancel
	o.mu.Unlock()
	return ctx, func() {
		o.mu.Lock()
		delete(o.active, invocationID)
		o.mu.Unlock()
		cancel()
	}
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	if o.sem == nil {
		return nil
	}
	select {
	case o.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	if o.sem != nil {
		<-o.sem
	}
}

func (o *Orchestrator) execute(ctx context.Context, invocationID string, req core.ExecutionRequest) core.ExecutionResult {
	start := time.Now()
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	res := core.ExecutionResult{
		InvocationID: invocationID,
		SessionID:    req.SessionID,
		ToolsUsed:    []string{},
	}
	log := o.logger
	if cl, ok := o.logger.(*logging.CoreLogger); ok {
		log = cl.WithComponent("engine").WithSession(req.SessionID, req.AgentID)
	}

	fail := func(stage, modelName string, err error) core.ExecutionResult {
		execErr := &core.ExecutionError{Stage: stage, Model: modelName, Latency: time.Since(start), Err: err}
		res.Success = false
		res.Latency = execErr.Latency
		res.Model = modelName
		res.Error = execErr.Error()
		res.Err = execErr
		log.Warn("engine.execute.failed", "invocation_id", invocationID, "stage", stage, "error", err.Error())
		_ = o.cbs.Execute(ctx, CallbackOnError, &CallbackContext{
			InvocationID: invocationID, AgentID: req.AgentID, SessionID: req.SessionID,
			Stage: stage, Model: modelName, Err: err,
		})
		o.metrics.observeExecution(outcomeFor(err), res.Latency)
		return res
	}

	// Received
	if strings.TrimSpace(req.AgentID) == "" || strings.TrimSpace(req.Query) == "" {
		return fail(StageValidate, "", fmt.Errorf("%w: agent id and query are required", core.ErrInvalidRequest))
	}
	if err := o.acquire(ctx); err != nil {
		return fail(StageQueue, "", err)
	}
	defer o.release()
	o.metrics.inFlight(1)
	defer o.metrics.inFlight(-1)
	log.Debug("engine.execute.received", "invocation_id", invocationID)

	// ProfileLoaded
	profile, err := o.profiles.GetAgent(ctx, req.AgentID)
	if err != nil {
		return fail(StageProfile, "", err)
	}
	modelName := o.resolveModel(ctx, req, profile)
	res.Model = modelName

	cbCtx := &CallbackContext{
		InvocationID: invocationID, AgentID: profile.ID, SessionID: req.SessionID,
		Model: modelName, Query: req.Query,
	}
	if err := o.cbs.Execute(ctx, CallbackBeforeAgent, cbCtx); err != nil {
		return fail(StageCallback, modelName, err)
	}

	// ToolsResolved
	executables, loadErrs := o.tools.Load(profile.ActiveTools())
	for _, e := range loadErrs {
		log.Warn("engine.tool.unavailable", "error", e.Error())
	}
	infos := make([]prompt.ToolInfo, len(executables))
	for i, exe := range executables {
		infos[i] = prompt.ToolInfo{Name: exe.Name(), Description: exe.Description()}
	}

	// PromptAssembled
	system, err := o.prompts.BuildSystemPrompt(profile, modelName, infos)
	if err != nil {
		return fail(StagePrompt, modelName, err)
	}
	toolOut := o.runTool(ctx, executables, req.Query, cbCtx)
	if toolOut != nil {
		res.ToolsUsed = append(res.ToolsUsed, toolOut.Tool)
	}
	full := prompt.BuildFullPrompt(prompt.FullPromptInput{
		System:   system,
		History:  o.buffer.History(req.SessionID),
		Recalled: o.recall(ctx, profile.ID, req.Query),
		Query:    req.Query,
		Tool:     toolOut,
	})
	cbCtx.Prompt = full
	if err := o.cbs.Execute(ctx, CallbackBeforeModel, cbCtx); err != nil {
		return fail(StageCallback, modelName, err)
	}

	// Generated
	genStart := time.Now()
	output, err := o.generate(ctx, full, modelName)
	if cl, ok := log.(*logging.CoreLogger); ok {
		cl.LogGeneration(modelName, len(full), time.Since(genStart), err == nil, err)
	}
	if err != nil {
		return fail(StageGenerate, modelName, err)
	}
	cbCtx.Output = output
	if err := o.cbs.Execute(ctx, CallbackAfterModel, cbCtx); err != nil {
		return fail(StageCallback, modelName, err)
	}

	// MemoryUpdated
	window := profile.BufferWindow
	if window <= 0 {
		window = o.config.DefaultWindow
	}
	o.buffer.AddTurn(req.SessionID, core.RoleUser, req.Query, window)
	o.buffer.AddTurn(req.SessionID, core.RoleAssistant, output, window)
	o.metrics.setSessions(o.buffer)
	o.persist(ctx, profile.ID, req, invocationID, modelName, output)

	// Returned
	res.Success = true
	res.Output = output
	res.Latency = time.Since(start)
	_ = o.cbs.Execute(ctx, CallbackAfterAgent, cbCtx)
	o.metrics.observeExecution(outcomeSuccess, res.Latency)
	log.Info("engine.execute.done", "invocation_id", invocationID, "model", modelName,
		"tools", strings.Join(res.ToolsUsed, ","), "latency_ms", res.Latency.Milliseconds())
	return res
}

// resolveModel applies override > profile > settings default > fallback >
// backend default.
func (o *Orchestrator) resolveModel(ctx context.Context, req core.ExecutionRequest, p core.AgentProfile) string {
	if m := strings.TrimSpace(req.ModelOverride); m != "" {
		return m
	}
	if m := strings.TrimSpace(p.Model); m != "" {
		return m
	}
	m, err := o.profiles.DefaultModel(ctx)
	if err != nil {
		o.logger.Warn("engine.default_model.unavailable", "error", err.Error())
	}
	if m = strings.TrimSpace(m); m != "" {
		return m
	}
	if o.config.FallbackModel != "" {
		return o.config.FallbackModel
	}
	return o.backend.Info().DefaultModel
}

// runTool executes at most one matching tool. Failures stay text.
func (o *Orchestrator) runTool(ctx context.Context, executables []*tool.Executable, query string, cbCtx *CallbackContext) *prompt.ToolOutput {
	exe, input := SelectTool(executables, query)
	if exe == nil {
		return nil
	}
	cbCtx.Tool = exe.Name()
	cbCtx.ToolInput = input
	if err := o.cbs.Execute(ctx, CallbackBeforeTool, cbCtx); err != nil {
		o.logger.Warn("engine.tool.skipped", "tool", exe.Name(), "error", err.Error())
		return nil
	}

	start := time.Now()
	out := exe.Run(ctx, input)
	failed := tool.IsError(out)
	if cl, ok := o.logger.(*logging.CoreLogger); ok {
		var err error
		if failed {
			err = fmt.Errorf("%w: %s", core.ErrToolExecution, out)
		}
		cl.LogToolCall(exe.Name(), time.Since(start), !failed, err)
	}
	o.metrics.observeTool(exe.Name(), !failed)

	cbCtx.ToolOutput = out
	_ = o.cbs.Execute(ctx, CallbackAfterTool, cbCtx)
	return &prompt.ToolOutput{Tool: exe.Name(), Result: out}
}

func (o *Orchestrator) generate(ctx context.Context, full, modelName string) (string, error) {
	if o.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.GenerationTimeout)
		defer cancel()
	}
	return o.backend.Generate(ctx, full, modelName)
}

func (o *Orchestrator) recall(ctx context.Context, agentID, query string) []string {
	if o.memory == nil || o.config.RecallLimit <= 0 {
		return nil
	}
	candidates := o.config.RecallCandidates
	if candidates < o.config.RecallLimit {
		candidates = o.config.RecallLimit * 10
	}
	hits, err := o.memory.Search(ctx, query, core.SearchScope{OwnerKind: core.OwnerAgent, OwnerID: agentID},
		candidates, o.config.RecallThreshold)
	if err != nil {
		o.logger.Warn("engine.recall.failed", "agent_id", agentID, "error", err.Error())
		return nil
	}
	if len(hits) > o.config.RecallLimit {
		hits = hits[:o.config.RecallLimit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Record.Content
	}
	return out
}

func (o *Orchestrator) persist(ctx context.Context, agentID string, req core.ExecutionRequest, invocationID, modelName, output string) {
	if o.memory == nil || !o.config.PersistMemory {
		return
	}
	_, err := o.memory.Add(ctx, core.AddMemoryRequest{
		OwnerKind:  core.OwnerAgent,
		OwnerID:    agentID,
		SessionID:  req.SessionID,
		Content:    fmt.Sprintf("User: %s\nAssistant: %s", req.Query, output),
		MemoryType: MemoryTypeConversation,
		Importance: 0.5,
		Metadata:   map[string]any{"invocation_id": invocationID, "model": modelName},
	})
	if err != nil {
		o.logger.Warn("engine.memory.persist_failed", "agent_id", agentID, "error", err.Error())
	}
}

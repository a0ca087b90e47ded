// Package turn runs one conversation turn: reply generation conditioned on
// stored memories, and extraction of new memories from the user's message.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/mnemo/internal/assembler"
	"github.com/ent0n29/mnemo/internal/completion"
	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/extractor"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/policy"
)

var ErrEmptyMessage = errors.New("message text must not be empty")

// Stage names recorded in the latency window.
const (
	StageRetrieve    = "retrieve"
	StageAssemble    = "assemble"
	StageComplete    = "complete"
	StageExtractWait = "extract_wait"
	StagePersist     = "persist"
	StageTotal       = "turn_total"
)

// Result is what one turn produced.
type Result struct {
	Reply        conversation.Message `json:"reply"`
	NewMemories  []string             `json:"new_memories"`
	UsedMemories []string             `json:"used_memories"`
}

// Deps are the collaborators an Orchestrator needs.
type Deps struct {
	Conversations *conversation.Manager
	Store         memory.Store
	Retriever     *memory.Retriever
	Extractor     extractor.Extractor
	Completion    *completion.Graceful
	Persist       *PersistQueue
	Metrics       *observability.Metrics
	Logger        *slog.Logger
	Persona       string

	// CompletionTimeout bounds the reply call, which outlives the caller's context.
	CompletionTimeout time.Duration
}

type Orchestrator struct {
	conversations *conversation.Manager
	store         memory.Store
	retriever     *memory.Retriever
	extractor     extractor.Extractor
	completion    *completion.Graceful
	persist       *PersistQueue
	metrics       *observability.Metrics
	logger        *slog.Logger
	persona       string
	replyTimeout  time.Duration
}

func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retriever := d.Retriever
	if retriever == nil {
		retriever = memory.NewRetriever(d.Store, nil, 0, logger)
	}
	persist := d.Persist
	if persist == nil {
		persist = NewPersistQueue(d.Store, 0, 0, d.Metrics, logger)
	}
	persona := strings.TrimSpace(d.Persona)
	if persona == "" {
		persona = assembler.DefaultPersona
	}
	return &Orchestrator{
		conversations: d.Conversations,
		store:         d.Store,
		retriever:     retriever,
		extractor:     d.Extractor,
		completion:    d.Completion,
		persist:       persist,
		metrics:       d.Metrics,
		logger:        logger,
		persona:       persona,
		replyTimeout:  d.CompletionTimeout,
	}
}

// SendMessage runs a full turn and returns once new memories are persisted.
func (o *Orchestrator) SendMessage(ctx context.Context, conversationID, text string) (Result, error) {
	return o.Stream(ctx, conversationID, text, nil)
}

// Stream is SendMessage with a callback fired as soon as the assistant reply
// is appended, before extraction and persistence finish. The partial result
// passed to onReply has no NewMemories.
func (o *Orchestrator) Stream(ctx context.Context, conversationID, text string, onReply func(Result)) (Result, error) {
	if strings.TrimSpace(text) == "" {
		o.countTurn("rejected")
		return Result{}, ErrEmptyMessage
	}
	conv, err := o.conversations.Get(conversationID)
	if err != nil {
		o.countTurn("rejected")
		return Result{}, err
	}
	release, err := conv.AcquireTurn(ctx)
	if err != nil {
		o.countTurn("rejected")
		return Result{}, err
	}
	defer release()

	started := time.Now()
	logger := o.logger.With("conversation_id", conversationID)
	logger.Info("turn received", "message", policy.LogPreview(text, 100))

	log := conv.Log()
	log.Append(conversation.NewMessage(conversation.RoleUser, text))

	// Extraction is detached so a caller that goes away does not lose facts.
	extractCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	var facts []string
	g.Go(func() error {
		facts = o.extractor.Extract(extractCtx, text)
		return nil
	})
	relevant := make(chan []memory.Record, 1)
	g.Go(func() error {
		stageStart := time.Now()
		relevant <- o.retriever.Relevant(ctx, text)
		o.metrics.ObserveTurnStage(StageRetrieve, time.Since(stageStart))
		return nil
	})

	memories := <-relevant
	stageStart := time.Now()
	prompt := assembler.AssembleWithPersona(log.Snapshot(), memories, o.persona)
	o.metrics.ObserveTurnStage(StageAssemble, time.Since(stageStart))

	stageStart = time.Now()
	// A caller that leaves mid-completion still gets a real reply recorded.
	replyCtx, cancelReply := o.replyContext(ctx)
	replyText := o.completion.Reply(replyCtx, prompt)
	cancelReply()
	o.metrics.ObserveTurnStage(StageComplete, time.Since(stageStart))

	reply := conversation.NewMessage(conversation.RoleAssistant, replyText)
	log.Append(reply)
	usedMemories := memory.Contents(memories)
	if onReply != nil {
		onReply(Result{Reply: reply, UsedMemories: usedMemories})
	}

	stageStart = time.Now()
	_ = g.Wait()
	o.metrics.ObserveTurnStage(StageExtractWait, time.Since(stageStart))
	if o.metrics != nil {
		o.metrics.MemoriesExtracted.Add(float64(len(facts)))
	}

	result := Result{
		Reply:        reply,
		NewMemories:  []string{},
		UsedMemories: usedMemories,
	}
	if len(facts) > 0 {
		result.NewMemories = o.persistFacts(ctx, logger, conversationID, text, facts)
	}

	o.metrics.ObserveTurnStage(StageTotal, time.Since(started))
	o.countTurn("ok")
	logger.Info("turn completed",
		"used_memories", len(result.UsedMemories),
		"new_memories", len(result.NewMemories),
		"duration_ms", time.Since(started).Milliseconds())
	return result, nil
}

func (o *Orchestrator) replyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if o.replyTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, o.replyTimeout)
}

func (o *Orchestrator) persistFacts(ctx context.Context, logger *slog.Logger, conversationID, source string, facts []string) []string {
	stageStart := time.Now()
	done, err := o.persist.Submit(context.WithoutCancel(ctx), conversationID, source, facts)
	if err != nil {
		logger.Error("queueing extracted memories failed", "facts", len(facts), "err", err)
		return []string{}
	}
	select {
	case stored := <-done:
		o.metrics.ObserveTurnStage(StagePersist, time.Since(stageStart))
		return stored
	case <-ctx.Done():
		// The job keeps running; report what was extracted.
		logger.Warn("caller left before memories were persisted", "facts", len(facts))
		return facts
	}
}

func (o *Orchestrator) countTurn(outcome string) {
	if o.metrics == nil {
		return
	}
	o.metrics.Turns.WithLabelValues(outcome).Inc()
}

// Messages returns the conversation log in append order.
func (o *Orchestrator) Messages(conversationID string) ([]conversation.Message, error) {
	conv, err := o.conversations.Get(conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Log().Snapshot(), nil
}

// Memories lists every stored memory, newest first. A store outage yields none.
func (o *Orchestrator) Memories(ctx context.Context) []memory.Record {
	records := o.retriever.All(ctx)
	if records == nil {
		return []memory.Record{}
	}
	return records
}

func (o *Orchestrator) CreateMemory(ctx context.Context, content string) (string, error) {
	id, err := o.store.Insert(ctx, content, "")
	if err != nil {
		return "", fmt.Errorf("create memory: %w", err)
	}
	o.logger.Info("memory created manually", "memory_id", id)
	return id, nil
}

func (o *Orchestrator) DeleteMemory(ctx context.Context, id string) error {
	if err := o.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	o.logger.Info("memory deleted", "memory_id", id)
	return nil
}

// Close drains pending memory writes.
func (o *Orchestrator) Close() {
	o.persist.Close()
}

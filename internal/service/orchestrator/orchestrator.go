package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhouzirui/memchat/backend/internal/analysis/admission"
	"github.com/zhouzirui/memchat/backend/internal/model/chat"
	"github.com/zhouzirui/memchat/backend/internal/observability"
	"github.com/zhouzirui/memchat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/memchat/backend/internal/service/chat"
	"github.com/zhouzirui/memchat/backend/internal/service/memory"
)

// ErrEmptyInput is returned for blank user input; nothing is appended.
var ErrEmptyInput = errors.New("input is empty")

// DegradedPrefix 前缀出现在补全失败时生成的助手消息中。
const DegradedPrefix = "Error generating response: "

// Limits 控制召回与补全的参数。
type Limits struct {
	RecallLimit int
	MaxTokens   int
	Temperature float64
}

// DefaultLimits returns recall 5, max tokens 100 and temperature 0.7.
func DefaultLimits() Limits {
	return Limits{RecallLimit: 5, MaxTokens: 100, Temperature: 0.7}
}

// TurnResult 描述一次对话轮次的结果。
type TurnResult struct {
	User       chat.Turn `json:"user"`
	Assistant  chat.Turn `json:"assistant"`
	Remembered bool      `json:"remembered"`
	Memories   []string  `json:"memories"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// Orchestrator runs the per-turn policy: admission, remember, recall, prompt
// assembly, completion and transcript append.
type Orchestrator struct {
	memories    memory.Gateway
	completions ai.Gateway
	prompts     *ai.PromptBuilder
	limits      Limits
	metrics     *observability.Metrics
	tracer      trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimits overrides the default limits. A non-positive RecallLimit or
// MaxTokens keeps its default.
func WithLimits(l Limits) Option {
	return func(o *Orchestrator) {
		if l.RecallLimit > 0 {
			o.limits.RecallLimit = l.RecallLimit
		}
		if l.MaxTokens > 0 {
			o.limits.MaxTokens = l.MaxTokens
		}
		if l.Temperature >= 0 {
			o.limits.Temperature = l.Temperature
		}
	}
}

// WithMetrics records turn outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer replaces the global memchat tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an orchestrator over the given gateways.
func New(memories memory.Gateway, completions ai.Gateway, prompts *ai.PromptBuilder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		memories:    memories,
		completions: completions,
		prompts:     prompts,
		limits:      DefaultLimits(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer()
	}
	return o
}

// Limits returns the effective limits.
func (o *Orchestrator) Limits() Limits {
	return o.limits
}

// HandleTurn processes one user input for session. Remote failures never fail
// the turn: memory failures become warnings and a completion failure becomes
// a degraded assistant turn. Exactly two turns are appended unless input is
// blank.
//
// Callers serialize turns per session with Session.LockTurn.
func (o *Orchestrator) HandleTurn(ctx context.Context, session *chatService.Session, input string, observe Observer) (TurnResult, error) {
	if strings.TrimSpace(input) == "" {
		return TurnResult{}, ErrEmptyInput
	}
	if observe == nil {
		observe = func(Event) {}
	}

	start := time.Now()
	userID := session.UserID()

	ctx, span := o.tracer.Start(ctx, "memchat.turn", trace.WithAttributes(
		attribute.String("session.id", session.ID),
	))
	defer span.End()

	var result TurnResult

	decision := admission.Evaluate(input)
	o.metrics.ObserveAdmission(decision.Remember)
	if decision.Remember {
		if err := o.remember(ctx, input, userID); err != nil {
			log.Printf("[memory] save failed session=%s: %v", session.ID, err)
			result.Warnings = append(result.Warnings, "Error saving memory: "+err.Error())
			observe(Event{Type: EventMemoryError, Message: err.Error()})
		} else {
			result.Remembered = true
			observe(Event{Type: EventMemorySaved, Message: "Memory saved"})
		}
	} else {
		observe(Event{Type: EventMemorySkipped, Message: "Input not stored as a memory"})
	}

	memories, err := o.recall(ctx, input, userID)
	if err != nil {
		log.Printf("[memory] recall failed session=%s: %v", session.ID, err)
		result.Warnings = append(result.Warnings, "Error retrieving memories: "+err.Error())
		observe(Event{Type: EventRecallError, Message: err.Error()})
		memories = nil
	} else {
		observe(Event{Type: EventMemoriesRecalled, Memories: memories})
	}
	result.Memories = memories
	if result.Memories == nil {
		result.Memories = []string{}
	}

	assistant := o.complete(ctx, memories, input)
	observe(Event{Type: EventCompletion, Message: string(assistant.Status)})

	result.User, result.Assistant = session.Transcript().AppendPair(
		chat.Turn{Role: chat.RoleUser, Content: input},
		assistant,
	)
	session.Touch()

	span.SetAttributes(
		attribute.Bool("memory.remembered", result.Remembered),
		attribute.Int("memory.recalled", len(memories)),
		attribute.String("turn.status", string(assistant.Status)),
	)
	o.metrics.ObserveTurn(string(assistant.Status), time.Since(start))
	log.Printf("[turn] session=%s remembered=%t recalled=%d status=%s", session.ID, result.Remembered, len(memories), assistant.Status)

	return result, nil
}

func (o *Orchestrator) remember(ctx context.Context, input, userID string) error {
	ctx, span := o.tracer.Start(ctx, "memory.remember")
	defer span.End()

	_, err := o.memories.Remember(ctx, []memory.Message{{Role: string(chat.RoleUser), Content: input}}, userID)
	if err != nil {
		o.fail(span, err)
	}
	return err
}

func (o *Orchestrator) recall(ctx context.Context, input, userID string) ([]string, error) {
	ctx, span := o.tracer.Start(ctx, "memory.recall", trace.WithAttributes(
		attribute.Int("memory.limit", o.limits.RecallLimit),
	))
	defer span.End()

	records, err := o.memories.Recall(ctx, input, userID, o.limits.RecallLimit)
	if err != nil {
		o.fail(span, err)
		return nil, err
	}
	texts := memory.Texts(records)
	if len(texts) > o.limits.RecallLimit {
		texts = texts[:o.limits.RecallLimit]
	}
	return texts, nil
}

// complete always yields an assistant turn; failures are folded into a
// degraded turn.
func (o *Orchestrator) complete(ctx context.Context, memories []string, input string) chat.Turn {
	ctx, span := o.tracer.Start(ctx, "llm.complete")
	defer span.End()

	messages, err := o.prompts.Build(ctx, memories, input)
	if err == nil {
		var content string
		content, err = o.completions.Complete(ctx, messages, ai.Options{
			MaxTokens:   o.limits.MaxTokens,
			Temperature: o.limits.Temperature,
		})
		if err == nil {
			return chat.Turn{Role: chat.RoleAssistant, Content: content, Status: chat.StatusOK}
		}
	}

	o.fail(span, err)
	log.Printf("[ai] completion failed: %v", err)
	return chat.Turn{
		Role:    chat.RoleAssistant,
		Content: DegradedPrefix + err.Error(),
		Status:  chat.StatusDegraded,
	}
}

func (o *Orchestrator) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.metrics.ObserveRemoteError(err)
}

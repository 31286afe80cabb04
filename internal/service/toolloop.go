package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
	"github.com/cloo-solutions/counsel/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxToolRounds = 10
	toolConcurrency      = 4
	lastRoundNote        = "[Hinweis: Dies ist die letzte Runde mit Werkzeugen. Beantworte die Frage jetzt mit den vorliegenden Informationen.]"
)

// LoopState is the tool-loop coordinator's state.
type LoopState int

const (
	StateAwaitingCompletion LoopState = iota
	StateExecutingTools
	StateDone
)

func (s LoopState) String() string {
	switch s {
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// CompletionStreamer opens one completion round. *Driver implements it.
type CompletionStreamer interface {
	Stream(ctx context.Context, req domain.CompletionRequest) (domain.EventStream, error)
}

type LoopInput struct {
	Model           string
	System          string
	Turns           []domain.Turn
	MaxTokens       int
	ReasoningEffort string
}

// ToolRecord pairs a tool call with its result.
type ToolRecord struct {
	Call   domain.ToolCall
	Result domain.ToolResult
}

type LoopResult struct {
	// Text is everything streamed to the caller as answer text, across rounds.
	Text           string
	Rounds         int
	// ToolTranscript joins the successful tool results. Failed calls are left
	// out so their messages cannot back a citation.
	ToolTranscript string
	UsedTools      bool
	StopReason     domain.StopReason
	Model          string
	Records        []ToolRecord
}

// Coordinator drives completion rounds and executes the tools the model asks for.
type Coordinator struct {
	driver    CompletionStreamer
	tools     ToolExecutor
	maxRounds int
	logger    logging.Logger
}

// NewCoordinator creates a Coordinator. tools may be nil, in which case no
// tools are offered.
func NewCoordinator(driver CompletionStreamer, tools ToolExecutor, maxRounds int, logger logging.Logger) *Coordinator {
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Coordinator{driver: driver, tools: tools, maxRounds: maxRounds, logger: logger}
}

// Run streams rounds until the model stops asking for tools or the round limit
// is reached. On error the returned result still carries the text streamed so far.
func (c *Coordinator) Run(ctx context.Context, in LoopInput, emit func(domain.StreamEvent)) (*LoopResult, error) {
	result := &LoopResult{Model: in.Model}
	turns := append([]domain.Turn(nil), in.Turns...)

	var definitions []domain.ToolDefinition
	if c.tools != nil {
		definitions = c.tools.Definitions()
	}

	var text strings.Builder
	var transcript []string
	var pending []domain.ToolCall

	state := StateAwaitingCompletion
	for state != StateDone {
		switch state {
		case StateAwaitingCompletion:
			result.Rounds++
			msg, err := c.completeRound(ctx, domain.CompletionRequest{
				Model:           in.Model,
				System:          in.System,
				Turns:           turns,
				Tools:           definitions,
				MaxTokens:       in.MaxTokens,
				ReasoningEffort: in.ReasoningEffort,
			}, result.Rounds, emit, &text)
			if err != nil {
				result.Text = text.String()
				result.ToolTranscript = strings.Join(transcript, "\n\n")
				return result, err
			}
			if msg.Model != "" {
				result.Model = msg.Model
			}
			result.StopReason = msg.StopReason

			calls := msg.Turn().ToolCalls()
			if msg.StopReason != domain.StopToolUse || len(calls) == 0 || c.tools == nil {
				state = StateDone
				continue
			}
			if result.Rounds >= c.maxRounds {
				c.logger.WithFields(logging.Fields{"round": result.Rounds, "pending_tools": len(calls)}).
					Warn("tool round limit reached, finishing with current answer")
				state = StateDone
				continue
			}
			turns = append(turns, msg.Turn().WithoutThinking())
			pending = calls
			state = StateExecutingTools

		case StateExecutingTools:
			records := c.executeTools(ctx, pending, result.Rounds, emit)
			blocks := make([]domain.ContentBlock, 0, len(records)+1)
			for _, r := range records {
				blocks = append(blocks, domain.ToolResultBlock{Result: r.Result})
				if !r.Result.IsError {
					transcript = append(transcript, r.Result.Content)
				}
			}
			if result.Rounds == c.maxRounds-1 {
				blocks = append(blocks, domain.TextBlock{Text: lastRoundNote})
			}
			turns = append(turns, domain.Turn{Role: domain.RoleUser, Blocks: blocks})
			result.Records = append(result.Records, records...)
			result.UsedTools = true
			pending = nil
			state = StateAwaitingCompletion
		}
	}

	toolRounds.Observe(float64(result.Rounds))
	result.Text = text.String()
	result.ToolTranscript = strings.Join(transcript, "\n\n")
	return result, nil
}

// completeRound forwards one round's events and returns its final message.
func (c *Coordinator) completeRound(ctx context.Context, req domain.CompletionRequest, round int, emit func(domain.StreamEvent), text *strings.Builder) (*domain.AssistantMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "chat.completion_round", telemetry.SpanAttributes{Round: round, Operation: req.Model})
	defer span.End()

	stream, err := c.driver.Stream(ctx, req)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	defer func() { _ = stream.Close() }()

	var roundText strings.Builder
	var final *domain.AssistantMessage
	for {
		event, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		switch e := event.(type) {
		case domain.DeltaEvent:
			if e.Text == "" {
				continue
			}
			if roundText.Len() == 0 && text.Len() > 0 && !strings.HasSuffix(text.String(), "\n") {
				text.WriteString("\n\n")
				emit(domain.DeltaEvent{Text: "\n\n"})
			}
			roundText.WriteString(e.Text)
			text.WriteString(e.Text)
			emit(e)
		case domain.ThinkingStartEvent, domain.ThinkingEvent:
			emit(e)
		case domain.FinalMessageEvent:
			msg := e.Message
			final = &msg
		case domain.StartEvent, domain.StatusEvent, domain.DoneEvent, domain.ErrorEvent:
			// produced by the orchestrator, never by a completion stream
		}
	}

	if final == nil {
		final = &domain.AssistantMessage{
			Model:      req.Model,
			Blocks:     []domain.ContentBlock{domain.TextBlock{Text: roundText.String()}},
			StopReason: domain.StopEndTurn,
		}
	}
	return final, nil
}

// executeTools runs one round's calls concurrently. Calls run on a context
// detached from caller cancellation, each under its own timeout. Results keep
// the model's order.
func (c *Coordinator) executeTools(ctx context.Context, calls []domain.ToolCall, round int, emit func(domain.StreamEvent)) []ToolRecord {
	toolCtx := context.WithoutCancel(ctx)
	records := make([]ToolRecord, len(calls))

	var emitMu sync.Mutex
	var g errgroup.Group
	g.SetLimit(toolConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			emitMu.Lock()
			emit(domain.StatusEvent{Message: c.tools.StatusMessage(call.Name)})
			emitMu.Unlock()

			records[i] = ToolRecord{Call: call, Result: c.runTool(toolCtx, call, round)}
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (c *Coordinator) runTool(ctx context.Context, call domain.ToolCall, round int) domain.ToolResult {
	ctx, cancel := context.WithTimeout(ctx, c.tools.Timeout(call.Name))
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "chat.tool", telemetry.SpanAttributes{Tool: call.Name, Round: round})
	defer span.End()

	content, err := c.tools.Execute(ctx, call)
	if err != nil {
		span.SetError(err)
		toolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		c.logger.WithError(err).WithFields(logging.Fields{"tool": call.Name, "round": round}).Warn("tool execution failed")
		return domain.ToolResult{
			CallID:  call.ID,
			IsError: true,
			Content: fmt.Sprintf("Werkzeug %s fehlgeschlagen: %v. Ergebnis konnte nicht verifiziert werden. Zitiere keine unverifizierten Aktenzeichen aus diesem Aufruf und erfinde keine Fundstellen.", call.Name, err),
		}
	}
	toolCallsTotal.WithLabelValues(call.Name, "ok").Inc()
	return domain.ToolResult{CallID: call.ID, Content: content}
}

package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
	"github.com/cloo-solutions/counsel/internal/ratelimit"
	"github.com/cloo-solutions/counsel/internal/telemetry"
)

const (
	templateTimeout = 5 * time.Second
	documentTimeout = 15 * time.Second
	historyTimeout  = 5 * time.Second
	verifyTimeout   = 20 * time.Second
	persistTimeout  = 10 * time.Second

	maxDocumentsPerRequest = 10

	emptyAnswerPlaceholder  = "(Keine Antwort erhalten.)"
	failedAnswerPlaceholder = "(Die Antwort konnte wegen eines Fehlers nicht erzeugt werden.)"
)

type TemplateRepository interface {
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Template, error)
}

type DocumentRepository interface {
	// GetByIDs returns the documents of the organization among ids. Unknown ids are skipped.
	GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.Document, error)
}

type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Admitter decides whether a request may proceed. *ratelimit.Limiter implements it.
type Admitter interface {
	Allow(ctx context.Context, identity domain.Identity) (ratelimit.Decision, error)
}

// RateLimitError is returned when an identity exceeded its request budget.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return domain.ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// ChatRequest is one inbound user message.
type ChatRequest struct {
	ConversationID string
	ProjectID      string
	Message        string
	DocumentIDs    []string
	Anonymize      bool
	Model          string
	// UseKnowledge overrides the classifier when set.
	UseKnowledge *bool
}

type ChatConfig struct {
	Model            string
	AllowedModels    []string
	SystemPrompt     string
	MaxOutputTokens  int
	MaxContextTokens int
	ReasoningEffort  string
	MaxChunks        int
}

// ChatDeps are the collaborators of a ChatService. Only Conversations and
// Coordinator are required.
type ChatDeps struct {
	Conversations *ConversationService
	Limiter       Admitter
	Classifier    *Classifier
	Expander      *Expander
	Router        *Router
	Templates     TemplateRepository
	Documents     DocumentRepository
	Objects       ObjectStore
	Assembler     *Assembler
	Budgeter      *Budgeter
	Coordinator   *Coordinator
	Verifier      *Verifier
}

// ChatService runs the full question-answering pipeline for one message.
type ChatService struct {
	deps   ChatDeps
	cfg    ChatConfig
	logger logging.Logger
	now    func() time.Time
}

func NewChatService(deps ChatDeps, cfg ChatConfig, logger logging.Logger) *ChatService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if deps.Classifier == nil {
		deps.Classifier = NewClassifier()
	}
	if deps.Assembler == nil {
		deps.Assembler = NewAssembler()
	}
	if deps.Budgeter == nil {
		deps.Budgeter = NewBudgeter(defaultMinWindow, logger)
	}
	if deps.Verifier == nil {
		deps.Verifier = NewVerifier(nil, logger)
	}
	return &ChatService{deps: deps, cfg: cfg, logger: logger, now: time.Now}
}

// ValidateChatMessage rejects empty and over-long messages.
func ValidateChatMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return domain.ErrMessageEmpty
	}
	if len([]rune(message)) > domain.MaxMessageChars {
		return domain.ErrMessageTooLong
	}
	return nil
}

func (s *ChatService) resolveModel(requested string) (string, error) {
	if requested == "" || requested == s.cfg.Model {
		return s.cfg.Model, nil
	}
	if len(s.cfg.AllowedModels) > 0 && !slices.Contains(s.cfg.AllowedModels, requested) {
		return "", domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("model %q is not available", requested))
	}
	return requested, nil
}

// Chat answers one message. Errors returned by Chat happen before the start
// event and nothing has been emitted yet. Once the start event is emitted,
// failures are reported as a single ErrorEvent and Chat returns nil.
func (s *ChatService) Chat(ctx context.Context, identity domain.Identity, req ChatRequest, emit func(domain.StreamEvent)) error {
	if err := s.admit(ctx, identity, req); err != nil {
		chatRequestsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	model, err := s.resolveModel(req.Model)
	if err != nil {
		chatRequestsTotal.WithLabelValues("rejected").Inc()
		return err
	}

	started, err := s.deps.Conversations.StartTurn(ctx, identity, StartTurnInput{
		ConversationID: req.ConversationID,
		ProjectID:      req.ProjectID,
		Message:        req.Message,
	})
	if err != nil {
		chatRequestsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	conv := started.Conversation

	conversationsActive.Inc()
	defer conversationsActive.Dec()

	ctx, span := telemetry.StartSpan(ctx, "chat", telemetry.SpanAttributes{
		OrgID:          identity.OrgID,
		UserID:         identity.UserID,
		ConversationID: conv.ID,
		Operation:      "chat",
	})
	defer span.End()

	logger := s.logger.WithFields(logging.Fields{
		"conversation_id": conv.ID,
		"user_id":         identity.UserID,
		"org_id":          identity.OrgID,
	})

	emit(domain.StartEvent{ConversationID: conv.ID})

	var anon *Anonymizer
	if req.Anonymize {
		anon = NewAnonymizer()
	}
	// The question is anonymized before it reaches expansion or retrieval.
	query := anon.Apply(req.Message)

	pre := s.prefetch(ctx, identity, started, req, query)

	system, turns := s.deps.Assembler.Assemble(AssembleInput{
		SystemPromptBase: s.cfg.SystemPrompt,
		History:          pre.history,
		Question:         req.Message,
		Documents:        pre.documents,
		Retrieval:        pre.retrieval,
		Templates:        pre.templates,
		Anonymizer:       anon,
	})
	turns = s.deps.Budgeter.Fit(system, turns, s.cfg.MaxContextTokens)

	loop, err := s.deps.Coordinator.Run(ctx, LoopInput{
		Model:           model,
		System:          system,
		Turns:           turns,
		MaxTokens:       s.cfg.MaxOutputTokens,
		ReasoningEffort: s.cfg.ReasoningEffort,
	}, emit)
	if err != nil {
		span.SetError(err)
		s.fail(ctx, logger, conv, model, loop, err, emit)
		return nil
	}

	answer := loop.Text
	if strings.TrimSpace(answer) == "" {
		answer = emptyAnswerPlaceholder
		emit(domain.DeltaEvent{Text: answer})
	}

	verification := s.verify(ctx, answer, Provenance{
		Tool:      identifierSet(loop.ToolTranscript),
		Knowledge: pre.retrieval.identifiers(),
	})
	if suffix := strings.TrimPrefix(verification.Text, answer); suffix != verification.Text && suffix != "" {
		emit(domain.DeltaEvent{Text: suffix})
	}

	msg := &domain.Message{
		ConversationID:     conv.ID,
		Content:            verification.Text,
		Citations:          verification.Citations,
		UsedExternalSearch: loop.UsedTools,
		Model:              loop.Model,
	}

	done := domain.DoneEvent{
		Citations:          verification.Citations,
		Sources:            pre.retrieval.sourceNames(),
		Model:              loop.Model,
		UsedExternalSearch: loop.UsedTools,
	}
	if done.Citations == nil {
		done.Citations = []domain.Citation{}
	}
	for _, id := range verification.Unverified {
		done.Warnings = append(done.Warnings, "unverified citation: "+id)
	}
	if loop.StopReason == domain.StopToolUse {
		done.Warnings = append(done.Warnings, "tool round limit reached")
	}

	if err := s.persist(ctx, msg); err != nil {
		logger.WithError(err).Error("failed to store assistant message")
		done.Warnings = append(done.Warnings, "answer could not be saved")
	} else {
		done.MessageID = msg.ID
	}

	chatRequestsTotal.WithLabelValues("ok").Inc()
	logger.WithFields(logging.Fields{
		"rounds":     loop.Rounds,
		"used_tools": loop.UsedTools,
		"chunks":     pre.retrieval.ChunkCount(),
		"unverified": len(verification.Unverified),
	}).Info("chat completed")

	emit(done)
	return nil
}

// admit runs the checks that must pass before any external call.
func (s *ChatService) admit(ctx context.Context, identity domain.Identity, req ChatRequest) error {
	if identity.IsZero() {
		return domain.ErrUnauthorized
	}
	if err := ValidateChatMessage(req.Message); err != nil {
		return err
	}
	if len(req.DocumentIDs) > maxDocumentsPerRequest {
		return domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("at most %d documents per message", maxDocumentsPerRequest))
	}
	if s.deps.Limiter == nil {
		return nil
	}
	decision, err := s.deps.Limiter.Allow(ctx, identity)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		rateLimitedTotal.Inc()
		return &RateLimitError{RetryAfter: decision.RetryAfter(s.now())}
	}
	return nil
}

type prefetched struct {
	retrieval *RetrievalResult
	templates []*domain.Template
	documents []DocumentPayload
	history   []*domain.Message
}

func (r *RetrievalResult) identifiers() map[string]struct{} {
	if r == nil {
		return nil
	}
	return r.Identifiers
}

func (r *RetrievalResult) sourceNames() []string {
	if r == nil || r.SourceNames == nil {
		return []string{}
	}
	return r.SourceNames
}

// prefetch gathers context concurrently. Every branch degrades to an empty
// result, so prefetch never fails.
func (s *ChatService) prefetch(ctx context.Context, identity domain.Identity, started *StartedTurn, req ChatRequest, query string) prefetched {
	conv := started.Conversation
	ctx, span := telemetry.StartSpan(ctx, "chat.prefetch", telemetry.SpanAttributes{
		OrgID:          identity.OrgID,
		ConversationID: conv.ID,
		Operation:      "prefetch",
	})
	defer span.End()

	var out prefetched
	var g errgroup.Group

	if s.deps.Router != nil && s.deps.Classifier.ResolveKnowledge(req.Message, req.UseKnowledge) {
		g.Go(func() error {
			expansions := s.deps.Expander.Expand(ctx, query)
			result, err := s.deps.Router.Retrieve(ctx, RetrievalInput{
				BaseQuery:  query,
				Expansions: expansions,
				MaxChunks:  s.cfg.MaxChunks,
			})
			if err != nil {
				s.logger.WithError(err).WithField("conversation_id", conv.ID).Warn("retrieval interrupted")
			}
			out.retrieval = result
			return nil
		})
	}

	if s.deps.Templates != nil {
		g.Go(func() error {
			out.templates = WithFallback(ctx, FallbackOptions{Stage: StageTemplates, Timeout: templateTimeout, Logger: s.logger}, []*domain.Template(nil),
				func(ctx context.Context) ([]*domain.Template, error) {
					return s.deps.Templates.ListByOrg(ctx, identity.OrgID)
				})
			return nil
		})
	}

	if s.deps.Documents != nil && len(req.DocumentIDs) > 0 {
		g.Go(func() error {
			out.documents = WithFallback(ctx, FallbackOptions{Stage: StageDocuments, Timeout: documentTimeout, Logger: s.logger}, []DocumentPayload(nil),
				func(ctx context.Context) ([]DocumentPayload, error) {
					return s.loadDocuments(ctx, identity.OrgID, req.DocumentIDs)
				})
			return nil
		})
	}

	if !started.Created {
		g.Go(func() error {
			out.history = WithFallback(ctx, FallbackOptions{Stage: StageHistory, Timeout: historyTimeout, Logger: s.logger}, []*domain.Message(nil),
				func(ctx context.Context) ([]*domain.Message, error) {
					return s.deps.Conversations.History(ctx, conv.ID, started.Message.ID)
				})
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// loadDocuments resolves attachments and reads the bytes the model needs:
// images always, other files only when no extracted text exists.
func (s *ChatService) loadDocuments(ctx context.Context, orgID string, ids []string) ([]DocumentPayload, error) {
	docs, err := s.deps.Documents.GetByIDs(ctx, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	payloads := make([]DocumentPayload, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, doc := range docs {
		payloads[i] = DocumentPayload{Document: doc}
		if s.deps.Objects == nil || (!doc.IsImage() && doc.ExtractedText != "") {
			continue
		}
		g.Go(func() error {
			data, err := s.deps.Objects.GetObject(gctx, doc.StorageKey)
			if err != nil {
				return fmt.Errorf("read document %s: %w", doc.ID, err)
			}
			payloads[i].Data = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

func (s *ChatService) verify(ctx context.Context, answer string, prov Provenance) *Verification {
	ctx, span := telemetry.StartSpan(context.WithoutCancel(ctx), "chat.verify", telemetry.SpanAttributes{Operation: "verify"})
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	return s.deps.Verifier.CheckProvenance(ctx, answer, prov)
}

// persist stores the assistant message even when the caller has gone away.
func (s *ChatService) persist(ctx context.Context, msg *domain.Message) error {
	ctx, span := telemetry.StartSpan(context.WithoutCancel(ctx), "chat.persist", telemetry.SpanAttributes{
		ConversationID: msg.ConversationID,
		Operation:      "persist",
	})
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.deps.Conversations.AppendAssistant(ctx, msg); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

// fail handles a provider failure after the stream opened. Whatever text was
// streamed is stored as the assistant turn so the history keeps alternating.
func (s *ChatService) fail(ctx context.Context, logger logging.Entry, conv *domain.Conversation, model string, loop *LoopResult, cause error, emit func(domain.StreamEvent)) {
	kind, message := ClassifyUpstreamError(cause)
	chatRequestsTotal.WithLabelValues("upstream_error").Inc()
	logger.WithError(cause).WithField("kind", string(kind)).Error("chat failed")

	content := failedAnswerPlaceholder
	usedTools := false
	if loop != nil {
		if strings.TrimSpace(loop.Text) != "" {
			content = loop.Text
		}
		usedTools = loop.UsedTools
	}
	msg := &domain.Message{
		ConversationID:     conv.ID,
		Content:            content,
		UsedExternalSearch: usedTools,
		Model:              model,
	}
	if err := s.persist(ctx, msg); err != nil {
		logger.WithError(err).Warn("failed to store partial answer")
	}

	emit(domain.ErrorEvent{Message: message})
}

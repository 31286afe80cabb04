package service

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/pagination"
)

const (
	defaultConversationPageSize = 20
	maxConversationPageSize     = 100
	historyWindow               = 40
)

type ConversationRepository interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	// ListAccessible returns conversations the user owns or can reach through a
	// project membership, newest first.
	ListAccessible(ctx context.Context, orgID, userID string, cursor *pagination.Cursor, limit int) ([]*domain.Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	// ListRecent returns the latest limit messages in creation order.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

type ProjectMembershipRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
}

// ConversationDetail is a conversation with its messages in creation order.
type ConversationDetail struct {
	Conversation *domain.Conversation
	Messages     []*domain.Message
}

// ConversationService owns conversation access rules.
type ConversationService struct {
	conversations ConversationRepository
	messages      MessageRepository
	projects      ProjectMembershipRepository
	txRunner      TxRunner
	uuidGen       UUIDGenerator
	now           func() time.Time
}

func NewConversationService(conversations ConversationRepository, messages MessageRepository, projects ProjectMembershipRepository, txRunner TxRunner) *ConversationService {
	return NewConversationServiceWithUUIDGen(conversations, messages, projects, txRunner, &DefaultUUIDGenerator{})
}

func NewConversationServiceWithUUIDGen(conversations ConversationRepository, messages MessageRepository, projects ProjectMembershipRepository, txRunner TxRunner, uuidGen UUIDGenerator) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		projects:      projects,
		txRunner:      txRunner,
		uuidGen:       uuidGen,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CanAccess reports whether identity may read and continue the conversation.
func (s *ConversationService) CanAccess(ctx context.Context, identity domain.Identity, c *domain.Conversation) (bool, error) {
	if c.OrgID != identity.OrgID {
		return false, nil
	}
	if c.IsOwnedBy(identity) {
		return true, nil
	}
	if c.ProjectID == "" || s.projects == nil {
		return false, nil
	}
	return s.projects.IsMember(ctx, c.ProjectID, identity.UserID)
}

// Load returns a conversation the identity may access. Conversations of other
// organizations are reported as not found.
func (s *ConversationService) Load(ctx context.Context, identity domain.Identity, id string) (*domain.Conversation, error) {
	if identity.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	c, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OrgID != identity.OrgID {
		return nil, domain.ErrConversationNotFound
	}
	ok, err := s.CanAccess(ctx, identity, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrForbidden
	}
	return c, nil
}

// CheckProject verifies the identity is a member of the project.
func (s *ConversationService) CheckProject(ctx context.Context, identity domain.Identity, projectID string) error {
	if projectID == "" {
		return nil
	}
	if s.projects == nil {
		return domain.ErrProjectNotFound
	}
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.OrgID != identity.OrgID {
		return domain.ErrProjectNotFound
	}
	member, err := s.projects.IsMember(ctx, projectID, identity.UserID)
	if err != nil {
		return err
	}
	if !member {
		return domain.ErrForbidden
	}
	return nil
}

// StartTurnInput names the conversation a user message goes to.
type StartTurnInput struct {
	ConversationID string
	ProjectID      string
	Message        string
}

// StartedTurn is the conversation and stored user message of a new turn.
type StartedTurn struct {
	Conversation *domain.Conversation
	Message      *domain.Message
	Created      bool
}

// StartTurn resolves or creates the conversation and stores the user message
// in one transaction. The message is stored before any model call so that a
// failed request still leaves a consistent history.
func (s *ConversationService) StartTurn(ctx context.Context, identity domain.Identity, input StartTurnInput) (*StartedTurn, error) {
	var conv *domain.Conversation
	created := false
	if input.ConversationID != "" {
		c, err := s.Load(ctx, identity, input.ConversationID)
		if err != nil {
			return nil, err
		}
		if input.ProjectID != "" && input.ProjectID != c.ProjectID {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "conversation belongs to a different project")
		}
		conv = c
	} else {
		if err := s.CheckProject(ctx, identity, input.ProjectID); err != nil {
			return nil, err
		}
		conv = domain.NewConversation(s.uuidGen.NewString(), identity.OrgID, identity.UserID, input.ProjectID, domain.TitleFromMessage(input.Message), s.now())
		if err := domain.ValidateConversation(conv); err != nil {
			return nil, err
		}
		created = true
	}

	msg := domain.NewMessage(s.uuidGen.NewString(), conv.ID, domain.RoleUser, input.Message, s.now())
	if err := domain.ValidateMessage(msg); err != nil {
		return nil, err
	}

	write := func(conversations ConversationRepository, messages MessageRepository) error {
		if created {
			if err := conversations.Create(ctx, conv); err != nil {
				return err
			}
		} else if err := conversations.Touch(ctx, conv.ID, msg.CreatedAt); err != nil {
			return err
		}
		return messages.Create(ctx, msg)
	}

	var err error
	if s.txRunner != nil {
		err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			return write(repos.Conversations(), repos.Messages())
		})
	} else {
		err = write(s.conversations, s.messages)
	}
	if err != nil {
		return nil, err
	}
	return &StartedTurn{Conversation: conv, Message: msg, Created: created}, nil
}

// History returns the recent messages of a conversation, excluding one message id.
func (s *ConversationService) History(ctx context.Context, conversationID, excludeID string) ([]*domain.Message, error) {
	messages, err := s.messages.ListRecent(ctx, conversationID, historyWindow)
	if err != nil {
		return nil, err
	}
	out := messages[:0:0]
	for _, m := range messages {
		if m.ID != excludeID {
			out = append(out, m)
		}
	}
	return out, nil
}

// AppendAssistant stores the assistant reply of a turn.
func (s *ConversationService) AppendAssistant(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = s.uuidGen.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.Role = domain.RoleAssistant
	if err := domain.ValidateMessage(msg); err != nil {
		return err
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return err
	}
	return s.conversations.Touch(ctx, msg.ConversationID, msg.CreatedAt)
}

func (s *ConversationService) List(ctx context.Context, identity domain.Identity, cursor string, limit int) (*pagination.PageResult[*domain.Conversation], error) {
	if identity.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultConversationPageSize
	}
	if limit > maxConversationPageSize {
		limit = maxConversationPageSize
	}
	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.ErrInvalidCursor
	}

	rows, err := s.conversations.ListAccessible(ctx, identity.OrgID, identity.UserID, decoded, limit+1)
	if err != nil {
		return nil, err
	}
	return pagination.Page(rows, limit, func(c *domain.Conversation) pagination.Cursor {
		return pagination.Cursor{LastID: c.ID, Timestamp: c.UpdatedAt}
	}), nil
}

func (s *ConversationService) Get(ctx context.Context, identity domain.Identity, id string) (*ConversationDetail, error) {
	c, err := s.Load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByConversation(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &ConversationDetail{Conversation: c, Messages: messages}, nil
}

// IsAccessError reports whether err is an authorization or not-found failure
// that must surface before any external call.
func IsAccessError(err error) bool {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return false
	}
	switch de.Code {
	case domain.ErrCodeUnauthorized, domain.ErrCodeForbidden, domain.ErrCodeNotFound:
		return true
	}
	return false
}

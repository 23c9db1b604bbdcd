package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/events"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/storage"
	"inline-media-backend/pkg/logger"

	"github.com/google/uuid"
)

// ChatService is the host chat application: sessions, messages and the render
// callbacks that drive the media lifecycle through the event bus.
type ChatService struct {
	storage storage.Storage
	bus     *events.Bus
	config  config.SessionConfig
}

// NewStorage builds the configured backend, falling back to memory when the disk
// store cannot be initialized.
func NewStorage(cfg *config.Config) storage.Storage {
	var store storage.Storage

	if cfg.Storage.Type == "disk" {
		store = storage.NewDiskStorage(cfg.Storage.DataDir, cfg.Storage.CacheSize)
	} else {
		store = storage.NewMemoryStorage()
	}

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize storage: %v", err)
		store = storage.NewMemoryStorage()
		_ = store.Init()
	}
	return store
}

func NewChatService(store storage.Storage, bus *events.Bus, cfg config.SessionConfig) *ChatService {
	return &ChatService{
		storage: store,
		bus:     bus,
		config:  cfg,
	}
}

func wrapNotFound(err error, sessionID, op string) error {
	if errors.Is(err, storage.ErrSessionNotFound) {
		return fmt.Errorf("%w: %s", storage.ErrSessionNotFound, sessionID)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (s *ChatService) CreateSession(title string) (*model.Session, error) {
	sessionID := fmt.Sprintf("%d", time.Now().UnixNano())

	if title == "" {
		title = "新对话 " + time.Now().Format("2006-01-02 15:04")
	}

	session := &model.Session{
		ID:        sessionID,
		Title:     title,
		Messages:  make([]model.Message, 0),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.storage.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (s *ChatService) GetSession(sessionID string) (*model.Session, error) {
	session, err := s.storage.GetSession(sessionID)
	if err != nil {
		return nil, wrapNotFound(err, sessionID, "get session")
	}
	return session, nil
}

func (s *ChatService) GetSessionMessages(sessionID string) ([]model.Message, error) {
	messages, err := s.storage.GetMessages(sessionID)
	if err != nil {
		return nil, wrapNotFound(err, sessionID, "get messages")
	}

	result := make([]model.Message, len(messages))
	for i, msg := range messages {
		result[i] = *msg
	}

	return result, nil
}

// AddMessage stores a message. Swipes default to the content as the only variant.
func (s *ChatService) AddMessage(req model.AddMessageRequest) (*model.Message, error) {
	session, err := s.storage.GetSession(req.SessionID)
	if err != nil {
		return nil, wrapNotFound(err, req.SessionID, "get session")
	}

	message := &model.Message{
		ID:          uuid.New().String(),
		SessionID:   req.SessionID,
		Role:        req.Role,
		Name:        req.Name,
		Content:     req.Content,
		HTMLContent: req.HTMLContent,
		IsSystem:    req.IsSystem,
		Swipes:      req.Swipes,
		Timestamp:   time.Now(),
	}
	if len(message.Swipes) == 0 {
		message.Swipes = []string{req.Content}
	}

	if err := s.storage.AddMessage(req.SessionID, message); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	// 如果这是第一条用户消息，并且会话标题是默认标题，则更新标题
	if req.Role == model.RoleUser && len(session.Messages) == 0 && strings.HasPrefix(session.Title, "新对话") {
		session, err = s.storage.GetSession(req.SessionID)
		if err == nil {
			session.Title = s.truncateString(req.Content, 30)
			session.UpdatedAt = time.Now()
			if err := s.storage.UpdateSession(session); err != nil {
				logger.Warnf("Failed to retitle session %s: %v", req.SessionID, err)
			}
		}
	}

	return message, nil
}

func (s *ChatService) UpdateSessionTitle(sessionID, title string) error {
	session, err := s.storage.GetSession(sessionID)
	if err != nil {
		return wrapNotFound(err, sessionID, "get session")
	}

	session.Title = title
	session.UpdatedAt = time.Now()

	if err := s.storage.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

// CleanupOldSessions deletes sessions idle for longer than the session TTL until ctx
// is cancelled.
func (s *ChatService) CleanupOldSessions(ctx context.Context) {
	if s.config.CleanupInterval <= 0 || s.config.TTL <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupBefore(time.Now().Add(-s.config.TTL))
		}
	}
}

func (s *ChatService) cleanupBefore(cutoff time.Time) {
	sessions, err := s.storage.ListSessions()
	if err != nil {
		logger.Errorf("Failed to list sessions for cleanup: %v", err)
		return
	}

	for _, session := range sessions {
		if session.UpdatedAt.Before(cutoff) {
			if err := s.storage.DeleteSession(session.ID); err != nil {
				logger.Errorf("Failed to delete expired session %s: %v", session.ID, err)
			} else {
				logger.Infof("Cleaned up expired session: %s", session.ID)
			}
		}
	}
}

func (s *ChatService) GetAllSessions() ([]*model.Session, error) {
	sessions, err := s.storage.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

func (s *ChatService) DeleteSession(sessionID string) error {
	if err := s.storage.DeleteSession(sessionID); err != nil {
		return wrapNotFound(err, sessionID, "delete session")
	}
	return nil
}

func (s *ChatService) ClearAllSessions() error {
	sessions, err := s.storage.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, session := range sessions {
		if err := s.storage.DeleteSession(session.ID); err != nil {
			logger.Errorf("Failed to delete session %s: %v", session.ID, err)
		}
	}

	return nil
}

func (s *ChatService) truncateString(str string, maxLen int) string {
	runes := []rune(str)
	if len(runes) <= maxLen {
		return str
	}
	return string(runes[:maxLen]) + "..."
}

// SwitchChat announces that the client now shows sessionID.
func (s *ChatService) SwitchChat(sessionID string) error {
	if _, err := s.storage.GetSession(sessionID); err != nil {
		return wrapNotFound(err, sessionID, "get session")
	}
	s.emit(events.ChatChanged, sessionID, "")
	return nil
}

// ✅ 约束2：更新单个消息渲染结果，严格验证会话ID
func (s *ChatService) UpdateMessageRender(sessionID, messageID, htmlContent string, renderTime int64) error {
	if err := s.storage.UpdateMessageRender(sessionID, messageID, htmlContent, renderTime); err != nil {
		return err
	}
	s.emitRendered(sessionID, messageID)
	return nil
}

// ✅ 约束2：批量更新渲染结果，按会话ID分组验证
func (s *ChatService) UpdateMessagesRender(sessionID string, renders []model.RenderUpdate) error {
	if err := s.storage.UpdateMessagesRender(sessionID, renders); err != nil {
		return err
	}
	for _, r := range renders {
		s.emitRendered(sessionID, r.MessageID)
	}
	return nil
}

// emitRendered only fires for character messages, like the host does.
func (s *ChatService) emitRendered(sessionID, messageID string) {
	msg, err := s.storage.GetMessage(sessionID, messageID)
	if err != nil || msg.Role != model.RoleAssistant {
		return
	}
	s.emit(events.CharacterMessageRendered, sessionID, messageID)
}

// EditMessage replaces a message's text and markup and emits message_updated.
func (s *ChatService) EditMessage(sessionID, messageID string, req model.EditMessageRequest) (*model.Message, error) {
	msg, err := s.storage.UpdateMessage(sessionID, messageID, func(m *model.Message) error {
		if req.Content != "" {
			m.Content = req.Content
			if m.SwipeID >= 0 && m.SwipeID < len(m.Swipes) {
				m.Swipes[m.SwipeID] = req.Content
			}
		}
		if req.HTMLContent != "" {
			m.HTMLContent = req.HTMLContent
			m.IsRendered = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.MessageUpdated, sessionID, messageID)
	return msg, nil
}

// ErrInvalidSwipe is returned for a swipe index outside the message's variants.
var ErrInvalidSwipe = errors.New("invalid swipe id")

// SwipeMessage selects another variant of a message and emits message_swiped.
func (s *ChatService) SwipeMessage(sessionID, messageID string, req model.SwipeRequest) (*model.Message, error) {
	msg, err := s.storage.UpdateMessage(sessionID, messageID, func(m *model.Message) error {
		if req.SwipeID < 0 || req.SwipeID >= len(m.Swipes) {
			return fmt.Errorf("%w: %d", ErrInvalidSwipe, req.SwipeID)
		}
		m.SwipeID = req.SwipeID
		m.Content = m.Swipes[req.SwipeID]
		m.HTMLContent = req.HTMLContent
		m.IsRendered = req.HTMLContent != ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.MessageSwiped, sessionID, messageID)
	return msg, nil
}

// ✅ 约束2：获取未渲染的消息，严格按会话ID过滤
func (s *ChatService) GetPendingRenders(sessionID string) ([]*model.Message, error) {
	messages, err := s.storage.GetPendingRenders(sessionID)
	if err != nil {
		return nil, wrapNotFound(err, sessionID, "get pending renders")
	}

	return messages, nil
}

// GetStorage 返回存储实例，用于其他服务共享
func (s *ChatService) GetStorage() storage.Storage {
	return s.storage
}

func (s *ChatService) emit(name, sessionID, messageID string) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(events.Event{
		Name:      name,
		SessionID: sessionID,
		MessageID: messageID,
		Timestamp: time.Now().UnixMilli(),
	})
}

package storage

import (
	"fmt"
	"sync"
	"time"

	"inline-media-backend/internal/model"
)

// MemoryStorage keeps sessions in process. Callers always receive copies.
type MemoryStorage struct {
	sessions map[string]*model.Session
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*model.Session),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backup() error {
	return nil
}

func (m *MemoryStorage) CreateSession(session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStorage) GetSession(sessionID string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (m *MemoryStorage) UpdateSession(session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; !exists {
		return ErrSessionNotFound
	}

	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStorage) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; !exists {
		return ErrSessionNotFound
	}

	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStorage) ListSessions() ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*model.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session.Clone())
	}

	return sessions, nil
}

func (m *MemoryStorage) AddMessage(sessionID string, message *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	session.Messages = append(session.Messages, *message.Clone())
	session.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStorage) GetMessages(sessionID string) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	messages := make([]*model.Message, len(session.Messages))
	for i := range session.Messages {
		messages[i] = session.Messages[i].Clone()
	}

	return messages, nil
}

func (m *MemoryStorage) GetMessage(sessionID, messageID string) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	i := indexOf(session, messageID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return session.Messages[i].Clone(), nil
}

func (m *MemoryStorage) UpdateMessage(sessionID, messageID string, fn MessageMutator) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	i := indexOf(session, messageID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}

	msg, err := applyMutation(session, i, fn)
	if err != nil {
		return nil, err
	}
	session.UpdatedAt = time.Now()
	return msg, nil
}

// ✅ 约束2：更新单个消息渲染结果，严格验证会话ID
func (m *MemoryStorage) UpdateMessageRender(sessionID, messageID, htmlContent string, renderTimeMs int64) error {
	_, err := m.UpdateMessage(sessionID, messageID, renderMutator(htmlContent, renderTimeMs))
	return err
}

func (m *MemoryStorage) UpdateMessagesRender(sessionID string, renders []model.RenderUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}
	for _, r := range renders {
		if i := indexOf(session, r.MessageID); i >= 0 {
			if _, err := applyMutation(session, i, renderMutator(r.HTMLContent, r.RenderTime)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MemoryStorage) GetPendingRenders(sessionID string) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return pendingRenders(session.Messages, sessionID), nil
}

package storage

import (
	"inline-media-backend/internal/model"
)

// MessageMutator edits a message copy. Returning an error discards the edit.
type MessageMutator func(msg *model.Message) error

type Storage interface {
	// 会话管理
	CreateSession(session *model.Session) error
	GetSession(sessionID string) (*model.Session, error)
	UpdateSession(session *model.Session) error
	DeleteSession(sessionID string) error
	ListSessions() ([]*model.Session, error)

	// 消息管理（扩展支持HTML）
	AddMessage(sessionID string, message *model.Message) error
	GetMessages(sessionID string) ([]*model.Message, error)
	GetMessage(sessionID, messageID string) (*model.Message, error)
	// UpdateMessage applies fn to a copy of the message under the storage lock and
	// commits and persists the copy only when fn succeeds. It returns the committed copy.
	UpdateMessage(sessionID, messageID string, fn MessageMutator) (*model.Message, error)
	UpdateMessageRender(sessionID, messageID, htmlContent string, renderTimeMs int64) error
	UpdateMessagesRender(sessionID string, renders []model.RenderUpdate) error
	GetPendingRenders(sessionID string) ([]*model.Message, error)

	// 存储管理
	Init() error
	Close() error
	Backup() error
}

func indexOf(session *model.Session, messageID string) int {
	for i := range session.Messages {
		if session.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// applyMutation runs fn against a clone of the message at i and writes it back on
// success. Identity fields cannot be changed by fn.
func applyMutation(session *model.Session, i int, fn MessageMutator) (*model.Message, error) {
	orig := &session.Messages[i]
	next := orig.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = orig.ID
	next.SessionID = orig.SessionID
	session.Messages[i] = *next
	return next.Clone(), nil
}

func renderMutator(htmlContent string, renderTimeMs int64) MessageMutator {
	return func(m *model.Message) error {
		m.HTMLContent = htmlContent
		m.IsRendered = true
		m.RenderTimeMs = renderTimeMs
		return nil
	}
}

func pendingRenders(messages []model.Message, sessionID string) []*model.Message {
	var pending []*model.Message
	for i := range messages {
		msg := &messages[i]
		if msg.SessionID != sessionID {
			continue
		}
		// 只返回assistant角色且未渲染的消息
		if msg.Role == model.RoleAssistant && !msg.IsRendered {
			pending = append(pending, msg.Clone())
		}
	}
	return pending
}

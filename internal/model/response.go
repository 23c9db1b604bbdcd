package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type SessionResponse struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

type Message struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	Role         string       `json:"role"`
	Name         string       `json:"name,omitempty"`         // 角色名 (ch_name)
	Content      string       `json:"content"`                // 原始文本
	HTMLContent  string       `json:"html_content,omitempty"` // 渲染后的HTML内容
	IsRendered   bool         `json:"is_rendered"`
	RenderTimeMs int64        `json:"render_time_ms,omitempty"`
	IsSystem     bool         `json:"is_system,omitempty"`
	Swipes       []string     `json:"swipes,omitempty"`
	SwipeID      int          `json:"swipe_id"`
	Extra        MessageExtra `json:"extra"`
	Timestamp    time.Time    `json:"timestamp"`
}

// MessageExtra is the free-form metadata bag persisted with a message.
type MessageExtra struct {
	CustomImages []MediaRecord `json:"custom_images,omitempty"`
	Image        string        `json:"image,omitempty"`
	InlineImage  bool          `json:"inline_image,omitempty"`
}

func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// Clone returns a copy that shares no slices with m.
func (m *Message) Clone() *Message {
	c := *m
	if m.Swipes != nil {
		c.Swipes = append([]string(nil), m.Swipes...)
	}
	if m.Extra.CustomImages != nil {
		c.Extra.CustomImages = append([]MediaRecord(nil), m.Extra.CustomImages...)
	}
	return &c
}

// FindRecord returns a pointer into m's record list, or nil.
func (m *Message) FindRecord(id string) *MediaRecord {
	for i := range m.Extra.CustomImages {
		if m.Extra.CustomImages[i].ID == id {
			return &m.Extra.CustomImages[i]
		}
	}
	return nil
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone deep-copies the session and its messages.
func (s *Session) Clone() *Session {
	c := *s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		for i := range s.Messages {
			c.Messages[i] = *s.Messages[i].Clone()
		}
	}
	return &c
}

type MediaStateResponse struct {
	SessionID string   `json:"session_id"`
	MessageID string   `json:"message_id"`
	State     string   `json:"state"`
	Busy      []string `json:"busy,omitempty"`
}

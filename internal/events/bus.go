// Package events is the in-process host event bus.
package events

import (
	"sync"
	"time"

	"inline-media-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

const (
	CharacterMessageRendered = "character_message_rendered"
	ChatChanged              = "chat_id_changed"
	MessageUpdated           = "message_updated"
	MessageSwiped            = "message_swiped"
	ImgGenerated             = "EventImgGenerated"
	ImgRestored              = "EventImgRestored"
	WorkflowsUpdated         = "workflows_updated"
	Notice                   = "notice"
)

// Event is one host notification. Chat-changed events carry only SessionID.
type Event struct {
	Name      string         `json:"name"`
	SessionID string         `json:"session_id"`
	MessageID string         `json:"message_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

type Handler func(Event)

type subscriber struct {
	ch chan Event
}

// Bus dispatches events synchronously to handlers and fans them out to streaming
// subscribers without blocking.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	last     map[string][]Handler
	subs     map[*subscriber]struct{}
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		last:     make(map[string][]Handler),
		subs:     make(map[*subscriber]struct{}),
	}
}

// On registers h for name.
func (b *Bus) On(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// MakeLast registers h to run after every handler registered with On.
func (b *Bus) MakeLast(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[name] = append(b.last[name], h)
}

// Emit runs the handlers for e.Name in the calling goroutine, then forwards e to
// subscribers. A full subscriber buffer drops the event for that subscriber.
func (b *Bus) Emit(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Name])+len(b.last[e.Name]))
	hs = append(hs, b.handlers[e.Name]...)
	hs = append(hs, b.last[e.Name]...)
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(e)
	}

	for _, s := range subs {
		select {
		case s.ch <- e:
		default:
			logger.WithFields(logrus.Fields{"event": e.Name}).Warnf("订阅者缓冲区已满，丢弃事件")
		}
	}
}

// Subscribe returns a channel receiving every emitted event and a cancel func that
// must be called to release it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		})
	}
}

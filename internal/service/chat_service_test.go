package service

import (
	"testing"
	"time"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/events"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChat(t *testing.T) (*ChatService, <-chan events.Event) {
	t.Helper()
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(32)
	t.Cleanup(cancel)
	return NewChatService(storage.NewMemoryStorage(), bus, config.SessionConfig{}), ch
}

func names(ch <-chan events.Event) []string {
	var out []string
	for {
		select {
		case e := <-ch:
			out = append(out, e.Name)
		default:
			return out
		}
	}
}

func TestChatServiceRenderEvents(t *testing.T) {
	chat, ch := newChat(t)
	session, err := chat.CreateSession("")
	require.NoError(t, err)

	user, err := chat.AddMessage(model.AddMessageRequest{SessionID: session.ID, Role: model.RoleUser, Content: "draw me a cat please"})
	require.NoError(t, err)
	bot, err := chat.AddMessage(model.AddMessageRequest{SessionID: session.ID, Role: model.RoleAssistant, Content: "ok"})
	require.NoError(t, err)

	require.NoError(t, chat.UpdateMessageRender(session.ID, user.ID, "<p>u</p>", 1))
	require.NoError(t, chat.UpdateMessageRender(session.ID, bot.ID, "<p>b</p>", 1))
	assert.Equal(t, []string{events.CharacterMessageRendered}, names(ch))

	got, err := chat.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "draw me a cat please", got.Title)

	pending, err := chat.GetPendingRenders(session.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestChatServiceEditAndSwipe(t *testing.T) {
	chat, ch := newChat(t)
	session, err := chat.CreateSession("t")
	require.NoError(t, err)
	msg, err := chat.AddMessage(model.AddMessageRequest{
		SessionID: session.ID, Role: model.RoleAssistant, Content: "one", Swipes: []string{"one", "two"},
	})
	require.NoError(t, err)

	edited, err := chat.EditMessage(session.ID, msg.ID, model.EditMessageRequest{Content: "uno", HTMLContent: "<p>uno</p>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"uno", "two"}, edited.Swipes)
	assert.True(t, edited.IsRendered)

	swiped, err := chat.SwipeMessage(session.ID, msg.ID, model.SwipeRequest{SwipeID: 1, HTMLContent: "<p>two</p>"})
	require.NoError(t, err)
	assert.Equal(t, "two", swiped.Content)
	assert.Equal(t, 1, swiped.SwipeID)

	_, err = chat.SwipeMessage(session.ID, msg.ID, model.SwipeRequest{SwipeID: 5})
	assert.ErrorIs(t, err, ErrInvalidSwipe)

	require.NoError(t, chat.SwitchChat(session.ID))
	assert.Equal(t, []string{events.MessageUpdated, events.MessageSwiped, events.ChatChanged}, names(ch))

	assert.ErrorIs(t, chat.SwitchChat("missing"), storage.ErrSessionNotFound)
}

func TestChatServiceCleanup(t *testing.T) {
	chat, _ := newChat(t)
	old, err := chat.CreateSession("old")
	require.NoError(t, err)
	fresh, err := chat.CreateSession("fresh")
	require.NoError(t, err)

	stale, err := chat.GetSession(old.ID)
	require.NoError(t, err)
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, chat.GetStorage().UpdateSession(stale))

	chat.cleanupBefore(time.Now().Add(-24 * time.Hour))

	_, err = chat.GetSession(old.ID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	_, err = chat.GetSession(fresh.ID)
	assert.NoError(t, err)
}

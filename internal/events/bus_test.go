package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitRunsLastHandlersAfterOthers(t *testing.T) {
	b := NewBus()
	var order []string

	b.MakeLast(CharacterMessageRendered, func(Event) { order = append(order, "last") })
	b.On(CharacterMessageRendered, func(Event) { order = append(order, "first") })
	b.On(CharacterMessageRendered, func(Event) { order = append(order, "second") })
	b.On(MessageSwiped, func(Event) { order = append(order, "other") })

	b.Emit(Event{Name: CharacterMessageRendered, SessionID: "s", MessageID: "m"})
	assert.Equal(t, []string{"first", "second", "last"}, order)
}

func TestSubscribeReceivesAndCancels(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(4)

	b.Emit(Event{Name: ImgGenerated, SessionID: "s"})
	e := <-ch
	assert.Equal(t, ImgGenerated, e.Name)
	assert.NotZero(t, e.Timestamp)

	cancel()
	cancel()
	b.Emit(Event{Name: ImgGenerated})
	assert.Len(t, ch, 0)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Emit(Event{Name: Notice})
	}
	require.Len(t, ch, 1)
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type collectingSink struct {
	events []SessionEvent
}

func (c *collectingSink) Publish(event SessionEvent) {
	c.events = append(c.events, event)
}

func TestEventBusRouting(t *testing.T) {
	bus := NewEventBus()
	one := bus.Subscribe("one", 4)
	all := bus.Subscribe("", 4)
	sink := &collectingSink{}
	bus.AddSink(sink)
	bus.AddSink(nil)

	bus.Publish(SessionEvent{Type: EventSubtitle, SessionID: "one"})
	bus.Publish(SessionEvent{Type: EventClosed, SessionID: "two"})

	assert.Len(t, one, 1)
	assert.Len(t, all, 2)
	assert.Len(t, sink.events, 2)

	event := <-one
	assert.Equal(t, EventSubtitle, event.Type)
	assert.False(t, event.Timestamp.IsZero())
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("s", 1)

	bus.Publish(SessionEvent{Type: EventSubtitle, SessionID: "s"})
	bus.Publish(SessionEvent{Type: EventResponses, SessionID: "s"})

	assert.Len(t, ch, 1)
	assert.Equal(t, EventSubtitle, (<-ch).Type)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("s", 0)
	assert.Equal(t, 16, cap(ch))

	bus.Unsubscribe("s", ch)
	_, open := <-ch
	assert.False(t, open)

	bus.Unsubscribe("s", ch)
	bus.Publish(SessionEvent{Type: EventSubtitle, SessionID: "s"})
}

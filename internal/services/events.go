// internal/services/events.go
package services

import (
	"sync"
	"time"
)

// Session event types
const (
	EventSubtitle  = "subtitle"
	EventResponses = "responses"
	EventClosed    = "closed"
	EventMessage   = "message"
	EventPortrait  = "portrait"
)

// SessionEvent 会话事件，推送给订阅者和 WebSocket 客户端
type SessionEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher receives session events
type Publisher interface {
	Publish(event SessionEvent)
}

// EventBus 将会话事件分发给通道订阅者和其他发布器
type EventBus struct {
	subscribers map[string]map[chan SessionEvent]bool
	sinks       []Publisher
	mutex       sync.RWMutex
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]map[chan SessionEvent]bool),
	}
}

// AddSink forwards every event to p as well.
func (b *EventBus) AddSink(p Publisher) {
	if p == nil {
		return
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.sinks = append(b.sinks, p)
}

// Publish implements Publisher.
func (b *EventBus) Publish(event SessionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mutex.RLock()
	sinks := b.sinks
	for subscriber := range b.subscribers[event.SessionID] {
		// 非阻塞发送，通道已满则跳过
		select {
		case subscriber <- event:
		default:
		}
	}
	for subscriber := range b.subscribers[""] {
		select {
		case subscriber <- event:
		default:
		}
	}
	b.mutex.RUnlock()

	for _, sink := range sinks {
		sink.Publish(event)
	}
}

// Subscribe 订阅会话事件，sessionID 为空时接收所有会话的事件
func (b *EventBus) Subscribe(sessionID string, buffer int) chan SessionEvent {
	if buffer <= 0 {
		buffer = 16
	}
	subscriber := make(chan SessionEvent, buffer)

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.subscribers[sessionID] == nil {
		b.subscribers[sessionID] = make(map[chan SessionEvent]bool)
	}
	b.subscribers[sessionID][subscriber] = true
	return subscriber
}

// Unsubscribe 取消订阅并关闭通道
func (b *EventBus) Unsubscribe(sessionID string, subscriber chan SessionEvent) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok || !subs[subscriber] {
		return
	}
	delete(subs, subscriber)
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}
	close(subscriber)
}

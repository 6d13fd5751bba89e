package knock

import (
	"fmt"
	"sync"
)

// Cross-tab sync is modeled as an injected capability so the feed orchestrator
// stays environment-agnostic: a browser-backed runtime (e.g. wasm) supplies a
// real same-origin channel, everything else gets the no-op variant.

// BroadcastMessage is the JSON-serializable payload exchanged between
// same-origin contexts.
type BroadcastMessage struct {
	Type    string        `json:"type"`
	Payload *EventPayload `json:"payload"`
}

type ReceiveBroadcastFunction func(message *BroadcastMessage)

type Broadcaster interface {
	// Broadcast sends to every other subscriber of the same channel name.
	// the sender never receives its own messages.
	Broadcast(message *BroadcastMessage)
	AddReceiveCallback(receiveCallback ReceiveBroadcastFunction) func()
	Close()
}

// BroadcastChannelFactory opens a broadcaster for a channel name of the form
// "knock:feed:{feedId}:{userId}".
type BroadcastChannelFactory func(channelName string) Broadcaster

func broadcastChannelName(feedId string, userId string) string {
	return fmt.Sprintf("knock:feed:%s:%s", feedId, userId)
}

type noopBroadcaster struct {
}

func NewNoopBroadcaster() Broadcaster {
	return &noopBroadcaster{}
}

func (self *noopBroadcaster) Broadcast(message *BroadcastMessage) {
}

func (self *noopBroadcaster) AddReceiveCallback(receiveCallback ReceiveBroadcastFunction) func() {
	return func() {}
}

func (self *noopBroadcaster) Close() {
}

// LoopbackBroadcastHub connects broadcasters within one process, for tests and
// for multiple clients sharing a process. Delivery is synchronous.
type LoopbackBroadcastHub struct {
	mutex    sync.Mutex
	channels map[string]*CallbackList[*loopbackBroadcaster]
}

func NewLoopbackBroadcastHub() *LoopbackBroadcastHub {
	return &LoopbackBroadcastHub{
		channels: map[string]*CallbackList[*loopbackBroadcaster]{},
	}
}

// Channel returns a BroadcastChannelFactory-compatible broadcaster bound to
// channelName.
func (self *LoopbackBroadcastHub) Channel(channelName string) Broadcaster {
	self.mutex.Lock()
	subscribers, ok := self.channels[channelName]
	if !ok {
		subscribers = NewCallbackList[*loopbackBroadcaster]()
		self.channels[channelName] = subscribers
	}
	self.mutex.Unlock()

	broadcaster := &loopbackBroadcaster{
		hub:              self,
		channelName:      channelName,
		receiveCallbacks: NewCallbackList[ReceiveBroadcastFunction](),
	}
	broadcaster.subscriberId = subscribers.Add(broadcaster)
	return broadcaster
}

func (self *LoopbackBroadcastHub) broadcast(from *loopbackBroadcaster, message *BroadcastMessage) {
	self.mutex.Lock()
	subscribers := self.channels[from.channelName]
	self.mutex.Unlock()
	if subscribers == nil {
		return
	}
	for _, subscriber := range subscribers.Get() {
		if subscriber == from {
			continue
		}
		subscriber.receive(message)
	}
}

type loopbackBroadcaster struct {
	hub          *LoopbackBroadcastHub
	channelName  string
	subscriberId int

	receiveCallbacks *CallbackList[ReceiveBroadcastFunction]

	closeMutex sync.Mutex
	closed     bool
}

func (self *loopbackBroadcaster) Broadcast(message *BroadcastMessage) {
	self.closeMutex.Lock()
	closed := self.closed
	self.closeMutex.Unlock()
	if closed {
		return
	}
	self.hub.broadcast(self, message)
}

func (self *loopbackBroadcaster) AddReceiveCallback(receiveCallback ReceiveBroadcastFunction) func() {
	callbackId := self.receiveCallbacks.Add(receiveCallback)
	return func() {
		self.receiveCallbacks.Remove(callbackId)
	}
}

func (self *loopbackBroadcaster) receive(message *BroadcastMessage) {
	self.closeMutex.Lock()
	closed := self.closed
	self.closeMutex.Unlock()
	if closed {
		return
	}
	for _, receiveCallback := range self.receiveCallbacks.Get() {
		func() {
			defer func() {
				recover()
			}()
			receiveCallback(message)
		}()
	}
}

func (self *loopbackBroadcaster) Close() {
	self.closeMutex.Lock()
	defer self.closeMutex.Unlock()
	if self.closed {
		return
	}
	self.closed = true

	self.hub.mutex.Lock()
	subscribers := self.hub.channels[self.channelName]
	self.hub.mutex.Unlock()
	if subscribers != nil {
		subscribers.Remove(self.subscriberId)
	}
}

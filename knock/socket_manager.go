package knock

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
)

const socketEventNewMessage = "new-message"

// SocketEventPayload is an inbound push event. Attn lists the reference ids
// the event is relevant to and determines fan-out; it is stripped before
// delivery.
type SocketEventPayload struct {
	Event    string          `json:"event"`
	Metadata FeedMetadata    `json:"metadata"`
	Data     json.RawMessage `json:"data,omitempty"`
	Attn     []string        `json:"attn,omitempty"`
}

type InboxFunction func(payload *SocketEventPayload)

func feedTopic(userFeedId string) string {
	return fmt.Sprintf("feeds:%s", userFeedId)
}

// FeedSocketManager multiplexes many feed instances onto a minimal number of
// shared channels: one physical channel per (feedId, userId) topic, no matter
// how many instances with differing filters are watching it. The inbox maps
// each reference id to the most recent undelivered event; delivery is "at
// least the latest", not a durable queue.
type FeedSocketManager struct {
	socket *Socket

	mutex sync.Mutex
	// topic -> referenceId -> that instance's filter params
	params map[string]map[string]map[string]any
	// topic -> live channel handle
	channels map[string]*Channel
	// topic -> channel event binding detach
	channelUnsubs map[string]func()
	// referenceId -> latest undelivered event
	inbox map[string]*SocketEventPayload
	// referenceId -> subscribed listener
	inboxCallbacks map[string]InboxFunction
	// referenceId -> unsubscribe handle returned by Join
	feedUnsubs map[string]func()
}

func NewFeedSocketManager(socket *Socket) *FeedSocketManager {
	return &FeedSocketManager{
		socket:         socket,
		params:         map[string]map[string]map[string]any{},
		channels:       map[string]*Channel{},
		channelUnsubs:  map[string]func(){},
		inbox:          map[string]*SocketEventPayload{},
		inboxCallbacks: map[string]InboxFunction{},
		feedUnsubs:     map[string]func(){},
	}
}

func (self *FeedSocketManager) Socket() *Socket {
	return self.socket
}

// Join subscribes a feed instance to its topic. The channel is lazily created
// on first join and re-created whenever any instance's params change, with the
// combined parameter set of all currently-joined instances (the server needs
// all filters up front to decide what to push to whom). The returned handle
// detaches only this feed's inbox subscription; leaving the channel is Leave's
// job.
func (self *FeedSocketManager) Join(feed *Feed) func() {
	self.socket.Connect()

	topic := feedTopic(feed.UserFeedId())
	referenceId := feed.ReferenceId()
	feedParams := feed.channelParams()

	self.mutex.Lock()
	topicParams, ok := self.params[topic]
	if !ok {
		topicParams = map[string]map[string]any{}
		self.params[topic] = topicParams
	}

	previousParams, joined := topicParams[referenceId]
	paramsChanged := !joined || !reflect.DeepEqual(previousParams, feedParams)
	if paramsChanged {
		topicParams[referenceId] = feedParams

		combinedParams := map[string]any{}
		for joinedReferenceId, joinedParams := range topicParams {
			combinedParams[joinedReferenceId] = maps.Clone(joinedParams)
		}

		previousChannelUnsub := self.channelUnsubs[topic]
		channel := self.socket.CreateChannel(topic, combinedParams)
		self.channels[topic] = channel
		self.channelUnsubs[topic] = channel.AddEventCallback(func(event string, payload json.RawMessage) {
			self.handleChannelEvent(event, payload)
		})
		if previousChannelUnsub != nil {
			previousChannelUnsub()
		}
	}
	channel := self.channels[topic]

	self.inboxCallbacks[referenceId] = feed.HandleSocketEvent
	unsubscribe := func() {
		self.mutex.Lock()
		delete(self.inboxCallbacks, referenceId)
		self.mutex.Unlock()
	}
	self.feedUnsubs[referenceId] = unsubscribe

	// an event may have arrived for this reference id while detached
	pending := self.inbox[referenceId]
	delete(self.inbox, referenceId)
	self.mutex.Unlock()

	if !channel.IsJoined() {
		channel.Join()
	}

	if pending != nil {
		feed.HandleSocketEvent(pending)
	}

	glog.V(1).Infof("[sm]join %s %s\n", topic, referenceId)
	return unsubscribe
}

// Leave detaches the feed's inbox subscription and removes its params from
// the topic. The channel is torn down when its last subscriber leaves.
func (self *FeedSocketManager) Leave(feed *Feed) {
	topic := feedTopic(feed.UserFeedId())
	referenceId := feed.ReferenceId()

	self.mutex.Lock()
	unsubscribe := self.feedUnsubs[referenceId]
	delete(self.feedUnsubs, referenceId)
	delete(self.inbox, referenceId)
	self.mutex.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	self.mutex.Lock()
	topicParams := self.params[topic]
	if topicParams != nil {
		delete(topicParams, referenceId)
	}
	var channel *Channel
	var channelUnsub func()
	if len(topicParams) == 0 {
		delete(self.params, topic)
		channel = self.channels[topic]
		channelUnsub = self.channelUnsubs[topic]
		delete(self.channels, topic)
		delete(self.channelUnsubs, topic)
	}
	self.mutex.Unlock()

	if channelUnsub != nil {
		channelUnsub()
	}
	if channel != nil {
		channel.Leave()
	}

	glog.V(1).Infof("[sm]leave %s %s\n", topic, referenceId)
}

func (self *FeedSocketManager) handleChannelEvent(event string, payloadBytes json.RawMessage) {
	payload := &SocketEventPayload{}
	if err := json.Unmarshal(payloadBytes, payload); err != nil {
		glog.V(2).Infof("[sm]bad event payload = %s\n", err)
		return
	}
	if payload.Event == "" {
		payload.Event = event
	}
	self.setInbox(payload)
}

// setInbox fans the payload (minus attn) out to every listed reference id.
// A reference id without a live subscriber keeps only the latest event; a
// newer event overwrites an unconsumed one.
func (self *FeedSocketManager) setInbox(payload *SocketEventPayload) {
	delivered := &SocketEventPayload{
		Event:    payload.Event,
		Metadata: payload.Metadata,
		Data:     payload.Data,
	}

	listeners := map[string]InboxFunction{}
	self.mutex.Lock()
	for _, referenceId := range payload.Attn {
		if inboxCallback, ok := self.inboxCallbacks[referenceId]; ok {
			listeners[referenceId] = inboxCallback
		} else {
			self.inbox[referenceId] = delivered
		}
	}
	self.mutex.Unlock()

	for referenceId, inboxCallback := range listeners {
		glog.V(2).Infof("[sm]deliver %s %s\n", payload.Event, referenceId)
		func() {
			defer func() {
				recover()
			}()
			inboxCallback(delivered)
		}()
	}
}

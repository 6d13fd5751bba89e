package knock

import (
	"strings"
)

// Feed event names. Subscriptions accept either separator form
// ("items.seen" or "items:seen", kept for backward compatibility) and the
// wildcard form "items.*".
const (
	EventItemsSeen       = "items.seen"
	EventItemsUnseen     = "items.unseen"
	EventItemsRead       = "items.read"
	EventItemsUnread     = "items.unread"
	EventItemsInteracted = "items.interacted"
	EventItemsArchived   = "items.archived"
	EventItemsUnarchived = "items.unarchived"

	EventItemsReceivedPage     = "items.received.page"
	EventItemsReceivedRealtime = "items.received.realtime"

	// legacy compatibility event emitted alongside the received events
	EventMessagesNew = "messages.new"
)

// EventPayload is what feed event subscribers receive.
type EventPayload struct {
	Items    []*FeedItem   `json:"items,omitempty"`
	Metadata *FeedMetadata `json:"metadata,omitempty"`
}

type EventCallbackFunction func(event string, payload *EventPayload)

// normalizeEventName maps the legacy colon form onto the canonical dot form so
// that both names refer to the same subscription list.
func normalizeEventName(event string) string {
	return strings.ReplaceAll(event, ":", ".")
}

// eventNameMatches reports whether a subscribed pattern matches an emitted
// event. A trailing ".*" matches any suffix.
func eventNameMatches(pattern string, event string) bool {
	if pattern == event {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(event, prefix+".")
	}
	return false
}

// EventEmitter is a small pub/sub hub. Callbacks run synchronously on the
// emitting goroutine and are recovered so a panicking subscriber cannot take
// down the feed.
type EventEmitter struct {
	bindings *CallbackList[*eventBinding]
}

type eventBinding struct {
	pattern  string
	callback EventCallbackFunction
}

func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		bindings: NewCallbackList[*eventBinding](),
	}
}

func (self *EventEmitter) On(event string, callback EventCallbackFunction) func() {
	binding := &eventBinding{
		pattern:  normalizeEventName(event),
		callback: callback,
	}
	callbackId := self.bindings.Add(binding)
	return func() {
		self.bindings.Remove(callbackId)
	}
}

func (self *EventEmitter) Emit(event string, payload *EventPayload) {
	normalized := normalizeEventName(event)
	for _, binding := range self.bindings.Get() {
		if eventNameMatches(binding.pattern, normalized) {
			func() {
				defer func() {
					recover()
				}()
				binding.callback(event, payload)
			}()
		}
	}
}

// RemoveAllListeners drops every subscription. Used by Feed.Dispose.
func (self *EventEmitter) RemoveAllListeners() {
	for _, callbackId := range self.bindings.ids() {
		self.bindings.Remove(callbackId)
	}
}

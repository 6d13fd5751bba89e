package knock

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// the real-time protocol is phoenix-channels style: every frame is a json
// array [joinRef, ref, topic, event, payload]

const socketEventJoin = "phx_join"
const socketEventLeave = "phx_leave"
const socketEventReply = "phx_reply"
const socketEventHeartbeat = "heartbeat"
const socketTopicPhoenix = "phoenix"

type SocketSettings struct {
	WsHandshakeTimeout time.Duration
	HeartbeatTimeout   time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	ReconnectBackoff   *BackoffSettings
}

func DefaultSocketSettings() *SocketSettings {
	return &SocketSettings{
		WsHandshakeTimeout: 2 * time.Second,
		HeartbeatTimeout:   25 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        60 * time.Second,
		ReconnectBackoff:   DefaultBackoffSettings(),
	}
}

type socketFrame struct {
	joinRef string
	ref     string
	topic   string
	event   string
	payload json.RawMessage
}

func encodeSocketFrame(joinRef string, ref string, topic string, event string, payload any) ([]byte, error) {
	var joinRefValue any
	if joinRef != "" {
		joinRefValue = joinRef
	}
	var refValue any
	if ref != "" {
		refValue = ref
	}
	return json.Marshal([]any{joinRefValue, refValue, topic, event, payload})
}

func decodeSocketFrame(frameBytes []byte) (*socketFrame, error) {
	parts := []json.RawMessage{}
	if err := json.Unmarshal(frameBytes, &parts); err != nil {
		return nil, err
	}
	if len(parts) != 5 {
		return nil, fmt.Errorf("frame must have 5 parts: %d", len(parts))
	}
	frame := &socketFrame{
		payload: parts[4],
	}
	// joinRef and ref may be null
	json.Unmarshal(parts[0], &frame.joinRef)
	json.Unmarshal(parts[1], &frame.ref)
	if err := json.Unmarshal(parts[2], &frame.topic); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(parts[3], &frame.event); err != nil {
		return nil, err
	}
	return frame, nil
}

// Socket is one shared real-time connection per process. It owns the
// connect/reconnect loop and routes inbound frames to per-topic channels.
// Channel state is only ever mutated by the SocketManager and the socket's own
// serve loop.
type Socket struct {
	ctx    context.Context
	cancel context.CancelFunc

	wsUrl string

	settings *SocketSettings

	mutex    sync.Mutex
	started  bool
	ws       *websocket.Conn
	channels map[string]*Channel

	writeMutex sync.Mutex

	nextRef atomic.Int64
}

func NewSocketWithDefaults(ctx context.Context, wsUrl string) *Socket {
	return NewSocket(ctx, wsUrl, DefaultSocketSettings())
}

func NewSocket(ctx context.Context, wsUrl string, settings *SocketSettings) *Socket {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Socket{
		ctx:      cancelCtx,
		cancel:   cancel,
		wsUrl:    wsUrl,
		settings: settings,
		channels: map[string]*Channel{},
	}
}

// Connect starts the connection loop. Safe to call repeatedly; only the first
// call starts the loop.
func (self *Socket) Connect() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.started {
		return
	}
	self.started = true
	go self.run()
}

func (self *Socket) IsConnected() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.ws != nil
}

func (self *Socket) IsStarted() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.started
}

func (self *Socket) Disconnect() {
	self.cancel()
}

// CreateChannel registers a channel for the topic, replacing any existing
// channel. The previous channel's bindings are dropped with it.
func (self *Socket) CreateChannel(topic string, params map[string]any) *Channel {
	channel := &Channel{
		socket:         self,
		topic:          topic,
		params:         params,
		state:          channelStateClosed,
		eventCallbacks: NewCallbackList[ChannelEventFunction](),
	}
	self.mutex.Lock()
	self.channels[topic] = channel
	self.mutex.Unlock()
	return channel
}

func (self *Socket) Channel(topic string) *Channel {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.channels[topic]
}

func (self *Socket) removeChannel(channel *Channel) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.channels[channel.topic] == channel {
		delete(self.channels, channel.topic)
	}
}

func (self *Socket) makeRef() string {
	return strconv.FormatInt(self.nextRef.Add(1), 10)
}

func (self *Socket) run() {
	defer self.cancel()

	for tries := 1; ; tries += 1 {
		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.WsHandshakeTimeout,
		}
		ws, _, err := dialer.DialContext(self.ctx, self.wsUrl, nil)
		if err != nil {
			glog.Infof("[ws]connect error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(JitteredBackoffDelay(tries, self.settings.ReconnectBackoff)):
				continue
			}
		}
		tries = 0

		self.mutex.Lock()
		self.ws = ws
		self.mutex.Unlock()

		self.rejoinChannels()
		self.serve(ws)

		self.mutex.Lock()
		self.ws = nil
		self.mutex.Unlock()

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(JitteredBackoffDelay(1, self.settings.ReconnectBackoff)):
		}
	}
}

func (self *Socket) serve(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case <-time.After(self.settings.HeartbeatTimeout):
				if err := self.push("", self.makeRef(), socketTopicPhoenix, socketEventHeartbeat, map[string]any{}); err != nil {
					glog.Infof("[ws]heartbeat error = %s\n", err)
					return
				}
				glog.V(2).Infof("[ws]heartbeat->\n")
			}
		}
	}()

	for {
		select {
		case <-handleCtx.Done():
			return
		default:
		}

		ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			glog.Infof("[ws]<- error = %s\n", err)
			return
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			frame, err := decodeSocketFrame(message)
			if err != nil {
				glog.V(2).Infof("[ws]<- bad frame = %s\n", err)
				continue
			}
			self.dispatch(frame)
		}
	}
}

func (self *Socket) dispatch(frame *socketFrame) {
	if frame.topic == socketTopicPhoenix {
		// heartbeat reply
		glog.V(2).Infof("[ws]heartbeat<-\n")
		return
	}

	channel := self.Channel(frame.topic)
	if channel == nil {
		glog.V(2).Infof("[ws]<- no channel for topic %s\n", frame.topic)
		return
	}

	if frame.event == socketEventReply {
		channel.handleReply(frame.ref, frame.payload)
	} else {
		channel.dispatchEvent(frame.event, frame.payload)
	}
}

func (self *Socket) push(joinRef string, ref string, topic string, event string, payload any) error {
	frameBytes, err := encodeSocketFrame(joinRef, ref, topic, event, payload)
	if err != nil {
		return err
	}

	self.mutex.Lock()
	ws := self.ws
	self.mutex.Unlock()
	if ws == nil {
		return fmt.Errorf("socket not connected")
	}

	self.writeMutex.Lock()
	defer self.writeMutex.Unlock()
	ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, frameBytes)
}

func (self *Socket) rejoinChannels() {
	self.mutex.Lock()
	channels := []*Channel{}
	for _, channel := range self.channels {
		channels = append(channels, channel)
	}
	self.mutex.Unlock()

	for _, channel := range channels {
		if channel.shouldRejoin() {
			channel.sendJoin()
		}
	}
}

type channelState string

const (
	channelStateClosed  channelState = "closed"
	channelStateJoining channelState = "joining"
	channelStateJoined  channelState = "joined"
)

type ChannelEventFunction func(event string, payload json.RawMessage)

// Channel is the per-topic handle. Join is a desired state: the join frame is
// (re)sent whenever the socket (re)connects until Leave is called.
type Channel struct {
	socket *Socket
	topic  string

	mutex   sync.Mutex
	params  map[string]any
	state   channelState
	joinRef string

	eventCallbacks *CallbackList[ChannelEventFunction]
}

func (self *Channel) Topic() string {
	return self.topic
}

func (self *Channel) State() channelState {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.state
}

func (self *Channel) IsJoined() bool {
	return self.State() == channelStateJoined
}

func (self *Channel) AddEventCallback(eventCallback ChannelEventFunction) func() {
	callbackId := self.eventCallbacks.Add(eventCallback)
	return func() {
		self.eventCallbacks.Remove(callbackId)
	}
}

func (self *Channel) Join() {
	self.sendJoin()
}

func (self *Channel) Leave() {
	self.mutex.Lock()
	joinRef := self.joinRef
	self.state = channelStateClosed
	self.mutex.Unlock()

	if err := self.socket.push(joinRef, self.socket.makeRef(), self.topic, socketEventLeave, map[string]any{}); err != nil {
		glog.V(2).Infof("[ws]leave %s error = %s\n", self.topic, err)
	}
	self.socket.removeChannel(self)
	glog.V(1).Infof("[ws]leave %s\n", self.topic)
}

func (self *Channel) shouldRejoin() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.state != channelStateClosed
}

func (self *Channel) sendJoin() {
	self.mutex.Lock()
	ref := self.socket.makeRef()
	self.joinRef = ref
	self.state = channelStateJoining
	params := self.params
	self.mutex.Unlock()

	if err := self.socket.push(ref, ref, self.topic, socketEventJoin, params); err != nil {
		// retried on the next (re)connect
		glog.V(2).Infof("[ws]join %s deferred = %s\n", self.topic, err)
	}
}

func (self *Channel) handleReply(ref string, payload json.RawMessage) {
	reply := struct {
		Status   string          `json:"status"`
		Response json.RawMessage `json:"response"`
	}{}
	if err := json.Unmarshal(payload, &reply); err != nil {
		return
	}

	self.mutex.Lock()
	isJoinReply := self.state == channelStateJoining && ref == self.joinRef
	if isJoinReply && reply.Status == "ok" {
		self.state = channelStateJoined
	}
	self.mutex.Unlock()

	if isJoinReply {
		glog.V(1).Infof("[ws]join %s = %s\n", self.topic, reply.Status)
	}
}

func (self *Channel) dispatchEvent(event string, payload json.RawMessage) {
	for _, eventCallback := range self.eventCallbacks.Get() {
		func() {
			defer func() {
				recover()
			}()
			eventCallback(event, payload)
		}()
	}
}

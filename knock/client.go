package knock

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/golang/glog"
)

type ClientSettings struct {
	ApiUrl string
	WsUrl  string

	ApiSettings    *ApiSettings
	SocketSettings *SocketSettings

	// nil disables cross-tab sync even for feeds that opt in
	BroadcastChannelFactory BroadcastChannelFactory
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		ApiUrl:         "https://api.knock.app",
		WsUrl:          "wss://api.knock.app/ws/v1/websocket",
		ApiSettings:    DefaultApiSettings(),
		SocketSettings: DefaultSocketSettings(),
	}
}

// Client is the root handle on the platform for one authenticated user. It
// owns the http transport, the shared socket, and the registry of feed
// instances.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiKey   string
	settings *ClientSettings

	api   *Api
	feeds *Feeds

	mutex         sync.Mutex
	userId        string
	userToken     string
	socket        *Socket
	socketManager *FeedSocketManager
}

func NewClientWithDefaults(ctx context.Context, apiKey string) *Client {
	return NewClient(ctx, apiKey, DefaultClientSettings())
}

func NewClient(ctx context.Context, apiKey string, settings *ClientSettings) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ctx:      cancelCtx,
		cancel:   cancel,
		apiKey:   apiKey,
		settings: settings,
		api:      NewApi(cancelCtx, settings.ApiUrl, apiKey, settings.ApiSettings),
	}
	client.feeds = &Feeds{
		client: client,
	}
	return client
}

// Authenticate sets the acting user. Existing feed instances are
// reinitialized under the new identity.
func (self *Client) Authenticate(userId string, userToken string) {
	if userToken != "" {
		if claims, err := ParseUserTokenUnverified(userToken); err != nil {
			glog.Warningf("[c]user token does not parse = %s\n", err)
		} else if claims.Expired() {
			glog.Warningf("[c]user token for %s is expired\n", claims.UserId)
		}
	}

	self.mutex.Lock()
	self.userId = userId
	self.userToken = userToken
	self.mutex.Unlock()
	self.api.SetUserToken(userToken)

	self.feeds.ReinitializeInstances()
	glog.V(1).Infof("[c]authenticate %s\n", userId)
}

func (self *Client) UserId() string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.userId
}

func (self *Client) IsAuthenticated() bool {
	return self.UserId() != ""
}

func (self *Client) Api() *Api {
	return self.api
}

func (self *Client) Feeds() *Feeds {
	return self.feeds
}

func (self *Client) BroadcastChannelFactory() BroadcastChannelFactory {
	return self.settings.BroadcastChannelFactory
}

// SocketManager returns the process-wide multiplexer, creating the shared
// socket lazily on first use. The socket does not dial until a feed joins.
func (self *Client) SocketManager() *FeedSocketManager {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.socketManager == nil {
		self.socket = NewSocket(self.ctx, self.socketUrlLocked(), self.settings.SocketSettings)
		self.socketManager = NewFeedSocketManager(self.socket)
	}
	return self.socketManager
}

func (self *Client) socketUrlLocked() string {
	params := url.Values{}
	params.Set("vsn", "2.0.0")
	params.Set("api_key", self.apiKey)
	if self.userToken != "" {
		params.Set("user_token", self.userToken)
	}
	return fmt.Sprintf("%s?%s", self.settings.WsUrl, params.Encode())
}

// Close tears down all feed instances and the shared connections. Terminal.
func (self *Client) Close() {
	self.feeds.TeardownInstances()

	self.mutex.Lock()
	socket := self.socket
	self.mutex.Unlock()
	if socket != nil {
		socket.Disconnect()
	}

	self.api.Close()
	self.cancel()
}

// Feeds is the registry of feed instances owned by one client.
type Feeds struct {
	client *Client

	mutex sync.Mutex
	feeds []*Feed
}

// InitFeedClient constructs a feed instance for the channel and registers it.
func (self *Feeds) InitFeedClient(feedId string, options *FeedClientOptions) *Feed {
	if options == nil {
		options = DefaultFeedClientOptions()
	} else {
		if options.Status == "" {
			options.Status = FeedItemStatusAll
		}
		if options.Archived == "" {
			options.Archived = ArchivedScopeExclude
		}
		if options.PageSize == 0 {
			options.PageSize = defaultPageSize
		}
	}

	feed := newFeed(self.client, feedId, options)

	self.mutex.Lock()
	self.feeds = append(self.feeds, feed)
	self.mutex.Unlock()

	return feed
}

func (self *Feeds) Instances() []*Feed {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.feeds)
}

func (self *Feeds) removeInstance(feed *Feed) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	i := slices.Index(self.feeds, feed)
	if i < 0 {
		return
	}
	self.feeds = slices.Delete(slices.Clone(self.feeds), i, i+1)
}

func (self *Feeds) TeardownInstances() {
	for _, feed := range self.Instances() {
		feed.Teardown()
	}
}

func (self *Feeds) ReinitializeInstances() {
	for _, feed := range self.Instances() {
		feed.Reinitialize()
	}
}

package knock

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

const fetchSourceSocket = "socket"

// FetchResult is the outcome of a completed fetch. A skipped fetch (guard
// tripped) returns nil instead.
type FetchResult struct {
	// "ok" or "error"
	Status   string
	Response *FeedResponse
	// raw error body returned by the server, when the failure carried one
	Body json.RawMessage
	Err  error
}

// Feed is the client-side orchestrator for one notification feed channel
// scoped to one user. It owns one FeedStore, issues paginated fetches, applies
// optimistic mutations ahead of server confirmation, and reacts to pushed
// events by triggering incremental refetches.
//
// Optimistic state is never rolled back when a confirmation fails; the next
// successful fetch reconciles with the server.
type Feed struct {
	client *Client

	feedId         string
	defaultOptions *FeedClientOptions

	referenceId string

	store         *FeedStore
	emitter       *EventEmitter
	messages      *Messages
	socketManager *FeedSocketManager

	mutex          sync.Mutex
	userFeedId     string
	broadcaster    Broadcaster
	broadcastUnsub func()
	socketUnsub    func()
	listening      bool
	// survives teardown so Reinitialize can rejoin automatically
	hasSubscribedToRealTimeUpdates bool
	disposed                       bool
}

func newFeed(client *Client, feedId string, options *FeedClientOptions) *Feed {
	if !validFeedId(feedId) {
		// non-fatal: the server will reject requests for a bad channel id
		glog.Warningf("[f]feed id %s does not look like a channel id\n", feedId)
	}

	feed := &Feed{
		client:         client,
		feedId:         feedId,
		defaultOptions: options,
		referenceId:    newReferenceId(),
		userFeedId:     buildUserFeedId(feedId, client.UserId()),
		store:          NewFeedStore(),
		emitter:        NewEventEmitter(),
		messages:       NewMessages(client.Api()),
		socketManager:  client.SocketManager(),
		broadcaster:    NewNoopBroadcaster(),
	}
	feed.initBroadcaster()
	return feed
}

func (self *Feed) FeedId() string {
	return self.feedId
}

func (self *Feed) ReferenceId() string {
	return self.referenceId
}

func (self *Feed) UserFeedId() string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.userFeedId
}

func (self *Feed) Store() *FeedStore {
	return self.store
}

func (self *Feed) DefaultOptions() *FeedClientOptions {
	return self.defaultOptions
}

// On subscribes to feed events. Both "items.seen" and the legacy "items:seen"
// name forms are accepted, as is the wildcard "items.*".
func (self *Feed) On(event string, callback EventCallbackFunction) func() {
	return self.emitter.On(event, callback)
}

func (self *Feed) channelParams() map[string]any {
	return self.defaultOptions.socketChannelParams()
}

// ListenForUpdates joins the shared socket for this feed's topic. Joining is
// skipped (with a log line, not an error) while unauthenticated.
func (self *Feed) ListenForUpdates() {
	self.mutex.Lock()
	self.hasSubscribedToRealTimeUpdates = true
	self.mutex.Unlock()

	if !self.client.IsAuthenticated() {
		glog.Infof("[f]listen %s skipped, not authenticated\n", self.feedId)
		return
	}

	unsubscribe := self.socketManager.Join(self)

	self.mutex.Lock()
	self.socketUnsub = unsubscribe
	self.listening = true
	self.mutex.Unlock()
}

// Teardown releases the socket subscription and closes the cross-tab channel
// without destroying the store. Safe to call repeatedly.
func (self *Feed) Teardown() {
	self.mutex.Lock()
	socketUnsub := self.socketUnsub
	self.socketUnsub = nil
	listening := self.listening
	self.listening = false
	broadcastUnsub := self.broadcastUnsub
	self.broadcastUnsub = nil
	broadcaster := self.broadcaster
	self.broadcaster = NewNoopBroadcaster()
	self.mutex.Unlock()

	if socketUnsub != nil {
		socketUnsub()
	}
	if listening {
		self.socketManager.Leave(self)
	}
	if broadcastUnsub != nil {
		broadcastUnsub()
	}
	broadcaster.Close()
}

// Dispose is terminal: teardown plus clearing all event listeners and removal
// from the owning registry. The instance must not be reused afterward.
func (self *Feed) Dispose() {
	self.Teardown()
	self.emitter.RemoveAllListeners()
	self.client.Feeds().removeInstance(self)

	self.mutex.Lock()
	self.disposed = true
	self.mutex.Unlock()
}

// Reinitialize re-derives the user-scoped identity after the owning client's
// user changes, re-creates the cross-tab channel, and re-joins the socket if
// this feed had previously subscribed.
func (self *Feed) Reinitialize() {
	self.mutex.Lock()
	hasSubscribed := self.hasSubscribedToRealTimeUpdates
	self.mutex.Unlock()

	self.Teardown()

	self.mutex.Lock()
	self.userFeedId = buildUserFeedId(self.feedId, self.client.UserId())
	self.mutex.Unlock()

	self.initBroadcaster()

	if hasSubscribed {
		self.ListenForUpdates()
	}
	glog.V(1).Infof("[f]reinitialize %s\n", self.UserFeedId())
}

func (self *Feed) initBroadcaster() {
	if !self.defaultOptions.CrossBrowserUpdates {
		return
	}
	factory := self.client.BroadcastChannelFactory()
	if factory == nil {
		return
	}

	broadcaster := factory(broadcastChannelName(self.feedId, self.client.UserId()))
	broadcastUnsub := broadcaster.AddReceiveCallback(self.handleBroadcastMessage)

	self.mutex.Lock()
	self.broadcaster = broadcaster
	self.broadcastUnsub = broadcastUnsub
	self.mutex.Unlock()
}

// Fetch issues one page fetch scoped to the current user and channel. It
// no-ops (returning nil) while unauthenticated or while another request is in
// flight. On success the result is folded into the store: `Before` appends
// without touching pagination, `After` appends and advances the page, and a
// plain fetch replaces the items wholesale.
func (self *Feed) Fetch(options *FetchFeedOptions) *FetchResult {
	if !self.client.IsAuthenticated() {
		glog.Infof("[f]fetch %s skipped, not authenticated\n", self.feedId)
		return nil
	}
	if options == nil {
		options = &FetchFeedOptions{}
	}

	// guard and status set are one atomic step, so concurrent fetches
	// serialize and the loser observes the no-op
	self.mutex.Lock()
	if RequestInFlight(self.store.NetworkStatus()) {
		self.mutex.Unlock()
		glog.V(2).Infof("[f]fetch %s skipped, request in flight\n", self.feedId)
		return nil
	}
	loadingType := options.loadingType
	if loadingType == "" {
		loadingType = NetworkStatusLoading
	}
	loadingState := self.store.applyNetworkStatus(loadingType)
	self.mutex.Unlock()
	self.store.notify(loadingState)

	response := self.client.Api().Request(&ApiRequest{
		Method: "GET",
		Path: fmt.Sprintf(
			"/v1/users/%s/feeds/%s",
			url.PathEscape(self.client.UserId()),
			url.PathEscape(self.feedId),
		),
		Params: self.buildFetchParams(options),
	})

	if response.StatusCode != StatusCodeOk || len(response.Body) == 0 {
		self.store.SetNetworkStatus(NetworkStatusError)
		err := response.Err
		if err == nil {
			err = fmt.Errorf("feed fetch failed: status %d", response.Status)
		}
		return &FetchResult{
			Status: StatusCodeError,
			Body:   response.Body,
			Err:    err,
		}
	}

	feedResponse := &FeedResponse{}
	if err := json.Unmarshal(response.Body, feedResponse); err != nil {
		self.store.SetNetworkStatus(NetworkStatusError)
		return &FetchResult{
			Status: StatusCodeError,
			Body:   response.Body,
			Err:    err,
		}
	}

	if options.Before != "" {
		// prepend semantics via append+resort; pagination untouched
		self.store.SetResult(feedResponse, &SetResultOptions{
			ShouldSetPage: false,
			ShouldAppend:  true,
		})
	} else if options.After != "" {
		self.store.SetResult(feedResponse, &SetResultOptions{
			ShouldSetPage: true,
			ShouldAppend:  true,
		})
	} else {
		self.store.SetResult(feedResponse, DefaultSetResultOptions())
	}

	payload := &EventPayload{
		Items:    feedResponse.Entries,
		Metadata: &feedResponse.Meta,
	}
	self.emitter.Emit(EventMessagesNew, payload)
	if options.fetchSource == fetchSourceSocket {
		self.emitter.Emit(EventItemsReceivedRealtime, payload)
	} else {
		self.emitter.Emit(EventItemsReceivedPage, payload)
	}

	return &FetchResult{
		Status:   StatusCodeOk,
		Response: feedResponse,
	}
}

// FetchNextPage fetches the next older page. No-op when there is nothing more
// to fetch.
func (self *Feed) FetchNextPage() *FetchResult {
	pageInfo := self.store.PageInfo()
	if pageInfo.After == nil {
		return nil
	}
	return self.Fetch(&FetchFeedOptions{
		After:       *pageInfo.After,
		loadingType: NetworkStatusFetchMore,
	})
}

func (self *Feed) buildFetchParams(options *FetchFeedOptions) url.Values {
	defaults := self.defaultOptions
	params := url.Values{}

	status := defaults.Status
	if options.Status != "" {
		status = options.Status
	}
	if status != "" {
		params.Set("status", string(status))
	}

	archived := defaults.Archived
	if options.Archived != "" {
		archived = options.Archived
	}
	if archived != "" {
		params.Set("archived", string(archived))
	}

	tenant := defaults.Tenant
	if options.Tenant != "" {
		tenant = options.Tenant
	}
	if tenant != "" {
		params.Set("tenant", tenant)
	}

	source := defaults.Source
	if options.Source != "" {
		source = options.Source
	}
	if source != "" {
		params.Set("source", source)
	}

	hasTenant := defaults.HasTenant
	if options.HasTenant != nil {
		hasTenant = options.HasTenant
	}
	if hasTenant != nil {
		params.Set("has_tenant", strconv.FormatBool(*hasTenant))
	}

	workflowCategories := defaults.WorkflowCategories
	if 0 < len(options.WorkflowCategories) {
		workflowCategories = options.WorkflowCategories
	}
	for _, workflowCategory := range workflowCategories {
		params.Add("workflow_categories", workflowCategory)
	}

	// object-typed trigger data rides as a json string
	triggerData := defaults.TriggerData
	if options.TriggerData != nil {
		triggerData = options.TriggerData
	}
	if triggerData != nil {
		if triggerDataBytes, err := json.Marshal(triggerData); err == nil {
			params.Set("trigger_data", string(triggerDataBytes))
		} else {
			glog.Warningf("[f]trigger data dropped = %s\n", err)
		}
	}

	pageSize := defaults.PageSize
	if 0 < options.PageSize {
		pageSize = options.PageSize
	}
	if 0 < pageSize {
		params.Set("page_size", strconv.Itoa(pageSize))
	}

	if options.Before != "" {
		params.Set("before", options.Before)
	}
	if options.After != "" {
		params.Set("after", options.After)
	}

	return params
}

// HandleSocketEvent reacts to a push event addressed to this instance.
func (self *Feed) HandleSocketEvent(payload *SocketEventPayload) {
	switch payload.Event {
	case socketEventNewMessage:
		self.onNewMessageReceived(payload)
	default:
		glog.V(2).Infof("[f]unhandled socket event %s\n", payload.Event)
	}
}

func (self *Feed) onNewMessageReceived(payload *SocketEventPayload) {
	// the server-declared counter delta applies immediately; the items arrive
	// via an incremental fetch that leaves pagination untouched
	self.store.SetMetadata(payload.Metadata)

	options := &FetchFeedOptions{
		fetchSource: fetchSourceSocket,
	}
	if items := self.store.Items(); 0 < len(items) {
		options.Before = items[0].Cursor
	}
	self.Fetch(options)
}

func (self *Feed) MarkAsSeen(items ...*FeedItem) (*BatchUpdateStatusesResult, error) {
	return self.markItems(MessageStatusSeen, items, nil)
}

func (self *Feed) MarkAsUnseen(items ...*FeedItem) (*BatchUpdateStatusesResult, error) {
	return self.markItems(MessageStatusUnseen, items, nil)
}

func (self *Feed) MarkAsRead(items ...*FeedItem) (*BatchUpdateStatusesResult, error) {
	return self.markItems(MessageStatusRead, items, nil)
}

func (self *Feed) MarkAsUnread(items ...*FeedItem) (*BatchUpdateStatusesResult, error) {
	return self.markItems(MessageStatusUnread, items, nil)
}

func (self *Feed) MarkAsInteracted(items ...*FeedItem) (*BatchUpdateStatusesResult, error) {
	return self.markItems(MessageStatusInteracted, items, nil)
}

// MarkAsInteractedWithMetadata forwards interaction metadata to the batch
// endpoint alongside the status change.
func (self *Feed) MarkAsInteractedWithMetadata(metadata map[string]any, items ...*FeedItem) (*BatchUpdateStatusesResult, error) {
	return self.markItems(MessageStatusInteracted, items, metadata)
}

func (self *Feed) MarkAsArchived(items ...*FeedItem) (*BatchUpdateStatusesResult, error) {
	return self.markItems(MessageStatusArchived, items, nil)
}

func (self *Feed) MarkAsUnarchived(items ...*FeedItem) (*BatchUpdateStatusesResult, error) {
	return self.markItems(MessageStatusUnarchived, items, nil)
}

// markItems runs the uniform two-phase protocol: the optimistic local phase
// synchronously, then one batched confirmation call for all affected ids
// (always the batch endpoint, even for a single item). Events fire after the
// confirmation resolves.
func (self *Feed) markItems(status MessageEngagementStatus, items []*FeedItem, metadata map[string]any) (*BatchUpdateStatusesResult, error) {
	if len(items) == 0 {
		return &BatchUpdateStatusesResult{Items: []*FeedItem{}}, nil
	}

	switch status {
	case MessageStatusArchived:
		self.optimisticArchive(items)
	case MessageStatusUnarchived:
		self.optimisticUnarchive(items)
	default:
		self.optimisticStatusUpdate(status, items)
	}

	result, err := self.messages.BatchUpdateStatuses(status, &BatchUpdateStatusesRequest{
		MessageIds: itemIds(items),
		Metadata:   metadata,
	})
	if err != nil {
		// the optimistic state deliberately stays in place
		return nil, err
	}

	event := statusEventName(status)
	payload := &EventPayload{
		Items: items,
	}
	self.broadcastOverChannel(event, payload)
	self.emitter.Emit(event, payload)

	return result, nil
}

// optimisticStatusUpdate adjusts the relevant badge counter by the signed
// count of items that actually transition state (an already-seen item does not
// double-decrement), clamped to >= 0, then timestamps every supplied item.
// The counters and timestamps land in one store mutation, and subscribers are
// notified only after the feed lock is released so they can re-enter the feed.
func (self *Feed) optimisticStatusUpdate(status MessageEngagementStatus, items []*FeedItem) {
	self.mutex.Lock()

	now := time.Now()
	metadata := self.store.Metadata()
	var attrs ItemAttrs

	switch status {
	case MessageStatusSeen:
		transitioning := countItems(items, func(item *FeedItem) bool {
			return item.SeenAt == nil
		})
		metadata.UnseenCount = clampCount(metadata.UnseenCount - transitioning)
		attrs = ItemAttrs{SetSeenAt: true, SeenAt: &now}
	case MessageStatusUnseen:
		transitioning := countItems(items, func(item *FeedItem) bool {
			return item.SeenAt != nil
		})
		metadata.UnseenCount = clampCount(metadata.UnseenCount + transitioning)
		attrs = ItemAttrs{SetSeenAt: true, SeenAt: nil}
	case MessageStatusRead:
		transitioning := countItems(items, func(item *FeedItem) bool {
			return item.ReadAt == nil
		})
		metadata.UnreadCount = clampCount(metadata.UnreadCount - transitioning)
		attrs = ItemAttrs{SetReadAt: true, ReadAt: &now}
	case MessageStatusUnread:
		transitioning := countItems(items, func(item *FeedItem) bool {
			return item.ReadAt != nil
		})
		metadata.UnreadCount = clampCount(metadata.UnreadCount + transitioning)
		attrs = ItemAttrs{SetReadAt: true, ReadAt: nil}
	case MessageStatusInteracted:
		// interacting implies reading
		transitioning := countItems(items, func(item *FeedItem) bool {
			return item.InteractedAt == nil
		})
		metadata.UnreadCount = clampCount(metadata.UnreadCount - transitioning)
		attrs = ItemAttrs{
			SetReadAt:       true,
			ReadAt:          &now,
			SetInteractedAt: true,
			InteractedAt:    &now,
		}
	}

	state := self.store.applyItemUpdate(itemIds(items), attrs, &metadata)
	self.mutex.Unlock()
	self.store.notify(state)
}

// optimisticArchive removes items from view when the feed excludes archived
// items; otherwise it only timestamps them.
func (self *Feed) optimisticArchive(items []*FeedItem) {
	self.mutex.Lock()
	var state *FeedStoreState
	if self.defaultOptions.Archived == ArchivedScopeExclude {
		state = self.removeItemsFromView(items, self.store.State())
	} else {
		now := time.Now()
		state = self.store.applyItemUpdate(itemIds(items), ItemAttrs{
			SetArchivedAt: true,
			ArchivedAt:    &now,
		}, nil)
	}
	self.mutex.Unlock()
	self.store.notify(state)
}

// optimisticUnarchive mirrors optimisticArchive with the opposite scope check:
// in an archived-only view, unarchiving removes items from view.
func (self *Feed) optimisticUnarchive(items []*FeedItem) {
	self.mutex.Lock()
	var state *FeedStoreState
	if self.defaultOptions.Archived == ArchivedScopeOnly {
		state = self.removeItemsFromView(items, self.store.State())
	} else {
		state = self.store.applyItemUpdate(itemIds(items), ItemAttrs{
			SetArchivedAt: true,
			ArchivedAt:    nil,
		}, nil)
	}
	self.mutex.Unlock()
	self.store.notify(state)
}

// removeItemsFromView drops the affected items from the local list and
// decrements the counters by the counts of removed items that were actually
// unread/unseen, never blindly zeroing. Caller holds self.mutex and notifies
// with the returned snapshot after releasing it.
func (self *Feed) removeItemsFromView(items []*FeedItem, state *FeedStoreState) *FeedStoreState {
	removeIds := map[string]bool{}
	for _, item := range items {
		removeIds[item.Id] = true
	}

	affectedCount := 0
	unreadCount := 0
	unseenCount := 0
	for _, item := range state.Items {
		if !removeIds[item.Id] {
			continue
		}
		affectedCount += 1
		if item.ReadAt == nil {
			unreadCount += 1
		}
		if item.SeenAt == nil {
			unseenCount += 1
		}
	}

	metadata := state.Metadata
	metadata.TotalCount = clampCount(metadata.TotalCount - affectedCount)
	metadata.UnreadCount = clampCount(metadata.UnreadCount - unreadCount)
	metadata.UnseenCount = clampCount(metadata.UnseenCount - unseenCount)

	return self.store.applyRemoveItems(itemIds(items), metadata)
}

// MarkAllAsSeen optimistically zeroes the unseen counter, clearing the item
// list outright when this feed shows only unseen items, then issues one bulk
// call scoped by the feed's current filters. The bulk confirmation is async
// server-side, so a realtime item arriving in that window can make the local
// reset stale; that race is accepted behavior.
func (self *Feed) MarkAllAsSeen() (*BulkUpdateAllStatusesResult, error) {
	self.mutex.Lock()
	state := self.store.State()
	now := time.Now()
	var next *FeedStoreState
	if self.defaultOptions.Status == FeedItemStatusUnseen {
		metadata := state.Metadata
		metadata.UnseenCount = 0
		metadata.TotalCount = 0
		next = self.store.applyReset(metadata)
	} else {
		metadata := state.Metadata
		metadata.UnseenCount = 0
		next = self.store.applyItemUpdate(itemIds(state.Items), ItemAttrs{
			SetSeenAt: true,
			SeenAt:    &now,
		}, &metadata)
	}
	self.mutex.Unlock()
	self.store.notify(next)

	return self.bulkConfirm(MessageStatusSeen, "", state.Items)
}

func (self *Feed) MarkAllAsRead() (*BulkUpdateAllStatusesResult, error) {
	self.mutex.Lock()
	state := self.store.State()
	now := time.Now()
	var next *FeedStoreState
	if self.defaultOptions.Status == FeedItemStatusUnread {
		metadata := state.Metadata
		metadata.UnreadCount = 0
		metadata.TotalCount = 0
		next = self.store.applyReset(metadata)
	} else {
		metadata := state.Metadata
		metadata.UnreadCount = 0
		next = self.store.applyItemUpdate(itemIds(state.Items), ItemAttrs{
			SetReadAt: true,
			ReadAt:    &now,
		}, &metadata)
	}
	self.mutex.Unlock()
	self.store.notify(next)

	return self.bulkConfirm(MessageStatusRead, "", state.Items)
}

func (self *Feed) MarkAllAsArchived() (*BulkUpdateAllStatusesResult, error) {
	self.mutex.Lock()
	state := self.store.State()
	now := time.Now()
	var next *FeedStoreState
	if self.defaultOptions.Archived == ArchivedScopeExclude {
		// every loaded item leaves the view
		next = self.store.applyReset(FeedMetadata{})
	} else {
		next = self.store.applyItemUpdate(itemIds(state.Items), ItemAttrs{
			SetArchivedAt: true,
			ArchivedAt:    &now,
		}, nil)
	}
	self.mutex.Unlock()
	self.store.notify(next)

	return self.bulkConfirm(MessageStatusArchived, "", state.Items)
}

// MarkAllReadAsArchived archives only the already-read portion of the feed.
func (self *Feed) MarkAllReadAsArchived() (*BulkUpdateAllStatusesResult, error) {
	self.mutex.Lock()
	state := self.store.State()
	now := time.Now()
	readItems := []*FeedItem{}
	for _, item := range state.Items {
		if item.ReadAt != nil {
			readItems = append(readItems, item)
		}
	}
	var next *FeedStoreState
	if self.defaultOptions.Archived == ArchivedScopeExclude {
		next = self.removeItemsFromView(readItems, state)
	} else {
		next = self.store.applyItemUpdate(itemIds(readItems), ItemAttrs{
			SetArchivedAt: true,
			ArchivedAt:    &now,
		}, nil)
	}
	self.mutex.Unlock()
	self.store.notify(next)

	return self.bulkConfirm(MessageStatusArchived, MessageStatusRead, readItems)
}

// bulkConfirm issues the scope-wide bulk call. The filters mirror the current
// view's scope, so the server only touches items this feed would show.
func (self *Feed) bulkConfirm(status MessageEngagementStatus, engagementFilter MessageEngagementStatus, items []*FeedItem) (*BulkUpdateAllStatusesResult, error) {
	request := &BulkUpdateAllStatusesRequest{
		UserIds: []string{self.client.UserId()},
	}
	if engagementFilter != "" {
		request.EngagementStatus = engagementFilter
	} else if self.defaultOptions.Status != "" && self.defaultOptions.Status != FeedItemStatusAll {
		request.EngagementStatus = MessageEngagementStatus(self.defaultOptions.Status)
	}
	if self.defaultOptions.Archived != "" {
		request.Archived = self.defaultOptions.Archived
	}
	request.HasTenant = self.defaultOptions.HasTenant
	if self.defaultOptions.Tenant != "" {
		request.Tenants = []string{self.defaultOptions.Tenant}
	}

	result, err := self.messages.BulkUpdateAllStatusesInChannel(self.feedId, status, request)
	if err != nil {
		return nil, err
	}

	event := statusEventName(status)
	payload := &EventPayload{
		Items: items,
	}
	self.broadcastOverChannel(event, payload)
	self.emitter.Emit(event, payload)

	return result, nil
}

// broadcastOverChannel mirrors a confirmed mutation to other same-origin
// contexts. The payload is json round-tripped to strip anything
// non-serializable; a failure drops the broadcast with a warning, never an
// error to the caller.
func (self *Feed) broadcastOverChannel(event string, payload *EventPayload) {
	self.mutex.Lock()
	broadcaster := self.broadcaster
	self.mutex.Unlock()

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		glog.Warningf("[f]broadcast %s dropped = %s\n", event, err)
		return
	}
	roundTripped := &EventPayload{}
	if err := json.Unmarshal(payloadBytes, roundTripped); err != nil {
		glog.Warningf("[f]broadcast %s dropped = %s\n", event, err)
		return
	}

	broadcaster.Broadcast(&BroadcastMessage{
		Type:    legacyEventName(event),
		Payload: roundTripped,
	})
}

// handleBroadcastMessage reconciles with the server on any recognized
// item-mutation broadcast from another tab rather than replaying the remote
// optimistic update locally.
func (self *Feed) handleBroadcastMessage(message *BroadcastMessage) {
	if !recognizedBroadcastType(message.Type) {
		return
	}
	glog.V(2).Infof("[f]cross-tab %s, refetching\n", message.Type)
	self.Fetch(nil)
}

func itemIds(items []*FeedItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.Id
	}
	return ids
}

func countItems(items []*FeedItem, predicate func(item *FeedItem) bool) int {
	count := 0
	for _, item := range items {
		if predicate(item) {
			count += 1
		}
	}
	return count
}

func statusEventName(status MessageEngagementStatus) string {
	return fmt.Sprintf("items.%s", status)
}

// legacyEventName is the colon form used on the cross-tab channel.
func legacyEventName(event string) string {
	return strings.Replace(event, ".", ":", 1)
}

var recognizedBroadcastTypes = map[string]bool{
	EventItemsSeen:       true,
	EventItemsUnseen:     true,
	EventItemsRead:       true,
	EventItemsUnread:     true,
	EventItemsInteracted: true,
	EventItemsArchived:   true,
	EventItemsUnarchived: true,
}

func recognizedBroadcastType(broadcastType string) bool {
	return recognizedBroadcastTypes[normalizeEventName(broadcastType)]
}

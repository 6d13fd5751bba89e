package knock

import (
	"slices"
	"sync"
	"time"
)

// FeedStoreState is an immutable snapshot of the store. The item pointers are
// never mutated in place after publication; partial updates swap in copies.
type FeedStoreState struct {
	Items         []*FeedItem
	PageInfo      PageInfo
	Metadata      FeedMetadata
	NetworkStatus NetworkStatus
	Loading       bool
}

type StoreSubscriberFunction func(state *FeedStoreState)

type SetResultOptions struct {
	ShouldSetPage bool
	ShouldAppend  bool
}

func DefaultSetResultOptions() *SetResultOptions {
	return &SetResultOptions{
		ShouldSetPage: true,
		ShouldAppend:  false,
	}
}

// ItemAttrs is a partial update shallow-merged onto matching items. A facet is
// written only when its Set flag is true, so that a nil timestamp can clear
// the facet.
type ItemAttrs struct {
	SetReadAt bool
	ReadAt    *time.Time

	SetSeenAt bool
	SeenAt    *time.Time

	SetInteractedAt bool
	InteractedAt    *time.Time

	SetArchivedAt bool
	ArchivedAt    *time.Time
}

func (self *ItemAttrs) apply(item *FeedItem) *FeedItem {
	next := *item
	if self.SetReadAt {
		next.ReadAt = self.ReadAt
	}
	if self.SetSeenAt {
		next.SeenAt = self.SeenAt
	}
	if self.SetInteractedAt {
		next.InteractedAt = self.InteractedAt
	}
	if self.SetArchivedAt {
		next.ArchivedAt = self.ArchivedAt
	}
	return &next
}

// FeedStore is the reactive local cache of feed items, pagination state and
// aggregate counts. Pure state container; it performs no I/O. All mutation
// methods are synchronous and notify subscribers before returning.
type FeedStore struct {
	mutex sync.Mutex

	items         []*FeedItem
	pageInfo      PageInfo
	metadata      FeedMetadata
	networkStatus NetworkStatus
	loading       bool

	subscriberCallbacks *CallbackList[StoreSubscriberFunction]
}

func NewFeedStore() *FeedStore {
	return &FeedStore{
		items:               []*FeedItem{},
		pageInfo:            defaultPageInfo(),
		metadata:            FeedMetadata{},
		networkStatus:       NetworkStatusReady,
		subscriberCallbacks: NewCallbackList[StoreSubscriberFunction](),
	}
}

func (self *FeedStore) Subscribe(subscriberCallback StoreSubscriberFunction) func() {
	callbackId := self.subscriberCallbacks.Add(subscriberCallback)
	return func() {
		self.subscriberCallbacks.Remove(callbackId)
	}
}

// State returns a consistent snapshot.
func (self *FeedStore) State() *FeedStoreState {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.stateLocked()
}

func (self *FeedStore) stateLocked() *FeedStoreState {
	return &FeedStoreState{
		Items:         slices.Clone(self.items),
		PageInfo:      self.pageInfo,
		Metadata:      self.metadata,
		NetworkStatus: self.networkStatus,
		Loading:       self.loading,
	}
}

func (self *FeedStore) Items() []*FeedItem {
	return self.State().Items
}

func (self *FeedStore) PageInfo() PageInfo {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.pageInfo
}

func (self *FeedStore) Metadata() FeedMetadata {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.metadata
}

func (self *FeedStore) NetworkStatus() NetworkStatus {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.networkStatus
}

// notify runs outside the state lock so a subscriber can re-enter the store
func (self *FeedStore) notify(state *FeedStoreState) {
	for _, subscriberCallback := range self.subscriberCallbacks.Get() {
		func() {
			defer func() {
				recover()
			}()
			subscriberCallback(state)
		}()
	}
}

// SetResult applies a fetched page. When ShouldAppend, entries are merged onto
// the existing items, deduplicated by id keeping the pre-existing copy, and
// re-sorted newest first; otherwise entries replace the items as given, in the
// caller's order. PageInfo is written only when ShouldSetPage.
func (self *FeedStore) SetResult(response *FeedResponse, options *SetResultOptions) {
	if options == nil {
		options = DefaultSetResultOptions()
	}

	self.mutex.Lock()
	if options.ShouldAppend {
		self.items = mergeItems(self.items, response.Entries)
	} else {
		self.items = slices.Clone(response.Entries)
	}
	if options.ShouldSetPage {
		self.pageInfo = response.PageInfo
	}
	self.metadata = response.Meta
	self.loading = false
	self.networkStatus = NetworkStatusReady
	state := self.stateLocked()
	self.mutex.Unlock()

	self.notify(state)
}

// SetMetadata replaces the counters wholesale.
func (self *FeedStore) SetMetadata(metadata FeedMetadata) {
	self.mutex.Lock()
	self.metadata = metadata
	state := self.stateLocked()
	self.mutex.Unlock()

	self.notify(state)
}

func (self *FeedStore) SetNetworkStatus(networkStatus NetworkStatus) {
	self.notify(self.applyNetworkStatus(networkStatus))
}

// applyNetworkStatus mutates without notifying. Callers that hold their own
// lock notify with the returned snapshot after releasing it, so subscriber
// callbacks never run under a caller's lock.
func (self *FeedStore) applyNetworkStatus(networkStatus NetworkStatus) *FeedStoreState {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.networkStatus = networkStatus
	self.loading = networkStatus == NetworkStatusLoading
	return self.stateLocked()
}

// ResetStore restores the empty item list and initial page info, setting the
// counters to the given metadata (zeroed when omitted).
func (self *FeedStore) ResetStore(metadata ...FeedMetadata) {
	nextMetadata := FeedMetadata{}
	if 0 < len(metadata) {
		nextMetadata = metadata[0]
	}
	self.notify(self.applyReset(nextMetadata))
}

func (self *FeedStore) applyReset(metadata FeedMetadata) *FeedStoreState {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.items = []*FeedItem{}
	self.pageInfo = defaultPageInfo()
	self.metadata = metadata
	return self.stateLocked()
}

// SetItemAttrs shallow-merges attrs onto each item whose id is in itemIds.
// Unknown ids are silently ignored.
func (self *FeedStore) SetItemAttrs(itemIds []string, attrs ItemAttrs) {
	self.notify(self.applyItemUpdate(itemIds, attrs, nil))
}

// applyItemUpdate shallow-merges attrs onto each item whose id is in itemIds
// and, when metadata is non-nil, replaces the counters in the same mutation.
// Does not notify; see applyNetworkStatus.
func (self *FeedStore) applyItemUpdate(itemIds []string, attrs ItemAttrs, metadata *FeedMetadata) *FeedStoreState {
	idSet := map[string]bool{}
	for _, itemId := range itemIds {
		idSet[itemId] = true
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()
	nextItems := slices.Clone(self.items)
	for i, item := range nextItems {
		if idSet[item.Id] {
			nextItems[i] = attrs.apply(item)
		}
	}
	self.items = nextItems
	if metadata != nil {
		self.metadata = *metadata
	}
	return self.stateLocked()
}

// removeItems drops the given ids and writes the adjusted counters in one
// mutation, so subscribers never observe the intermediate state.
func (self *FeedStore) removeItems(itemIds []string, metadata FeedMetadata) {
	self.notify(self.applyRemoveItems(itemIds, metadata))
}

// applyRemoveItems is the non-notifying form used by the optimistic
// archive/unarchive paths, which run under the feed's lock.
func (self *FeedStore) applyRemoveItems(itemIds []string, metadata FeedMetadata) *FeedStoreState {
	idSet := map[string]bool{}
	for _, itemId := range itemIds {
		idSet[itemId] = true
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()
	nextItems := []*FeedItem{}
	for _, item := range self.items {
		if !idSet[item.Id] {
			nextItems = append(nextItems, item)
		}
	}
	self.items = nextItems
	self.metadata = metadata
	return self.stateLocked()
}

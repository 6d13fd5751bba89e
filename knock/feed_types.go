package knock

import (
	"encoding/json"
	"slices"
	"time"
)

const defaultPageSize = 50

// FeedItemStatus filters which engagement states a feed shows.
type FeedItemStatus string

const (
	FeedItemStatusAll    FeedItemStatus = "all"
	FeedItemStatusUnread FeedItemStatus = "unread"
	FeedItemStatusRead   FeedItemStatus = "read"
	FeedItemStatusUnseen FeedItemStatus = "unseen"
	FeedItemStatusSeen   FeedItemStatus = "seen"
)

// ArchivedScope controls whether archived items appear in a feed.
type ArchivedScope string

const (
	ArchivedScopeExclude ArchivedScope = "exclude"
	ArchivedScopeInclude ArchivedScope = "include"
	ArchivedScopeOnly    ArchivedScope = "only"
)

// NotificationSource identifies the workflow that generated an item.
type NotificationSource struct {
	Key        string   `json:"key"`
	VersionId  string   `json:"version_id"`
	Categories []string `json:"categories,omitempty"`
}

// FeedItem is one notification feed entry. The engagement timestamps are
// independent nullable facets (an item can be archived while still unread);
// absence means the state was never entered.
type FeedItem struct {
	Id         string    `json:"id"`
	Cursor     string    `json:"__cursor"`
	InsertedAt time.Time `json:"inserted_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	ReadAt       *time.Time `json:"read_at"`
	SeenAt       *time.Time `json:"seen_at"`
	ArchivedAt   *time.Time `json:"archived_at"`
	InteractedAt *time.Time `json:"interacted_at"`

	Activities []json.RawMessage  `json:"activities,omitempty"`
	Actors     []json.RawMessage  `json:"actors,omitempty"`
	Blocks     []json.RawMessage  `json:"blocks,omitempty"`
	Data       map[string]any     `json:"data,omitempty"`
	Source     NotificationSource `json:"source"`
	Tenant     *string            `json:"tenant"`
}

// FeedMetadata holds the aggregate badge counters. Counters are authoritative
// from the server but are optimistically adjusted locally between round trips,
// clamped to >= 0.
type FeedMetadata struct {
	TotalCount  int `json:"total_count"`
	UnreadCount int `json:"unread_count"`
	UnseenCount int `json:"unseen_count"`
}

// PageInfo carries the opaque pagination cursors. A non-nil After means more
// older items are available.
type PageInfo struct {
	Before   *string `json:"before"`
	After    *string `json:"after"`
	PageSize int     `json:"page_size"`
}

func defaultPageInfo() PageInfo {
	return PageInfo{
		Before:   nil,
		After:    nil,
		PageSize: defaultPageSize,
	}
}

// FeedResponse is the body of the feed collection endpoint.
type FeedResponse struct {
	Entries  []*FeedItem  `json:"entries"`
	Meta     FeedMetadata `json:"meta"`
	PageInfo PageInfo     `json:"page_info"`
}

// FeedClientOptions is the filter/scope configuration a feed instance is
// constructed with. Immutable for the lifetime of the instance except via
// Reinitialize.
type FeedClientOptions struct {
	Status             FeedItemStatus
	Archived           ArchivedScope
	Tenant             string
	Source             string
	HasTenant          *bool
	WorkflowCategories []string
	TriggerData        map[string]any
	PageSize           int

	// opt in to same-origin cross-tab reconciliation
	CrossBrowserUpdates bool
}

func DefaultFeedClientOptions() *FeedClientOptions {
	return &FeedClientOptions{
		Status:   FeedItemStatusAll,
		Archived: ArchivedScopeExclude,
		PageSize: defaultPageSize,
	}
}

// socketChannelParams is the shape of this instance's filter parameters in the
// socket join payload. The server needs all filters up front to decide what to
// push to whom.
func (self *FeedClientOptions) socketChannelParams() map[string]any {
	params := map[string]any{}
	if self.Status != "" {
		params["status"] = string(self.Status)
	}
	if self.Archived != "" {
		params["archived"] = string(self.Archived)
	}
	if self.Tenant != "" {
		params["tenant"] = self.Tenant
	}
	if self.Source != "" {
		params["source"] = self.Source
	}
	if self.HasTenant != nil {
		params["has_tenant"] = *self.HasTenant
	}
	return params
}

// FetchFeedOptions are per-call fetch parameters. Call-specific values win
// over the feed's default options. The unexported fields are internal-only and
// are stripped before anything reaches the wire.
type FetchFeedOptions struct {
	Before             string
	After              string
	PageSize           int
	Status             FeedItemStatus
	Archived           ArchivedScope
	Tenant             string
	Source             string
	HasTenant          *bool
	WorkflowCategories []string
	TriggerData        map[string]any

	// which NetworkStatus to set while the request is in flight
	loadingType NetworkStatus
	// "socket" when the fetch was triggered by a push event
	fetchSource string
}

// deduplicateItems drops later occurrences of an id, keeping the first-seen
// copy. The kept copy may be stale if the incoming duplicate is newer; that is
// a documented limitation of the merge, not something to silently fix.
func deduplicateItems(items []*FeedItem) []*FeedItem {
	seenIds := map[string]bool{}
	out := []*FeedItem{}
	for _, item := range items {
		if seenIds[item.Id] {
			continue
		}
		seenIds[item.Id] = true
		out = append(out, item)
	}
	return out
}

// sortItemsByInsertedAt stable-sorts descending by inserted_at, newest first.
func sortItemsByInsertedAt(items []*FeedItem) []*FeedItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a *FeedItem, b *FeedItem) int {
		if b.InsertedAt.Before(a.InsertedAt) {
			return -1
		} else if a.InsertedAt.Before(b.InsertedAt) {
			return 1
		} else {
			return 0
		}
	})
	return out
}

// mergeItems appends incoming entries onto existing items, deduplicates by id
// preferring the pre-existing copy, and re-sorts newest first.
func mergeItems(existingItems []*FeedItem, entries []*FeedItem) []*FeedItem {
	merged := make([]*FeedItem, 0, len(existingItems)+len(entries))
	merged = append(merged, existingItems...)
	merged = append(merged, entries...)
	return sortItemsByInsertedAt(deduplicateItems(merged))
}

func clampCount(count int) int {
	if count < 0 {
		return 0
	}
	return count
}

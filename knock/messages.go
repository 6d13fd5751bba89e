package knock

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/golang/glog"
)

// MessageEngagementStatus is the status segment of the batch and bulk message
// endpoints, e.g. POST /v1/messages/batch/seen.
type MessageEngagementStatus string

const (
	MessageStatusSeen       MessageEngagementStatus = "seen"
	MessageStatusUnseen     MessageEngagementStatus = "unseen"
	MessageStatusRead       MessageEngagementStatus = "read"
	MessageStatusUnread     MessageEngagementStatus = "unread"
	MessageStatusInteracted MessageEngagementStatus = "interacted"
	MessageStatusArchived   MessageEngagementStatus = "archived"
	MessageStatusUnarchived MessageEngagementStatus = "unarchived"
)

// ApiErrorBody is the structured error object server-rejected requests carry.
type ApiErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}

type BatchUpdateStatusesRequest struct {
	MessageIds []string       `json:"message_ids"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// BatchUpdateStatusesResult carries either the updated items or, for requests
// the server rejected with a structured client-side error, that error as a
// value.
type BatchUpdateStatusesResult struct {
	Items []*FeedItem
	Error *ApiErrorBody
}

type BulkUpdateAllStatusesRequest struct {
	UserIds          []string                `json:"user_ids"`
	EngagementStatus MessageEngagementStatus `json:"engagement_status,omitempty"`
	Archived         ArchivedScope           `json:"archived,omitempty"`
	HasTenant        *bool                   `json:"has_tenant,omitempty"`
	Tenants          []string                `json:"tenants,omitempty"`
}

// BulkOperation describes a scope-wide server-side update in progress.
type BulkOperation struct {
	Id                 string `json:"id"`
	Name               string `json:"name"`
	Status             string `json:"status"`
	EstimatedTotalRows int    `json:"estimated_total_rows"`
	ProcessedRows      int    `json:"processed_rows"`
	StartedAt          string `json:"started_at,omitempty"`
	CompletedAt        string `json:"completed_at,omitempty"`
}

type BulkUpdateAllStatusesResult struct {
	Operation *BulkOperation
	Error     *ApiErrorBody
}

// Messages is the thin collaborator the feed delegates server confirmation to.
// It does not retry; retry lives in the transport.
type Messages struct {
	api *Api
}

func NewMessages(api *Api) *Messages {
	return &Messages{
		api: api,
	}
}

// BatchUpdateStatuses confirms a status change for a batch of message ids.
// An error return means a server-side fault (>=500, network failure, or an
// unstructured error body); client-side rejections (<500) come back as a value
// so callers can tell "my request was rejected" from "the service is down".
func (self *Messages) BatchUpdateStatuses(status MessageEngagementStatus, request *BatchUpdateStatusesRequest) (*BatchUpdateStatusesResult, error) {
	response := self.api.Request(&ApiRequest{
		Method: "POST",
		Path:   fmt.Sprintf("/v1/messages/batch/%s", status),
		Body:   request,
	})

	if response.StatusCode == StatusCodeOk {
		items := []*FeedItem{}
		if err := json.Unmarshal(response.Body, &items); err != nil {
			return nil, err
		}
		return &BatchUpdateStatusesResult{
			Items: items,
		}, nil
	}

	errorBody, err := clientErrorBody(response)
	if err != nil {
		return nil, err
	}
	return &BatchUpdateStatusesResult{
		Error: errorBody,
	}, nil
}

// BulkUpdateAllStatusesInChannel confirms a scope-wide status change for all
// of a user's messages in a feed channel that match the supplied filters.
func (self *Messages) BulkUpdateAllStatusesInChannel(channelId string, status MessageEngagementStatus, request *BulkUpdateAllStatusesRequest) (*BulkUpdateAllStatusesResult, error) {
	response := self.api.Request(&ApiRequest{
		Method: "POST",
		Path:   fmt.Sprintf("/v1/channels/%s/messages/bulk/%s", url.PathEscape(channelId), status),
		Body:   request,
	})

	if response.StatusCode == StatusCodeOk {
		operation := &BulkOperation{}
		if err := json.Unmarshal(response.Body, operation); err != nil {
			return nil, err
		}
		return &BulkUpdateAllStatusesResult{
			Operation: operation,
		}, nil
	}

	errorBody, err := clientErrorBody(response)
	if err != nil {
		return nil, err
	}
	return &BulkUpdateAllStatusesResult{
		Error: errorBody,
	}, nil
}

// clientErrorBody splits the error envelope per the propagation policy:
// client-side faults with a structured body become values, everything else is
// an error.
func clientErrorBody(response *ApiResponse) (*ApiErrorBody, error) {
	if response.Status == 0 || 500 <= response.Status {
		if response.Err != nil {
			return nil, response.Err
		}
		return nil, fmt.Errorf("server fault: status %d", response.Status)
	}

	errorBody := &ApiErrorBody{}
	if err := json.Unmarshal(response.Body, errorBody); err != nil || errorBody.Message == "" && errorBody.Code == "" {
		// no structured error object, treat as a fault
		glog.V(2).Infof("[msg]unstructured error body status=%d\n", response.Status)
		if response.Err != nil {
			return nil, response.Err
		}
		return nil, fmt.Errorf("api error: status %d", response.Status)
	}
	return errorBody, nil
}

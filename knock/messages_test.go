package knock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func newTestMessages(server *httptest.Server) (*Messages, *Api) {
	api := NewApi(context.Background(), server.URL, "pk_test", testApiSettings())
	return NewMessages(api), api
}

func TestBatchUpdateStatuses(t *testing.T) {
	var requestPath string
	var requestBody BatchUpdateStatusesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&requestBody)
		w.Write([]byte(`[{"id":"msg_1"},{"id":"msg_2"}]`))
	}))
	defer server.Close()

	messages, api := newTestMessages(server)
	defer api.Close()

	result, err := messages.BatchUpdateStatuses(MessageStatusSeen, &BatchUpdateStatusesRequest{
		MessageIds: []string{"msg_1", "msg_2"},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, "/v1/messages/batch/seen", requestPath)
	assert.Equal(t, []string{"msg_1", "msg_2"}, requestBody.MessageIds)
	assert.Equal(t, 2, len(result.Items))
	assert.Equal(t, (*ApiErrorBody)(nil), result.Error)
}

func TestBatchUpdateStatusesInteractedMetadata(t *testing.T) {
	var requestBody BatchUpdateStatusesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&requestBody)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	messages, api := newTestMessages(server)
	defer api.Close()

	_, err := messages.BatchUpdateStatuses(MessageStatusInteracted, &BatchUpdateStatusesRequest{
		MessageIds: []string{"msg_1"},
		Metadata:   map[string]any{"action": "click"},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, "click", requestBody.Metadata["action"])
}

// a structured rejection under 500 is a value, not an error
func TestBatchUpdateStatusesClientErrorAsValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":"invalid_params","message":"unknown message id","type":"api_error"}`))
	}))
	defer server.Close()

	messages, api := newTestMessages(server)
	defer api.Close()

	result, err := messages.BatchUpdateStatuses(MessageStatusRead, &BatchUpdateStatusesRequest{
		MessageIds: []string{"msg_missing"},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(result.Items))
	assert.Equal(t, "invalid_params", result.Error.Code)
	assert.Equal(t, "unknown message id", result.Error.Message)
}

// a server fault is an error, never a value
func TestBatchUpdateStatusesServerFaultAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":"internal","message":"boom"}`))
	}))
	defer server.Close()

	settings := testApiSettings()
	settings.MaxRetries = 0
	api := NewApi(context.Background(), server.URL, "pk_test", settings)
	defer api.Close()
	messages := NewMessages(api)

	result, err := messages.BatchUpdateStatuses(MessageStatusRead, &BatchUpdateStatusesRequest{
		MessageIds: []string{"msg_1"},
	})
	assert.NotEqual(t, nil, err)
	assert.Equal(t, (*BatchUpdateStatusesResult)(nil), result)
}

// a client error with no structured body is also an error
func TestBatchUpdateStatusesUnstructuredErrorAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	messages, api := newTestMessages(server)
	defer api.Close()

	result, err := messages.BatchUpdateStatuses(MessageStatusArchived, &BatchUpdateStatusesRequest{
		MessageIds: []string{"msg_1"},
	})
	assert.NotEqual(t, nil, err)
	assert.Equal(t, (*BatchUpdateStatusesResult)(nil), result)
}

func TestBulkUpdateAllStatusesInChannel(t *testing.T) {
	var requestPath string
	var requestBody BulkUpdateAllStatusesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&requestBody)
		w.Write([]byte(`{"id":"bulk_1","name":"messages.mark_as_read","status":"queued","estimated_total_rows":120}`))
	}))
	defer server.Close()

	messages, api := newTestMessages(server)
	defer api.Close()

	result, err := messages.BulkUpdateAllStatusesInChannel(
		"channel_1",
		MessageStatusRead,
		&BulkUpdateAllStatusesRequest{
			UserIds:  []string{"user_1"},
			Archived: ArchivedScopeExclude,
		},
	)
	assert.Equal(t, nil, err)
	assert.Equal(t, "/v1/channels/channel_1/messages/bulk/read", requestPath)
	assert.Equal(t, []string{"user_1"}, requestBody.UserIds)
	assert.Equal(t, "bulk_1", result.Operation.Id)
	assert.Equal(t, 120, result.Operation.EstimatedTotalRows)
}

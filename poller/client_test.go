package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTrigger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bulk/refresh", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body TriggerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, types.EntityMovie, body.EntityType)
		assert.Equal(t, []int64{1, 2, 3}, body.IDs)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(TriggerResult{Success: true, ProgressKey: testKey, TotalItems: 3})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL + "/", Token: "tok"})
	result, err := client.Trigger(context.Background(), types.OperationRefresh, TriggerRequest{
		EntityType: types.EntityMovie,
		IDs:        []int64{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, testKey, result.ProgressKey)
	assert.Equal(t, 3, result.TotalItems)
}

func TestClientTriggerValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success":false,"error":"VALIDATION_ERROR","message":"Request validation failed","errors":{"ids":["ids must not be empty"]}}`))
	}))
	defer server.Close()

	_, err := NewClient(ClientConfig{BaseURL: server.URL}).Trigger(context.Background(), types.OperationRefresh, TriggerRequest{EntityType: types.EntityMovie})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnprocessableEntity, reqErr.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", reqErr.Code)
	assert.Equal(t, []string{"ids must not be empty"}, reqErr.Errors["ids"])
	assert.Contains(t, err.Error(), "ids must not be empty")
}

func TestClientProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != string(testKey) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"message":"not found"}`))
			return
		}
		w.Write([]byte(`{"success":true,"progress":{"total":7,"processed":5,"success":4,"failed":1,"status":"processing","current_batch":1,"total_batches":2,"errors":[{"id":3,"title":"Heat","error":"boom"}],"percentage":71,"stale":false}}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})

	snap, err := client.Progress(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Total)
	assert.Equal(t, 71, snap.Percentage)
	assert.Equal(t, types.StatusProcessing, snap.Status)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, int64(3), snap.Errors[0].ID)

	_, err = client.Progress(context.Background(), "import_series_1700000000_00000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

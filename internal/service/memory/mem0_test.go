package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/memchat/backend/internal/remote"
)

func TestMem0RememberSendsMessages(t *testing.T) {
	var got struct {
		Messages []Message `json:"messages"`
		UserID   string    `json:"user_id"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/memories/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"id":"m1","memory":"Name is Alex","event":"ADD"}]`))
	}))
	defer srv.Close()

	client := NewMem0Client(srv.URL, "secret", 0)
	records, err := client.Remember(context.Background(), []Message{{Role: "user", Content: "My name is Alex"}}, "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", got.UserID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "My name is Alex", got.Messages[0].Content)
	require.Len(t, records, 1)
	assert.Equal(t, "Name is Alex", records[0].Memory)
}

func TestMem0RecallAcceptsWrappedResults(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/memories/search/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"results":[
			{"id":"m1","memory":"Likes pizza","score":0.91,"created_at":"2024-07-20T01:25:21.589614-07:00"},
			{"id":"m2","memory":"Lives in Paris","score":0.4}
		]}`))
	}))
	defer srv.Close()

	records, err := NewMem0Client(srv.URL, "k", 0).Recall(context.Background(), "what food do I like", "u1", 5)
	require.NoError(t, err)

	assert.Equal(t, "what food do I like", body["query"])
	assert.EqualValues(t, 5, body["limit"])
	assert.Equal(t, []string{"Likes pizza", "Lives in Paris"}, Texts(records))
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestMem0RecallTruncatesToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"memory":"a"},{"memory":"b"},{"memory":"c"}]`))
	}))
	defer srv.Close()

	records, err := NewMem0Client(srv.URL, "k", 0).Recall(context.Background(), "q", "u1", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestMem0ListAllUsesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
		_, _ = w.Write([]byte(`[{"id":"m1","memory":"Birthday is in May"}]`))
	}))
	defer srv.Close()

	records, err := NewMem0Client(srv.URL, "k", 0).ListAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Birthday is in May"}, Texts(records))
}

func TestMem0FailuresAreRemoteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewMem0Client(srv.URL, "", 0)
	ctx := context.Background()

	_, err := client.Remember(ctx, []Message{{Role: "user", Content: "x"}}, "u1")
	assert.True(t, remote.IsRemote(err))
	assert.Contains(t, err.Error(), "401")

	_, err = client.Recall(ctx, "x", "u1", 5)
	assert.True(t, remote.IsRemote(err))

	_, err = client.ListAll(ctx, "u1")
	assert.True(t, remote.IsRemote(err))
}

func TestMem0UnreachableIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewMem0Client(url, "k", 0).Recall(context.Background(), "x", "u1", 5)
	assert.True(t, remote.IsRemote(err))
}

func TestDecodeRecordsQueuedAdd(t *testing.T) {
	records, err := decodeRecords([]byte(`{"message":"queued","status":"PENDING"}`))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = decodeRecords([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecodeRecordsNestedData(t *testing.T) {
	records, err := decodeRecords([]byte(`[{"id":"m1","event":"ADD","data":{"memory":"Hobby is chess"}}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hobby is chess"}, Texts(records))
}

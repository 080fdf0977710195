package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/memchat/backend/internal/config"
	"github.com/zhouzirui/memchat/backend/internal/remote"
)

func TestOpenAIGatewayComplete(t *testing.T) {
	var req struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"\n  Hi Alex!  \n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	gw := NewOpenAIGateway(config.AIConfig{APIKey: "groq-key", Model: "llama3-8b-8192", BaseURL: srv.URL})
	out, err := gw.Complete(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("hello"),
	}, Options{MaxTokens: 100, Temperature: 0.7})
	require.NoError(t, err)

	assert.Equal(t, "Hi Alex!", out)
	assert.Equal(t, "llama3-8b-8192", req.Model)
	assert.Equal(t, 100, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 0.001)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
}

func TestOpenAIGatewayFailureIsRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	gw := NewOpenAIGateway(config.AIConfig{Model: "m", BaseURL: srv.URL})
	_, err := gw.Complete(context.Background(), []*schema.Message{schema.UserMessage("x")}, Options{MaxTokens: 10})
	require.Error(t, err)
	assert.True(t, remote.IsRemote(err))
}

func TestOpenAIGatewayNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	gw := NewOpenAIGateway(config.AIConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := gw.Complete(context.Background(), []*schema.Message{schema.UserMessage("x")}, Options{})
	assert.True(t, remote.IsRemote(err))
	assert.ErrorIs(t, err, errNoChoices)
}

type recordingModel struct {
	input []*schema.Message
	opts  *model.Options
	reply string
	err   error
}

func (m *recordingModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.input = input
	m.opts = model.GetCommonOptions(&model.Options{}, opts...)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestChainGatewayPassesOptions(t *testing.T) {
	fake := &recordingModel{reply: "  Your name is Alex.\n"}
	gw, err := NewChainGateway(context.Background(), "ark", fake)
	require.NoError(t, err)

	out, err := gw.Complete(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("What's my name?"),
	}, Options{MaxTokens: 100, Temperature: 0.7})
	require.NoError(t, err)

	assert.Equal(t, "Your name is Alex.", out)
	require.Len(t, fake.input, 2)
	require.NotNil(t, fake.opts.MaxTokens)
	assert.Equal(t, 100, *fake.opts.MaxTokens)
	require.NotNil(t, fake.opts.Temperature)
	assert.InDelta(t, 0.7, *fake.opts.Temperature, 0.001)
}

func TestChainGatewayFailureIsRemote(t *testing.T) {
	fake := &recordingModel{err: errors.New("rate limited")}
	gw, err := NewChainGateway(context.Background(), "ark", fake)
	require.NoError(t, err)

	_, err = gw.Complete(context.Background(), []*schema.Message{schema.UserMessage("x")}, Options{MaxTokens: 10})
	require.Error(t, err)
	assert.True(t, remote.IsRemote(err))
	assert.Contains(t, err.Error(), "ark complete")
}

func TestNewGatewayRejectsUnknownProvider(t *testing.T) {
	_, err := NewGateway(context.Background(), config.AIConfig{Provider: "bedrock", Model: "m"})
	assert.Error(t, err)

	gw, err := NewGateway(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI, Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGateway{}, gw)
}

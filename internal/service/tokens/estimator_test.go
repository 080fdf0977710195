package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/memchat/backend/internal/model/chat"
)

func TestApproximate(t *testing.T) {
	est := NewApproxEstimator()

	assert.Equal(t, 0, est.Estimate(""))
	assert.Equal(t, 1, est.Estimate("hi"))
	assert.Equal(t, 3, est.Estimate("hello world"))
	assert.Equal(t, 1, est.Estimate("你好"))
}

func TestTotalSumsTurnContents(t *testing.T) {
	est := &Estimator{encode: func(text string) int { return len(text) }}

	turns := []chat.Turn{
		{Role: chat.RoleUser, Content: "abc"},
		{Role: chat.RoleAssistant, Content: "de"},
		{Role: chat.RoleUser, Content: ""},
	}
	assert.Equal(t, 5, est.Total(turns))
	assert.Equal(t, 0, est.Total(nil))
}

func TestTiktokenEstimator(t *testing.T) {
	est := NewEstimator(DefaultModel)

	assert.Equal(t, 0, est.Estimate(""))
	assert.Equal(t, 2, est.Estimate("hello world"))
	assert.Equal(t, 4, est.Estimate("My name is Alex"))

	turns := []chat.Turn{
		{Role: chat.RoleUser, Content: "hello world"},
		{Role: chat.RoleAssistant, Content: "My name is Alex"},
	}
	assert.Equal(t, 6, est.Total(turns))
}

func TestNewEstimatorUnknownModelFallsBack(t *testing.T) {
	est := NewEstimator("no-such-model")
	assert.Equal(t, 3, est.Estimate("hello world"))
	assert.Equal(t, 1, est.Estimate("hi"))
}

package tokens

import (
	"log"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/zhouzirui/memchat/backend/internal/model/chat"
)

// DefaultModel 的编码与 llama3 的计数足够接近。
const DefaultModel = "gpt-3.5-turbo"

// 使用内嵌的 BPE 文件，避免运行时下载编码。
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator 统计文本的 token 数量。
type Estimator struct {
	encode func(string) int
}

// NewEstimator loads the tiktoken encoding for modelName. When the encoding
// cannot be loaded the estimator falls back to roughly four runes per token.
func NewEstimator(modelName string) *Estimator {
	if modelName == "" {
		modelName = DefaultModel
	}
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		log.Printf("[tokens] encoding for %s unavailable, using approximation: %v", modelName, err)
		return NewApproxEstimator()
	}
	return &Estimator{
		encode: func(text string) int {
			return len(enc.Encode(text, nil, nil))
		},
	}
}

// NewApproxEstimator counts roughly four runes per token without loading an
// encoding.
func NewApproxEstimator() *Estimator {
	return &Estimator{encode: approximate}
}

// Estimate returns a non-negative token count for text.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return e.encode(text)
}

// Total sums Estimate over every turn's content.
func (e *Estimator) Total(turns []chat.Turn) int {
	total := 0
	for _, turn := range turns {
		total += e.Estimate(turn.Content)
	}
	return total
}

func approximate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

package admission

import "strings"

// MinWords is the word count at which any input is admitted, keyword or not.
const MinWords = 3

// keywords mark inputs that likely carry a durable personal fact.
var keywords = []string{
	"name", "prefer", "like", "dislike", "birthday", "address",
	"goal", "plan", "remember", "favorite", "hobby", "interest",
}

// Decision explains why an input was or was not admitted as a memory.
type Decision struct {
	Remember  bool
	Keyword   string
	WordCount int
}

// Evaluate applies the admission heuristic. Keywords match as substrings of
// the lower-cased input, so "planet" matches "plan".
func Evaluate(input string) Decision {
	normalized := strings.ToLower(input)
	wordCount := len(strings.Fields(input))

	for _, keyword := range keywords {
		if strings.Contains(normalized, keyword) {
			return Decision{Remember: true, Keyword: keyword, WordCount: wordCount}
		}
	}

	return Decision{Remember: wordCount >= MinWords, WordCount: wordCount}
}

// ShouldRemember reports whether input should be persisted as a memory.
func ShouldRemember(input string) bool {
	return Evaluate(input).Remember
}

// Keywords returns a copy of the admission keyword set.
func Keywords() []string {
	return append([]string(nil), keywords...)
}

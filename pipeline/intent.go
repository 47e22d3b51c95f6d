package pipeline

import (
	"strings"

	"github.com/BaSui01/memflow/types"
)

// Normalized 规整化结果。
type Normalized struct {
	Text     string `json:"text"`
	Type     string `json:"type"`     // text / number / mix
	Language string `json:"language"` // english / unknown
}

// Normalize 折叠空白、转小写并嗅探输入类型与语言。
func Normalize(text string) Normalized {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))

	isASCII := true
	hasDigit := false
	allDigit := s != ""
	for _, r := range s {
		if r > 127 {
			isASCII = false
		}
		if r >= '0' && r <= '9' {
			hasDigit = true
		} else if r != ' ' {
			allDigit = false
		}
	}

	typ := "text"
	switch {
	case allDigit && s != "":
		typ = "number"
	case hasDigit:
		typ = "mix"
	}
	lang := "english"
	if !isASCII {
		lang = "unknown"
	}
	return Normalized{Text: s, Type: typ, Language: lang}
}

// hedgePhrases 模糊措辞,出现即对陈述置信度罚分。
var hedgePhrases = []string{
	"i think",
	"i guess",
	"i believe",
	"maybe",
	"probably",
	"perhaps",
	"possibly",
	"not sure",
}

var questionStarters = []string{
	"what ", "who ", "where ", "when ", "why ", "how ",
	"is ", "are ", "was ", "were ", "do ", "does ", "did ",
	"can ", "could ", "will ", "would ", "should ",
}

var requestStarters = []string{
	"please ", "can you ", "could you ", "would you ", "let's ", "help me ",
}

var emotionMarkers = []string{
	"i feel", "i'm happy", "i am happy", "i'm sad", "i am sad",
	"i love", "i hate", "i'm angry", "i am angry", "i'm excited",
}

var opinionMarkers = []string{
	"in my opinion", "i prefer", "my favorite", "i'd rather",
	"is the best", "is the worst",
}

// Classification 意图分类结果。
type Classification struct {
	Type    types.StorableType `json:"storable_type"`
	Penalty float64            `json:"confidence_penalty"`
	Hedges  []string           `json:"hedges,omitempty"`
}

// Classify 给输入打可存类型标签并计算模糊措辞罚分。
// penalty 为每个命中措辞的罚分值。
func Classify(text string, penalty float64) Classification {
	s := strings.ToLower(strings.TrimSpace(text))

	c := Classification{Type: types.StorableFact}
	if s == "" {
		c.Type = types.StorableUnknown
		return c
	}

	for _, h := range hedgePhrases {
		if strings.Contains(s, h) {
			c.Hedges = append(c.Hedges, h)
			c.Penalty += penalty
		}
	}

	switch {
	case strings.HasPrefix(s, "--") || strings.HasPrefix(s, "/"):
		c.Type = types.StorableCommand
	case strings.HasSuffix(s, "?"):
		c.Type = types.StorableQuestion
	case hasAnyPrefix(s, requestStarters...):
		c.Type = types.StorableRequest
	case hasAnyPrefix(s, questionStarters...):
		c.Type = types.StorableQuestion
	case containsAny(s, emotionMarkers...):
		c.Type = types.StorableEmotion
	case containsAny(s, opinionMarkers...):
		c.Type = types.StorableOpinion
	case !hasLetter(s):
		c.Type = types.StorableUnknown
	}
	return c
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

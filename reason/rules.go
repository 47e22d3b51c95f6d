package reason

import (
	"regexp"
	"strings"
)

// commonSenseCategories 将常见实体映射到其正确类别,
// 用于拦截 "Is Mars a country?" 这类明显违背常识的二元问题。
var commonSenseCategories = map[string]string{
	"mars":     "planet",
	"venus":    "planet",
	"earth":    "planet",
	"mercury":  "planet",
	"jupiter":  "planet",
	"saturn":   "planet",
	"uranus":   "planet",
	"neptune":  "planet",
	"pluto":    "dwarf planet",
	"moon":     "natural satellite",
	"sun":      "star",
	"paris":    "city",
	"london":   "city",
	"tokyo":    "city",
	"new york": "city",
	"rome":     "city",
	"berlin":   "city",
}

// EthicsAction 是伦理规则命中后的处置方式。
type EthicsAction string

const (
	EthicsBlock EthicsAction = "block"
	EthicsWarn  EthicsAction = "warn"
)

// EthicsRule 是一条结构化伦理规则:大小写不敏感的子串模式,
// 附带严重级别与处置动作。
type EthicsRule struct {
	Pattern  string       `json:"pattern" yaml:"pattern"`
	Severity string       `json:"severity" yaml:"severity"`
	Action   EthicsAction `json:"action" yaml:"action"`
}

// ethicsConfidence maps severity to the confidence attached to a block.
func ethicsConfidence(severity string) float64 {
	switch strings.ToLower(severity) {
	case "low":
		return 0.3
	case "high":
		return 0.5
	default:
		return 0.4
	}
}

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpace = regexp.MustCompile(`\s+`)
	isAPattern = regexp.MustCompile(`^is\s+(.*?)\s+an?\s+(.*?)$`)
	articleRe  = regexp.MustCompile(`^(the|a|an)\s+`)
)

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// commonSenseMismatch checks binary questions of the form "is X a Y"
// against the category table. It returns the entity, its correct category
// and the claimed wrong one when a mismatch is found.
func commonSenseMismatch(question string) (entity, correct, wrong string, ok bool) {
	m := isAPattern.FindStringSubmatch(normalizeText(question))
	if m == nil {
		return "", "", "", false
	}
	entity = strings.TrimSpace(articleRe.ReplaceAllString(strings.TrimSpace(m[1]), ""))
	category := strings.TrimSpace(m[2])
	correctCat, known := commonSenseCategories[entity]
	if !known {
		return "", "", "", false
	}
	if category == correctCat || strings.Contains(correctCat, category) {
		return "", "", "", false
	}
	return entity, correctCat, category, true
}

// educatedGuess 对缺乏证据的是非问题给出启发式猜测。
// 模式极少且刻意保守,识别不了就返回空。
func educatedGuess(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if strings.Contains(q, "penguin") && strings.Contains(q, "fur") {
		return "Probably not — penguins are birds and birds have feathers."
	}
	return ""
}

// identityPatterns 用于在 UNKNOWN 判定时补充自我介绍说明。
var identityPatterns = []string{
	"who are you",
	"what is your name",
	"what's your name",
	"tell me about yourself",
	"who you are",
	"are you memflow",
}

func isIdentityQuery(q string) bool {
	lower := strings.ToLower(strings.TrimSpace(q))
	for _, pat := range identityPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// isQuestionText reports whether text is phrased as a question.
func isQuestionText(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?")
}

package reason

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BaSui01/memflow/types"
)

var binaryExprRe = regexp.MustCompile(`^\s*([-+]?\d+)\s*([+\-*/])\s*([-+]?\d+)\s*$`)

// ExplainLast 重构上一轮回答的推导过程。算术问题给出逐步解释,
// 其余输入退化为引用上一轮问答的通用说明。
func (e *Engine) ExplainLast(lastQuery, lastResponse string) types.Evaluation {
	explanation := explainArithmetic(lastQuery)
	if explanation == "" {
		switch {
		case lastQuery != "" && lastResponse != "":
			explanation = fmt.Sprintf("I responded '%s' to your previous query '%s' based on my reasoning and stored knowledge.", lastResponse, lastQuery)
		case lastResponse != "":
			explanation = fmt.Sprintf("I answered '%s' in response to your previous question.", lastResponse)
		default:
			explanation = "I don't have enough context to provide an explanation."
		}
	}
	return types.Evaluation{
		Verdict:    types.VerdictExplanation,
		Mode:       types.ModeExplanation,
		Confidence: 0.95,
		Answer:     explanation,
		Rule:       "explain_last_v1",
	}
}

func explainArithmetic(query string) string {
	m := binaryExprRe.FindStringSubmatch(strings.TrimRight(strings.TrimSpace(query), "?"))
	if m == nil {
		return ""
	}
	a, err1 := strconv.Atoi(m[1])
	b, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil {
		return ""
	}

	var result float64
	var verb string
	switch m[2] {
	case "+":
		result, verb = float64(a+b), "add"
	case "-":
		result, verb = float64(a-b), "subtract"
	case "*":
		result, verb = float64(a*b), "multiply"
	default:
		if b == 0 {
			return "The previous calculation involved division by zero, which is undefined."
		}
		result, verb = float64(a)/float64(b), "divide"
	}
	return fmt.Sprintf("To answer your previous question, I %s %d and %d to get %s.", verb, a, b, formatNumber(result))
}

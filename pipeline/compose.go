package pipeline

import (
	"fmt"
	"strings"

	"github.com/BaSui01/memflow/router"
	"github.com/BaSui01/memflow/types"
)

// FallbackAnswer 是通用的兜底回答,出现它即表示管线没能给出答案。
const FallbackAnswer = "I'm not sure how to respond to that."

// ComposeAnswer 把判定结果与存储结局拼成最终回答。
// 推理引擎已给出答案时直接透传;否则按输入类别与落库
// 结局生成确认语,问题类输入落到信息不足的说明。
func ComposeAnswer(text string, cls Classification, eval types.Evaluation, out router.Outcome) string {
	if eval.Answer != "" {
		return eval.Answer
	}

	switch cls.Type {
	case types.StorableQuestion:
		return fmt.Sprintf("I don't yet have enough information about %s to answer confidently.", questionTopic(text))
	case types.StorableFact, types.StorableOpinion:
		switch {
		case out.Stored && out.Bank == "theories_and_contradictions":
			return "I can't verify that yet, so I've filed it as a working theory."
		case out.Stored:
			return fmt.Sprintf("Got it. I've filed that under %s.", strings.ReplaceAll(out.Bank, "_", " "))
		case out.SkipReason == router.SkipDuplicate:
			return "I already have that on record."
		case out.SkipReason == router.SkipGovernance:
			return "I'd rather not keep that one."
		}
		return "Noted."
	case types.StorableEmotion:
		return "Thanks for sharing how you feel."
	case types.StorableRequest:
		return "I've noted your request, though I can't act on it yet."
	}
	return FallbackAnswer
}

// 话题提取时跳过的疑问引导词与冠词。
var topicSkip = map[string]bool{
	"what": true, "who": true, "where": true, "when": true,
	"why": true, "how": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true,
	"did": true, "can": true, "could": true, "will": true,
	"would": true, "should": true, "the": true, "a": true, "an": true,
}

// questionTopic 取问题的核心话题词,最多三个。
func questionTopic(text string) string {
	words := strings.Fields(strings.TrimRight(strings.ToLower(text), "?"))
	var topic []string
	for _, w := range words {
		if len(topic) == 0 && topicSkip[w] {
			continue
		}
		topic = append(topic, w)
		if len(topic) == 3 {
			break
		}
	}
	if len(topic) == 0 {
		return "that"
	}
	return strings.Join(topic, " ")
}

package types

// Verdict 是推理阶段输出的固定词汇表标签，
// 描述对一条待定事实或答案的置信判定。
type Verdict string

const (
	VerdictTrue        Verdict = "TRUE"
	VerdictFalse       Verdict = "FALSE"
	VerdictTheory      Verdict = "THEORY"
	VerdictUnknown     Verdict = "UNKNOWN"
	VerdictUnanswered  Verdict = "UNANSWERED"
	VerdictSkipStorage Verdict = "SKIP_STORAGE"
	VerdictKnown       Verdict = "KNOWN"
	VerdictExplanation Verdict = "EXPLANATION"
	VerdictPreference  Verdict = "PREFERENCE"
)

// Mode 记录判定是经由哪条路径得出的。
type Mode string

const (
	ModeVerified      Mode = "VERIFIED"
	ModeRetrieved     Mode = "RETRIEVED"
	ModeEducatedGuess Mode = "EDUCATED_GUESS"
	ModeNoEvidence    Mode = "NO_EVIDENCE"
	ModeAnswered      Mode = "ANSWERED"
	ModeKnownAnswer   Mode = "KNOWN_ANSWER"
	ModeKGAnswer      Mode = "KG_ANSWER"
	ModeInferred      Mode = "INFERRED"
	ModeWMRetrieved   Mode = "WM_RETRIEVED"
	ModeCommonSense   Mode = "COMMON_SENSE"
	ModeSafetyFilter  Mode = "SAFETY_FILTER"
	ModeEthicsFilter  Mode = "ETHICS_FILTER"
	ModeQuestionInput Mode = "QUESTION_INPUT"
	ModeCommandInput  Mode = "COMMAND_INPUT"
	ModeRequestInput  Mode = "REQUEST_INPUT"
	ModeEmotionInput  Mode = "EMOTION_INPUT"
	ModeOpinionInput  Mode = "OPINION_INPUT"
	ModeUnknownInput  Mode = "UNKNOWN_INPUT"
	ModeExplanation   Mode = "EXPLANATION"
	ModeCacheHit      Mode = "CACHE_HIT"
	ModeFeedback      Mode = "FEEDBACK"
)

// StorableType 是意图分类器给输入打的类别标签。
// 只有 FACT 与 QUESTION 会进入完整的推理路径。
type StorableType string

const (
	StorableFact     StorableType = "FACT"
	StorableQuestion StorableType = "QUESTION"
	StorableCommand  StorableType = "COMMAND"
	StorableRequest  StorableType = "REQUEST"
	StorableEmotion  StorableType = "EMOTION"
	StorableOpinion  StorableType = "OPINION"
	StorableUnknown  StorableType = "UNKNOWN"
)

// RoutingAction 是路由指令携带的存储动作。
type RoutingAction string

const (
	ActionStore RoutingAction = "STORE"
	ActionSkip  RoutingAction = "SKIP"
)

// RoutingOrder 指示事实应落入哪个记忆分层。
type RoutingOrder struct {
	TargetBank string        `json:"target_bank,omitempty"`
	Action     RoutingAction `json:"action,omitempty"`
}

// Evaluation 是推理引擎对一条输入的完整判定结果。
type Evaluation struct {
	Verdict        Verdict      `json:"verdict"`
	Mode           Mode         `json:"mode"`
	Confidence     float64      `json:"confidence"`
	Routing        RoutingOrder `json:"routing_order"`
	SupportedBy    []string     `json:"supported_by"`
	ContradictedBy []string     `json:"contradicted_by"`
	Answer         string       `json:"answer,omitempty"`
	AnswerSourceID string       `json:"answer_source_id,omitempty"`
	Rule           string       `json:"rule,omitempty"`
	Trace          string       `json:"reasoning_trace,omitempty"`
}

// Answerable reports whether the evaluation produced a usable answer.
func (e Evaluation) Answerable() bool {
	return e.Answer != "" && e.Verdict != VerdictUnanswered && e.Verdict != VerdictUnknown
}

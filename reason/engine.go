package reason

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// Input 是一次判定的全部输入:待评估事实、检索证据与情感参数。
type Input struct {
	Fact     types.Fact
	Evidence types.Evidence

	// Valence/Arousal 情感输入,正值提升置信度并放宽阈值。
	Valence float64
	Arousal float64
}

// Config 配置判定引擎的过滤规则。
type Config struct {
	// SafetyRules 大小写不敏感的子串规则,命中即拒答。
	SafetyRules []string `yaml:"safety_rules"`
	// EthicsRules 结构化伦理规则。
	EthicsRules []EthicsRule `yaml:"ethics_rules"`
}

// Engine 是规则式判定引擎:按固定顺序通过一条过滤链,
// 首个命中的过滤器直接给出判定。
type Engine struct {
	cfg Config

	wm      *memory.WorkingMemory
	qa      *memory.QAMemory
	topics  *memory.TopicStats
	meta    *memory.MetaConfidence
	kg      *memory.KnowledgeGraph
	metrics *metrics.Collector

	// successAverage 提供近期回答成功率 [-1,1],作为习得偏置输入。
	successAverage func() float64

	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkingMemory enables opportunistic recall before reasoning.
func WithWorkingMemory(wm *memory.WorkingMemory) Option {
	return func(e *Engine) { e.wm = wm }
}

// WithQAMemory enables cross-episode answer lookup.
func WithQAMemory(qa *memory.QAMemory) Option {
	return func(e *Engine) { e.qa = qa }
}

// WithTopicStats enables familiarity modulation.
func WithTopicStats(t *memory.TopicStats) Option {
	return func(e *Engine) { e.topics = t }
}

// WithMetaConfidence enables per-domain confidence modulation.
func WithMetaConfidence(m *memory.MetaConfidence) Option {
	return func(e *Engine) { e.meta = m }
}

// WithKnowledgeGraph enables definition lookups and transitive inference.
func WithKnowledgeGraph(kg *memory.KnowledgeGraph) Option {
	return func(e *Engine) { e.kg = kg }
}

// WithMetrics attaches a metrics collector for filter events.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithSuccessAverage supplies the rolling success bias input.
func WithSuccessAverage(fn func() float64) Option {
	return func(e *Engine) { e.successAverage = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates the verdict engine.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "reason"))
	return e
}

// RouteFor 按置信度选择记忆分层:高进事实库,中进工作理论,低只留 STM。
func RouteFor(conf float64) string {
	switch {
	case conf >= 0.7:
		return "factual"
	case conf >= 0.4:
		return "working_theories"
	default:
		return "stm_only"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Evaluate runs the filter chain over one input and returns the verdict.
func (e *Engine) Evaluate(in Input) types.Evaluation {
	origQ := strings.TrimSpace(in.Fact.OriginalQuery)
	content := strings.TrimSpace(in.Fact.Content)
	if origQ == "" {
		origQ = content
	}

	// 1. 工作记忆直取:命中即答,跳过全部推理。
	if e.wm != nil && origQ != "" {
		if entries := e.wm.Get(origQ); len(entries) > 0 {
			last := entries[len(entries)-1]
			conf := last.Confidence
			if conf == 0 {
				conf = 0.7
			}
			return types.Evaluation{
				Verdict:    types.VerdictKnown,
				Mode:       types.ModeWMRetrieved,
				Confidence: conf,
				Answer:     last.Value,
				Rule:       "wm_lookup_v1",
			}
		}
	}

	// 情感调制:话题熟悉度与领域历史表现折入效价。
	valence := in.Valence
	if e.topics != nil && origQ != "" {
		valence += e.topics.Familiarity(origQ)
	}
	if e.meta != nil {
		if domain := memory.TopicKey(origQ); domain != "" {
			valence += e.meta.Adjustment(domain)
		}
	}
	affect := valence*0.05 + in.Arousal*0.03

	isQuestion := in.Fact.StorableType == types.StorableQuestion ||
		(in.Fact.StorableType == "" && isQuestionText(origQ))

	// 2. 安全规则。
	qLower := strings.ToLower(origQ)
	for _, pattern := range e.cfg.SafetyRules {
		if pattern != "" && strings.Contains(qLower, strings.ToLower(pattern)) {
			e.recordFilter("safety", "block")
			return types.Evaluation{
				Verdict:    types.VerdictUnknown,
				Mode:       types.ModeSafetyFilter,
				Confidence: 0.4,
				Answer:     "I'm not sure that's correct. Let's revisit this question later.",
				Rule:       "safety_filter_v1",
			}
		}
	}

	// 3. 伦理规则:warn 降低效价后继续,block 立即拒答。
	for _, rule := range e.cfg.EthicsRules {
		patt := strings.ToLower(strings.TrimSpace(rule.Pattern))
		if patt == "" || !strings.Contains(qLower, patt) {
			continue
		}
		if rule.Action == EthicsWarn {
			valence -= 0.05
			affect = valence*0.05 + in.Arousal*0.03
			e.recordFilter("ethics", "warn")
			continue
		}
		e.recordFilter("ethics", "block")
		return types.Evaluation{
			Verdict:    types.VerdictUnknown,
			Mode:       types.ModeEthicsFilter,
			Confidence: ethicsConfidence(rule.Severity),
			Answer:     "This query may raise ethical concerns. Let's discuss something else.",
			Rule:       "ethics_filter_v2",
		}
	}

	// 4. 常识检查,仅针对问题。
	if isQuestion {
		if entity, correct, wrong, ok := commonSenseMismatch(origQ); ok {
			return types.Evaluation{
				Verdict:    types.VerdictFalse,
				Mode:       types.ModeCommonSense,
				Confidence: clamp01(0.95 + affect),
				Answer:     fmt.Sprintf("No, %s is a %s, not a %s.", titleCase(entity), correct, wrong),
				Rule:       "common_sense_v1",
			}
		}
	}

	// 5. 意图闸门:非事实非问题的输入一律跳过存储。
	switch in.Fact.StorableType {
	case types.StorableCommand:
		return skipStorage(types.ModeCommandInput)
	case types.StorableRequest:
		return skipStorage(types.ModeRequestInput)
	case types.StorableEmotion:
		return skipStorage(types.ModeEmotionInput)
	case types.StorableOpinion:
		return skipStorage(types.ModeOpinionInput)
	case types.StorableUnknown:
		return skipStorage(types.ModeUnknownInput)
	}

	if isQuestion {
		return e.answerQuestion(origQ, content, in.Evidence, affect)
	}
	return e.evaluateStatement(origQ, content, in, valence, affect)
}

func skipStorage(mode types.Mode) types.Evaluation {
	return types.Evaluation{
		Verdict: types.VerdictSkipStorage,
		Mode:    mode,
		Rule:    "intent_filter_v1",
	}
}

var (
	whatWhoIsRe  = regexp.MustCompile(`^(?:what|who)\s+is\s+(.+)`)
	membershipRe = regexp.MustCompile(`^is\s+([a-z0-9\s\-]+?)\s+one\s+of\s+(?:the\s+)?(.+)$`)
)

// answerQuestion 依次尝试:知识图谱、跨会话问答记忆、
// 证据答案抽取、启发式猜测、表达式求值。
func (e *Engine) answerQuestion(origQ, content string, evidence types.Evidence, affect float64) types.Evaluation {
	// 知识图谱:定义类问题的正反向查询与传递推理。
	if ev, ok := e.kgAnswer(origQ, content, affect); ok {
		return ev
	}

	// 跨会话问答记忆。
	if e.qa != nil {
		if entry, err := e.qa.Lookup(origQ); err == nil {
			return types.Evaluation{
				Verdict:    types.VerdictTrue,
				Mode:       types.ModeKnownAnswer,
				Confidence: clamp01(0.85 + affect),
				Answer:     entry.Answer,
				Rule:       "qa_memory_v1",
			}
		}
	}

	// 证据答案抽取:取第一条非问句的检索记录。
	if rec, text, ok := extractAnswer(evidence); ok {
		text = inferMembership(origQ, text)
		conf := rec.Confidence
		if conf == 0 {
			conf = 0.85
		}
		return types.Evaluation{
			Verdict:        types.VerdictTrue,
			Mode:           types.ModeAnswered,
			Confidence:     clamp01(conf + affect),
			SupportedBy:    []string{rec.ID},
			Answer:         text,
			AnswerSourceID: rec.ID,
			Rule:           "question_answer_v1",
		}
	}

	// 启发式猜测。
	if guess := educatedGuess(origQ); guess != "" {
		return types.Evaluation{
			Verdict:    types.VerdictTheory,
			Mode:       types.ModeEducatedGuess,
			Confidence: 0.6,
			Answer:     guess,
			Rule:       "educated_guess_v1",
		}
	}

	// 表达式求值。
	expr := origQ
	if expr == "" {
		expr = content
	}
	expr = stripExprPrefix(strings.TrimRight(strings.TrimSpace(expr), "?"))
	if looksBoolean(expr) {
		if v, err := evalBoolean(expr); err == nil {
			return answeredByTool(fmt.Sprintf("%t", v), "logic_eval_v1", affect)
		}
	}
	if looksArithmetic(expr) {
		if v, err := evalArithmetic(expr); err == nil {
			return answeredByTool(formatNumber(v), "math_eval_v1", affect)
		}
	}

	return types.Evaluation{
		Verdict: types.VerdictUnanswered,
		Mode:    types.ModeQuestionInput,
		Rule:    "question_answer_v1",
	}
}

func answeredByTool(answer, rule string, affect float64) types.Evaluation {
	return types.Evaluation{
		Verdict:    types.VerdictTrue,
		Mode:       types.ModeAnswered,
		Confidence: clamp01(0.9 + affect),
		Answer:     answer,
		Rule:       rule,
	}
}

// kgAnswer resolves "what is X" / "who is X" questions against the triple
// store: direct lookup, inverse lookup, then transitive inference.
func (e *Engine) kgAnswer(origQ, content string, affect float64) (types.Evaluation, bool) {
	if e.kg == nil {
		return types.Evaluation{}, false
	}
	qsource := origQ
	if qsource == "" {
		qsource = content
	}
	m := whatWhoIsRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(qsource)))
	if m == nil {
		return types.Evaluation{}, false
	}
	subj := strings.TrimSpace(strings.TrimRight(m[1], "?"))
	if subj == "" {
		return types.Evaluation{}, false
	}

	candidates := []string{subj}
	if stripped := strings.TrimSpace(articleRe.ReplaceAllString(subj, "")); stripped != "" && stripped != subj {
		candidates = append(candidates, stripped)
	}

	// 正向查询,同义反写(答案即问题本身)视为无效。
	for _, cand := range candidates {
		obj, ok := e.kg.QueryFact(cand, "is")
		if !ok {
			continue
		}
		if strings.EqualFold(
			strings.TrimSpace(articleRe.ReplaceAllString(strings.ToLower(obj), "")),
			strings.TrimSpace(articleRe.ReplaceAllString(strings.ToLower(cand), "")),
		) {
			continue
		}
		return types.Evaluation{
			Verdict:    types.VerdictTrue,
			Mode:       types.ModeKGAnswer,
			Confidence: clamp01(0.88 + affect),
			Answer:     obj,
			Rule:       "knowledge_graph_v1",
		}, true
	}

	// 反向查询:"what is the red planet" → (mars, is, the red planet)。
	for _, cand := range candidates {
		if subjAns, ok := e.kg.QueryInverse("is", cand); ok {
			return types.Evaluation{
				Verdict:    types.VerdictTrue,
				Mode:       types.ModeKGAnswer,
				Confidence: clamp01(0.88 + affect),
				Answer:     subjAns,
				Rule:       "knowledge_graph_v1",
			}, true
		}
	}

	// 传递推理:located_in/part_of 链。
	for _, inferred := range e.kg.Infer(10) {
		for _, cand := range candidates {
			if strings.EqualFold(inferred.Subject, cand) {
				return types.Evaluation{
					Verdict:    types.VerdictTrue,
					Mode:       types.ModeInferred,
					Confidence: clamp01(0.75 + affect),
					Answer:     inferred.Object,
					Rule:       "knowledge_inference_v1",
				}, true
			}
		}
	}
	return types.Evaluation{}, false
}

// extractAnswer picks the first evidence record whose content reads as an
// answer. JSON object contents contribute their "text" field.
func extractAnswer(evidence types.Evidence) (types.Record, string, bool) {
	for _, rec := range evidence.Results {
		raw := strings.TrimSpace(rec.Content)
		if raw == "" {
			continue
		}
		text := raw
		if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
			var payload struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(raw), &payload); err == nil && payload.Text != "" {
				text = strings.TrimSpace(payload.Text)
			}
		}
		if text == "" || strings.HasSuffix(text, "?") {
			continue
		}
		return rec, text, true
	}
	return types.Record{}, "", false
}

// inferMembership rewrites the answer for "is X one of ..." questions when
// the subject appears in the evidence text.
func inferMembership(question, answer string) string {
	q := strings.TrimRight(strings.ToLower(strings.TrimSpace(question)), "?")
	m := membershipRe.FindStringSubmatch(q)
	if m == nil {
		return answer
	}
	subj := strings.TrimSpace(m[1])
	group := strings.TrimRight(strings.TrimSpace(m[2]), ".")
	if subj == "" || !strings.Contains(strings.ToLower(answer), subj) {
		return answer
	}
	return fmt.Sprintf("Yes, %s is one of the %s.", titleCase(subj), group)
}

// evaluateStatement scores a factual statement against evidence and applies
// the affect-adjusted verdict thresholds.
func (e *Engine) evaluateStatement(origQ, content string, in Input, valence, affect float64) types.Evaluation {
	// 问句永远不是事实。
	if isQuestionText(content) {
		return types.Evaluation{
			Verdict: types.VerdictUnanswered,
			Mode:    types.ModeQuestionInput,
			Rule:    "primitive_reason_v2",
		}
	}

	conf := scoreEvidence(content, in.Evidence)
	conf -= in.Fact.ConfidencePenalty
	conf += affect

	var supportedBy, contradictedBy []string
	proposed := strings.ToLower(content)
	for _, rec := range in.Evidence.Results {
		c := strings.ToLower(strings.TrimSpace(rec.Content))
		switch {
		case c != "" && (proposed == c || strings.Contains(c, proposed) || strings.Contains(proposed, c)):
			conf += 0.05
			if rec.ID != "" {
				supportedBy = append(supportedBy, rec.ID)
			}
		case strings.EqualFold(rec.Type, "contradiction"):
			conf -= 0.1
			if rec.ID != "" {
				contradictedBy = append(contradictedBy, rec.ID)
			}
		}
	}

	// 习得偏置:近期成功率以 0.15 权重折入。
	if e.successAverage != nil {
		conf += 0.15 * e.successAverage()
	}
	conf = clamp01(conf)

	// 阈值随情感偏移:正效价放宽接受,负效价收紧。
	adjust := 0.05*valence + 0.03*in.Arousal
	trueThr := clampRange(0.85-adjust, 0.60, 0.90)
	theoryThr := clampRange(0.70-adjust, 0.50, 0.85)

	var verdict types.Verdict
	var mode types.Mode
	switch {
	case conf >= trueThr:
		verdict, mode = types.VerdictTrue, types.ModeVerified
	case conf >= theoryThr:
		verdict, mode = types.VerdictTheory, types.ModeEducatedGuess
	default:
		verdict, mode = types.VerdictUnknown, types.ModeNoEvidence
	}

	trace := fmt.Sprintf("Evaluated confidence %.2f against thresholds (TRUE≥%.2f, THEORY≥%.2f).", conf, trueThr, theoryThr)
	if verdict == types.VerdictUnknown && isIdentityQuery(origQ) {
		trace += " No self-definition found in memory."
	}

	action := types.ActionSkip
	if verdict == types.VerdictTrue {
		action = types.ActionStore
	}

	return types.Evaluation{
		Verdict:        verdict,
		Mode:           mode,
		Confidence:     conf,
		Routing:        types.RoutingOrder{TargetBank: RouteFor(conf), Action: action},
		SupportedBy:    supportedBy,
		ContradictedBy: contradictedBy,
		Rule:           "primitive_reason_v2",
		Trace:          trace,
	}
}

// scoreEvidence returns the base confidence: 0.8 when any record matches
// the content by equality or containment, 0.4 otherwise, 0.0 when empty.
func scoreEvidence(content string, evidence types.Evidence) float64 {
	proposed := strings.ToLower(strings.TrimSpace(content))
	if proposed == "" {
		return 0
	}
	for _, rec := range evidence.Results {
		c := strings.ToLower(strings.TrimSpace(rec.Content))
		if c != "" && (proposed == c || strings.Contains(c, proposed) || strings.Contains(proposed, c)) {
			return 0.8
		}
	}
	return 0.4
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (e *Engine) recordFilter(filter, action string) {
	if e.metrics != nil {
		e.metrics.RecordFilterEvent(filter, action)
	}
	e.logger.Info("filter event", zap.String("filter", filter), zap.String("action", action))
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/memflow/cache"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/history"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/reason"
	"github.com/BaSui01/memflow/retrieval"
	"github.com/BaSui01/memflow/router"
	"github.com/BaSui01/memflow/types"
)

// ErrEmptyInput 输入为空白
var ErrEmptyInput = errors.New("empty input")

// storePrefixes 显式存储意图的前缀,剥掉后把剩余文本当陈述处理。
var storePrefixes = []string{"store ", "remember ", "save "}

// Plan 是规划阶段产出的兜底计划。
type Plan struct {
	Goal    string   `json:"goal"`
	Intents []string `json:"intents"`
}

// StageError 记录单个阶段的失败。阶段失败被隔离,管线继续走完。
type StageError struct {
	Stage string `json:"stage"`
	Err   string `json:"error"`
}

// RunResult 是一次完整管线运行的产物。
type RunResult struct {
	Input       string           `json:"input"`
	Normalized  Normalized       `json:"normalized"`
	Class       Classification   `json:"classification"`
	Plan        Plan             `json:"plan"`
	EvidenceIDs []string         `json:"evidence_ids,omitempty"`
	Evaluation  types.Evaluation `json:"evaluation"`
	Outcome     router.Outcome   `json:"outcome"`
	Answer      string           `json:"answer"`
	Confidence  float64          `json:"confidence"`
	CacheHit    string           `json:"cache_hit,omitempty"` // fast / semantic
	StageErrors []StageError     `json:"stage_errors,omitempty"`
	ElapsedMS   int64            `json:"elapsed_ms"`
}

// Librarian 是记忆管家:按固定阶段顺序处理一条用户输入,
// 每个阶段失败都被隔离记录而不中断运行。
type Librarian struct {
	cfg config.PipelineConfig
	gov config.GovernanceConfig

	engineMu sync.RWMutex
	engine   *reason.Engine

	searcher *retrieval.Searcher
	router   *router.Router

	commands *Commands
	fast     *cache.FastCache
	semantic *cache.SemanticCache
	qa       *memory.QAMemory
	topics   *memory.TopicStats
	feedback *memory.Feedback
	history  *history.Store
	metrics  *metrics.Collector

	reportsDir string
	flight     singleflight.Group
	logger     *zap.Logger
}

// LibrarianOption configures a Librarian.
type LibrarianOption func(*Librarian)

// WithCommands enables the command gate.
func WithCommands(c *Commands) LibrarianOption {
	return func(l *Librarian) { l.commands = c }
}

// WithFastCache enables the exact-match cache gate for questions.
func WithFastCache(c *cache.FastCache) LibrarianOption {
	return func(l *Librarian) { l.fast = c }
}

// WithSemanticCache enables the similarity cache gate for questions.
func WithSemanticCache(c *cache.SemanticCache) LibrarianOption {
	return func(l *Librarian) { l.semantic = c }
}

// WithQAMemory enables answered-question persistence.
func WithQAMemory(qa *memory.QAMemory) LibrarianOption {
	return func(l *Librarian) { l.qa = qa }
}

// WithTopicStats enables per-topic exposure counting.
func WithTopicStats(t *memory.TopicStats) LibrarianOption {
	return func(l *Librarian) { l.topics = t }
}

// WithFeedback enables the feedback gate and last-exchange tracking.
func WithFeedback(f *memory.Feedback) LibrarianOption {
	return func(l *Librarian) { l.feedback = f }
}

// WithHistory enables run-summary logging.
func WithHistory(h *history.Store) LibrarianOption {
	return func(l *Librarian) { l.history = h }
}

// WithMetrics enables stage and run instrumentation.
func WithMetrics(c *metrics.Collector) LibrarianOption {
	return func(l *Librarian) { l.metrics = c }
}

// WithReportsDir enables run snapshot files under dir/system.
func WithReportsDir(dir string) LibrarianOption {
	return func(l *Librarian) { l.reportsDir = dir }
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger *zap.Logger) LibrarianOption {
	return func(l *Librarian) { l.logger = logger }
}

// NewLibrarian 构造管线。engine、searcher、rtr 为必需组件,
// 其余经由 Option 注入,缺省时对应阶段为无操作。
func NewLibrarian(cfg config.PipelineConfig, gov config.GovernanceConfig, engine *reason.Engine, searcher *retrieval.Searcher, rtr *router.Router, opts ...LibrarianOption) *Librarian {
	l := &Librarian{
		cfg:      cfg,
		gov:      gov,
		engine:   engine,
		searcher: searcher,
		router:   rtr,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "librarian"))
	if l.cfg.TopK <= 0 {
		l.cfg.TopK = retrieval.DefaultTopK
	}
	return l
}

// Run 把一条用户输入推过全部阶段并返回运行产物。
// confidence 是调用方声明的输入置信度,非正值按 1.0 处理;
// 模糊措辞罚分在此基础上扣减,结果夹在 [0.1, 1.0]。
func (l *Librarian) Run(ctx context.Context, text string, confidence float64) (RunResult, error) {
	start := time.Now()
	res := RunResult{Input: text}
	if strings.TrimSpace(text) == "" {
		return res, ErrEmptyInput
	}
	if confidence <= 0 {
		confidence = 1.0
	}

	// 反馈门:对上一轮回答的好评/差评先于一切处理。
	if l.feedback != nil {
		if memory.IsPositiveFeedback(text) {
			res.Answer = l.feedback.HandlePositive(ctx)
			res.Evaluation = feedbackEvaluation(res.Answer)
			return l.finish(ctx, res, start), nil
		}
		if memory.IsNegativeFeedback(text) {
			res.Answer = l.feedback.HandleNegative(ctx)
			res.Evaluation = feedbackEvaluation(res.Answer)
			return l.finish(ctx, res, start), nil
		}
	}

	// 命令门:-- 或 / 前缀的输入直接走命令处理器。
	if l.commands != nil && IsCommand(text) {
		msg, err := l.commands.Route(ctx, text)
		if err != nil {
			res.Answer = "Command failed: " + err.Error()
			res.Evaluation = types.Evaluation{
				Verdict:    types.VerdictUnknown,
				Mode:       types.ModeCommandInput,
				Confidence: 0.2,
				Answer:     res.Answer,
			}
		} else {
			res.Answer = msg
			res.Evaluation = types.Evaluation{
				Verdict:    types.VerdictKnown,
				Mode:       types.ModeCommandInput,
				Confidence: 0.9,
				Answer:     msg,
			}
		}
		return l.finish(ctx, res, start), nil
	}

	// 解释请求:复用上一轮问答,不走检索。
	if isExplainRequest(text) {
		res.Evaluation = l.ExplainLast()
		res.Answer = res.Evaluation.Answer
		return l.finish(ctx, res, start), nil
	}

	// 显式存储前缀剥离,剩余文本按陈述处理。
	cleaned := text
	forceFact := false
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, p := range storePrefixes {
		if strings.HasPrefix(lowered, p) {
			cleaned = strings.TrimSpace(text[len(p):])
			forceFact = true
			break
		}
	}

	res.Normalized = Normalize(cleaned)
	res.Class = Classify(res.Normalized.Text, l.cfg.HedgePenalty)
	if forceFact {
		res.Class.Type = types.StorableFact
	}
	conf := clampConf(confidence - res.Class.Penalty)
	res.Confidence = conf
	query := res.Normalized.Text

	// 缓存门只对问题开放。
	if res.Class.Type == types.StorableQuestion {
		if l.cacheGate(ctx, query, &res) {
			return l.finish(ctx, res, start), nil
		}
	}

	res.Plan = Plan{
		Goal:    "Satisfy user request: " + query,
		Intents: []string{"retrieve_relevant_memories", "compose_response"},
	}

	// 检索扇出。相同查询的并发运行合并为一次扫描。
	var evidence types.Evidence
	l.stage(&res, "retrieve", func() error {
		v, err, _ := l.flight.Do(query, func() (any, error) {
			return l.searcher.Search(ctx, query, l.cfg.TopK)
		})
		if err != nil {
			return err
		}
		evidence = v.(types.Evidence)
		return nil
	})
	for _, r := range evidence.Results {
		res.EvidenceIDs = append(res.EvidenceIDs, r.ID)
	}

	fact := types.Fact{
		ID:                types.FactID(query),
		Content:           query,
		Confidence:        conf,
		Source:            "user",
		ConfidencePenalty: res.Class.Penalty,
		OriginalQuery:     text,
		StorableType:      res.Class.Type,
	}

	l.stage(&res, "evaluate", func() error {
		res.Evaluation = l.currentEngine().Evaluate(reason.Input{Fact: fact, Evidence: evidence})
		return nil
	})
	res.Confidence = res.Evaluation.Confidence

	allowed := l.govern(&res, fact)

	l.stage(&res, "arbitrate", func() error {
		out, err := l.router.Arbitrate(ctx, fact, res.Evaluation, evidence, allowed)
		res.Outcome = out
		return err
	})

	res.Answer = ComposeAnswer(query, res.Class, res.Evaluation, res.Outcome)

	// 已答问题写入问答记忆并回填快速缓存。
	if res.Class.Type == types.StorableQuestion && res.Evaluation.Answerable() {
		l.stage(&res, "qa_write", func() error {
			if l.qa != nil {
				if err := l.qa.Append(query, res.Answer, res.Evaluation.Confidence); err != nil {
					return err
				}
			}
			if l.fast != nil {
				return l.fast.Store(ctx, query, res.Answer, res.Evaluation.Confidence)
			}
			return nil
		})
	}

	return l.finish(ctx, res, start), nil
}

// ExplainLast 解释上一轮回答。没有可解释的轮次时返回 UNANSWERED。
func (l *Librarian) ExplainLast() types.Evaluation {
	if l.feedback != nil {
		if ex, ok := l.feedback.LastExchange(); ok {
			return l.currentEngine().ExplainLast(ex.Question, ex.Answer)
		}
	}
	return types.Evaluation{
		Verdict:    types.VerdictUnanswered,
		Mode:       types.ModeExplanation,
		Confidence: 0.1,
		Answer:     "There's no previous answer to explain.",
	}
}

// SetEngine 原子替换判定引擎,供规则热重载使用。
func (l *Librarian) SetEngine(e *reason.Engine) {
	if e == nil {
		return
	}
	l.engineMu.Lock()
	l.engine = e
	l.engineMu.Unlock()
}

func (l *Librarian) currentEngine() *reason.Engine {
	l.engineMu.RLock()
	defer l.engineMu.RUnlock()
	return l.engine
}

// cacheGate 依次查快速缓存与语义缓存,命中即短路。
func (l *Librarian) cacheGate(ctx context.Context, query string, res *RunResult) bool {
	if l.fast != nil {
		entry, err := l.fast.Lookup(ctx, query)
		if err == nil {
			if l.metrics != nil {
				l.metrics.RecordCacheHit("fast")
			}
			res.CacheHit = "fast"
			res.Answer = entry.Answer
			res.Confidence = entry.Confidence
			res.Evaluation = cacheEvaluation(entry)
			return true
		}
		if !cache.IsCacheMiss(err) {
			l.logger.Warn("fast cache lookup failed", zap.Error(err))
		} else if l.metrics != nil {
			l.metrics.RecordCacheMiss("fast")
		}
	}
	if l.semantic != nil {
		entry, sim, err := l.semantic.Lookup(ctx, query)
		if err == nil {
			if l.metrics != nil {
				l.metrics.RecordCacheHit("semantic")
			}
			res.CacheHit = fmt.Sprintf("semantic(%.2f)", sim)
			res.Answer = entry.Answer
			res.Confidence = entry.Confidence
			res.Evaluation = cacheEvaluation(entry)
			return true
		}
		if !cache.IsCacheMiss(err) {
			l.logger.Warn("semantic cache lookup failed", zap.Error(err))
		} else if l.metrics != nil {
			l.metrics.RecordCacheMiss("semantic")
		}
	}
	return false
}

// govern 执行治理门:最低置信度与拒绝规则。
func (l *Librarian) govern(res *RunResult, fact types.Fact) bool {
	if res.Evaluation.Confidence < l.gov.MinConfidence {
		l.logger.Info("governance rejected: confidence below floor",
			zap.Float64("confidence", res.Evaluation.Confidence),
			zap.Float64("floor", l.gov.MinConfidence))
		return false
	}
	content := strings.ToLower(fact.Content)
	for _, pattern := range l.gov.DenyPatterns {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p != "" && strings.Contains(content, p) {
			l.logger.Info("governance rejected: deny pattern", zap.String("pattern", p))
			return false
		}
	}
	return true
}

// finish 收尾:登记最近一轮问答、主题计数、历史摘要、
// 运行快照与指标。收尾失败只记录,不影响返回。
func (l *Librarian) finish(ctx context.Context, res RunResult, start time.Time) RunResult {
	if res.Answer == "" {
		res.Answer = FallbackAnswer
	}
	if res.Confidence == 0 {
		res.Confidence = res.Evaluation.Confidence
	}
	res.ElapsedMS = time.Since(start).Milliseconds()

	query := res.Normalized.Text
	if query == "" {
		query = strings.ToLower(strings.TrimSpace(res.Input))
	}

	if l.topics != nil && res.Evaluation.Mode != types.ModeFeedback {
		if err := l.topics.Update(query); err != nil {
			l.logger.Warn("topic stats update failed", zap.Error(err))
		}
	}
	if l.feedback != nil && res.Evaluation.Mode != types.ModeFeedback {
		l.feedback.SetLastExchange(query, res.Answer, res.Confidence)
	}
	if l.history != nil {
		run := history.RunSummary{
			Timestamp:  time.Now(),
			Text:       query,
			Verdict:    string(res.Evaluation.Verdict),
			Mode:       string(res.Evaluation.Mode),
			Bank:       res.Outcome.Bank,
			Confidence: res.Confidence,
			Answered:   res.Evaluation.Answerable(),
			Success:    history.SuccessScore(res.Evaluation),
		}
		if err := l.history.LogRun(ctx, run); err != nil {
			l.logger.Warn("run summary log failed", zap.Error(err))
		}
	}
	if l.reportsDir != "" {
		if _, err := writeReport(l.reportsDir, "run", res); err != nil {
			l.logger.Warn("run snapshot failed", zap.Error(err))
		}
	}
	if l.metrics != nil {
		l.metrics.RecordRun(string(res.Evaluation.Verdict), string(res.Evaluation.Mode))
	}
	l.logger.Info("pipeline run complete",
		zap.String("verdict", string(res.Evaluation.Verdict)),
		zap.String("mode", string(res.Evaluation.Mode)),
		zap.Float64("confidence", res.Confidence),
		zap.Int64("elapsed_ms", res.ElapsedMS))
	return res
}

// stage 执行一个阶段,失败被隔离进 StageErrors。
func (l *Librarian) stage(res *RunResult, name string, fn func() error) {
	begin := time.Now()
	if err := fn(); err != nil {
		l.logger.Warn("stage failed", zap.String("stage", name), zap.Error(err))
		res.StageErrors = append(res.StageErrors, StageError{Stage: name, Err: err.Error()})
	}
	if l.metrics != nil {
		l.metrics.RecordStage(name, time.Since(begin))
	}
}

func feedbackEvaluation(answer string) types.Evaluation {
	return types.Evaluation{
		Verdict:    types.VerdictKnown,
		Mode:       types.ModeFeedback,
		Confidence: 0.9,
		Answer:     answer,
	}
}

func cacheEvaluation(entry cache.Entry) types.Evaluation {
	return types.Evaluation{
		Verdict:        types.VerdictKnown,
		Mode:           types.ModeCacheHit,
		Confidence:     entry.Confidence,
		Answer:         entry.Answer,
		AnswerSourceID: entry.Query,
	}
}

func isExplainRequest(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	return s == "explain" || s == "explain that" ||
		strings.HasPrefix(s, "why did you") || strings.HasPrefix(s, "why do you say")
}

func clampConf(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// writeReport 把载荷写成 dir/system/<prefix>_<ts>.json。
func writeReport(dir, prefix string, payload any) (string, error) {
	target := filepath.Join(dir, "system")
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	path := filepath.Join(target, fmt.Sprintf("%s_%d.json", prefix, time.Now().UnixNano()))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

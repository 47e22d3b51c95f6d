package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/bank"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/types"
)

// 存储被跳过时的原因码,原样写进运行快照。
const (
	SkipDuplicate   = "duplicate_evidence"
	SkipGovernance  = "governance_denied_or_validation_reject"
	SkipNonStorable = "non_storable_verdict"
)

// bankKeywords 按优先级排列的关键词表。排前面的分区先匹配,
// 子串命中即定案。
var bankKeywords = []struct {
	bank     string
	keywords []string
}{
	{"science", []string{"gravity", "atom", "cell", "physics", "chemistry", "mitosis", "blue sky", "light", "scatter"}},
	{"history", []string{"born", "died", "founded", "established", "empire", "revolution", "ancient"}},
	{"math", []string{"equation", "theorem", "prime number", "integer", "algebra", "geometry", "fraction"}},
	{"geography", []string{"river", "mountain", "continent", "ocean", "capital of", "island", "desert"}},
	{"technology", []string{"computer", "software", "internet", "algorithm", "network", "robot", "machine"}},
	{"economics", []string{"market", "inflation", "currency", "trade", "price", "supply", "economy"}},
	{"law", []string{"court", "statute", "contract", "crime", "legal", "treaty"}},
	{"philosophy", []string{"philosophy", "morality", "existence", "virtue", "metaphysic"}},
	{"language_arts", []string{"poem", "novel", "grammar", "metaphor", "verb", "noun", "sentence"}},
}

// defaultBank 无信号时的兜底分区。
const defaultBank = "arts"

// Outcome 是一次存储仲裁的结果,进入运行快照的 storage 字段。
type Outcome struct {
	Stored     bool     `json:"stored"`
	Skipped    bool     `json:"skipped,omitempty"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Bank       string   `json:"bank,omitempty"`
	Tier       string   `json:"tier,omitempty"`
	RecordID   string   `json:"record_id,omitempty"`
	Resolved   []string `json:"resolved_theories,omitempty"`
	Route      string   `json:"route_explain,omitempty"`
}

// Router 负责选库与存储仲裁。
type Router struct {
	registry *bank.Registry
	vocab    *Vocab
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithVocab attaches a learned vocabulary used when no keyword matches.
func WithVocab(v *Vocab) Option {
	return func(r *Router) { r.vocab = v }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Router) { r.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New 创建路由器。
func New(registry *bank.Registry, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "router"))
	return r
}

// RouteBank 为 text 选定主题分区,并返回路由解释。
func (r *Router) RouteBank(text string) (string, string) {
	s := strings.ToLower(text)
	for _, entry := range bankKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(s, kw) {
				return entry.bank, "keyword:" + kw
			}
		}
	}
	if r.vocab != nil {
		if best, score := r.vocab.Best(text); score > 0 {
			return best, fmt.Sprintf("learned:%s(%.2f)", best, score)
		}
	}
	return defaultBank, "default"
}

// storageClass 把判定模式折算成存储类别。
type storageClass int

const (
	classSkip storageClass = iota
	classFactual
	classTheory
	classContradiction
)

func classify(eval types.Evaluation) storageClass {
	switch eval.Mode {
	case types.ModeRetrieved, types.ModeVerified:
		return classFactual
	case types.ModeEducatedGuess:
		return classTheory
	case types.ModeNoEvidence, types.ModeCommonSense:
		// 无证据的陈述与常识冲突都挂起为未决记录,等待后续证据。
		return classContradiction
	default:
		// 问答、过滤器、意图门控与解释路径不产生可存储事实。
		return classSkip
	}
}

// Arbitrate 决定 fact 的去向并执行存储。ev 是本轮检索到的证据,
// 用于重复判定;allowed 为治理门的放行结果。
func (r *Router) Arbitrate(ctx context.Context, fact types.Fact, eval types.Evaluation, ev types.Evidence, allowed bool) (Outcome, error) {
	if !allowed {
		return Outcome{Skipped: true, SkipReason: SkipGovernance}, nil
	}

	class := classify(eval)
	if class == classSkip {
		return Outcome{Skipped: true, SkipReason: SkipNonStorable}, nil
	}

	bankName, explain := r.RouteBank(fact.Content)

	if ev.ContainsContent(fact.Content) {
		if r.metrics != nil {
			r.metrics.RecordDuplicateSkip(bankName)
		}
		r.logger.Debug("duplicate evidence, storage skipped",
			zap.String("bank", bankName))
		return Outcome{Skipped: true, SkipReason: SkipDuplicate, Bank: bankName, Route: explain}, nil
	}

	if fact.Confidence == 0 {
		fact.Confidence = eval.Confidence
	}

	switch class {
	case classFactual:
		return r.storeFactual(ctx, bankName, explain, fact)
	case classTheory:
		fact.SourceBrain = "reasoning"
		fact.VerificationLevel = types.VerificationEducatedGuess
		res, err := r.registry.Theories().StoreTheory(ctx, fact)
		if err != nil {
			return Outcome{}, fmt.Errorf("store theory: %w", err)
		}
		return r.theoriesOutcome(res, explain), nil
	default:
		fact.SourceBrain = "reasoning"
		fact.VerificationLevel = types.VerificationUnknown
		res, err := r.registry.Theories().StoreContradiction(ctx, fact)
		if err != nil {
			return Outcome{}, fmt.Errorf("store contradiction: %w", err)
		}
		return r.theoriesOutcome(res, explain), nil
	}
}

func (r *Router) storeFactual(ctx context.Context, bankName, explain string, fact types.Fact) (Outcome, error) {
	b, err := r.registry.Get(bankName)
	if err != nil {
		return Outcome{}, fmt.Errorf("route bank: %w", err)
	}
	fact.ValidatedBy = "reasoning"
	fact.VerificationLevel = types.VerificationFactual

	res, err := b.Store(ctx, fact)
	if err != nil {
		return Outcome{}, fmt.Errorf("store fact: %w", err)
	}

	// 已验证事实落库后,同内容的未决理论就此了结。
	resolved, err := r.registry.Theories().ResolveMatches(ctx, fact.Content)
	if err != nil {
		r.logger.Warn("theory resolution failed", zap.Error(err))
	}

	if r.vocab != nil {
		if err := r.vocab.Learn(bankName, fact.Content); err != nil {
			r.logger.Warn("vocab update failed", zap.Error(err))
		}
	}
	if r.metrics != nil {
		r.metrics.RecordStore(bankName, string(res.Tier))
	}
	r.logger.Info("fact stored",
		zap.String("bank", bankName),
		zap.String("route", explain),
		zap.Bool("duplicate", res.Duplicate),
		zap.Int("theories_resolved", len(resolved)))

	return Outcome{
		Stored:   true,
		Bank:     bankName,
		Tier:     string(res.Tier),
		RecordID: res.StoredID,
		Resolved: resolved,
		Route:    explain,
	}, nil
}

func (r *Router) theoriesOutcome(res bank.StoreResult, explain string) Outcome {
	const name = "theories_and_contradictions"
	if r.metrics != nil {
		r.metrics.RecordStore(name, string(res.Tier))
	}
	return Outcome{
		Stored:   true,
		Bank:     name,
		Tier:     string(res.Tier),
		RecordID: res.StoredID,
		Route:    explain,
	}
}

// Supersede 用更正后的事实替换被否定的旧记录。旧记录标记为
// superseded,新事实作为理论重新入库等待验证。
func (r *Router) Supersede(ctx context.Context, oldID string, replacement types.Fact) (Outcome, error) {
	replacement.SourceBrain = "correction"
	res, err := r.registry.Theories().Supersede(ctx, oldID, replacement)
	if err != nil {
		return Outcome{}, fmt.Errorf("supersede: %w", err)
	}
	return r.theoriesOutcome(res, "supersede:"+oldID), nil
}

package memory

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/cache"
)

// 正反馈与负反馈的识别词表。整词精确匹配优先,短语做包含匹配。
var (
	positiveExact = map[string]bool{
		"correct": true, "right": true, "yes": true, "good": true,
		"true": true, "exactly": true, "yep": true, "yeah": true,
		"yup": true, "sure": true, "indeed": true, "absolutely": true,
		"y": true, "ok": true, "okay": true, "agreed": true,
	}
	positivePhrases = []string{
		"that's correct", "that's right", "you're right", "you're correct",
		"yes correct", "correct on", "all correct", "yes that's",
		"that is correct", "that is right",
	}
	negativeExact = map[string]bool{
		"no": true, "incorrect": true, "wrong": true, "false": true,
		"nope": true, "n": true,
	}
)

// IsPositiveFeedback reports whether text confirms the previous answer.
func IsPositiveFeedback(text string) bool {
	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return false
	}
	if positiveExact[q] {
		return true
	}
	for _, phrase := range positivePhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

// IsNegativeFeedback reports whether text rejects the previous answer.
func IsNegativeFeedback(text string) bool {
	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return false
	}
	if negativeExact[q] {
		return true
	}
	return strings.HasPrefix(q, "no") || strings.Contains(q, "incorrect") || strings.Contains(q, "wrong")
}

// Exchange 记录上一轮问答,供反馈处理回溯。
type Exchange struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Domain     string  `json:"domain"`
}

// AnswerCache 是反馈处理需要的快取操作子集。
type AnswerCache interface {
	Boost(ctx context.Context, query string, amount float64) (float64, error)
	Store(ctx context.Context, query, answer string, confidence float64) error
}

// DefaultFeedbackBoost 是正反馈给快取条目的默认置信度加成。
const DefaultFeedbackBoost = 0.15

// Feedback 处理用户对上一轮回答的确认或纠正:
// 正反馈提升领域元置信度并给快取条目加成,
// 负反馈记录一次领域失败。
type Feedback struct {
	mu     sync.Mutex
	last   *Exchange
	meta   *MetaConfidence
	cache  AnswerCache
	boost  float64
	logger *zap.Logger
}

// FeedbackOption configures a Feedback handler.
type FeedbackOption func(*Feedback)

// WithBoost 覆盖正反馈的置信度加成,非正值忽略。
func WithBoost(amount float64) FeedbackOption {
	return func(f *Feedback) {
		if amount > 0 {
			f.boost = amount
		}
	}
}

// NewFeedback creates a feedback handler. cache may be nil when no fast
// cache is configured.
func NewFeedback(meta *MetaConfidence, answerCache AnswerCache, logger *zap.Logger, opts ...FeedbackOption) *Feedback {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feedback{
		meta:   meta,
		cache:  answerCache,
		boost:  DefaultFeedbackBoost,
		logger: logger.With(zap.String("component", "feedback")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetLastExchange stores the most recent question/answer pair.
func (f *Feedback) SetLastExchange(question, answer string, confidence float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &Exchange{
		Question:   question,
		Answer:     answer,
		Confidence: confidence,
		Domain:     TopicKey(question),
	}
}

// LastExchange returns the stored exchange, if any.
func (f *Feedback) LastExchange() (Exchange, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Exchange{}, false
	}
	return *f.last, true
}

// HandlePositive applies positive feedback: a domain success plus a
// confidence boost on the cached answer (stored fresh when absent).
func (f *Feedback) HandlePositive(ctx context.Context) string {
	ex, ok := f.LastExchange()
	if !ok {
		return "Noted."
	}

	if f.meta != nil && ex.Domain != "" {
		if err := f.meta.Update(ex.Domain, true, 1.0); err != nil {
			f.logger.Warn("meta confidence update failed", zap.Error(err))
		}
	}

	if f.cache != nil && ex.Question != "" {
		if _, err := f.cache.Boost(ctx, ex.Question, f.boost); err != nil {
			if cache.IsCacheMiss(err) {
				conf := ex.Confidence + f.boost
				if conf > 1.0 {
					conf = 1.0
				}
				if err := f.cache.Store(ctx, ex.Question, ex.Answer, conf); err != nil {
					f.logger.Warn("fast cache store failed", zap.Error(err))
				}
			} else {
				f.logger.Warn("fast cache boost failed", zap.Error(err))
			}
		}
	}

	return "Noted."
}

// HandleNegative applies negative feedback: a domain failure record.
func (f *Feedback) HandleNegative(ctx context.Context) string {
	ex, ok := f.LastExchange()
	if !ok {
		return "I see. I'll try to do better."
	}
	if f.meta != nil && ex.Domain != "" {
		if err := f.meta.Update(ex.Domain, false, 1.0); err != nil {
			f.logger.Warn("meta confidence update failed", zap.Error(err))
		}
	}
	return "I see. I'll try to do better."
}

package retrieval

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/bank"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/internal/pool"
	"github.com/BaSui01/memflow/types"
)

// DefaultTopK 是记忆优先检索的默认结果上限。
const DefaultTopK = 5

// perBankLimit bounds how many raw records a single bank scan may return
// before global scoring; keeps one noisy bank from crowding out the rest.
const perBankLimit = 50

// Searcher 在注册表的全部银行上做并发扇出检索。
type Searcher struct {
	registry *bank.Registry
	workers  *pool.WorkerPool
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Searcher) { s.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Searcher) { s.logger = l }
}

// NewSearcher 创建检索器。workers 为 nil 时退化为串行扫描。
func NewSearcher(registry *bank.Registry, workers *pool.WorkerPool, opts ...Option) *Searcher {
	s := &Searcher{
		registry: registry,
		workers:  workers,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "retrieval"))
	return s
}

type scored struct {
	record types.Record
	score  float64
}

// Search 在所有银行上检索 query,返回至多 k 条按相关度排序的记录
// 以及实际扫描过的银行名单。k <= 0 时使用 DefaultTopK。
func (s *Searcher) Search(ctx context.Context, query string, k int) (types.Evidence, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	queryTokens := bank.Tokenize(query)

	var (
		mu       sync.Mutex
		hits     []scored
		searched []string
	)

	banks := s.registry.All()
	var wg sync.WaitGroup
	for _, b := range banks {
		b := b
		wg.Add(1)
		job := func(ctx context.Context) error {
			defer wg.Done()
			start := time.Now()
			records, err := b.Retrieve(ctx, query, perBankLimit)
			if err != nil {
				s.logger.Warn("bank scan failed, skipping",
					zap.String("bank", b.Name()),
					zap.Error(err))
				return err
			}
			if s.metrics != nil {
				s.metrics.RecordRetrieval(b.Name(), time.Since(start), len(records))
			}
			mu.Lock()
			searched = append(searched, b.Name())
			for _, rec := range records {
				hits = append(hits, scored{record: rec, score: overlap(queryTokens, rec.Content)})
			}
			mu.Unlock()
			return nil
		}
		if s.workers != nil {
			if err := s.workers.Submit(ctx, job); err != nil {
				// Pool saturated or closed, run inline rather than drop the bank.
				job(ctx)
			}
		} else {
			job(ctx)
		}
	}
	wg.Wait()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].record.Timestamp > hits[j].record.Timestamp
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]types.Record, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.record)
	}
	sort.Strings(searched)

	s.logger.Debug("retrieval complete",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Int("banks_searched", len(searched)))

	return types.Evidence{Results: results, Banks: searched}, nil
}

// overlap 计算查询词元与内容的重叠比例。
func overlap(queryTokens []string, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := make(map[string]bool)
	for _, tok := range bank.Tokenize(content) {
		contentTokens[tok] = true
	}
	matched := 0
	for _, tok := range queryTokens {
		if contentTokens[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

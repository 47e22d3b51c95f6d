package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/memflow/internal/database"
	"github.com/BaSui01/memflow/types"
)

// DefaultWindow 是滚动成功率统计的默认窗口。
const DefaultWindow = 50

// RunSummary 一轮管线运行的摘要记录。
type RunSummary struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
	Text       string    `gorm:"size:1024" json:"text"`
	Verdict    string    `gorm:"size:32;index" json:"verdict"`
	Mode       string    `gorm:"size:32" json:"mode"`
	Bank       string    `gorm:"size:64" json:"bank"`
	Confidence float64   `json:"confidence"`
	Answered   bool      `json:"answered"`
	Success    float64   `json:"success"` // +1 成功 / 0 中性 / -1 失败
}

// Store 运行史存取。
type Store struct {
	pool   *database.Pool
	logger *zap.Logger
}

// NewStore 建表并返回存取器。
func NewStore(pool *database.Pool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&RunSummary{}); err != nil {
		return nil, fmt.Errorf("migrate run history: %w", err)
	}
	return &Store{
		pool:   pool,
		logger: logger.With(zap.String("component", "history")),
	}, nil
}

// SuccessScore 把判定结果折算成学习信号。答上来或验证为真
// 记成功,明确失败(无证据、未答)记失败,其余中性。
func SuccessScore(eval types.Evaluation) float64 {
	switch eval.Verdict {
	case types.VerdictTrue, types.VerdictKnown, types.VerdictExplanation:
		return 1
	case types.VerdictUnknown, types.VerdictUnanswered:
		return -1
	default:
		if eval.Answerable() {
			return 1
		}
		return 0
	}
}

// LogRun 追加一条运行摘要。Timestamp 为零值时取当前时间。
func (s *Store) LogRun(ctx context.Context, run RunSummary) error {
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now()
	}
	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Create(&run).Error
	})
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	s.logger.Debug("run logged",
		zap.String("verdict", run.Verdict),
		zap.String("bank", run.Bank),
		zap.Float64("confidence", run.Confidence))
	return nil
}

// Recent 返回最近 n 条运行摘要,新者在前。
func (s *Store) Recent(ctx context.Context, n int) ([]RunSummary, error) {
	if n <= 0 {
		n = DefaultWindow
	}
	var runs []RunSummary
	err := s.pool.DB().WithContext(ctx).
		Order("id DESC").
		Limit(n).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}

// SuccessAverage 返回最近 n 轮的平均成功分,区间 [-1, 1]。
// 无任何记录时为 0。
func (s *Store) SuccessAverage(ctx context.Context, n int) (float64, error) {
	runs, err := s.Recent(ctx, n)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range runs {
		sum += r.Success
	}
	return sum / float64(len(runs)), nil
}

// Count 返回累计运行轮数。
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.DB().WithContext(ctx).Model(&RunSummary{}).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// SuccessAverageFunc 返回一个无参采样函数,供推理引擎注入
// 成功率偏置。内部错误按零偏置处理并记日志。
func (s *Store) SuccessAverageFunc(window int) func() float64 {
	return func() float64 {
		avg, err := s.SuccessAverage(context.Background(), window)
		if err != nil {
			s.logger.Warn("success average unavailable", zap.Error(err))
			return 0
		}
		return avg
	}
}

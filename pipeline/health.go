package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/memflow/bank"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/metrics"
)

// BankHealth 是单个分区的体检结果。
type BankHealth struct {
	Bank     string `json:"bank"`
	STM      int    `json:"stm"`
	MTM      int    `json:"mtm"`
	LTM      int    `json:"ltm"`
	Cold     int    `json:"cold"`
	Total    int    `json:"total"`
	Repaired bool   `json:"repaired,omitempty"`
}

// HealthReport 是一次全量体检的产物。
type HealthReport struct {
	Timestamp  time.Time    `json:"timestamp"`
	Banks      []BankHealth `json:"banks"`
	TotalFacts int          `json:"total_facts"`
	Repairs    int          `json:"repairs"`
	ReportPath string       `json:"-"`
}

// Doctor 巡检全部分区的分层计数。短期层记录数超过轮换阈值
// 两倍的分区视为轮换停摆,就地触发一次轮换修复。
type Doctor struct {
	registry   *bank.Registry
	rotation   config.RotationConfig
	metrics    *metrics.Collector
	reportsDir string
	logger     *zap.Logger
}

// NewDoctor 构造体检器。metrics 允许为 nil。
func NewDoctor(registry *bank.Registry, rotation config.RotationConfig, collector *metrics.Collector, reportsDir string, logger *zap.Logger) *Doctor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Doctor{
		registry:   registry,
		rotation:   rotation,
		metrics:    collector,
		reportsDir: reportsDir,
		logger:     logger.With(zap.String("component", "doctor")),
	}
}

// Check 并发体检每个分区并落盘 health_<ts>.json 报告。
// 单个分区的修复失败不阻断其余分区。
func (d *Doctor) Check(ctx context.Context) (HealthReport, error) {
	report := HealthReport{Timestamp: time.Now()}
	banks := d.registry.All()
	results := make([]BankHealth, len(banks))
	limit := d.rotation.STMRecords * 2

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, b := range banks {
		g.Go(func() error {
			counts := b.Counts()
			h := BankHealth{
				Bank:  b.Name(),
				STM:   counts.STM,
				MTM:   counts.MTM,
				LTM:   counts.LTM,
				Cold:  counts.Cold,
				Total: counts.Total(),
			}
			if limit > 0 && counts.STM > limit {
				d.logger.Warn("stm overflow, forcing rotation",
					zap.String("bank", b.Name()),
					zap.Int("stm", counts.STM),
					zap.Int("limit", limit))
				if err := b.Rotate(gctx); err != nil {
					d.logger.Error("repair rotation failed",
						zap.String("bank", b.Name()), zap.Error(err))
				} else {
					h.Repaired = true
					if d.metrics != nil {
						d.metrics.RecordRepair(b.Name())
					}
				}
			}
			mu.Lock()
			results[i] = h
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, h := range results {
		report.Banks = append(report.Banks, h)
		report.TotalFacts += h.Total
		if h.Repaired {
			report.Repairs++
		}
	}

	if d.reportsDir != "" {
		path, err := writeReport(d.reportsDir, "health", report)
		if err != nil {
			d.logger.Warn("health report write failed", zap.Error(err))
		} else {
			report.ReportPath = path
		}
	}

	d.logger.Info("health check complete",
		zap.Int("banks", len(report.Banks)),
		zap.Int("total_facts", report.TotalFacts),
		zap.Int("repairs", report.Repairs))
	return report, nil
}

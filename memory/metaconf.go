package memory

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// decayPerDay 控制历史成败计数的指数衰减(每天保留 95%)。
const decayPerDay = 0.95

type domainRecord struct {
	Success       float64 `json:"success"`
	Failure       float64 `json:"failure"`
	SuccessWeight float64 `json:"success_weight"`
	FailureWeight float64 `json:"failure_weight"`
	LastUpdate    float64 `json:"last_update"`
}

// DomainStat 是对外暴露的一条领域统计。
type DomainStat struct {
	Domain     string  `json:"domain"`
	Success    int     `json:"success"`
	Failure    int     `json:"failure"`
	Total      int     `json:"total"`
	Adjustment float64 `json:"adjustment"`
}

// MetaConfidence 按领域跟踪回答成败,输出 [-0.1, 0.1] 的置信度修正。
// 领域键通常是主题键(查询前两个词),大小写不敏感。
type MetaConfidence struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// NewMetaConfidence opens the per-domain stats file at path.
func NewMetaConfidence(path string, logger *zap.Logger) (*MetaConfidence, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &MetaConfidence{
		path:   path,
		now:    time.Now,
		logger: logger.With(zap.String("component", "meta_confidence")),
	}, nil
}

func (m *MetaConfidence) loadLocked() map[string]domainRecord {
	stats := make(map[string]domainRecord)
	data, err := os.ReadFile(m.path)
	if err != nil {
		return stats
	}
	_ = json.Unmarshal(data, &stats)
	return stats
}

func (m *MetaConfidence) saveLocked(stats map[string]domainRecord) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

func decay(rec domainRecord, now time.Time) domainRecord {
	if rec.LastUpdate <= 0 {
		return rec
	}
	elapsed := float64(now.UnixNano())/1e9 - rec.LastUpdate
	if elapsed <= 0 {
		return rec
	}
	factor := math.Pow(decayPerDay, elapsed/86400.0)
	rec.Success *= factor
	rec.Failure *= factor
	rec.SuccessWeight *= factor
	rec.FailureWeight *= factor
	return rec
}

// Update records a success or failure for the domain. weight reflects the
// difficulty of the query; values <= 0 count as 1.
func (m *MetaConfidence) Update(domain string, success bool, weight float64) error {
	key := strings.ToLower(strings.TrimSpace(domain))
	if key == "" {
		return nil
	}
	if weight <= 0 {
		weight = 1.0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.loadLocked()
	now := m.now()
	rec := decay(stats[key], now)
	if success {
		rec.Success++
		rec.SuccessWeight += weight
	} else {
		rec.Failure++
		rec.FailureWeight += weight
	}
	rec.LastUpdate = float64(now.UnixNano()) / 1e9
	stats[key] = rec
	return m.saveLocked(stats)
}

// Adjustment computes the confidence adjustment for a domain: the decayed
// weighted success rate mapped from [0,1] to [-0.1, +0.1], neutral at 0.5.
func (m *MetaConfidence) Adjustment(domain string) float64 {
	key := strings.ToLower(strings.TrimSpace(domain))
	if key == "" {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.loadLocked()
	rec, ok := stats[key]
	if !ok {
		return 0
	}
	rec = decay(rec, m.now())

	succ := rec.SuccessWeight
	fail := rec.FailureWeight
	if succ == 0 && fail == 0 {
		succ, fail = rec.Success, rec.Failure
	}
	total := succ + fail
	if total <= 0 {
		return 0
	}
	adj := (succ/total - 0.5) * 0.2
	if adj > 0.1 {
		adj = 0.1
	}
	if adj < -0.1 {
		adj = -0.1
	}
	return adj
}

// Stats returns up to limit domains sorted by total attempts descending.
func (m *MetaConfidence) Stats(limit int) []DomainStat {
	if limit <= 0 {
		return nil
	}

	m.mu.Lock()
	stats := m.loadLocked()
	m.mu.Unlock()

	out := make([]DomainStat, 0, len(stats))
	for domain, rec := range stats {
		out = append(out, DomainStat{
			Domain:     domain,
			Success:    int(rec.Success),
			Failure:    int(rec.Failure),
			Total:      int(rec.Success + rec.Failure),
			Adjustment: m.Adjustment(domain),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

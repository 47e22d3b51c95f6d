package bank

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

var (
	// ErrBankClosed 操作已关闭的 bank
	ErrBankClosed = errors.New("bank is closed")

	// ErrEmptyFact 事实内容为空
	ErrEmptyFact = errors.New("fact content is empty")
)

// Tier 是记忆层名称。
type Tier string

const (
	TierSTM  Tier = "stm"
	TierMTM  Tier = "mtm"
	TierLTM  Tier = "ltm"
	TierCold Tier = "cold"
)

// searchTiers 检索只扫描这三层，cold 视为归档。
var searchTiers = []Tier{TierSTM, TierMTM, TierLTM}

// allTiers 去重检查覆盖全部四层。
var allTiers = []Tier{TierSTM, TierMTM, TierLTM, TierCold}

// RotationConfig 控制各层的滚动阈值。零值禁用对应层的滚动。
type RotationConfig struct {
	STMRecords int `yaml:"stm_records" json:"stm_records"`
	MTMRecords int `yaml:"mtm_records" json:"mtm_records"`
	LTMRecords int `yaml:"ltm_records" json:"ltm_records"`
}

// StoreResult 描述一次存储的结果。
type StoreResult struct {
	StoredID  string `json:"stored_id"`
	Duplicate bool   `json:"duplicate"`
	Tier      Tier   `json:"tier"`
}

// Counts 是各层的记录行数。
type Counts struct {
	STM  int `json:"stm"`
	MTM  int `json:"mtm"`
	LTM  int `json:"ltm"`
	Cold int `json:"cold"`
}

// Total returns the sum across every tier.
func (c Counts) Total() int { return c.STM + c.MTM + c.LTM + c.Cold }

// RotationObserver 在某层实际发生滚动后被调用。
type RotationObserver func(bank string, tier Tier, moved int)

// Bank 是单个主题分区。所有文件操作由内部互斥锁串行化，
// 同一 bank 实例可被多个 goroutine 并发使用。
type Bank struct {
	name     string
	root     string
	rotation RotationConfig
	logger   *zap.Logger

	mu       sync.Mutex
	closed   bool
	onRotate RotationObserver
}

// New opens (or creates) a bank rooted at dir. The tier directories and
// their records.jsonl files are created eagerly so subsequent appends
// never have to special-case a missing path.
func New(name, dir string, rotation RotationConfig, logger *zap.Logger) (*Bank, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bank{
		name:     name,
		root:     dir,
		rotation: rotation,
		logger:   logger.With(zap.String("component", "bank"), zap.String("bank", name)),
	}
	for _, tier := range allTiers {
		p := b.tierDir(tier)
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, fmt.Errorf("create tier dir %s: %w", tier, err)
		}
		f, err := os.OpenFile(b.tierFile(tier), os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("touch tier file %s: %w", tier, err)
		}
		f.Close()
	}
	return b, nil
}

// Name returns the bank's topic name.
func (b *Bank) Name() string { return b.name }

// SetRotationObserver registers fn to be notified of tier rotations.
// The callback runs with the bank lock held and must not call back in.
func (b *Bank) SetRotationObserver(fn RotationObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRotate = fn
}

func (b *Bank) tierDir(tier Tier) string  { return filepath.Join(b.root, string(tier)) }
func (b *Bank) tierFile(tier Tier) string { return filepath.Join(b.tierDir(tier), "records.jsonl") }

// Store appends a fact to the STM tier. Facts whose content-addressed ID
// already exists in any tier are not written again; the existing ID is
// returned with Duplicate set. After a successful append the bank rotates
// overfull tiers and folds the record into the inverted index.
func (b *Bank) Store(ctx context.Context, fact types.Fact) (StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return StoreResult{}, err
	}
	if strings.TrimSpace(fact.Content) == "" {
		return StoreResult{}, ErrEmptyFact
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return StoreResult{}, ErrBankClosed
	}

	rec := types.NewRecord(b.name, fact)
	if b.recordExistsLocked(rec.ID) {
		b.logger.Debug("duplicate fact skipped", zap.String("id", rec.ID))
		return StoreResult{StoredID: rec.ID, Duplicate: true, Tier: TierSTM}, nil
	}

	if err := appendJSONL(b.tierFile(TierSTM), rec); err != nil {
		return StoreResult{}, fmt.Errorf("append stm: %w", err)
	}
	if err := b.rotateLocked(); err != nil {
		// Rotation failure leaves the record stored; log and move on.
		b.logger.Warn("tier rotation failed", zap.Error(err))
	}

	idx := loadIndex(b.root)
	idx.add(rec.ID, rec.Content)
	if err := saveIndex(b.root, idx); err != nil {
		b.logger.Warn("index update failed", zap.Error(err))
	}

	b.logger.Debug("fact stored", zap.String("id", rec.ID))
	return StoreResult{StoredID: rec.ID, Duplicate: false, Tier: TierSTM}, nil
}

// recordExistsLocked checks the index first, then scans every tier.
func (b *Bank) recordExistsLocked(id string) bool {
	if loadIndex(b.root).has(id) {
		return true
	}
	for _, tier := range allTiers {
		found := false
		_ = iterJSONL(b.tierFile(tier), func(rec types.Record) bool {
			if rec.ID == id {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

// Retrieve scans stm/mtm/ltm for records matching the query. With an
// intact index, candidate records match when every query token appears in
// their content, word order ignored. Without index help the scan falls
// back to whole-query substring matching. An empty query returns all
// records up to limit. limit <= 0 means unbounded.
func (b *Bank) Retrieve(ctx context.Context, query string, limit int) ([]types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBankClosed
	}

	q := strings.ToLower(strings.TrimSpace(query))
	tokens := Tokenize(q)
	cands := loadIndex(b.root).candidates(tokens)

	var results []types.Record
	for _, tier := range searchTiers {
		if limit > 0 && len(results) >= limit {
			break
		}
		err := iterJSONL(b.tierFile(tier), func(rec types.Record) bool {
			if limit > 0 && len(results) >= limit {
				return false
			}
			content := strings.ToLower(rec.Content)
			switch {
			case q == "":
				// no query: everything matches
			case cands != nil:
				if !cands[rec.ID] {
					return true
				}
				for _, tok := range tokens {
					if !strings.Contains(content, tok) {
						return true
					}
				}
			default:
				if !strings.Contains(content, q) {
					return true
				}
			}
			if rec.SourceBank == "" {
				rec.SourceBank = b.name
			}
			results = append(results, rec)
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", tier, err)
		}
	}
	return results, nil
}

// RebuildIndex rescans stm/mtm/ltm and writes a fresh inverted index.
// Existing tiers are never modified. Returns the number of records indexed.
func (b *Bank) RebuildIndex(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBankClosed
	}

	idx := invertedIndex{}
	n := 0
	for _, tier := range searchTiers {
		err := iterJSONL(b.tierFile(tier), func(rec types.Record) bool {
			n++
			idx.add(rec.ID, rec.Content)
			return true
		})
		if err != nil {
			return n, fmt.Errorf("scan %s: %w", tier, err)
		}
	}
	if err := saveIndex(b.root, idx); err != nil {
		return n, fmt.Errorf("write index: %w", err)
	}
	b.logger.Info("index rebuilt", zap.Int("records", n))
	return n, nil
}

// CompactCold rewrites the cold tier dropping blank lines. Record order
// is preserved and nothing is dropped beyond whitespace rows. Returns the
// number of surviving records.
func (b *Bank) CompactCold(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBankClosed
	}

	lines, err := readLines(b.tierFile(TierCold))
	if err != nil {
		return 0, fmt.Errorf("read cold: %w", err)
	}
	kept := make([]string, 0, len(lines))
	for _, ln := range lines {
		if strings.TrimSpace(ln) != "" {
			kept = append(kept, ln)
		}
	}
	if err := writeLines(b.tierFile(TierCold), kept); err != nil {
		return 0, fmt.Errorf("rewrite cold: %w", err)
	}
	return len(kept), nil
}

// Counts returns the per-tier record counts.
func (b *Bank) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		STM:  countLines(b.tierFile(TierSTM)),
		MTM:  countLines(b.tierFile(TierMTM)),
		LTM:  countLines(b.tierFile(TierLTM)),
		Cold: countLines(b.tierFile(TierCold)),
	}
}

// Rotate applies the rotation thresholds immediately. The health check
// uses this to repair overflowing STM tiers.
func (b *Bank) Rotate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBankClosed
	}
	return b.rotateLocked()
}

// rotateLocked cascades the oldest records stm→mtm→ltm→cold whenever a
// tier exceeds its configured threshold.
func (b *Bank) rotateLocked() error {
	steps := []struct {
		from, to Tier
		limit    int
	}{
		{TierSTM, TierMTM, b.rotation.STMRecords},
		{TierMTM, TierLTM, b.rotation.MTMRecords},
		{TierLTM, TierCold, b.rotation.LTMRecords},
	}
	for _, st := range steps {
		if st.limit <= 0 {
			continue
		}
		n := countLines(b.tierFile(st.from))
		if n <= st.limit {
			continue
		}
		if err := b.moveOldestLocked(st.from, st.to, n-st.limit); err != nil {
			return fmt.Errorf("rotate %s->%s: %w", st.from, st.to, err)
		}
		if b.onRotate != nil {
			b.onRotate(b.name, st.to, n-st.limit)
		}
	}
	return nil
}

// moveOldestLocked moves the first n lines of from into to, preserving order.
func (b *Bank) moveOldestLocked(from, to Tier, n int) error {
	if n <= 0 {
		return nil
	}
	lines, err := readLines(b.tierFile(from))
	if err != nil {
		return err
	}
	if n > len(lines) {
		n = len(lines)
	}
	moved, remain := lines[:n], lines[n:]

	f, err := os.OpenFile(b.tierFile(to), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	for _, ln := range moved {
		if _, err := f.WriteString(ln + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return writeLines(b.tierFile(from), remain)
}

// Close marks the bank closed. Further operations fail with ErrBankClosed.
func (b *Bank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

package bank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// 记录类型标签
const (
	RecordTheory        = "theory"
	RecordContradiction = "contradiction"
	RecordResolution    = "resolution"
)

// 理论状态
const (
	StatusOpen       = "open"
	StatusResolved   = "resolved"
	StatusSuperseded = "superseded"
)

// TheoriesBank 存放未验证的理论与矛盾记录。与主题分区不同，
// 它允许同一内容多次入库（每次猜测都是独立事件），因此记录 ID
// 使用随机 UUID 而非内容哈希。
type TheoriesBank struct {
	*Bank
}

// NewTheories opens the theories-and-contradictions partition at dir.
func NewTheories(dir string, rotation RotationConfig, logger *zap.Logger) (*TheoriesBank, error) {
	b, err := New("theories_and_contradictions", dir, rotation, logger)
	if err != nil {
		return nil, err
	}
	return &TheoriesBank{Bank: b}, nil
}

// storeTyped appends a typed record to STM without dedup.
func (t *TheoriesBank) storeTyped(ctx context.Context, kind string, fact types.Fact) (StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return StoreResult{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return StoreResult{}, ErrBankClosed
	}

	level := fact.VerificationLevel
	if level == "" {
		switch kind {
		case RecordTheory:
			level = types.VerificationEducatedGuess
		case RecordContradiction:
			level = types.VerificationUnknown
		default:
			level = types.VerificationValidated
		}
	}
	status := StatusOpen
	if s, ok := fact.Metadata["status"].(string); ok && s != "" {
		status = s
	}
	source := fact.SourceBrain
	if source == "" {
		source = "reasoning"
	}
	rec := types.Record{
		ID:                uuid.New().String(),
		Timestamp:         float64(time.Now().UnixNano()) / 1e9,
		Type:              kind,
		Content:           fact.Content,
		Confidence:        fact.Confidence,
		SourceBrain:       source,
		Status:            status,
		VerificationLevel: level,
		Metadata:          fact.Metadata,
	}
	if rec.Confidence == 0 && kind == RecordTheory {
		rec.Confidence = 0.5
	}
	if err := appendJSONL(t.tierFile(TierSTM), rec); err != nil {
		return StoreResult{}, fmt.Errorf("append %s: %w", kind, err)
	}
	if err := t.rotateLocked(); err != nil {
		t.logger.Warn("tier rotation failed", zap.Error(err))
	}
	return StoreResult{StoredID: rec.ID, Duplicate: false, Tier: TierSTM}, nil
}

// StoreTheory records an educated guess as an open theory.
func (t *TheoriesBank) StoreTheory(ctx context.Context, fact types.Fact) (StoreResult, error) {
	return t.storeTyped(ctx, RecordTheory, fact)
}

// StoreContradiction records an unresolved contradiction.
func (t *TheoriesBank) StoreContradiction(ctx context.Context, fact types.Fact) (StoreResult, error) {
	return t.storeTyped(ctx, RecordContradiction, fact)
}

// ResolveMatches finds open theories whose content matches exactly
// (case-insensitive) and appends a resolution record for each of them.
// The pipeline calls this when a fact graduates into a topical bank so
// that prior guesses about it are marked settled.
func (t *TheoriesBank) ResolveMatches(ctx context.Context, content string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrBankClosed
	}

	want := strings.ToLower(strings.TrimSpace(content))
	var matched []string
	err := iterJSONL(t.tierFile(TierSTM), func(rec types.Record) bool {
		if rec.Type == RecordTheory && strings.ToLower(strings.TrimSpace(rec.Content)) == want {
			matched = append(matched, rec.ID)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan theories: %w", err)
	}

	for _, rid := range matched {
		res := types.Record{
			ID:                uuid.New().String(),
			Timestamp:         float64(time.Now().UnixNano()) / 1e9,
			Type:              RecordResolution,
			Content:           content,
			Status:            StatusResolved,
			VerificationLevel: types.VerificationValidated,
			LinkedFactID:      rid,
			SourceBrain:       "librarian",
		}
		if err := appendJSONL(t.tierFile(TierSTM), res); err != nil {
			return matched, fmt.Errorf("append resolution: %w", err)
		}
	}
	if len(matched) > 0 {
		t.logger.Debug("theories resolved", zap.Int("count", len(matched)))
	}
	return matched, nil
}

// Supersede marks the record with oldID superseded and stores the
// replacement fact as a fresh theory linked to it. User corrections take
// this path: the contradicted belief is retired rather than deleted.
func (t *TheoriesBank) Supersede(ctx context.Context, oldID string, replacement types.Fact) (StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return StoreResult{}, err
	}

	t.mu.Lock()
	lines, err := readLines(t.tierFile(TierSTM))
	if err != nil {
		t.mu.Unlock()
		return StoreResult{}, fmt.Errorf("read stm: %w", err)
	}
	changed := false
	for i, ln := range lines {
		if !strings.Contains(ln, oldID) {
			continue
		}
		var rec types.Record
		if jsonErr := decodeRecord(ln, &rec); jsonErr != nil || rec.ID != oldID {
			continue
		}
		rec.Status = StatusSuperseded
		enc, encErr := encodeRecord(rec)
		if encErr != nil {
			continue
		}
		lines[i] = enc
		changed = true
	}
	if changed {
		if err := writeLines(t.tierFile(TierSTM), lines); err != nil {
			t.mu.Unlock()
			return StoreResult{}, fmt.Errorf("rewrite stm: %w", err)
		}
	}
	t.mu.Unlock()

	if replacement.Metadata == nil {
		replacement.Metadata = map[string]any{}
	}
	replacement.Metadata["supersedes"] = oldID
	return t.StoreTheory(ctx, replacement)
}

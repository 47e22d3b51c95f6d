package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VerificationLevel 描述事实的验证等级。
type VerificationLevel string

const (
	// VerificationFactual 已由推理引擎基于证据验证。
	VerificationFactual VerificationLevel = "factual"

	// VerificationEducatedGuess 合理推测，尚未验证。
	VerificationEducatedGuess VerificationLevel = "educated_guess"

	// VerificationUnknown 无法判定真伪。
	VerificationUnknown VerificationLevel = "unknown"

	// VerificationValidated 已通过矛盾消解确认。
	VerificationValidated VerificationLevel = "validated"
)

// Fact 是管线中流转的基本知识单元。
// ID 为内容寻址哈希，跨层去重依赖该标识。
type Fact struct {
	ID                string            `json:"id"`
	Content           string            `json:"content"`
	Confidence        float64           `json:"confidence"`
	Source            string            `json:"source,omitempty"`
	SourceBrain       string            `json:"source_brain,omitempty"`
	ValidatedBy       string            `json:"validated_by,omitempty"`
	VerificationLevel VerificationLevel `json:"verification_level,omitempty"`
	ConfidencePenalty float64           `json:"confidence_penalty,omitempty"`
	OriginalQuery     string            `json:"original_query,omitempty"`
	StorableType      StorableType      `json:"storable_type,omitempty"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// FactID returns the content-addressable identifier for content.
// It is the first 16 hex characters of sha256 over the lowercased,
// whitespace-trimmed content. Empty content falls back to a random UUID
// so that records never collide on the empty hash.
func FactID(content string) string {
	norm := strings.ToLower(strings.TrimSpace(content))
	if norm == "" {
		return uuid.New().String()
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:16]
}

// Record 是银行(bank)中持久化的一条 JSONL 记录。
type Record struct {
	ID                string            `json:"id"`
	Timestamp         float64           `json:"timestamp"`
	Domain            string            `json:"domain,omitempty"`
	Type              string            `json:"type,omitempty"`
	Content           string            `json:"content"`
	Confidence        float64           `json:"confidence"`
	VerificationLevel VerificationLevel `json:"verification_level,omitempty"`
	Source            string            `json:"source,omitempty"`
	SourceBrain       string            `json:"source_brain,omitempty"`
	ValidatedBy       string            `json:"validated_by,omitempty"`
	Status            string            `json:"status,omitempty"`
	LinkedFactID      string            `json:"linked_fact_id,omitempty"`
	Contradicts       []string          `json:"contradicts,omitempty"`
	SourceBank        string            `json:"source_bank,omitempty"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// NewRecord builds a bank record from a fact, filling in identifier and
// timestamp when absent.
func NewRecord(domain string, f Fact) Record {
	id := f.ID
	if id == "" {
		id = FactID(f.Content)
	}
	level := f.VerificationLevel
	if level == "" {
		level = VerificationEducatedGuess
	}
	src := f.Source
	if src == "" {
		src = "unknown"
	}
	return Record{
		ID:                id,
		Timestamp:         float64(time.Now().UnixNano()) / 1e9,
		Domain:            domain,
		Content:           strings.TrimSpace(f.Content),
		Confidence:        f.Confidence,
		VerificationLevel: level,
		Source:            src,
		SourceBrain:       f.SourceBrain,
		ValidatedBy:       f.ValidatedBy,
		Metadata:          f.Metadata,
	}
}

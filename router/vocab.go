package router

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/bank"
)

// vocabTopK bounds how many tokens per bank participate in scoring.
// High-frequency tokens carry the signal; the long tail is noise.
const vocabTopK = 200

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"being": true, "been": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "by": true, "with": true, "as": true,
	"at": true, "from": true, "that": true, "this": true, "it": true,
	"its": true, "their": true, "there": true, "then": true, "than": true,
	"so": true, "if": true, "into": true, "about": true, "over": true,
	"under": true,
}

var vocabToken = regexp.MustCompile(`[a-z0-9]+`)

// Vocab 是按分区累积的词频表。每次确认落库后用事实文本喂给
// 对应分区,路由评分随之向真实分布靠拢。
type Vocab struct {
	mu     sync.Mutex
	path   string
	counts map[string]map[string]int
	loaded bool
	logger *zap.Logger
}

// NewVocab 打开(或新建)持久化在 path 的词表。
func NewVocab(path string, logger *zap.Logger) *Vocab {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vocab{
		path:   path,
		counts: make(map[string]map[string]int),
		logger: logger.With(zap.String("component", "router_vocab")),
	}
}

func vocabTokens(text string) []string {
	raw := vocabToken.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) > 1 && !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}

func (v *Vocab) loadLocked() error {
	if v.loaded {
		return nil
	}
	v.loaded = true
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read vocab: %w", err)
	}
	if err := json.Unmarshal(data, &v.counts); err != nil {
		v.logger.Warn("vocab file corrupt, starting fresh", zap.Error(err))
		v.counts = make(map[string]map[string]int)
	}
	return nil
}

func (v *Vocab) persistLocked() error {
	data, err := json.MarshalIndent(v.counts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vocab: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o755); err != nil {
		return fmt.Errorf("mkdir vocab: %w", err)
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write vocab: %w", err)
	}
	return os.Rename(tmp, v.path)
}

// Learn 把 text 的词元计入 bankName 的词表。未知分区直接忽略。
func (v *Vocab) Learn(bankName, text string) error {
	if !isTopicalBank(bankName) {
		return nil
	}
	toks := vocabTokens(text)
	if len(toks) == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.loadLocked(); err != nil {
		return err
	}
	bv := v.counts[bankName]
	if bv == nil {
		bv = make(map[string]int)
		v.counts[bankName] = bv
	}
	for _, t := range toks {
		bv[t]++
	}
	return v.persistLocked()
}

// Scores 对 text 计算每个分区的词元重叠得分(按查询长度归一)。
func (v *Vocab) Scores(text string) map[string]float64 {
	toks := vocabTokens(text)
	scores := make(map[string]float64, len(bank.TopicalBanks))

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.loadLocked(); err != nil {
		v.logger.Warn("vocab load failed", zap.Error(err))
	}

	norm := float64(len(toks))
	if norm == 0 {
		norm = 1
	}
	seen := make(map[string]bool, len(toks))
	for _, t := range toks {
		seen[t] = true
	}
	for _, name := range bank.TopicalBanks {
		top := topVocab(v.counts[name], vocabTopK)
		overlap := 0
		for t := range seen {
			overlap += top[t]
		}
		scores[name] = float64(overlap) / norm
	}
	return scores
}

// Best 返回得分最高的分区及其得分。并列时取字典序最小者,
// 保证路由结果可复现。
func (v *Vocab) Best(text string) (string, float64) {
	scores := v.Scores(text)
	best, bestScore := "", -1.0
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if scores[name] > bestScore {
			best, bestScore = name, scores[name]
		}
	}
	return best, bestScore
}

func topVocab(counts map[string]int, k int) map[string]int {
	if len(counts) <= k {
		return counts
	}
	type kv struct {
		tok string
		n   int
	}
	all := make([]kv, 0, len(counts))
	for t, n := range counts {
		all = append(all, kv{t, n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].n != all[j].n {
			return all[i].n > all[j].n
		}
		return all[i].tok < all[j].tok
	})
	out := make(map[string]int, k)
	for _, e := range all[:k] {
		out[e.tok] = e.n
	}
	return out
}

func isTopicalBank(name string) bool {
	for _, b := range bank.TopicalBanks {
		if b == name {
			return true
		}
	}
	return false
}

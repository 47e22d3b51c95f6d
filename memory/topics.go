package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var topicStrip = regexp.MustCompile(`[^a-z0-9\s]`)
var topicSpaces = regexp.MustCompile(`\s+`)

// TopicKey 取规范化查询的前两个词作为主题键。
func TopicKey(question string) string {
	s := strings.ToLower(strings.TrimSpace(question))
	s = topicStrip.ReplaceAllString(s, " ")
	s = strings.TrimSpace(topicSpaces.ReplaceAllString(s, " "))
	if s == "" {
		return ""
	}
	parts := strings.Fields(s)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, " ")
}

// TopicCount 是一条主题统计。
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// TopicStats 维护跨会话的主题计数,持久化为一个 JSON 映射。
type TopicStats struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewTopicStats opens the stats file at path.
func NewTopicStats(path string, logger *zap.Logger) (*TopicStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &TopicStats{
		path:   path,
		logger: logger.With(zap.String("component", "topic_stats")),
	}, nil
}

func (t *TopicStats) loadLocked() map[string]int {
	stats := make(map[string]int)
	data, err := os.ReadFile(t.path)
	if err != nil {
		return stats
	}
	// Malformed stats reset to empty rather than failing the pipeline.
	_ = json.Unmarshal(data, &stats)
	return stats
}

// Update increments the count for the question's topic.
func (t *TopicStats) Update(question string) error {
	key := TopicKey(question)
	if key == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.loadLocked()
	stats[key]++

	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return os.WriteFile(t.path, data, 0o644)
}

// Count returns the recorded count for the question's topic.
func (t *TopicStats) Count(question string) int {
	key := TopicKey(question)
	if key == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked()[key]
}

// Familiarity maps repetition count to a small confidence boost:
// +0.02 per repetition capped at +0.06, and -0.02 for unseen topics.
func (t *TopicStats) Familiarity(question string) float64 {
	if TopicKey(question) == "" {
		return 0
	}
	count := t.Count(question)
	if count > 0 {
		boost := 0.02 * float64(count)
		if boost > 0.06 {
			boost = 0.06
		}
		return boost
	}
	return -0.02
}

// Top returns up to limit topics sorted by descending count.
func (t *TopicStats) Top(limit int) []TopicCount {
	if limit <= 0 {
		return nil
	}
	t.mu.Lock()
	stats := t.loadLocked()
	t.mu.Unlock()

	out := make([]TopicCount, 0, len(stats))
	for topic, count := range stats {
		out = append(out, TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

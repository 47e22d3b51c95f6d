package memory

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWMCapacity 限制工作记忆的总条目数。
const DefaultWMCapacity = 256

// WMEntry 是工作记忆中的一条键值记录。
type WMEntry struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	ExpiresAt  float64 `json:"expires_at,omitempty"` // unix 秒,0 表示不过期
	StoredAt   float64 `json:"stored_at"`
}

func (e WMEntry) expired(now time.Time) bool {
	return e.ExpiresAt > 0 && float64(now.UnixNano())/1e9 >= e.ExpiresAt
}

// WorkingMemory 是会话级的键值记忆,带 TTL 与容量上限。
// persistPath 非空时条目同步落盘,重启后跳过已过期条目恢复。
type WorkingMemory struct {
	mu          sync.Mutex
	entries     map[string][]WMEntry
	order       []string // 插入顺序,容量满时淘汰最旧的键
	capacity    int
	persistPath string
	loaded      bool
	logger      *zap.Logger
}

// NewWorkingMemory creates a working memory. persistPath may be empty for
// a purely in-memory session store.
func NewWorkingMemory(capacity int, persistPath string, logger *zap.Logger) *WorkingMemory {
	if capacity <= 0 {
		capacity = DefaultWMCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkingMemory{
		entries:     make(map[string][]WMEntry),
		capacity:    capacity,
		persistPath: persistPath,
		logger:      logger.With(zap.String("component", "working_memory")),
	}
}

// Put stores value under key. ttl <= 0 means the entry never expires.
func (w *WorkingMemory) Put(key, value string, confidence float64, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadLocked()

	now := time.Now()
	entry := WMEntry{
		Key:        key,
		Value:      value,
		Confidence: confidence,
		StoredAt:   float64(now.UnixNano()) / 1e9,
	}
	if ttl > 0 {
		entry.ExpiresAt = float64(now.Add(ttl).UnixNano()) / 1e9
	}

	if _, ok := w.entries[key]; !ok {
		w.order = append(w.order, key)
	}
	w.entries[key] = append(w.entries[key], entry)

	// 容量淘汰:按键的插入顺序移除最旧的键。
	for w.size() > w.capacity && len(w.order) > 1 {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.entries, oldest)
	}
	// 只剩一个键仍超限时,裁掉该键内最旧的条目。
	if w.size() > w.capacity {
		sole := w.order[0]
		es := w.entries[sole]
		w.entries[sole] = es[len(es)-w.capacity:]
	}

	return w.persistLocked()
}

// Get returns all live entries for key, oldest first. Callers wanting the
// most recent value take the last element.
func (w *WorkingMemory) Get(key string) []WMEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadLocked()

	now := time.Now()
	var out []WMEntry
	for _, e := range w.entries[key] {
		if !e.expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of live entries.
func (w *WorkingMemory) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadLocked()
	return w.size()
}

func (w *WorkingMemory) size() int {
	n := 0
	for _, es := range w.entries {
		n += len(es)
	}
	return n
}

// loadLocked restores persisted entries once, skipping expired ones.
func (w *WorkingMemory) loadLocked() {
	if w.loaded || w.persistPath == "" {
		w.loaded = true
		return
	}
	w.loaded = true

	f, err := os.Open(w.persistPath)
	if err != nil {
		return
	}
	defer f.Close()

	now := time.Now()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e WMEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Key == "" || e.expired(now) {
			continue
		}
		if _, ok := w.entries[e.Key]; !ok {
			w.order = append(w.order, e.Key)
		}
		w.entries[e.Key] = append(w.entries[e.Key], e)
	}
}

// persistLocked rewrites the store file with the current live entries.
func (w *WorkingMemory) persistLocked() error {
	if w.persistPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.persistPath), 0o755); err != nil {
		return err
	}

	tmp := w.persistPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	now := time.Now()
	for _, key := range w.order {
		for _, e := range w.entries[key] {
			if e.expired(now) {
				continue
			}
			if err := enc.Encode(e); err != nil {
				f.Close()
				os.Remove(tmp)
				return err
			}
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, w.persistPath)
}

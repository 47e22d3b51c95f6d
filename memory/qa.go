package memory

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound 表示查询在记忆中没有命中。
var ErrNotFound = errors.New("memory: not found")

// QAEntry 是问答日志中的一条记录。
type QAEntry struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"ts"`
}

// QAMemory 是追加式的跨会话问答日志。
// 查询按规范化精确匹配,同一问题的多条记录以最新为准。
type QAMemory struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewQAMemory opens (or creates) the QA log at path.
func NewQAMemory(path string, logger *zap.Logger) (*QAMemory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &QAMemory{
		path:   path,
		logger: logger.With(zap.String("component", "qa_memory")),
	}, nil
}

// normalizeQuestion 小写、去首尾空白并去掉结尾问号。
func normalizeQuestion(q string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(q)), "?")
}

// Append records an answered question.
func (m *QAMemory) Append(question, answer string, confidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := QAEntry{
		Question:   question,
		Answer:     answer,
		Confidence: confidence,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Lookup returns the stored answer for question, most recent entry wins.
// Malformed lines are skipped.
func (m *QAMemory) Lookup(question string) (QAEntry, error) {
	key := normalizeQuestion(question)
	if key == "" {
		return QAEntry{}, ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if os.IsNotExist(err) {
		return QAEntry{}, ErrNotFound
	}
	if err != nil {
		return QAEntry{}, err
	}
	defer f.Close()

	var found QAEntry
	ok := false
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var entry QAEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			continue
		}
		if normalizeQuestion(entry.Question) == key {
			found = entry
			ok = true
		}
	}
	if err := sc.Err(); err != nil {
		return QAEntry{}, err
	}
	if !ok {
		return QAEntry{}, ErrNotFound
	}
	return found, nil
}

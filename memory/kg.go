package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Triple 是知识图谱中的一条 (主体, 关系, 客体) 事实。
type Triple struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// KnowledgeGraph 是持久化为 JSON 的轻量三元组存储,
// 支持正反向查询与基于 located_in/part_of 的传递推理。
type KnowledgeGraph struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewKnowledgeGraph opens the triple store at path.
func NewKnowledgeGraph(path string, logger *zap.Logger) (*KnowledgeGraph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &KnowledgeGraph{
		path:   path,
		logger: logger.With(zap.String("component", "knowledge_graph")),
	}, nil
}

func (g *KnowledgeGraph) loadLocked() []Triple {
	var facts []Triple
	data, err := os.ReadFile(g.path)
	if err != nil {
		return nil
	}
	_ = json.Unmarshal(data, &facts)
	out := facts[:0]
	for _, f := range facts {
		if strings.TrimSpace(f.Subject) != "" && strings.TrimSpace(f.Relation) != "" && strings.TrimSpace(f.Object) != "" {
			out = append(out, f)
		}
	}
	return out
}

func (g *KnowledgeGraph) saveLocked(facts []Triple) error {
	data, err := json.Marshal(facts)
	if err != nil {
		return err
	}
	return os.WriteFile(g.path, data, 0o644)
}

func eqFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AddFact stores a triple, skipping case-insensitive duplicates.
func (g *KnowledgeGraph) AddFact(subject, relation, object string) error {
	subject, relation, object = strings.TrimSpace(subject), strings.TrimSpace(relation), strings.TrimSpace(object)
	if subject == "" || relation == "" || object == "" {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	facts := g.loadLocked()
	for _, f := range facts {
		if eqFold(f.Subject, subject) && eqFold(f.Relation, relation) && eqFold(f.Object, object) {
			return nil
		}
	}
	return g.saveLocked(append(facts, Triple{Subject: subject, Relation: relation, Object: object}))
}

// QueryFact returns the object of the first fact matching (subject, relation).
func (g *KnowledgeGraph) QueryFact(subject, relation string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.loadLocked() {
		if eqFold(f.Subject, subject) && eqFold(f.Relation, relation) {
			return f.Object, true
		}
	}
	return "", false
}

// QueryInverse returns the subject of the first fact whose relation and
// object match. Leading articles on the object are ignored.
func (g *KnowledgeGraph) QueryInverse(relation, object string) (string, bool) {
	want := stripArticle(strings.ToLower(strings.TrimSpace(object)))
	if want == "" {
		return "", false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.loadLocked() {
		if !eqFold(f.Relation, relation) {
			continue
		}
		if stripArticle(strings.ToLower(strings.TrimSpace(f.Object))) == want {
			return f.Subject, true
		}
	}
	return "", false
}

// ListFacts returns up to limit facts; limit <= 0 means all.
func (g *KnowledgeGraph) ListFacts(limit int) []Triple {
	g.mu.Lock()
	defer g.mu.Unlock()

	facts := g.loadLocked()
	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts
}

// RemoveFact deletes the first fact matching (subject, relation).
func (g *KnowledgeGraph) RemoveFact(subject, relation string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	facts := g.loadLocked()
	for i, f := range facts {
		if eqFold(f.Subject, subject) && eqFold(f.Relation, relation) {
			facts = append(facts[:i], facts[i+1:]...)
			return true, g.saveLocked(facts)
		}
	}
	return false, nil
}

// Infer derives transitive located_in facts: (A located_in B) plus
// (B part_of C) yields (A located_in C). Existing and reflexive facts are
// omitted. limit <= 0 means no limit.
func (g *KnowledgeGraph) Infer(limit int) []Triple {
	g.mu.Lock()
	facts := g.loadLocked()
	g.mu.Unlock()

	known := make(map[string]bool, len(facts))
	parents := make(map[string][]string)
	for _, f := range facts {
		known[strings.ToLower(f.Subject)+"|"+strings.ToLower(f.Relation)+"|"+strings.ToLower(f.Object)] = true
		if strings.EqualFold(f.Relation, "part_of") {
			parents[strings.ToLower(f.Subject)] = append(parents[strings.ToLower(f.Subject)], f.Object)
		}
	}

	var out []Triple
	for _, f := range facts {
		if !strings.EqualFold(f.Relation, "located_in") {
			continue
		}
		for _, container := range parents[strings.ToLower(f.Object)] {
			if strings.EqualFold(f.Subject, container) {
				continue
			}
			key := strings.ToLower(f.Subject) + "|located_in|" + strings.ToLower(container)
			if known[key] {
				continue
			}
			known[key] = true
			out = append(out, Triple{Subject: f.Subject, Relation: "located_in", Object: container})
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func stripArticle(s string) string {
	for _, art := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(s, art) {
			return strings.TrimSpace(strings.TrimPrefix(s, art))
		}
	}
	return s
}

package bank

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var tokenSplit = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Tokenize lowercases s and splits it on every non-alphanumeric run.
func Tokenize(s string) []string {
	parts := tokenSplit.Split(strings.ToLower(s), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// invertedIndex 是 token → record id 列表的简单倒排索引。
type invertedIndex map[string][]string

func indexPath(root string) string {
	return filepath.Join(root, "index.json")
}

func loadIndex(root string) invertedIndex {
	data, err := os.ReadFile(indexPath(root))
	if err != nil {
		return invertedIndex{}
	}
	var idx invertedIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return invertedIndex{}
	}
	return idx
}

func saveIndex(root string, idx invertedIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	tmp := indexPath(root) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, indexPath(root))
}

// add registers id under every token of content.
func (idx invertedIndex) add(id, content string) {
	for _, tok := range Tokenize(content) {
		ids := idx[tok]
		found := false
		for _, existing := range ids {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			idx[tok] = append(ids, id)
		}
	}
}

// candidates returns the union of ids indexed under any of the tokens.
// A nil return means the index offered no help and the caller should
// fall back to a linear scan.
func (idx invertedIndex) candidates(tokens []string) map[string]bool {
	if len(idx) == 0 || len(tokens) == 0 {
		return nil
	}
	set := make(map[string]bool)
	for _, tok := range tokens {
		for _, id := range idx[tok] {
			set[id] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// has reports whether id appears anywhere in the index.
func (idx invertedIndex) has(id string) bool {
	for _, ids := range idx {
		for _, existing := range ids {
			if existing == id {
				return true
			}
		}
	}
	return false
}

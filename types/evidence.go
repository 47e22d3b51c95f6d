package types

import "strings"

// Evidence 是一次跨银行检索的汇总结果，作为推理阶段的证据输入。
type Evidence struct {
	Results []Record `json:"results"`
	Banks   []string `json:"banks"`
}

// ContainsContent reports whether any evidence record matches content
// exactly after trimming and lowercasing. The pipeline uses this as the
// duplicate guard before storage.
func (e Evidence) ContainsContent(content string) bool {
	want := strings.ToLower(strings.TrimSpace(content))
	if want == "" {
		return false
	}
	for _, r := range e.Results {
		if strings.ToLower(strings.TrimSpace(r.Content)) == want {
			return true
		}
	}
	return false
}

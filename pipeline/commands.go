package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/bank"
	"github.com/BaSui01/memflow/cache"
	"github.com/BaSui01/memflow/history"
)

// 命令路由错误
var (
	ErrEmptyCommand        = errors.New("empty command")
	ErrUnknownCommand      = errors.New("unknown command")
	ErrUnknownCacheCommand = errors.New("unknown cache subcommand")
	ErrNothingToSay        = errors.New("nothing to say")
)

// Commands 处理 -- 或 / 前缀的命令式输入,绕过完整推理管线。
// 未知命令返回结构化错误而不是含糊的兜底回答。
type Commands struct {
	registry   *bank.Registry
	fast       *cache.FastCache
	history    *history.Store
	reportsDir string
	logger     *zap.Logger
}

// NewCommands 构造命令路由器。fast 与 hist 允许为 nil,
// 对应的命令会退化为无操作。
func NewCommands(registry *bank.Registry, fast *cache.FastCache, hist *history.Store, reportsDir string, logger *zap.Logger) *Commands {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Commands{
		registry:   registry,
		fast:       fast,
		history:    hist,
		reportsDir: reportsDir,
		logger:     logger.With(zap.String("component", "commands")),
	}
}

// IsCommand 判断输入是否命令式(-- 或 / 前缀)。
func IsCommand(text string) bool {
	s := strings.TrimSpace(text)
	return strings.HasPrefix(s, "--") || strings.HasPrefix(s, "/")
}

// statusReport 是 status 命令的汇总载荷。
type statusReport struct {
	Banks      map[string]int `json:"banks"`
	TotalFacts int            `json:"total_facts"`
	RunCount   int64          `json:"run_count"`
}

// Route 分发一条命令并返回用户可读的结果。
//
// 前缀字符被剥掉后取首个 token 作为命令名;"you"/"u" 开头的
// 第二人称说法重映射到下一个 token,使 "you say hello" 等价于
// "say hello"。
func (c *Commands) Route(ctx context.Context, text string) (string, error) {
	tokens := strings.Fields(strings.TrimSpace(text))
	if len(tokens) == 0 {
		return "", ErrEmptyCommand
	}

	cmd := strings.ToLower(strings.TrimLeft(tokens[0], "-/"))
	args := tokens[1:]
	if (cmd == "you" || cmd == "u") && len(args) > 0 {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}
	if cmd == "" {
		return "", ErrEmptyCommand
	}

	switch cmd {
	case "status", "agent_status":
		return c.handleStatus(ctx)
	case "cache":
		sub := ""
		if len(args) > 0 {
			sub = strings.ToLower(args[0])
		}
		switch sub {
		case "purge", "clear", "reset":
			return c.handleCachePurge(ctx)
		case "":
			return "", fmt.Errorf("%w: missing subcommand", ErrUnknownCacheCommand)
		default:
			return "", fmt.Errorf("%w: %s", ErrUnknownCacheCommand, sub)
		}
	case "say", "speak", "tell":
		return c.handleSay(cmd, strings.Join(args, " "))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func (c *Commands) handleStatus(ctx context.Context) (string, error) {
	report := statusReport{Banks: make(map[string]int)}
	if c.registry != nil {
		for _, b := range c.registry.All() {
			n := b.Counts().Total()
			report.Banks[b.Name()] = n
			report.TotalFacts += n
		}
	}
	if c.history != nil {
		n, err := c.history.Count(ctx)
		if err != nil {
			c.logger.Warn("status: run count unavailable", zap.Error(err))
		} else {
			report.RunCount = n
		}
	}
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode status report: %w", err)
	}
	return string(data), nil
}

func (c *Commands) handleCachePurge(ctx context.Context) (string, error) {
	if c.fast == nil {
		return "Fast cache is already empty.", nil
	}
	n, err := c.fast.Purge(ctx)
	if err != nil {
		return "", fmt.Errorf("purge fast cache: %w", err)
	}
	if n == 0 {
		return "Fast cache is already empty.", nil
	}
	return "Fast cache purged.", nil
}

// handleSay 回显指定短语,首字母大写。常见问候与致谢会追加
// 礼貌性的后缀。短语同时记入行为规则文件供后续模式学习。
func (c *Commands) handleSay(cmd, phrase string) (string, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return "", ErrNothingToSay
	}

	c.appendBehaviorRule(cmd, phrase)

	resp := strings.ToUpper(phrase[:1]) + phrase[1:]
	lower := strings.ToLower(phrase)
	switch {
	case isGreeting(lower):
		resp = strings.TrimRight(resp, "!") + "! How can I assist you?"
	case strings.Contains(lower, "thank"):
		resp = strings.TrimRight(resp, "!") + "! You're welcome."
	}
	return resp, nil
}

func isGreeting(s string) bool {
	switch s {
	case "hello", "hi", "hey", "good morning", "good afternoon", "good evening":
		return true
	}
	return false
}

func (c *Commands) appendBehaviorRule(cmd, phrase string) {
	if c.reportsDir == "" {
		return
	}
	path := filepath.Join(c.reportsDir, "behavior_rules.jsonl")
	if err := os.MkdirAll(c.reportsDir, 0o755); err != nil {
		c.logger.Warn("behavior rule dir", zap.Error(err))
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		c.logger.Warn("behavior rule open", zap.Error(err))
		return
	}
	defer f.Close()
	rec := map[string]string{"cmd": cmd, "phrase": phrase}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		c.logger.Warn("behavior rule append", zap.Error(err))
	}
}

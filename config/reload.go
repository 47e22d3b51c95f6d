// 配置热重载实现。
//
// 监听配置文件变更,重新加载并校验后原子替换当前配置。
// 校验失败时保留旧配置并记录回滚事件。管线订阅重载回调,
// 把新的安全/伦理规则喂回推理引擎。
package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 重载成功后的回调。
type ReloadCallback func(oldConfig, newConfig *Config)

// Snapshot 一次成功应用的配置快照。
type Snapshot struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Config    *Config   `json:"-"`
}

// ReloadManager 管理配置热重载。
type ReloadManager struct {
	mu sync.RWMutex

	config     *Config
	configPath string
	envPrefix  string

	history    []Snapshot
	maxHistory int
	version    int

	watcher   *FileWatcher
	callbacks []ReloadCallback

	logger  *zap.Logger
	running bool
}

// ReloadOption 配置 ReloadManager。
type ReloadOption func(*ReloadManager)

// WithReloadLogger 设置日志器。
func WithReloadLogger(logger *zap.Logger) ReloadOption {
	return func(m *ReloadManager) { m.logger = logger }
}

// WithMaxHistory 设置保留的快照数,默认 10。
func WithMaxHistory(n int) ReloadOption {
	return func(m *ReloadManager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// WithReloadEnvPrefix 设置重载时的环境变量前缀。
func WithReloadEnvPrefix(prefix string) ReloadOption {
	return func(m *ReloadManager) { m.envPrefix = prefix }
}

// NewReloadManager 用初始配置与其来源文件创建重载管理器。
func NewReloadManager(initial *Config, configPath string, opts ...ReloadOption) *ReloadManager {
	m := &ReloadManager{
		config:     initial,
		configPath: configPath,
		envPrefix:  "MEMFLOW",
		maxHistory: 10,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "config_reload"))
	m.pushHistoryLocked(initial, "initial")
	return m
}

// Start 开始监听配置文件。
func (m *ReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("reload manager already running")
	}
	if m.configPath == "" {
		return fmt.Errorf("no config path to watch")
	}

	w, err := NewFileWatcher([]string{m.configPath}, WithWatcherLogger(m.logger))
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.OnChange(func(event FileEvent) {
		if event.Op == FileOpRemove {
			m.logger.Warn("config file removed, keeping current config",
				zap.String("path", event.Path))
			return
		}
		if err := m.Reload(); err != nil {
			m.logger.Error("config reload failed, previous config kept", zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	m.watcher = w
	m.running = true
	m.logger.Info("config reload watching", zap.String("path", m.configPath))
	return nil
}

// Stop 停止监听。
func (m *ReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	return m.watcher.Stop()
}

// Reload 立即从文件重新加载。校验失败时当前配置不变。
func (m *ReloadManager) Reload() error {
	newCfg, err := NewLoader().
		WithConfigPath(m.configPath).
		WithEnvPrefix(m.envPrefix).
		Load()
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("reloaded config invalid: %w", err)
	}

	m.mu.Lock()
	old := m.config
	m.config = newCfg
	m.pushHistoryLocked(newCfg, m.configPath)
	callbacks := make([]ReloadCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	m.logger.Info("config reloaded",
		zap.Int("version", m.Version()),
		zap.Int("safety_rules", len(newCfg.Rules.SafetyRules)),
		zap.Int("ethics_rules", len(newCfg.Rules.EthicsRules)))

	for _, cb := range callbacks {
		cb(old, newCfg)
	}
	return nil
}

// OnReload 注册重载回调。
func (m *ReloadManager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Config 返回当前配置。
func (m *ReloadManager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Version 返回当前配置版本号,从 1 起递增。
func (m *ReloadManager) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// History 返回保留的配置快照,旧者在前。
func (m *ReloadManager) History() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

func (m *ReloadManager) pushHistoryLocked(cfg *Config, source string) {
	m.version++
	m.history = append(m.history, Snapshot{
		Version:   m.version,
		Timestamp: time.Now(),
		Source:    source,
		Config:    cfg,
	})
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}

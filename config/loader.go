// =============================================================================
// 📦 MemFlow 配置加载器
// =============================================================================
// 统一配置加载,支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("memflow.yaml").
//	    WithEnvPrefix("MEMFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/memflow/reason"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 MemFlow 的完整配置结构
type Config struct {
	// DataDir 记忆银行与各持久化文件的根目录
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// ReportsDir 运行快照与健康报告目录
	ReportsDir string `yaml:"reports_dir" env:"REPORTS_DIR"`

	// Rotation 各银行分层滚动阈值
	Rotation RotationConfig `yaml:"rotation" env:"ROTATION"`

	// Redis 答案缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 运行历史库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Pipeline 管线行为配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Governance 存储治理门
	Governance GovernanceConfig `yaml:"governance" env:"GOVERNANCE"`

	// Workers 检索扇出的工作池
	Workers WorkersConfig `yaml:"workers" env:"WORKERS"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Rules 安全与伦理规则,直接喂给推理引擎
	Rules reason.Config `yaml:"rules"`
}

// RotationConfig 分层滚动阈值。零值禁用对应层滚动。
type RotationConfig struct {
	// STM 层记录数上限
	STMRecords int `yaml:"stm_records" env:"STM_RECORDS"`
	// MTM 层记录数上限
	MTMRecords int `yaml:"mtm_records" env:"MTM_RECORDS"`
	// LTM 层记录数上限
	LTMRecords int `yaml:"ltm_records" env:"LTM_RECORDS"`
}

// RedisConfig 答案缓存的 Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 缓存条目默认 TTL,零值不过期
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// 健康检查间隔,零值禁用
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DatabaseConfig 运行历史库(SQLite)配置
type DatabaseConfig struct {
	// 数据库文件路径,空值时落在 DataDir 下
	Path string `yaml:"path" env:"PATH"`
	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 滚动成功率窗口
	SuccessWindow int `yaml:"success_window" env:"SUCCESS_WINDOW"`
}

// PipelineConfig 管线行为配置
type PipelineConfig struct {
	// 检索结果上限
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 模糊措辞的置信度罚分
	HedgePenalty float64 `yaml:"hedge_penalty" env:"HEDGE_PENALTY"`
	// 语义缓存命中阈值 (0,1]
	SemanticThreshold float64 `yaml:"semantic_threshold" env:"SEMANTIC_THRESHOLD"`
	// 正反馈对缓存答案的置信度加成
	FeedbackBoost float64 `yaml:"feedback_boost" env:"FEEDBACK_BOOST"`
}

// GovernanceConfig 存储治理门配置
type GovernanceConfig struct {
	// 低于该置信度的事实拒绝入库
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	// 命中即拒绝入库的子串规则
	DenyPatterns []string `yaml:"deny_patterns" env:"DENY_PATTERNS"`
}

// WorkersConfig 检索扇出工作池配置
type WorkersConfig struct {
	// 最大并发 worker 数
	MaxWorkers int `yaml:"max_workers" env:"MAX_WORKERS"`
	// 任务队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Prometheus 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// HistoryPath 返回运行历史库文件路径。
func (c *Config) HistoryPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "history.db")
}

// BanksDir 返回记忆银行根目录。
func (c *Config) BanksDir() string { return filepath.Join(c.DataDir, "banks") }

// QAMemoryPath 返回问答记忆文件路径。
func (c *Config) QAMemoryPath() string { return filepath.Join(c.DataDir, "qa_memory.jsonl") }

// WorkingMemoryPath 返回工作记忆持久化路径。
func (c *Config) WorkingMemoryPath() string { return filepath.Join(c.DataDir, "working_memory.json") }

// TopicStatsPath 返回主题统计文件路径。
func (c *Config) TopicStatsPath() string { return filepath.Join(c.DataDir, "topic_stats.json") }

// MetaConfidencePath 返回域元置信度文件路径。
func (c *Config) MetaConfidencePath() string { return filepath.Join(c.DataDir, "meta_confidence.json") }

// KnowledgeGraphPath 返回知识图谱文件路径。
func (c *Config) KnowledgeGraphPath() string { return filepath.Join(c.DataDir, "knowledge_graph.json") }

// VocabPath 返回路由词表文件路径。
func (c *Config) VocabPath() string { return filepath.Join(c.DataDir, "bank_vocab.json") }

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器(Builder 模式)
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "MEMFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在,使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置,失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "data_dir must not be empty")
	}
	if c.Pipeline.TopK <= 0 {
		errs = append(errs, "pipeline.top_k must be positive")
	}
	if c.Pipeline.SemanticThreshold <= 0 || c.Pipeline.SemanticThreshold > 1 {
		errs = append(errs, "pipeline.semantic_threshold must be in (0, 1]")
	}
	if c.Governance.MinConfidence < 0 || c.Governance.MinConfidence > 1 {
		errs = append(errs, "governance.min_confidence must be between 0 and 1")
	}
	if c.Rotation.STMRecords < 0 || c.Rotation.MTMRecords < 0 || c.Rotation.LTMRecords < 0 {
		errs = append(errs, "rotation thresholds must not be negative")
	}
	for _, rule := range c.Rules.EthicsRules {
		switch rule.Action {
		case reason.EthicsBlock, reason.EthicsWarn:
		default:
			errs = append(errs, fmt.Sprintf("unknown ethics action %q", rule.Action))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

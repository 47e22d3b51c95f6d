// =============================================================================
// 📦 MemFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/memflow/reason"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "data",
		ReportsDir: "reports",
		Rotation:   DefaultRotationConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Pipeline:   DefaultPipelineConfig(),
		Governance: DefaultGovernanceConfig(),
		Workers:    DefaultWorkersConfig(),
		Metrics:    DefaultMetricsConfig(),
		Log:        DefaultLogConfig(),
		Rules:      DefaultRules(),
	}
}

// DefaultRotationConfig 返回默认分层滚动阈值
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		STMRecords: 200,
		MTMRecords: 1000,
		LTMRecords: 5000,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		DefaultTTL:          0,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认运行历史库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MaxOpenConns:  4,
		MaxIdleConns:  2,
		SuccessWindow: 50,
	}
}

// DefaultPipelineConfig 返回默认管线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TopK:              5,
		HedgePenalty:      0.1,
		SemanticThreshold: 0.8,
		FeedbackBoost:     0.15,
	}
}

// DefaultGovernanceConfig 返回默认治理门配置
func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		MinConfidence: 0.0,
		DenyPatterns:  nil,
	}
}

// DefaultWorkersConfig 返回默认工作池配置
func DefaultWorkersConfig() WorkersConfig {
	return WorkersConfig{
		MaxWorkers: 16,
		QueueSize:  64,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "memflow"}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "console",
		OutputPaths:  []string{"stdout"},
		EnableCaller: false,
	}
}

// DefaultRules 返回默认安全与伦理规则
func DefaultRules() reason.Config {
	return reason.Config{
		SafetyRules: []string{
			"how to make a bomb",
			"how to hurt",
			"how to kill",
		},
		EthicsRules: []reason.EthicsRule{
			{Pattern: "steal", Severity: "high", Action: reason.EthicsBlock},
			{Pattern: "cheat", Severity: "medium", Action: reason.EthicsBlock},
			{Pattern: "lie to", Severity: "low", Action: reason.EthicsWarn},
		},
	}
}

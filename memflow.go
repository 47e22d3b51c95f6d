// Package memflow 把记忆分区、缓存、检索、判定与路由装配成
// 一个可直接使用的记忆管家系统。
//
// 用法:
//
//	cfg := config.DefaultConfig()
//	cfg.DataDir = "/var/lib/memflow"
//	sys, err := memflow.Open(cfg, memflow.WithLogger(logger))
//	defer sys.Close()
//
//	res, err := sys.Run(ctx, "Why is the sky blue?", 1.0)
//	fmt.Println(res.Answer)
//
// Redis 不可达时缓存门自动降级为直通,其余管线不受影响。
package memflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/bank"
	"github.com/BaSui01/memflow/cache"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/history"
	"github.com/BaSui01/memflow/internal/database"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/internal/pool"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/pipeline"
	"github.com/BaSui01/memflow/reason"
	"github.com/BaSui01/memflow/retrieval"
	"github.com/BaSui01/memflow/router"
)

// 工作记忆容量,满后最旧条目被挤出。
const workingMemoryCapacity = 64

// System 持有装配完成的全部组件。
type System struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *bank.Registry
	cacheMgr  *cache.Manager
	dbPool    *database.Pool
	workers   *pool.WorkerPool
	history   *history.Store
	feedback  *memory.Feedback
	wm        *memory.WorkingMemory
	kg        *memory.KnowledgeGraph
	collector *metrics.Collector

	librarian *pipeline.Librarian
	doctor    *pipeline.Doctor

	// 规则热重载时重建引擎所需的共享组件选项。
	engineBase []reason.Option
}

// Option configures a System.
type Option func(*systemOptions)

type systemOptions struct {
	logger  *zap.Logger
	metrics bool
}

// WithLogger sets the logger for every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *systemOptions) { o.logger = l }
}

// WithMetrics enables Prometheus instrumentation. Off by default so
// that multiple Systems in one process never fight over the registry.
func WithMetrics() Option {
	return func(o *systemOptions) { o.metrics = true }
}

// Open 按配置装配系统。Redis 与 SQLite 各自独立降级:
// 连不上只丢对应能力,不阻止启动。
func Open(cfg *config.Config, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := &systemOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger

	var collector *metrics.Collector
	if o.metrics {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	registry, err := bank.NewRegistry(cfg.BanksDir(), bank.RotationConfig{
		STMRecords: cfg.Rotation.STMRecords,
		MTMRecords: cfg.Rotation.MTMRecords,
		LTMRecords: cfg.Rotation.LTMRecords,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("open banks: %w", err)
	}
	if collector != nil {
		registry.SetRotationObserver(func(name string, tier bank.Tier, _ int) {
			collector.RecordRotation(name, string(tier))
		})
	}

	sys := &System{cfg: cfg, logger: logger, registry: registry, collector: collector}

	qa, err := memory.NewQAMemory(cfg.QAMemoryPath(), logger)
	if err != nil {
		return nil, sys.failOpen(fmt.Errorf("open qa memory: %w", err))
	}
	topics, err := memory.NewTopicStats(cfg.TopicStatsPath(), logger)
	if err != nil {
		return nil, sys.failOpen(fmt.Errorf("open topic stats: %w", err))
	}
	meta, err := memory.NewMetaConfidence(cfg.MetaConfidencePath(), logger)
	if err != nil {
		return nil, sys.failOpen(fmt.Errorf("open meta confidence: %w", err))
	}
	kg, err := memory.NewKnowledgeGraph(cfg.KnowledgeGraphPath(), logger)
	if err != nil {
		return nil, sys.failOpen(fmt.Errorf("open knowledge graph: %w", err))
	}
	wm := memory.NewWorkingMemory(workingMemoryCapacity, cfg.WorkingMemoryPath(), logger)
	sys.wm = wm
	sys.kg = kg

	// 快速/语义缓存:Redis 不可达时降级为直通。
	var fast *cache.FastCache
	var semantic *cache.SemanticCache
	sys.cacheMgr, err = cache.NewManager(cache.Config{
		Addr:                cfg.Redis.Addr,
		Password:            cfg.Redis.Password,
		DB:                  cfg.Redis.DB,
		PoolSize:            cfg.Redis.PoolSize,
		MinIdleConns:        cfg.Redis.MinIdleConns,
		DefaultTTL:          cfg.Redis.DefaultTTL,
		HealthCheckInterval: cfg.Redis.HealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, cache gates disabled", zap.Error(err))
	} else {
		fast = cache.NewFastCache(sys.cacheMgr, logger)
		semantic = cache.NewSemanticCache(sys.cacheMgr, cfg.Pipeline.SemanticThreshold, logger)
	}
	sys.feedback = memory.NewFeedback(meta, fast, logger, memory.WithBoost(cfg.Pipeline.FeedbackBoost))

	// 运行历史:SQLite 不可用时丢掉成功率学习信号。
	successAvg := func() float64 { return 0 }
	sys.dbPool, err = database.Open(cfg.HistoryPath(), database.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}, logger)
	if err != nil {
		logger.Warn("history database unavailable, run logging disabled", zap.Error(err))
	} else {
		sys.history, err = history.NewStore(sys.dbPool, logger)
		if err != nil {
			return nil, sys.failOpen(fmt.Errorf("open history store: %w", err))
		}
		successAvg = sys.history.SuccessAverageFunc(cfg.Database.SuccessWindow)
	}

	engineOpts := []reason.Option{
		reason.WithWorkingMemory(wm),
		reason.WithQAMemory(qa),
		reason.WithTopicStats(topics),
		reason.WithMetaConfidence(meta),
		reason.WithKnowledgeGraph(kg),
		reason.WithSuccessAverage(successAvg),
		reason.WithLogger(logger),
	}
	if collector != nil {
		engineOpts = append(engineOpts, reason.WithMetrics(collector))
	}
	engine := reason.NewEngine(cfg.Rules, engineOpts...)
	sys.engineBase = engineOpts

	sys.workers = pool.New(pool.Config{
		MaxWorkers: cfg.Workers.MaxWorkers,
		QueueSize:  cfg.Workers.QueueSize,
	})
	searcherOpts := []retrieval.Option{retrieval.WithLogger(logger)}
	routerOpts := []router.Option{
		router.WithVocab(router.NewVocab(cfg.VocabPath(), logger)),
		router.WithLogger(logger),
	}
	if collector != nil {
		searcherOpts = append(searcherOpts, retrieval.WithMetrics(collector))
		routerOpts = append(routerOpts, router.WithMetrics(collector))
	}
	searcher := retrieval.NewSearcher(registry, sys.workers, searcherOpts...)
	rtr := router.New(registry, routerOpts...)

	commands := pipeline.NewCommands(registry, fast, sys.history, cfg.ReportsDir, logger)

	libOpts := []pipeline.LibrarianOption{
		pipeline.WithCommands(commands),
		pipeline.WithQAMemory(qa),
		pipeline.WithTopicStats(topics),
		pipeline.WithFeedback(sys.feedback),
		pipeline.WithReportsDir(cfg.ReportsDir),
		pipeline.WithPipelineLogger(logger),
	}
	if fast != nil {
		libOpts = append(libOpts, pipeline.WithFastCache(fast), pipeline.WithSemanticCache(semantic))
	}
	if sys.history != nil {
		libOpts = append(libOpts, pipeline.WithHistory(sys.history))
	}
	if collector != nil {
		libOpts = append(libOpts, pipeline.WithMetrics(collector))
	}
	sys.librarian = pipeline.NewLibrarian(cfg.Pipeline, cfg.Governance, engine, searcher, rtr, libOpts...)
	sys.doctor = pipeline.NewDoctor(registry, cfg.Rotation, collector, cfg.ReportsDir, logger)

	logger.Info("memflow system ready",
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("cache", fast != nil),
		zap.Bool("history", sys.history != nil))
	return sys, nil
}

// failOpen releases whatever was built before a constructor error.
func (s *System) failOpen(err error) error {
	_ = s.Close()
	return err
}

// Run 把一条输入推过完整管线。
func (s *System) Run(ctx context.Context, text string, confidence float64) (pipeline.RunResult, error) {
	return s.librarian.Run(ctx, text, confidence)
}

// Chat 是 Run 的便捷包装,只返回回答文本。
func (s *System) Chat(ctx context.Context, text string) (string, error) {
	res, err := s.librarian.Run(ctx, text, 1.0)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// ExplainLast 解释上一轮回答。
func (s *System) ExplainLast() string {
	return s.librarian.ExplainLast().Answer
}

// HealthCheck 巡检全部分区并修复停摆的轮换。
func (s *System) HealthCheck(ctx context.Context) (pipeline.HealthReport, error) {
	return s.doctor.Check(ctx)
}

// Librarian 暴露底层管线,供需要细粒度控制的调用方使用。
func (s *System) Librarian() *pipeline.Librarian { return s.librarian }

// Registry 暴露记忆分区注册表。
func (s *System) Registry() *bank.Registry { return s.registry }

// Doctor 暴露体检器,供运维端点复用。
func (s *System) Doctor() *pipeline.Doctor { return s.doctor }

// WorkingMemory 暴露会话级键值记忆,调用方可直接写入供推理直取。
func (s *System) WorkingMemory() *memory.WorkingMemory { return s.wm }

// KnowledgeGraph 暴露三元组知识图谱,调用方可注入定义供问答查询。
func (s *System) KnowledgeGraph() *memory.KnowledgeGraph { return s.kg }

// History 暴露运行历史存储。数据库不可用时返回 nil。
func (s *System) History() *history.Store { return s.history }

// ApplyRules 热替换安全与伦理规则。记忆组件在引擎间共享,
// 重建只更换规则链。
func (s *System) ApplyRules(rules reason.Config) {
	s.librarian.SetEngine(reason.NewEngine(rules, s.engineBase...))
	s.logger.Info("reasoning rules replaced",
		zap.Int("safety_rules", len(rules.SafetyRules)),
		zap.Int("ethics_rules", len(rules.EthicsRules)))
}

// Close 释放全部持有的资源。
func (s *System) Close() error {
	if s.workers != nil {
		s.workers.Close()
	}
	if s.cacheMgr != nil {
		_ = s.cacheMgr.Close()
	}
	if s.dbPool != nil {
		_ = s.dbPool.Close()
	}
	if s.registry != nil {
		_ = s.registry.Close()
	}
	return nil
}

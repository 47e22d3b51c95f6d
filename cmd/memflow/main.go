// =============================================================================
// MemFlow 主入口
// =============================================================================
// 记忆管家的命令行入口,包含交互式会话、单条运行与体检命令
//
// 使用方法:
//
//	memflow chat                        # 交互式会话
//	memflow chat --config config.yaml   # 指定配置文件
//	memflow run "Why is the sky blue?"  # 单条输入走完整管线
//	memflow health                      # 全分区体检并修复轮换停摆
//	memflow version                     # 显示版本信息
//
// =============================================================================
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/memflow"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/server"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		runChat(os.Args[2:])
	case "run":
		runOnce(os.Args[2:])
	case "health":
		runHealth(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// openSystem 加载配置并装配系统。
func openSystem(configPath, metricsAddr string) (*memflow.System, *config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)

	opts := []memflow.Option{memflow.WithLogger(logger)}
	if metricsAddr != "" {
		opts = append(opts, memflow.WithMetrics())
	}
	sys, err := memflow.Open(cfg, opts...)
	if err != nil {
		logger.Fatal("Failed to open memflow system", zap.Error(err))
	}

	if metricsAddr != "" {
		handler := server.NewOpsHandler(server.OpsDeps{
			Registry: sys.Registry(),
			Doctor:   sys.Doctor(),
			History:  sys.History(),
			Metrics:  promhttp.Handler(),
			Logger:   logger,
		})
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = metricsAddr
		ops := server.NewManager(handler, srvCfg, logger)
		if err := ops.Start(); err != nil {
			logger.Warn("ops server unavailable", zap.Error(err))
		}
	}
	return sys, cfg, logger
}

// =============================================================================
// 💬 chat 命令
// =============================================================================

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	metricsAddr := fs.String("metrics-addr", "", "Prometheus metrics listen address")
	fs.Parse(args)

	sys, cfg, logger := openSystem(*configPath, *metricsAddr)
	defer logger.Sync()
	defer sys.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 配置文件在场时监听改动,热替换安全与伦理规则。
	if *configPath != "" {
		reload := config.NewReloadManager(cfg, *configPath, config.WithReloadLogger(logger))
		reload.OnReload(func(_, updated *config.Config) {
			sys.ApplyRules(updated.Rules)
		})
		if err := reload.Start(ctx); err != nil {
			logger.Warn("rules hot reload unavailable", zap.Error(err))
		} else {
			defer reload.Stop()
		}
	}

	logger.Info("Starting MemFlow chat",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))
	fmt.Println(`MemFlow chat. Type "exit" to leave.`)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("you> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" {
				return
			}
			res, err := sys.Run(ctx, text, 1.0)
			if err != nil {
				fmt.Printf("memflow> error: %v\n", err)
				continue
			}
			fmt.Printf("memflow> %s  (%.2f)\n", res.Answer, res.Confidence)
		}
	}
}

// =============================================================================
// 🚀 run 命令
// =============================================================================

func runOnce(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	confidence := fs.Float64("confidence", 1.0, "Declared input confidence")
	asJSON := fs.Bool("json", false, "Print the full run result as JSON")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: memflow run [options] \"<text>\"")
		os.Exit(1)
	}
	text := strings.Join(fs.Args(), " ")

	sys, _, logger := openSystem(*configPath, "")
	defer logger.Sync()
	defer sys.Close()

	res, err := sys.Run(context.Background(), text, *confidence)
	if err != nil {
		logger.Fatal("Pipeline run failed", zap.Error(err))
	}
	if *asJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			logger.Fatal("Encode result failed", zap.Error(err))
		}
		fmt.Println(string(data))
		return
	}
	fmt.Println(res.Answer)
}

// =============================================================================
// 🏥 health 命令
// =============================================================================

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	sys, _, logger := openSystem(*configPath, "")
	defer logger.Sync()
	defer sys.Close()

	report, err := sys.HealthCheck(context.Background())
	if err != nil {
		logger.Fatal("Health check failed", zap.Error(err))
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal("Encode report failed", zap.Error(err))
	}
	fmt.Println(string(data))
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("MemFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`MemFlow - rule-based memory librarian

Usage:
  memflow <command> [options]

Commands:
  chat      Interactive chat session
  run       Run one input through the full pipeline
  health    Check every memory bank and repair stalled rotation
  version   Show version information
  help      Show this help message

Options:
  --config <path>         Path to configuration file (YAML)
  --metrics-addr <addr>   Expose /health, /status and /metrics (chat only)
  --confidence <v>        Declared input confidence (run only)
  --json                  Print full run result as JSON (run only)

Examples:
  memflow chat
  memflow chat --config /etc/memflow/config.yaml --metrics-addr :9090
  memflow run "Why is the sky blue?"
  memflow run --json "remember the moon orbits the earth"
  memflow health`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var buildOpts []zap.Option
	if cfg.EnableCaller {
		buildOpts = append(buildOpts, zap.AddCaller())
	}
	buildOpts = append(buildOpts, zap.AddStacktrace(zapcore.ErrorLevel))

	logger, err := zapConfig.Build(buildOpts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/bank"
	"github.com/BaSui01/memflow/history"
	"github.com/BaSui01/memflow/pipeline"
)

// =============================================================================
// 🩺 运维端点
// =============================================================================

// bankStatus 单个分区的分层计数
type bankStatus struct {
	STM   int `json:"stm"`
	MTM   int `json:"mtm"`
	LTM   int `json:"ltm"`
	Cold  int `json:"cold"`
	Total int `json:"total"`
}

// statusResponse /status 响应体
type statusResponse struct {
	Banks      map[string]bankStatus `json:"banks"`
	TotalFacts int                   `json:"total_facts"`
	RunCount   int64                 `json:"run_count"`
}

// OpsDeps 运维端点依赖。History 与 Metrics 允许为 nil,
// 对应端点会退化而不是报错。
type OpsDeps struct {
	Registry *bank.Registry
	Doctor   *pipeline.Doctor
	History  *history.Store
	Metrics  http.Handler
	Logger   *zap.Logger
}

// NewOpsHandler 装配 /health、/status 与 /metrics 路由
func NewOpsHandler(deps OpsDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "ops_handler"))

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Doctor.Check(r.Context())
		if err != nil {
			logger.Error("health check failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report, logger)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{Banks: make(map[string]bankStatus)}
		for _, b := range deps.Registry.All() {
			counts := b.Counts()
			resp.Banks[b.Name()] = bankStatus{
				STM:   counts.STM,
				MTM:   counts.MTM,
				LTM:   counts.LTM,
				Cold:  counts.Cold,
				Total: counts.Total(),
			}
			resp.TotalFacts += counts.Total()
		}
		if deps.History != nil {
			n, err := deps.History.Count(r.Context())
			if err != nil {
				logger.Warn("run count unavailable", zap.Error(err))
			} else {
				resp.RunCount = n
			}
		}
		writeJSON(w, http.StatusOK, resp, logger)
	})

	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	return mux
}

func writeJSON(w http.ResponseWriter, code int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("response encode failed", zap.Error(err))
	}
}

/*
包 metrics 提供基于 Prometheus 的流水线指标采集能力，覆盖
管线运行、检索、缓存与银行存储四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 主要能力

  - 管线指标：运行总数（按 verdict/mode 分组）、阶段耗时、
    安全与伦理过滤计数。
  - 检索指标：扫描耗时、候选记录数，按 bank 分组。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 存储指标：写入与去重计数、轮转与修复计数，按 bank/tier 分组。
*/
package metrics

// Package config 提供 MemFlow 的配置管理功能。
//
// 包含配置加载、安全与伦理规则的热重载和变更历史管理。
// 支持从 YAML 文件与环境变量(前缀 MEMFLOW)加载配置,
// 规则文件变更时可在运行中重载。
package config

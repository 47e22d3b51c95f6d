// Package database 是运行历史库的 SQLite 连接层。
//
// 管线每次运行都在 history 包落一条摘要,底层用嵌入式 SQLite
// (纯 Go 驱动,免 cgo)。本包负责打开数据库文件、配置连接池、
// 处理 SQLite 写锁冲突的事务重试,以及周期性健康检查。
package database

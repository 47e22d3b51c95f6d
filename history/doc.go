// Package history 是系统运行史。管线每轮在这里落一条摘要,
// 推理引擎读取近期成功率作为全局置信度偏置(学习信号),
// 健康面板读取近期运行做聚合。底层为嵌入式 SQLite。
package history

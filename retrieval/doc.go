/*
包 retrieval 在全部已注册银行上做扇出检索。

每个银行的线性扫描作为一个任务提交到受限工作池，局部失败只记录
日志并跳过，不影响其余银行。命中结果按朴素的词元重叠度打分:

	score = |query ∩ content| / |query|

按分数降序、时间戳降序排序后截断到 k 条，并报告实际扫描过的银行。
*/
package retrieval

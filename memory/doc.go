/*
包 memory 提供跨会话记忆存储:问答日志、工作记忆、主题统计与
元置信度。

  - QAMemory: 追加式 JSONL 问答日志,规范化精确匹配,最新条目优先。
  - WorkingMemory: 会话级键值记忆,带 TTL 与容量上限,可选落盘。
  - TopicStats: 主题计数(查询前两个规范化词),用于熟悉度加成。
  - MetaConfidence: 按领域记录成败并按天衰减,输出 [-0.1, 0.1]
    区间的置信度修正。
  - Feedback: 用户反馈识别与处理,正反馈提升缓存置信度,
    负反馈记录失败。

持久化读写错误会如实返回,由调用方(管线)记录日志后继续,
不会阻塞主流程。
*/
package memory

// Package pipeline 是记忆管家(librarian):把一条用户输入
// 按固定顺序推过全部处理阶段,每个阶段失败都被隔离记录,
// 管线继续走完。
//
// 阶段顺序:
//
//  1. 反馈检测(好评/差评先于一切处理)
//  2. 命令路由(-- 或 / 前缀的输入直接走命令处理器)
//  3. 规整化(空白折叠、小写、类型/语言嗅探)
//  4. 意图分类(可存类型 + 模糊措辞罚分)
//  5. 快速缓存门 → 语义缓存门(命中即短路)
//  6. 计划(规划器兜底计划)
//  7. 记忆优先检索扇出
//  8. 判定评估(reason 引擎)
//  9. 治理门(最低置信度 + 拒绝规则)
//  10. 选库与落库(router 模块)
//  11. 已答问题写入问答记忆,回填快速缓存
//  12. 主题统计自增,登记最近一轮问答供反馈使用
//  13. 运行摘要入历史库,快照 JSON 落盘
//
// 另提供 Doctor.Check(各分区分层计数与 STM 溢出修复)与
// ExplainLast(解释上一轮回答)两个运维入口。
package pipeline

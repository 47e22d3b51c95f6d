// Package router 决定一条事实最终落入哪个记忆分区,以及是否落库。
//
// 路由分两步:
//
//  1. 选库(RouteBank):先用各主题分区的关键词表做子串匹配,
//     命中即返回;未命中时退回到学习型词表(Vocab)的词元重叠评分;
//     仍无信号则落入默认分区 arts。每次路由都附带可读的解释,
//     说明是哪个关键词或哪个词表赢了。
//
//  2. 仲裁(Arbitrate):根据判定结果决定存储动作。重复证据跳过,
//     治理否决跳过,已验证事实进主题分区并消解同内容的未决理论,
//     合理推测进理论库,无法判定的陈述记为未决矛盾。
//
// 词表通过 Learn 随运行积累,持久化为 JSON 文件,跨进程生效。
package router

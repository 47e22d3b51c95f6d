/*
包 reason 实现规则式判定引擎。

对每条输入依固定顺序执行一条过滤链,首个命中者直接产出判定:

 1. 工作记忆直取
 2. 安全规则(子串匹配,命中即拒答)
 3. 伦理规则(warn 降低效价继续,block 按严重级别拒答)
 4. 常识检查("is X a Y" 型问题对照实体类别表)
 5. 意图闸门(命令/请求/情绪/观点/未知输入跳过存储)
 6. 问题路径:知识图谱 → 问答记忆 → 证据抽取 → 启发式猜测 →
    表达式求值,全部落空则 UNANSWERED
 7. 陈述路径:证据打分、情感调制阈值、习得偏置,
    产出 TRUE/THEORY/UNKNOWN 与存储路由

置信度路由:≥0.7 进事实库,≥0.4 进工作理论库,其余只留 STM。
*/
package reason

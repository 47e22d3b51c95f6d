/*
包 cache 提供管线前置的快速缓存与语义缓存，基于 Redis 存储，
支持连接池、健康检查与命中统计。

# 概述

管线在进入检索与推理之前先查缓存：

  - FastCache：规范化查询 → 答案的精确映射，命中即短路整条管线。
    用户反馈可对条目做置信度加减（正反馈 +0.15，封顶 1.0），
    负反馈直接失效该条目。
  - SemanticCache：对历史已答查询做 token 重叠（Jaccard）匹配，
    快速缓存未命中时兜底。

# 键规范化

查询先小写、去标点、折叠空白并去掉结尾问号，再作为缓存键，
使 "What is gravity?" 与 "what is gravity" 命中同一条目。
*/
package cache

/*
包 bank 实现按主题分区的追加式知识库（domain bank）。

# 概述

每个 bank 是磁盘上的一个目录，内部按 stm/mtm/ltm/cold 四个记忆层
各维护一个 records.jsonl 追加文件。写入总是先落 STM，随后按配置阈值
把最旧的记录滚动到更深的层。没有模式约束，也没有事务；一条记录就是
一行 JSON。

# 核心类型

  - Bank：单个主题分区，提供 Store/Retrieve/RebuildIndex/CompactCold/Counts。
  - TheoriesBank：带类型标签（theory/contradiction/resolution）的特殊分区，
    支持矛盾消解与信念取代。
  - Registry：全部已注册分区的集合，检索扇出与路由都经由它。

# 去重

记录 ID 为内容寻址哈希（见 types.FactID）。Store 在写入前检查
倒排索引与各层文件，命中即返回已有 ID 并标记 duplicate。

# 倒排索引

每个 bank 维护一个 token → record id 的 index.json，用于加速检索。
索引损坏或缺失时检索退化为全文件线性扫描，REBUILD_INDEX 可全量重建。
*/
package bank

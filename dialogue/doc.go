// 版权所有 2026 TicketFlow Authors。
// 本源代码的使用以项目许可为准。

/*
包 dialogue 是 ticketflow 的核心：有状态的对话编排引擎。

# 概述

引擎维护每个会话键下的有序对话历史，在历史超过阈值时经后端做
有损摘要压缩，对每轮模型输出做终态判定与结构化字段提取，并把
清洗后的文本返回给调用方。HTTP 托管、工单提交、通知等外围功能
是本包的调用方，通过窄接口消费核心能力。

# 组件

  - [Gateway]：后端调用网关。限流错误按线性退避重试（第 i 次重试
    等待 (i+1)×BaseDelay），重试耗尽映射为 BACKEND_UNAVAILABLE，
    其余错误原样传播；成功时补全 token 用量统计。
  - [SessionStore] / [MemoryStore]：会话存储。惰性创建，首条消息
    永远是固定的 system 指令；删除幂等；进程内存活，无自动过期。
  - [Compactor]：历史压缩器。非 system 消息数超过阈值时生成摘要，
    把整个序列替换为恰好两条消息（system 指令 + 带固定前缀的摘要）。
  - [Analyzer] / [TagAnalyzer]：输出分析。检测终止标记
    [[ORDER_COMPLETED]]，提取 <su>/<de>/<ca> 标签块，清洗出可展示
    文本。提取必须先于清洗。
  - [Engine]：轮次处理器。编排压缩、消息追加、主调用与分析，
    同一会话键上的轮次串行执行。

# 并发契约

同键轮次串行（按键互斥锁覆盖整个 ProcessTurn），不同键并行。
终态后的会话重置由调用方决定，引擎不会无条件重置。

已知限制：键锁表随不同会话键单调增长，与会话历史一样随进程存活，
不回收。
*/
package dialogue

// 版权所有 2026 TicketFlow Authors。
// 本源代码的使用以项目许可为准。

/*
包 server 封装 HTTP/HTTPS 服务器的完整生命周期：建立监听、后台
serve、信号驱动的优雅停机，以及 serve 异常的异步上报。

# 概述

Manager 把 net/http.Server 与 net.Listener 收拢到一个对象里，
调用方只负责组装 handler 与配置。Start 与 StartTLS 都是非阻塞
的，进程主线通常驻留在 WaitForShutdown 里，直到收到退出信号或
serve 异常退出。

# 核心类型

  - Manager：服务器管理器，提供 Start / StartTLS / Shutdown /
    WaitForShutdown 生命周期方法与 Errors 异步错误通道。
  - Config：监听地址、读写与空闲超时、请求头上限、并发连接上限
    （MaxConns，0 表示不限）与优雅关闭超时。

# 行为要点

  - MaxConns 大于 0 时用 netutil.LimitListener 包装监听器，
    超出上限的连接在 Accept 前排队。
  - TLS 监听固定使用 tlsutil 的加固配置（TLS 1.2+，仅 AEAD
    套件），证书与密钥由 StartTLS 参数给出。
  - Shutdown 幂等，重复调用直接返回 nil；在途请求在
    ShutdownTimeout 内排空。
  - serve 的非正常退出写入带缓冲的错误通道，WaitForShutdown
    与 Errors 消费同一来源。
*/
package server

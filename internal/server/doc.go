/*
包 server 提供运维端点的 HTTP 服务器:非阻塞启动、优雅关闭
与信号监听。

端点由 NewOpsHandler 装配:

  - /health   全分区体检(含轮换停摆修复)
  - /status   各分区分层计数与运行总数
  - /metrics  Prometheus 指标

Manager 封装 net/http.Server 的生命周期,Start 在后台 goroutine
中监听,Shutdown 在配置的超时内完成请求排空。
*/
package server

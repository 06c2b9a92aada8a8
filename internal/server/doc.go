// Copyright (c) Conclave Authors.
// Licensed under the MIT License.

/*
包 server 提供 conclave 的观测 HTTP 服务：路由定义与服务器生命周期管理。

# 概述

观测服务是可选组件，仅暴露只读端点，不接受提问。问题仍然只能通过
终端会话提交，HTTP 端只用于探活、抓取指标与查看当前轮次。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Shutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时与优雅关闭超时。
  - RouterConfig：路由依赖，包括状态来源、就绪信号与指标 Gatherer。

# 端点

  - GET /healthz：进程存活。
  - GET /readyz：所有角色完成注册后返回 200，否则 503。
  - GET /status：协调者当前状态快照（阶段、轮次、投票、参与者）。
  - GET /metrics：Prometheus 文本格式指标。
*/
package server

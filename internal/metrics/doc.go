// Copyright (c) Conclave Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的共识循环指标采集能力，覆盖
补全调用、共识轮次、goroutine 池与观测 HTTP 服务四个维度。

# 核心类型

  - Collector：指标收集器，同时实现 persona.Recorder 与
    collaboration.Recorder，可直接注入角色与协调者。

# 主要能力

  - 补全指标：按 persona/kind/status 统计调用次数与耗时，
    单独统计无法解析的评审回复。
  - 共识指标：提交结果、评审轮次、投票分布、一致通过与强制通过、
    每个问题消耗的轮次、被丢弃的过期回报与停滞的轮次。
  - 池指标：worker 数、执行中任务数与排队任务数（GaugeFunc）。
  - HTTP 指标：观测服务自身的请求数与耗时。

所有指标注册到调用方提供的 Registerer，便于测试隔离与 /metrics 暴露。
*/
package metrics

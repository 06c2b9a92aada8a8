/*
包 llm 提供 conclave 使用的文本补全能力抽象。

# 概述

共识循环只依赖"发送一段提示词、取回一段文本"的往返语义。本包定义：

  - [Provider]：模型服务商适配接口（Completion / HealthCheck / Name），
    具体实现位于 llm/providers 下。
  - [Completer]：纯文本补全接口，角色（persona）只依赖它。
  - [ProviderCompleter]：把 Provider 适配为 Completer，取第一个候选的文本。
  - [ResilientCompleter]：可选的限流、熔断与重试装饰器。

# 错误语义

上游错误统一为 [Error]，携带 [ErrorCode] 与 Retryable 标记；重试只针对
Retryable 的错误，且默认关闭。
*/
package llm

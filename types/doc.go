// Copyright (c) Conclave Authors.
// Licensed under the MIT License.

/*
Package types 提供 conclave 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。persona（答题/评审/修订角色）与
collaboration（共识协调器）之间交换的消息载荷、投票结论与错误码均定义于此，
两者互不引用，从而避免循环依赖。

# 核心类型

  - Verdict：单轮投票结论（Good / NeedsRefinement）
  - Vote：某个角色对当前答案的投票与理由
  - AnswerRequest：请求角色回答问题
  - EvaluationRequest：请求角色评审当前答案
  - RevisionRequest：请求投反对票的角色修订答案
  - Answer / Revision：角色回报给协调器的文本
  - Error / ErrorCode：结构化错误体系，含 Retryable 标记
*/
package types

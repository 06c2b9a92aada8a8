// Copyright (c) Conclave Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 conclave 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel，
    用于等待邮箱驱动的状态推进
  - 数据工具: Profiles 快速构造测试角色

# 子包

  - testutil/mocks: Mock 实现，包括 MockProvider（LLM Provider）、
    ScriptedCompleter（按提示词脚本化的补全）、RecordingReporter
    （记录角色回报）与 InlineScheduler（直接起 goroutine 的调度器）

# 使用示例

	ctx := testutil.TestContext(t)
	completer := mocks.NewScriptedCompleter().WithResponse("Good")
	text, err := completer.Complete(ctx, "prompt")
*/
package testutil

// Copyright (c) Conclave Authors.
// Licensed under the MIT License.

/*
conclave 是多角色共识问答的命令行入口。

# 子命令

  - chat：交互式会话，逐行读取问题，输出所有角色一致认可的最终答案。
  - ask：一次性提问，输出最终答案后退出。
  - personas：列出当前配置生效的角色名单。
  - version：输出版本信息。

# 配置

配置按 默认值 → YAML 文件（--config）→ CONCLAVE_ 前缀环境变量 的顺序
合并，GEMINI_API_KEY 作为 API Key 的兜底。凭证缺失时命令在接受任何
问题前输出提示并以非零状态退出。
*/
package main

// Package config 提供 conclave 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，环境变量使用
// CONCLAVE_ 前缀；未设置 llm.api_key 时回退读取 GEMINI_API_KEY。
// 角色名单可以直接写在配置里，也可以通过 personas_file 指向单独的
// YAML 文件，两者都没有时使用内置的四个角色。
package config

// Package gemini 实现 Google Gemini 的文本补全 Provider。
//
// 只使用 generateContent 接口：共识循环需要的是一次请求换一段完整文本，
// 不需要流式输出或工具调用。认证使用 x-goog-api-key 请求头。
package gemini

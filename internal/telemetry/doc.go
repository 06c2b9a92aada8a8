// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 conclave 的角色补全调用与会话提问提供 TracerProvider 和 MeterProvider。
// 未启用时保持全局 noop 实现，不连接任何外部服务。
package telemetry

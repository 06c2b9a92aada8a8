// Package providers 提供各模型服务商 Provider 的共享配置与错误映射。
package providers

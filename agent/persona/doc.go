// Package persona 实现参与共识的角色工作者。
//
// 每个 Persona 拥有固定的名称、领域与调优要点，独占一个收件箱并由自己的
// goroutine 逐条处理请求。处理请求时只负责拼装提示词并把补全调用交给共享
// 的 goroutine 池，不会在网络调用上阻塞收件箱；调用完成后通过 Reporter
// 把结果回报给协调者。补全失败只记录日志，不产生回报。
package persona

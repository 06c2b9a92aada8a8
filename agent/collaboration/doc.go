// Package collaboration 实现多角色共识协调者。
//
// Coordinator 独占注册表与当前轮次状态，所有状态迁移都在它自己的
// goroutine 上按邮箱顺序逐条执行，因此轮次状态不需要加锁。驱动方通过
// Submit/IsReady/FetchAnswer/Reset/Status 以请求-应答的方式访问状态；
// 角色通过 AnsweredQuestion/Evaluated/Revised 异步回报结果。
//
// 每条回报都携带问题 ID（评审还携带轮次），与当前轮次不符的回报会被
// 丢弃并记录日志。轮次达到 MaxRounds 仍无共识时，协调者强制把已有投票
// 视为通过，并通过 Status.Forced 暴露这一事实。
package collaboration

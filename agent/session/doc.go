// Package session 驱动共识协调者回答一个个问题。
//
// Driver.Ask 提交问题后按固定间隔轮询就绪状态，取回答案并在返回前重置
// 协调者；Driver.Run 在此基础上提供逐行读取问题的交互循环，输入 exit
// 结束。
package session

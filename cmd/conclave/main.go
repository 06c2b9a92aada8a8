// =============================================================================
// Conclave 主入口
// =============================================================================
// 多角色共识问答 CLI，可选启用观测 HTTP 服务与 OpenTelemetry 导出
//
// 使用方法:
//
//	conclave chat                          # 交互式会话
//	conclave chat --config conclave.yaml   # 指定配置文件
//	conclave ask "What is 6*7?"            # 一次性提问
//	conclave personas                      # 列出角色名单
//	conclave version                       # 显示版本信息
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BaSui01/conclave/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// printError 输出错误；凭证缺失只输出提示原文
func printError(w io.Writer, err error) {
	var typed *types.Error
	if errors.As(err, &typed) && typed.Code == types.ErrMissingCredential {
		fmt.Fprintln(w, typed.Message)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

package persona

import (
	"strings"

	"github.com/BaSui01/conclave/types"
)

// ParseEvaluation 解析评审回复。
//
// 按 "\n" 切分并丢弃空行，首行去掉空格后必须是 Good 或 NeedsRefinement；
// 其余情况回落到 NeedsRefinement 并返回 ok=false。剩余行以空行连接作为理由。
func ParseEvaluation(text string) (verdict types.Verdict, rationale string, ok bool) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return types.VerdictNeedsRefinement, "", false
	}

	verdict, ok = types.ParseVerdictToken(lines[0])
	return verdict, strings.Join(lines[1:], "\n\n"), ok
}

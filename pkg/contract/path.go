package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 统一正斜杠分隔符（反斜杠一律转换）；
// - path.Clean 清理冗余片段（.、..、重复分隔符）；
// - 保留相对/绝对语义，不做隐式绝对化。
func NormalizeFileID(p string) FileID {
	s := strings.Map(func(r rune) rune {
		if r == '\\' {
			return '/'
		}
		return r
	}, p)
	return FileID(path.Clean(s))
}

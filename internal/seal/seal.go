package seal

import (
	"strings"

	"sealkit/internal/fingerprint"
	"sealkit/internal/marker"
	"sealkit/pkg/contract"
)

// Seal 对整篇文档做批量封印：每个区域的起止标记行改写为
// “前缀 + 当前指纹令牌”。未封印与已正确封印的区域收敛到同一输出，
// 故 Seal(Seal(x)) == Seal(x)。
// 任一结构缺陷（配对破坏）→ *contract.StructuralError，不产出部分结果。
// 令牌残缺（MalformedToken）不拦截封印：该字段本就会被改写。
// 无区域的文档原样通过。
func Seal(lines []string, g contract.Grammar) ([]string, error) {
	regions, errs := marker.Parse(lines, g)
	if marker.HasStructural(errs) {
		return nil, &contract.StructuralError{Errs: errs}
	}
	out := append([]string(nil), lines...)
	for _, r := range regions {
		tok := fingerprint.Compute(r.Body)
		out[r.Start.Line] = renderMarker(r.Start, tok)
		out[r.End.Line] = renderMarker(r.End, tok)
	}
	return out, nil
}

// renderMarker 改写标记行：保留匹配前缀（缩进、大小写、on/off 词形），
// 丢弃旧令牌或垃圾残余，追加新令牌。
func renderMarker(m contract.Marker, tok contract.Token) string {
	return strings.TrimRight(m.Prefix, " \t") + " " + string(tok)
}

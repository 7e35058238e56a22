package marker

import (
	"strings"

	"sealkit/pkg/contract"
)

// Parse 自上而下扫描行序列，配对封印标记并产出区域与诊断。
// 扫描器只有 开/闭 两态（不是栈——嵌套不被允许）：
// - 已开时遇起始标记 → NestedStart，该标记不参与配对，原区域保持打开；
// - 闭合时遇结束标记 → UnmatchedEnd，忽略；
// - 输入耗尽仍未闭合 → UnterminatedRegion（记在起始标记行）。
// 纯函数：不修改输入，每次调用生成全新的 Marker/Region。
func Parse(lines []string, g contract.Grammar) ([]contract.Region, []contract.ParseError) {
	var regions []contract.Region
	var errs []contract.ParseError
	var open *contract.Marker

	for i, line := range lines {
		kind, prefix, suffix, ok := g.Match(line)
		if !ok {
			continue
		}
		m, perr := newMarker(kind, i, line, prefix, suffix)
		if perr != nil {
			errs = append(errs, *perr)
		}
		switch kind {
		case contract.MarkerStart:
			if open != nil {
				errs = append(errs, contract.ParseError{Line: i, Kind: contract.NestedStart})
				continue
			}
			open = &m
		case contract.MarkerEnd:
			if open == nil {
				errs = append(errs, contract.ParseError{Line: i, Kind: contract.UnmatchedEnd})
				continue
			}
			body := append([]string(nil), lines[open.Line+1:i]...)
			regions = append(regions, contract.Region{Start: *open, End: m, Body: body})
			open = nil
		}
	}
	if open != nil {
		errs = append(errs, contract.ParseError{Line: open.Line, Kind: contract.UnterminatedRegion})
	}
	return regions, errs
}

// HasStructural 判定诊断列表中是否存在破坏配对结构的缺陷。
func HasStructural(errs []contract.ParseError) bool {
	for _, e := range errs {
		if e.Kind.Structural() {
			return true
		}
	}
	return false
}

// newMarker 从文法匹配结果构造标记并提取行尾令牌。
// 空残余 → 未封印；恰好单字段且符合令牌字母表 → 嵌入令牌；
// 其余 → MalformedToken（标记仍参与配对，区域降级为不洁）。
func newMarker(kind contract.MarkerKind, line int, raw, prefix, suffix string) (contract.Marker, *contract.ParseError) {
	m := contract.Marker{Kind: kind, Line: line, Raw: raw, Prefix: prefix}
	if suffix == "" {
		return m, nil
	}
	fields := strings.Fields(suffix)
	if len(fields) == 1 && contract.ValidToken(fields[0]) {
		m.Token = contract.Token(fields[0])
		return m, nil
	}
	m.TokenMalformed = true
	return m, &contract.ParseError{Line: line, Kind: contract.MalformedToken}
}

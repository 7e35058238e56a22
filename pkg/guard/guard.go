// Package guard 实现面向宿主编辑器的实时封印守护：
// 维护单文档的区域实时模型，同步裁决每一笔拟议编辑，并在周边文本
// 增删时保持区域行偏移正确。
//
// 所有权划分：缓冲区由宿主持有并改写；守护只接收只读快照与编辑
// “提案”，返回裁决，从不自行改写缓冲区。
package guard

import (
	"fmt"
	"sort"
	"strings"

	"sealkit/internal/fingerprint"
	"sealkit/internal/marker"
	"sealkit/pkg/contract"
)

// Guard 维护单文档的守护状态。
// 生命周期：文档打开时 Load 建立状态，关闭时整体丢弃；Rescan 为
// 按需的全量重建恢复路径。
// 并发：单文档操作同步、无阻塞、无挂起点；宿主须串行投递同一文档的
// 编辑（裁决是同步闸门，不是事后否决），守护内部因此不加锁。
// 多文档各持独立 Guard，互不共享状态。
type Guard struct {
	grammar contract.Grammar
	regions []tracked
	loaded  bool
}

// tracked: 带实时行偏移的区域。令牌与状态在 Load 时固化——被接受的
// 编辑不会触碰区域体，内容不可能绕过守护漂移，无需重算。
type tracked struct {
	start, end int // 标记行（含两端）
	// endLen: 结束标记行原文字节长，供行尾边界插入判定；
	// -1 表示无真实结束标记（未闭合区域），不适用边界宽限。
	endLen int
	token  contract.Token
	status contract.RegionStatus
}

// relation: 编辑区间相对单个区域的位置分类。
type relation int

const (
	relBefore relation = iota // 编辑整体在区域之前（区域随净行差平移）
	relAfter                  // 编辑整体在区域之后
	relReject                 // 编辑触碰区域
)

// New 以给定文法构造守护。使用前必须 Load。
func New(g contract.Grammar) *Guard {
	return &Guard{grammar: g}
}

// Load 全量解析 + 指纹校验，原子地初始化守护状态，返回解析诊断。
// 这是常规运行中唯一能“发现”Broken 的时点：此后区域内编辑一律被拒。
// 未闭合区域按 [起始标记, 末行] 保守跟踪，状态 Broken；结构受损的
// 区域（嵌套起始、令牌残缺）同样标为 Broken。
func (g *Guard) Load(lines []string) []contract.ParseError {
	regions, errs := marker.Parse(lines, g.grammar)

	nested := make(map[int]bool) // 含 NestedStart 诊断行的区域需降级
	for _, pe := range errs {
		if pe.Kind == contract.NestedStart {
			nested[pe.Line] = true
		}
	}

	tr := make([]tracked, 0, len(regions)+1)
	for _, r := range regions {
		st := statusOf(fingerprint.Verify(r))
		for l := range nested {
			if l > r.Start.Line && l < r.End.Line {
				st = contract.StatusBroken
			}
		}
		tr = append(tr, tracked{
			start:  r.Start.Line,
			end:    r.End.Line,
			endLen: len(r.End.Raw),
			token:  r.Start.Token,
			status: st,
		})
	}
	// 未闭合区域：扫描器保证其起始在所有已闭合区域之后。
	for _, pe := range errs {
		if pe.Kind == contract.UnterminatedRegion && len(lines) > 0 {
			tr = append(tr, tracked{
				start:  pe.Line,
				end:    len(lines) - 1,
				endLen: -1,
				status: contract.StatusBroken,
			})
		}
	}

	g.regions = tr
	g.loaded = true
	return errs
}

// Rescan 从头全量重建守护状态（原子替换）。宿主可在存疑时（例如收到
// 歧义拒绝后）以此恢复，而非永远拒绝下去。
func (g *Guard) Rescan(lines []string) []contract.ParseError {
	return g.Load(lines)
}

// ValidateEdit 对拟议编辑做同步裁决。span 为 [Start, End) 半开字符区间
// （0 基行号、0 基字节列），Start == End 为插入点；replacement 为替换文本。
// 仅输入非法（倒置区间、负坐标、未 Load）返回 error；策略性拒绝是
// 正常返回值。接受后对编辑之后的区域平移净行差，保持区域身份与
// 令牌/状态不变（区域体未动，无需重算）；拒绝不留任何副作用。
func (g *Guard) ValidateEdit(span contract.Span, replacement string) (contract.Verdict, error) {
	if !g.loaded {
		return contract.Verdict{}, fmt.Errorf("guard not loaded: %w", contract.ErrInvariantViolation)
	}
	if span.Start.Line < 0 || span.Start.Col < 0 || span.End.Line < 0 || span.End.Col < 0 ||
		span.End.Line < span.Start.Line ||
		(span.End.Line == span.Start.Line && span.End.Col < span.Start.Col) {
		return contract.Verdict{}, fmt.Errorf("edit span %v..%v: %w", span.Start, span.End, contract.ErrInvalidInput)
	}

	// 退化编辑（零宽区间、空替换）不改变任何内容，直接放行。
	if span.Start == span.End && replacement == "" {
		return contract.Verdict{Accepted: true, RegionStart: -1}, nil
	}

	delta := strings.Count(replacement, "\n") - (span.End.Line - span.Start.Line)

	rels := make([]relation, len(g.regions))
	for i := range g.regions {
		rel, reason := classify(&g.regions[i], span, replacement)
		if rel == relReject {
			return contract.Verdict{Reason: reason, RegionStart: g.regions[i].start}, nil
		}
		rels[i] = rel
	}

	// 区域间隙消失 → 相邻区域的行界归属产生歧义，保守拒绝：
	// 新结构需要全量重扫才能归类。
	if delta < 0 {
		for i := 1; i < len(g.regions); i++ {
			a, b := &g.regions[i-1], &g.regions[i]
			if rels[i-1] != relAfter || rels[i] != relBefore {
				continue
			}
			oldGap := b.start - a.end - 1
			if oldGap > 0 && b.start+delta-a.end-1 <= 0 {
				return contract.Verdict{Reason: contract.RejectAmbiguousStructure, RegionStart: b.start}, nil
			}
		}
	}

	for i := range g.regions {
		if rels[i] == relBefore {
			g.regions[i].start += delta
			g.regions[i].end += delta
		}
	}
	return contract.Verdict{Accepted: true, RegionStart: -1}, nil
}

// classify 判定编辑区间相对单个区域的位置。
// 边界宽限（与宿主的既有交互习惯一致）：
// - 起始标记行行首的插入，要求替换文本以 "\n" 收尾（标记行保持独立成行）；
// - 结束于起始标记行行首的删除，要求从行首开始整行删除或替换文本以 "\n" 收尾；
// - 结束标记行行尾起笔的编辑，要求替换文本以 "\n" 开头（标记行终止得以恢复）。
func classify(r *tracked, span contract.Span, repl string) (relation, contract.RejectReason) {
	// 整体在区域之前
	if span.End.Line < r.start {
		return relBefore, contract.RejectNone
	}
	if span.End.Line == r.start && span.End.Col == 0 {
		switch {
		case strings.HasSuffix(repl, "\n"):
			return relBefore, contract.RejectNone
		case repl == "" && span.Start.Col == 0 && span.Start.Line < span.End.Line:
			// 整行删除，标记行仍从行首开始
			return relBefore, contract.RejectNone
		default:
			return relReject, contract.RejectSealedRegion
		}
	}

	// 整体在区域之后
	if span.Start.Line > r.end {
		return relAfter, contract.RejectNone
	}
	if span.Start.Line == r.end && r.endLen >= 0 && span.Start.Col >= r.endLen {
		switch {
		case strings.HasPrefix(repl, "\n"):
			return relAfter, contract.RejectNone
		default:
			return relReject, contract.RejectSealedRegion
		}
	}

	// 相交。整块覆盖（连同两端标记一起删除/替换）的意图无法在不重扫的
	// 前提下归类，按歧义拒绝；部分触碰则是硬边界违例。
	coversStart := span.Start.Line < r.start || (span.Start.Line == r.start && span.Start.Col == 0)
	coversEnd := span.End.Line > r.end || (span.End.Line == r.end && r.endLen >= 0 && span.End.Col >= r.endLen)
	if coversStart && coversEnd {
		return relReject, contract.RejectAmbiguousStructure
	}
	return relReject, contract.RejectSealedRegion
}

// RegionStatus 返回包含给定行（标记行含在内）的区域状态；
// 不属于任何区域时返回 StatusNone。
func (g *Guard) RegionStatus(line int) contract.RegionStatus {
	i := sort.Search(len(g.regions), func(i int) bool { return g.regions[i].end >= line })
	if i < len(g.regions) && g.regions[i].start <= line {
		return g.regions[i].status
	}
	return contract.StatusNone
}

// Regions 返回区域只读快照（按当前实时偏移），供宿主渲染封印区分。
func (g *Guard) Regions() []contract.RegionInfo {
	out := make([]contract.RegionInfo, len(g.regions))
	for i, r := range g.regions {
		out[i] = contract.RegionInfo{StartLine: r.start, EndLine: r.end, Token: r.token, Status: r.status}
	}
	return out
}

func statusOf(m contract.MatchResult) contract.RegionStatus {
	switch m {
	case contract.NoDeclaredToken:
		return contract.StatusUnsealed
	case contract.Match:
		return contract.StatusIntact
	default:
		return contract.StatusBroken
	}
}

package contract

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Token: 区域指纹令牌。定长小写十六进制（8 字符），由区域体内容的
// 密码学哈希截断而来。纯值类型，不可变，仅按相等比较。
type Token string

// TokenLen: 令牌字符数（256 位哈希前 4 字节的十六进制展开）。
// 与标记文法互操作的一部分，不可配置。
const TokenLen = 8

// ValidToken 判断 s 是否符合令牌字母表（定长小写 hex）。
func ValidToken(s string) bool {
	if len(s) != TokenLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// MarkerKind: 标记行类别（起始/结束）。
type MarkerKind int

const (
	MarkerStart MarkerKind = iota
	MarkerEnd
)

// Marker: 识别为封印定界符的单行。
// 生命周期：每次解析重新生成，绝不原地修改。
type Marker struct {
	Kind MarkerKind
	// Line: 解析时的 0 基行号。
	Line int
	// Raw: 标记行原文。
	Raw string
	// Prefix: 从行首到 on/off 词（含）的前缀；改写标记行时保留
	// （缩进与大小写因此得以保真）。
	Prefix string
	// Token: 行内嵌入的令牌；空表示未封印（合法状态，非错误）。
	Token Token
	// TokenMalformed: 行尾存在无法解析为令牌的残余字段。
	TokenMalformed bool
}

// Region: 成对 (start, end) 标记。Body 为两标记行之间的行，不含标记行本身。
// 不变量：Start.Line < End.Line；区域互不重叠、不嵌套（仅扁平结构）。
// 生命周期：由标记序列派生，每次全量重扫整体重建。
type Region struct {
	Start Marker
	End   Marker
	Body  []string
}

// SpanLines 返回区域占据的行区间 [first, last]（含两端标记行）。
func (r Region) SpanLines() (first, last int) {
	return r.Start.Line, r.End.Line
}

// MatchResult: 指纹校验判定。Mismatch 不是错误，是校验结论（见错误设计）。
type MatchResult int

const (
	// NoDeclaredToken: 两端标记均未携带令牌（未封印）。
	NoDeclaredToken MatchResult = iota
	// Match: 声明令牌与当前内容的新鲜计算一致。
	Match
	// MismatchContent: 令牌一致声明但内容已漂移（篡改）。
	MismatchContent
	// MismatchMarkers: 两端标记令牌不一致，或任一端令牌残缺。
	// 与内容篡改同样判为“未保全”。
	MismatchMarkers
)

// Intact 判定区域是否保全。
func (m MatchResult) Intact() bool { return m == Match }

// RegionStatus: 守护视角下的区域状态。
type RegionStatus int

const (
	// StatusNone: 行不属于任何区域。
	StatusNone RegionStatus = iota
	// StatusIntact: 声明令牌存在且与当前内容一致。
	StatusIntact
	// StatusBroken: 声明令牌不匹配，或结构/令牌残缺。
	StatusBroken
	// StatusUnsealed: 无声明令牌。仅是提示状态：区域内编辑照样被拒，
	// 封印只关乎篡改证据，不关乎写禁止本身。
	StatusUnsealed
)

func (s RegionStatus) String() string {
	switch s {
	case StatusIntact:
		return "intact"
	case StatusBroken:
		return "broken"
	case StatusUnsealed:
		return "unsealed"
	default:
		return "none"
	}
}

// RegionInfo: 供宿主渲染的区域只读快照（行号为当前实时偏移）。
type RegionInfo struct {
	StartLine int
	EndLine   int
	Token     Token
	Status    RegionStatus
}

// Pos: 缓冲区内的字符位置（0 基行号 + 0 基字节列）。
type Pos struct {
	Line int
	Col  int
}

// Span: 半开字符区间 [Start, End)。Start == End 表示插入点。
type Span struct {
	Start Pos
	End   Pos
}

// RejectReason: 编辑拒绝原因。
type RejectReason int

const (
	RejectNone RejectReason = iota
	// RejectSealedRegion: 编辑触碰标记行或区域体（哪怕只有一部分）。
	RejectSealedRegion
	// RejectAmbiguousStructure: 编辑后的文档结构无法在不全量重扫的
	// 前提下归类（整块删除、区域间隙消失等），保守拒绝。
	RejectAmbiguousStructure
)

func (r RejectReason) String() string {
	switch r {
	case RejectSealedRegion:
		return "sealed region violation"
	case RejectAmbiguousStructure:
		return "ambiguous structural edit"
	default:
		return "none"
	}
}

// Verdict: 编辑裁决。拒绝是常规返回值，绝不走异常控制流；
// 用户可见反馈（吞掉按键、闪烁区域等）由宿主自行决定。
type Verdict struct {
	Accepted bool
	Reason   RejectReason
	// RegionStart: 触发拒绝的区域起始行；-1 表示与具体区域无关。
	RegionStart int
}

// Document: 拆分后的整文档行序列。
// 缓冲区本体由宿主持有；核心只读快照、只提交裁决，从不自行改写。
type Document struct {
	FileID FileID
	Lines  []string
	// FinalNewline: 原始字节流是否以换行收尾（回写时保真）。
	FinalNewline bool
}

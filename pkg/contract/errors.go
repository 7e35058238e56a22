package contract

import (
	"errors"
	"fmt"
	"strings"
)

// 最小哨兵错误分类。
var (
	// ErrInvalidInput: 输入违反调用约定（倒置区间、非法 UTF-8 等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// ParseErrorKind: 标记配对缺陷类别。
type ParseErrorKind int

const (
	// NestedStart: 区域已打开时又遇起始标记（不允许嵌套）。
	NestedStart ParseErrorKind = iota
	// UnmatchedEnd: 未打开区域时遇结束标记。
	UnmatchedEnd
	// UnterminatedRegion: 输入耗尽仍未闭合（记在起始标记行）。
	UnterminatedRegion
	// MalformedToken: 标记行尾存在无法解析为令牌的残余。
	MalformedToken
)

func (k ParseErrorKind) String() string {
	switch k {
	case NestedStart:
		return "nested start"
	case UnmatchedEnd:
		return "unmatched end"
	case UnterminatedRegion:
		return "unterminated region"
	case MalformedToken:
		return "malformed token"
	default:
		return "unknown"
	}
}

// Structural 判定该缺陷是否破坏配对结构。
// MalformedToken 不破坏配对：令牌字段本就会被封印改写，只降级校验结论。
func (k ParseErrorKind) Structural() bool { return k != MalformedToken }

// ParseError: 结构化解析诊断（行号 + 类别）。只记录，不中断扫描，
// 绝不静默丢弃。
type ParseError struct {
	// Line: 0 基行号；对外展示时转 1 基。
	Line int
	Kind ParseErrorKind
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line+1, e.Kind)
}

// StructuralError: Sealer 级聚合错误，包裹一个或多个 ParseError。
// 任一结构缺陷即整批失败，不产出部分结果——半封印的文档会静默
// 通过后续校验，必须杜绝。
type StructuralError struct {
	Errs []ParseError
}

func (e *StructuralError) Error() string {
	ss := make([]string, 0, len(e.Errs))
	for _, pe := range e.Errs {
		ss = append(ss, pe.Error())
	}
	return "structural error: " + strings.Join(ss, "; ")
}

// Unwrap 暴露逐条诊断，便于 errors.Is/As 检视。
func (e *StructuralError) Unwrap() []error {
	out := make([]error, len(e.Errs))
	for i, pe := range e.Errs {
		out[i] = pe
	}
	return out
}

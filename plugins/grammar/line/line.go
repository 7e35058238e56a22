package line

import (
	"regexp"
	"strings"

	"sealkit/pkg/contract"
)

// Options 为行注释文法的可选配置（最小必要）。
type Options struct {
	// CommentToken: 宿主语言的行注释词法（如 "#"、"//"、"--"）。
	// 默认 "#"。核心将其视为不透明前缀，按字面量转义后参与匹配。
	CommentToken string `json:"comment_token"`
}

// Grammar 以单行匹配识别封印标记。
// 文法（与宿主插件/其他工具互操作，必须逐字符一致）：
//
//	<注释词法> sealed: (on|🡻)[ <token>]   —— 起始
//	<注释词法> sealed: (off|🡹)[ <token>]  —— 结束
//
// sealed 词可写作 sealed/Sealed/SEALED；分隔符可为 ':' 或空白；
// 允许行首缩进；箭头字形与词形互为同义词，含义从不混用。
// 标记行必须整行匹配：on/off 词后只允许空白分隔的残余字段。
type Grammar struct {
	start *regexp.Regexp
	end   *regexp.Regexp
}

// New 按注释词法编译文法。
func New(opts *Options) (*Grammar, error) {
	tok := "#"
	if opts != nil && strings.TrimSpace(opts.CommentToken) != "" {
		tok = strings.TrimSpace(opts.CommentToken)
	}
	q := regexp.QuoteMeta(tok)
	start, err := regexp.Compile(`^(\s*` + q + `\s*(?:sealed|Sealed|SEALED)\s*(?::|\s)\s*(?:on|On|ON|🡻))(\s*|\s+.*)?$`)
	if err != nil {
		return nil, err
	}
	end, err := regexp.Compile(`^(\s*` + q + `\s*(?:sealed|Sealed|SEALED)\s*(?::|\s)\s*(?:off|Off|OFF|🡹))(\s*|\s+.*)?$`)
	if err != nil {
		return nil, err
	}
	return &Grammar{start: start, end: end}, nil
}

var _ contract.Grammar = (*Grammar)(nil)

// Match 识别标记行；见 contract.Grammar。
func (g *Grammar) Match(s string) (contract.MarkerKind, string, string, bool) {
	if m := g.start.FindStringSubmatch(s); m != nil {
		return contract.MarkerStart, m[1], strings.TrimSpace(m[2]), true
	}
	if m := g.end.FindStringSubmatch(s); m != nil {
		return contract.MarkerEnd, m[1], strings.TrimSpace(m[2]), true
	}
	return 0, "", "", false
}

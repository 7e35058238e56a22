package fingerprint

import (
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"

	"sealkit/pkg/contract"
)

// Compute 计算区域体的指纹令牌。
// 归一：仅去除每行行尾空白；行首空白与空行是语义显著的源文本，保留。
// 归一行以 "\n" 连接为 UTF-8 字节串，取 BLAKE3-256，令牌为前 4 字节的
// 小写 hex 展开（8 字符）。对行序敏感：交换任意两个不同行必然改变令牌。
func Compute(body []string) contract.Token {
	norm := make([]string, len(body))
	for i, l := range body {
		norm[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	sum := blake3.Sum256([]byte(strings.Join(norm, "\n")))
	return contract.Token(hex.EncodeToString(sum[:contract.TokenLen/2]))
}

// Verify 将声明令牌与当前内容的新鲜计算结果比对。
// 两端标记令牌不一致或残缺，本身即 MismatchMarkers——与内容篡改
// 是不同的子情形，但同样判为“未保全”。
func Verify(r contract.Region) contract.MatchResult {
	if r.Start.TokenMalformed || r.End.TokenMalformed {
		return contract.MismatchMarkers
	}
	if r.Start.Token == "" && r.End.Token == "" {
		return contract.NoDeclaredToken
	}
	if r.Start.Token != r.End.Token {
		return contract.MismatchMarkers
	}
	if Compute(r.Body) != r.Start.Token {
		return contract.MismatchContent
	}
	return contract.Match
}

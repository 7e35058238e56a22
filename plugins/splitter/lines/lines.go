// Package lines 实现逐行 Splitter：把字节流拆成行序列，供标记解析消费。
package lines

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"sealkit/pkg/contract"
)

// Options 为 Lines Splitter 的可选配置（最小必要）。
type Options struct {
	// MaxBytes: 单文档最大字节数。0 表示不限制。
	MaxBytes int `json:"max_bytes"`
}

// Splitter 实现逐行拆分。
type Splitter struct {
	maxBytes int
}

// New 创建 Lines Splitter。
func New(opts *Options) *Splitter {
	mb := 0
	if opts != nil && opts.MaxBytes > 0 {
		mb = opts.MaxBytes
	}
	return &Splitter{maxBytes: mb}
}

var _ contract.Splitter = (*Splitter)(nil)

// Split 读入整个字节流并拆成行。
// 换行归一 CRLF→LF（回写统一 LF）；末尾换行是否存在记入 FinalNewline，
// 行序列本身不含换行符。非法 UTF-8 快速失败（包 ErrInvalidInput）。
// 空字节流 → 零行；单个 "\n" → 一个空行 + FinalNewline。
func (s *Splitter) Split(ctx context.Context, fileID contract.FileID, r io.Reader) (contract.Document, error) {
	select {
	case <-ctx.Done():
		return contract.Document{}, ctx.Err()
	default:
	}

	var src io.Reader = r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, int64(s.maxBytes)+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return contract.Document{}, fmt.Errorf("read %s: %w", fileID, err)
	}
	if s.maxBytes > 0 && len(raw) > s.maxBytes {
		return contract.Document{}, fmt.Errorf("document too large: %s exceeds %d bytes: %w", fileID, s.maxBytes, contract.ErrInvalidInput)
	}
	if !utf8.Valid(raw) {
		return contract.Document{}, fmt.Errorf("invalid UTF-8: %s: %w", fileID, contract.ErrInvalidInput)
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	doc := contract.Document{FileID: fileID}
	if text == "" {
		return doc, nil
	}
	if strings.HasSuffix(text, "\n") {
		doc.FinalNewline = true
		text = text[:len(text)-1]
	}
	doc.Lines = strings.Split(text, "\n")
	return doc, nil
}

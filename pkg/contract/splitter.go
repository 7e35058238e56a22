package contract

import (
	"context"
	"io"
)

// Splitter: 将单文件字节流拆分为有序行序列。
// 约束：
// 1) 仅做 CRLF→LF 的最小必要归一与 UTF-8 校验，不做业务清洗；
// 2) 记录字节流是否以换行收尾（供回写保真）；
// 3) 无内部并发、幂等。
type Splitter interface {
	Split(ctx context.Context, fileID FileID, r io.Reader) (Document, error)
}

// Package stdout 实现标准输出 Writer：把封印后的文档字节原样写到 STDOUT。
// 非改写式工作流（预览、管道续接）的默认出口。
package stdout

import (
	"context"
	"io"
	"os"

	"sealkit/pkg/contract"
)

// Options: 目前无可配置项，保留以统一插件构造形态。
type Options struct{}

type Writer struct{}

// New 创建标准输出 Writer。
func New(opts *Options) *Writer {
	_ = opts
	return &Writer{}
}

var _ contract.Writer = (*Writer)(nil)

// Write 将 r 的全部字节拷贝到 os.Stdout。
// os.Stdout 在每次 Write 时解引，调用方可在进程内替换以捕获输出。
func (w *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := io.Copy(os.Stdout, r)
	return err
}

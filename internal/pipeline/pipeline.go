package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"sealkit/internal/diag"
	"sealkit/internal/fingerprint"
	"sealkit/internal/marker"
	"sealkit/internal/seal"
	"sealkit/pkg/contract"
)

// - 单点并发：仅此层管理并发与背压；原子组件均为同步、无内部并发。
// - 先验后写：全部文档处理完并确认无错后才开始提交，任一文档失败则
//   整批零写出（封印不产出半成品）。
// - 提交按输入顺序串行，输出稳定。
// - 首错取消：任一文档出错，记录首错并 cancel 整体；排空后返回该错误。

// Mode 指定流水线运行语义。
type Mode int

const (
	// ModeSeal: 重算令牌并改写标记行，经 Writer 落盘。
	ModeSeal Mode = iota
	// ModeVerify: 只读校验，产出报告，不触碰 Writer。
	ModeVerify
)

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader   contract.Reader
	Splitter contract.Splitter
	Grammar  contract.Grammar
	Writer   contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs      []string
	Concurrency int
	Mode        Mode
}

// Report 为单文档的处理结论。
type Report struct {
	FileID    contract.FileID
	Regions   []contract.RegionInfo
	ParseErrs []contract.ParseError
}

// Clean 判定文档是否通过校验：无解析诊断且无 Broken 区域。
// 未封印区域不破坏洁净（封印缺席不是篡改证据）。
func (r Report) Clean() bool {
	if len(r.ParseErrs) != 0 {
		return false
	}
	for _, ri := range r.Regions {
		if ri.Status == contract.StatusBroken {
			return false
		}
	}
	return true
}

// Run 执行完整流水线：Reader → Splitter → (seal|verify) → Writer。
// 返回按输入顺序排列的逐文档报告。
// 约束：
// - 所有组件均为同步实现；
// - 文档级并发受 Concurrency 控制；
// - ModeSeal 下先全量处理、后按输入顺序提交；任一失败则零写出。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]Report, error) {
	if err := sanity(comp, set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 收集阶段：遍历 + 拆分，保持输入顺序。
	rtimer := (*diag.Timer)(nil)
	if logger != nil {
		rtimer = logger.Start("reader", "iterate")
	}
	var docs []contract.Document
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		stimer := (*diag.Timer)(nil)
		if logger != nil {
			stimer = logger.StartWith("splitter", "split", string(fid))
		}
		doc, err := comp.Splitter.Split(ctx, fid, rc)
		if err != nil {
			if logger != nil {
				logger.ErrorWith("splitter", string(diag.Classify(err)), "split failed", nil, string(fid))
			}
			return fmt.Errorf("splitter split: %w", err)
		}
		if stimer != nil {
			stimer.Finish("split", int64(len(doc.Lines)))
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		if logger != nil {
			logger.Error("reader", string(diag.Classify(err)), "iterate failed", nil)
		}
		return nil, fmt.Errorf("reader iterate: %w", err)
	}
	if rtimer != nil {
		rtimer.Finish("iterate", int64(len(docs)))
	}

	// 处理阶段：文档级并发，首错取消，全部排空后统一裁决。
	type res struct {
		idx    int
		sealed []string
		report Report
		err    error
	}
	nWorkers := set.Concurrency
	if nWorkers < 1 {
		nWorkers = 1
	}
	inCh := make(chan int, nWorkers*2)
	outCh := make(chan res, nWorkers*2)

	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for i := range inCh {
			doc := docs[i]
			select {
			case <-ctx.Done():
				outCh <- res{idx: i, err: ctx.Err()}
				continue
			default:
			}
			switch set.Mode {
			case ModeSeal:
				timer := (*diag.Timer)(nil)
				if logger != nil {
					timer = logger.StartWith("sealer", "seal", string(doc.FileID))
				}
				out, err := seal.Seal(doc.Lines, comp.Grammar)
				if err != nil {
					if logger != nil {
						logger.ErrorWith("sealer", string(diag.Classify(err)), "seal failed", nil, string(doc.FileID))
					}
					outCh <- res{idx: i, err: fmt.Errorf("seal %s: %w", doc.FileID, err)}
					continue
				}
				rep := inspect(doc.FileID, out, comp.Grammar)
				if timer != nil {
					timer.Finish("seal", int64(len(rep.Regions)))
				}
				outCh <- res{idx: i, sealed: out, report: rep}
			case ModeVerify:
				timer := (*diag.Timer)(nil)
				if logger != nil {
					timer = logger.StartWith("verifier", "verify", string(doc.FileID))
				}
				rep := inspect(doc.FileID, doc.Lines, comp.Grammar)
				if timer != nil {
					timer.Finish("verify", int64(len(rep.Regions)))
				}
				outCh <- res{idx: i, report: rep}
			}
		}
	}
	wg.Add(nWorkers)
	for i := 0; i < nWorkers; i++ {
		go worker()
	}
	go func() {
		defer close(inCh)
		for i := range docs {
			select {
			case <-ctx.Done():
				return
			case inCh <- i:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outCh)
	}()

	sealedByIdx := make([][]string, len(docs))
	reports := make([]Report, len(docs))
	seen := make([]bool, len(docs))
	errByIdx := make([]error, len(docs))
	var anyErr bool
	for r := range outCh {
		if r.err != nil {
			errByIdx[r.idx] = r.err
			if !anyErr {
				anyErr = true
				cancel()
				// 不立刻 return，继续排空 outCh
			}
			continue
		}
		sealedByIdx[r.idx] = r.sealed
		reports[r.idx] = r.report
		seen[r.idx] = true
	}
	if anyErr {
		// 按输入顺序取首个实质错误，裁决确定性；取消噪声（cancel 之后
		// 其余文档的 ctx.Err）不得遮蔽真实首错。
		var fallback error
		for _, e := range errByIdx {
			if e == nil {
				continue
			}
			if !errors.Is(e, context.Canceled) {
				return nil, e
			}
			if fallback == nil {
				fallback = e
			}
		}
		return nil, fallback
	}
	for i := range docs {
		if !seen[i] {
			return nil, fmt.Errorf("document %s not processed: %w", docs[i].FileID, contract.ErrInvariantViolation)
		}
	}

	// 提交阶段：仅 ModeSeal；按输入顺序串行写出。
	if set.Mode == ModeSeal {
		for i, doc := range docs {
			wtimer := (*diag.Timer)(nil)
			if logger != nil {
				wtimer = logger.StartWith("writer", "write", string(doc.FileID))
			}
			payload := join(sealedByIdx[i], doc.FinalNewline)
			if err := comp.Writer.Write(ctx, contract.ArtifactID(doc.FileID), strings.NewReader(payload)); err != nil {
				if logger != nil {
					logger.ErrorWith("writer", string(diag.Classify(err)), "write failed", nil, string(doc.FileID))
				}
				return nil, fmt.Errorf("writer write: %w", err)
			}
			if wtimer != nil {
				wtimer.Finish("write", int64(len(payload)))
			}
		}
	}
	return reports, nil
}

// inspect 对行序列做全量解析 + 指纹校验，生成报告。
func inspect(fid contract.FileID, lines []string, g contract.Grammar) Report {
	regions, errs := marker.Parse(lines, g)
	rep := Report{FileID: fid, ParseErrs: errs}
	for _, r := range regions {
		st := contract.StatusUnsealed
		switch m := fingerprint.Verify(r); {
		case m == contract.Match:
			st = contract.StatusIntact
		case m != contract.NoDeclaredToken:
			st = contract.StatusBroken
		}
		rep.Regions = append(rep.Regions, contract.RegionInfo{
			StartLine: r.Start.Line,
			EndLine:   r.End.Line,
			Token:     r.Start.Token,
			Status:    st,
		})
	}
	return rep
}

// join 将行序列还原为字节流；FinalNewline 保真。
func join(lines []string, finalNewline bool) string {
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, "\n")
	if finalNewline {
		s += "\n"
	}
	return s
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Splitter == nil || c.Grammar == nil {
		return errors.New("pipeline: missing components")
	}
	if s.Mode == ModeSeal && c.Writer == nil {
		return errors.New("pipeline: missing writer")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}

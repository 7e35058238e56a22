package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"sealkit/internal/seal"
	"sealkit/pkg/contract"
	"sealkit/plugins/grammar/line"
	"sealkit/plugins/splitter/lines"
)

// 通用桩件 ----------------------------------------------------

type memReader struct {
	ids  []contract.FileID
	data map[contract.FileID]string
}

func (m *memReader) Iterate(ctx context.Context, roots []string, yield func(contract.FileID, io.ReadCloser) error) error {
	for _, id := range m.ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := yield(id, io.NopCloser(strings.NewReader(m.data[id]))); err != nil {
			return err
		}
	}
	return nil
}

type memWriter struct {
	mu     sync.Mutex
	order  []contract.ArtifactID
	output map[contract.ArtifactID]string
}

func newMemWriter() *memWriter {
	return &memWriter{output: make(map[contract.ArtifactID]string)}
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.order = append(w.order, id)
	w.output[id] = string(b)
	return nil
}

func grammar(t *testing.T) contract.Grammar {
	t.Helper()
	g, err := line.New(nil)
	if err != nil {
		t.Fatalf("grammar: %v", err)
	}
	return g
}

func components(t *testing.T, r contract.Reader, w contract.Writer) Components {
	t.Helper()
	return Components{Reader: r, Splitter: lines.New(nil), Grammar: grammar(t), Writer: w}
}

// sealText 为测试构造预期的封印输出。
func sealText(t *testing.T, text string) string {
	t.Helper()
	doc, err := lines.New(nil).Split(context.Background(), "x", strings.NewReader(text))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	out, err := seal.Seal(doc.Lines, grammar(t))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	s := strings.Join(out, "\n")
	if doc.FinalNewline {
		s += "\n"
	}
	return s
}

// TestRunSealBasic 多文档封印：输出按输入顺序提交，末尾换行保真。
func TestRunSealBasic(t *testing.T) {
	a := "# sealed: on\nx = 1\n# sealed: off\n"
	b := "free\n# sealed: on\ny\n# sealed: off" // 无末尾换行
	r := &memReader{ids: []contract.FileID{"a.py", "b.py"}, data: map[contract.FileID]string{"a.py": a, "b.py": b}}
	w := newMemWriter()

	reports, err := Run(context.Background(), components(t, r, w), Settings{Inputs: []string{"in"}, Concurrency: 2, Mode: ModeSeal}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reports) != 2 || reports[0].FileID != "a.py" || reports[1].FileID != "b.py" {
		t.Fatalf("reports=%+v", reports)
	}
	for _, rep := range reports {
		if !rep.Clean() || len(rep.Regions) != 1 || rep.Regions[0].Status != contract.StatusIntact {
			t.Fatalf("report %s: %+v", rep.FileID, rep)
		}
	}
	if len(w.order) != 2 || w.order[0] != "a.py" || w.order[1] != "b.py" {
		t.Fatalf("write order %v", w.order)
	}
	if w.output["a.py"] != sealText(t, a) {
		t.Fatalf("a.py 输出不符:\n%q", w.output["a.py"])
	}
	if w.output["b.py"] != sealText(t, b) {
		t.Fatalf("b.py 输出不符:\n%q", w.output["b.py"])
	}
	if strings.HasSuffix(w.output["b.py"], "\n") {
		t.Fatalf("b.py 不应追加末尾换行")
	}
}

// TestRunSealStructuralErrorZeroWrites 任一文档结构缺陷 → 整批零写出。
func TestRunSealStructuralErrorZeroWrites(t *testing.T) {
	r := &memReader{
		ids: []contract.FileID{"good.py", "bad.py"},
		data: map[contract.FileID]string{
			"good.py": "# sealed: on\nx\n# sealed: off\n",
			"bad.py":  "x\n# sealed: off\n",
		},
	}
	w := newMemWriter()
	_, err := Run(context.Background(), components(t, r, w), Settings{Inputs: []string{"in"}, Concurrency: 2, Mode: ModeSeal}, nil)
	var se *contract.StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v", err)
	}
	if len(w.order) != 0 {
		t.Fatalf("不应有任何写出: %v", w.order)
	}
}

// TestRunVerify 校验模式：只读报告，不触碰 Writer。
func TestRunVerify(t *testing.T) {
	intact := sealText(t, "# sealed: on\na\n# sealed: off\n")
	tampered := strings.Replace(intact, "a", "A", 1)
	r := &memReader{
		ids: []contract.FileID{"ok.py", "bad.py", "junk.py", "plain.py"},
		data: map[contract.FileID]string{
			"ok.py":    intact,
			"bad.py":   tampered,
			"junk.py":  "# sealed: on obsolete\nx\n# sealed: off obsolete\n",
			"plain.py": "no regions here\n",
		},
	}
	w := newMemWriter()
	reports, err := Run(context.Background(), components(t, r, w), Settings{Inputs: []string{"in"}, Concurrency: 4, Mode: ModeVerify}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(w.order) != 0 {
		t.Fatalf("verify 不应写出: %v", w.order)
	}
	if !reports[0].Clean() || reports[0].Regions[0].Status != contract.StatusIntact {
		t.Fatalf("ok.py: %+v", reports[0])
	}
	if reports[1].Clean() || reports[1].Regions[0].Status != contract.StatusBroken {
		t.Fatalf("bad.py: %+v", reports[1])
	}
	// 垃圾令牌：区域 Broken 且带 MalformedToken 诊断
	if reports[2].Clean() || reports[2].Regions[0].Status != contract.StatusBroken || len(reports[2].ParseErrs) == 0 {
		t.Fatalf("junk.py: %+v", reports[2])
	}
	if !reports[3].Clean() || len(reports[3].Regions) != 0 {
		t.Fatalf("plain.py: %+v", reports[3])
	}
}

// TestRunVerifyStructural 结构缺陷在校验模式下是报告，不是运行错误。
func TestRunVerifyStructural(t *testing.T) {
	r := &memReader{ids: []contract.FileID{"bad.py"}, data: map[contract.FileID]string{"bad.py": "# sealed: on\nx\n"}}
	reports, err := Run(context.Background(), components(t, r, newMemWriter()), Settings{Inputs: []string{"in"}, Concurrency: 1, Mode: ModeVerify}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reports[0].Clean() || len(reports[0].ParseErrs) != 1 || reports[0].ParseErrs[0].Kind != contract.UnterminatedRegion {
		t.Fatalf("report: %+v", reports[0])
	}
}

// TestRunManyFilesOrdered 并发处理大量文件，报告与写出保持输入顺序。
func TestRunManyFilesOrdered(t *testing.T) {
	r := &memReader{data: make(map[contract.FileID]string)}
	for i := 0; i < 50; i++ {
		id := contract.FileID(fmt.Sprintf("f%03d.py", i))
		r.ids = append(r.ids, id)
		r.data[id] = fmt.Sprintf("# sealed: on\nv = %d\n# sealed: off\n", i)
	}
	w := newMemWriter()
	reports, err := Run(context.Background(), components(t, r, w), Settings{Inputs: []string{"in"}, Concurrency: 4, Mode: ModeSeal}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reports) != 50 || len(w.order) != 50 {
		t.Fatalf("reports=%d writes=%d", len(reports), len(w.order))
	}
	for i, id := range r.ids {
		if reports[i].FileID != id || w.order[i] != contract.ArtifactID(id) {
			t.Fatalf("order broken at %d: %s %s", i, reports[i].FileID, w.order[i])
		}
		if w.output[contract.ArtifactID(id)] != sealText(t, r.data[id]) {
			t.Fatalf("output mismatch for %s", id)
		}
	}
}

// TestRunSanity 组件/输入缺失。
func TestRunSanity(t *testing.T) {
	if _, err := Run(context.Background(), Components{}, Settings{Inputs: []string{"x"}}, nil); err == nil {
		t.Fatalf("缺组件应报错")
	}
	comp := components(t, &memReader{}, newMemWriter())
	if _, err := Run(context.Background(), comp, Settings{}, nil); err == nil {
		t.Fatalf("空输入应报错")
	}
	comp.Writer = nil
	if _, err := Run(context.Background(), comp, Settings{Inputs: []string{"x"}, Mode: ModeSeal}, nil); err == nil {
		t.Fatalf("seal 模式缺 Writer 应报错")
	}
	// verify 模式不需要 Writer
	if _, err := Run(context.Background(), comp, Settings{Inputs: []string{"x"}, Mode: ModeVerify}, nil); err != nil {
		t.Fatalf("verify 无 Writer: %v", err)
	}
}

// TestRunCanceled 已取消的 ctx。
func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &memReader{ids: []contract.FileID{"a"}, data: map[contract.FileID]string{"a": "x"}}
	_, err := Run(ctx, components(t, r, newMemWriter()), Settings{Inputs: []string{"in"}, Concurrency: 1, Mode: ModeSeal}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

// TestReportClean Clean 判定。
func TestReportClean(t *testing.T) {
	if !(Report{}).Clean() {
		t.Fatalf("空报告应洁净")
	}
	r := Report{Regions: []contract.RegionInfo{{Status: contract.StatusIntact}, {Status: contract.StatusUnsealed}}}
	if !r.Clean() {
		t.Fatalf("intact+unsealed 应洁净")
	}
	r.Regions = append(r.Regions, contract.RegionInfo{Status: contract.StatusBroken})
	if r.Clean() {
		t.Fatalf("broken 不洁净")
	}
	if (Report{ParseErrs: []contract.ParseError{{Kind: contract.MalformedToken}}}).Clean() {
		t.Fatalf("解析诊断不洁净")
	}
}

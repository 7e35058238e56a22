package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "sealkit/internal/config"
	"sealkit/internal/pipeline"
	"sealkit/internal/seal"
	"sealkit/pkg/contract"
	"sealkit/pkg/guard"
	"sealkit/plugins/grammar/line"
)

// genSource 生成含 n 个封印区域的源文件内容。
func genSource(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "# sealed: on\nregion_%d = %d\nvalue_%d = %d\n# sealed: off\nfree_%d = 0\n", i, i, i, i*i, i)
	}
	return sb.String()
}

// baseConfig 构造可运行的最小配置。
func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.Defaults()
	cfg.Inputs = []string{input}
	cfg.Components.Writer = "fs"
	cfg.Logging.Level = "error"
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"flat":true}`, outDir))
	return cfg
}

// runPipeline 执行完整流水线。
func runPipeline(t *testing.T, cfg cfgpkg.Config, mode pipeline.Mode) error {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(cfg, mode)
	if err != nil {
		return err
	}
	_, err = pipeline.Run(context.Background(), comp, set, nil)
	return err
}

// TestStressSeal 在不同并发度下封印多文件树并记录延迟统计。
func TestStressSeal(t *testing.T) {
	if testing.Short() {
		t.Skip("short 模式跳过压力测试")
	}
	body := genSource(200)
	levels := []int{1, 8, 16, 32}
	for _, conc := range levels {
		t.Run(fmt.Sprintf("concurrency_%d", conc), func(t *testing.T) {
			const runs = 3
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				dataDir := t.TempDir()
				for j := 0; j < 32; j++ {
					p := filepath.Join(dataDir, fmt.Sprintf("f%02d.py", j))
					if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
						t.Fatalf("write: %v", err)
					}
				}
				outDir := t.TempDir()
				cfg := baseConfig(dataDir, outDir)
				cfg.Concurrency = conc

				start := time.Now()
				err := runPipeline(t, cfg, pipeline.ModeSeal)
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			p95 := latencies[idx]
			t.Logf("并发%d 成功率%.2f 平均%v 95%%延迟%v", conc, float64(successes)/float64(runs), avg, p95)
		})
	}
}

// TestStressGuardConsistency 对带多区域的缓冲施加大量随机编辑：
// 被接受的编辑逐一应用并同步行号；每轮之后全量重扫，守护持有的
// 区域快照必须与重扫结果一致（增量跟踪不得漂移）。
func TestStressGuardConsistency(t *testing.T) {
	g, err := line.New(nil)
	if err != nil {
		t.Fatalf("grammar: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(genSource(50), "\n"), "\n")
	sealed, err := seal.Seal(lines, g)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	gd := guard.New(g)
	if errs := gd.Load(sealed); len(errs) != 0 {
		t.Fatalf("load: %v", errs)
	}
	buf := append([]string(nil), sealed...)

	rng := rand.New(rand.NewSource(7))
	accepted, rejected := 0, 0
	for i := 0; i < 2000; i++ {
		ln := rng.Intn(len(buf))
		switch rng.Intn(3) {
		case 0: // 整行插入
			span := contract.Span{Start: contract.Pos{Line: ln, Col: 0}, End: contract.Pos{Line: ln, Col: 0}}
			v, err := gd.ValidateEdit(span, "inserted = 1\n")
			if err != nil {
				t.Fatalf("edit %d: %v", i, err)
			}
			if v.Accepted {
				accepted++
				buf = append(buf[:ln], append([]string{"inserted = 1"}, buf[ln:]...)...)
			} else {
				rejected++
			}
		case 1: // 整行删除
			if ln+1 >= len(buf) {
				continue
			}
			span := contract.Span{Start: contract.Pos{Line: ln, Col: 0}, End: contract.Pos{Line: ln + 1, Col: 0}}
			v, err := gd.ValidateEdit(span, "")
			if err != nil {
				t.Fatalf("edit %d: %v", i, err)
			}
			if v.Accepted {
				accepted++
				buf = append(buf[:ln], buf[ln+1:]...)
			} else {
				rejected++
			}
		case 2: // 行内追加
			span := contract.Span{Start: contract.Pos{Line: ln, Col: len(buf[ln])}, End: contract.Pos{Line: ln, Col: len(buf[ln])}}
			v, err := gd.ValidateEdit(span, "x")
			if err != nil {
				t.Fatalf("edit %d: %v", i, err)
			}
			if v.Accepted {
				accepted++
				buf[ln] += "x"
			} else {
				rejected++
			}
		}

		// 周期性对照全量重扫
		if i%100 == 99 {
			got := gd.Regions()
			fresh := guard.New(g)
			if errs := fresh.Load(buf); len(errs) != 0 {
				t.Fatalf("rescan %d: %v", i, errs)
			}
			want := fresh.Regions()
			if len(got) != len(want) {
				t.Fatalf("edit %d: 区域数漂移 got=%d want=%d", i, len(got), len(want))
			}
			for j := range got {
				if got[j].StartLine != want[j].StartLine || got[j].EndLine != want[j].EndLine {
					t.Fatalf("edit %d region %d: got=%+v want=%+v", i, j, got[j], want[j])
				}
			}
		}
	}
	if accepted == 0 || rejected == 0 {
		t.Fatalf("压力组合退化: accepted=%d rejected=%d", accepted, rejected)
	}

	// 终局：区域体从未被触碰，全部仍保全
	fresh := guard.New(g)
	if errs := fresh.Load(buf); len(errs) != 0 {
		t.Fatalf("final load: %v", errs)
	}
	for _, ri := range fresh.Regions() {
		if ri.Status != contract.StatusIntact {
			t.Fatalf("区域 %d-%d 状态 %s", ri.StartLine, ri.EndLine, ri.Status)
		}
	}
}

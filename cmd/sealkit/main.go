package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	cfgpkg "sealkit/internal/config"
	"sealkit/internal/diag"
	"sealkit/internal/pipeline"
	"sealkit/pkg/contract"
)

var pipelineRun = pipeline.Run

// cli 定义命令面：seal / verify / init-config。
// 位置参数为 roots（文件/目录 或 "-" 表示 STDIN，不能与其他根混用）。
// 优先级：CLI > ENV > 配置文件 > 默认值。
type cli struct {
	Config      string `help:"配置文件路径（JSON 或 YAML）；缺省读取 ./sealkit.json（若存在）" type:"path"`
	Concurrency int    `help:"并发度（覆盖配置）"`
	LogLevel    string `name:"log-level" help:"日志级别 debug|info|error（覆盖配置）"`

	Seal       sealCmd       `cmd:"" help:"重算区域令牌并改写标记行"`
	Verify     verifyCmd     `cmd:"" help:"只读校验封印区域，输出逐文件结论"`
	InitConfig initConfigCmd `cmd:"" name:"init-config" help:"在指定目录生成默认配置模板（不覆盖已存在文件）"`
}

type sealCmd struct {
	Write     bool     `short:"w" help:"原位回写（默认写到标准输出）"`
	OutputDir string   `short:"o" help:"输出目录（与 -w 互斥）" type:"path"`
	Paths     []string `arg:"" optional:"" help:"文件或目录；'-' 读取 STDIN"`
}

type verifyCmd struct {
	Paths []string `arg:"" optional:"" help:"文件或目录；'-' 读取 STDIN"`
}

type initConfigCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"目标目录（默认当前目录）"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	start := time.Now()
	var c cli
	parser, err := kong.New(&c,
		kong.Name("sealkit"),
		kong.Description("Sealed-region text protection: tamper-evident fingerprints for marked code blocks"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "CLI 构建失败: %v\n", err)
		return 3
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "参数解析失败: %v\n", err)
		return 3
	}
	cmd := kctx.Command()
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		cmd = cmd[:i]
	}

	// init-config: 生成模板并退出，不加载既有配置。
	if cmd == "init-config" {
		return c.InitConfig.run(stdout, stderr)
	}

	corrID := uuid.NewString()
	logger := diag.NewLogger(corrID, "info")

	cfg, code := loadConfig(c, stderr)
	if code != 0 {
		logger.Error("cli", string(diag.CodeInvariant), "config load failed", &start)
		return code
	}

	var mode pipeline.Mode
	var roots []string
	switch cmd {
	case "seal":
		mode = pipeline.ModeSeal
		roots = c.Seal.Paths
		over, err := c.Seal.overlay()
		if err != nil {
			fmt.Fprintf(stderr, "参数冲突: %v\n", err)
			return 3
		}
		cfg = cfgpkg.Merge(cfg, over)
	case "verify":
		mode = pipeline.ModeVerify
		roots = c.Verify.Paths
	default:
		fmt.Fprintf(stderr, "未知命令: %s\n", cmd)
		return 3
	}
	if len(roots) > 0 {
		cfg = cfgpkg.Merge(cfg, cfgpkg.Config{Inputs: roots})
	}

	if err := cfgpkg.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "配置校验失败: %v\n", err)
		dumpConfig(stderr, cfg)
		logger.Error("cli", string(diag.CodeInvariant), "config invalid", &start)
		return 3
	}

	// 使用最终配置中的日志级别重建 logger
	logger = diag.NewLogger(corrID, cfg.Logging.Level)

	comp, set, err := cfgpkg.Assemble(cfg, mode)
	if err != nil {
		fmt.Fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("cli", string(diag.Classify(err)), "assemble failed", &start)
		return 3
	}

	t := logger.Start("pipeline", "run")
	reports, err := pipelineRun(context.Background(), comp, set, logger)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		printRunError(stderr, err)
		return 1
	}
	t.Finish("run", int64(len(reports)))

	if mode == pipeline.ModeVerify {
		return printVerify(stdout, reports, logger)
	}
	// seal: 逐文件汇报改写结果（stderr，正文可能占用 stdout）
	for _, rep := range reports {
		fmt.Fprintf(stderr, "sealed %s: %d region(s)\n", rep.FileID, len(rep.Regions))
	}
	return 0
}

// overlay 将 seal 子命令旗标翻译为配置覆盖。
func (s sealCmd) overlay() (cfgpkg.Config, error) {
	var over cfgpkg.Config
	if s.Write && s.OutputDir != "" {
		return over, errors.New("-w 与 -o 不能同时使用")
	}
	if s.Write {
		over.Components.Writer = "fs"
		over.Options.Writer = json.RawMessage(`{"in_place":true}`)
	}
	if s.OutputDir != "" {
		over.Components.Writer = "fs"
		b, err := json.Marshal(struct {
			OutputDir string `json:"output_dir"`
		}{s.OutputDir})
		if err != nil {
			return over, err
		}
		over.Options.Writer = b
	}
	return over, nil
}

func (ic initConfigCmd) run(stdout, stderr io.Writer) int {
	dir := strings.TrimSpace(ic.Dir)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "生成默认配置失败: %v\n", err)
		return 3
	}
	path := filepath.Join(dir, "sealkit.json")
	if err := writeConfig(path, cfgpkg.DefaultTemplateConfig()); err != nil {
		fmt.Fprintf(stderr, "生成默认配置失败: %v\n", err)
		return 3
	}
	fmt.Fprintf(stdout, "已生成 %s\n", path)
	return 0
}

// loadConfig 按优先级组装有效配置（不含子命令覆盖）。
func loadConfig(c cli, stderr io.Writer) (cfgpkg.Config, int) {
	cfg := cfgpkg.Defaults()

	// 配置来源：--config > ENV 文件指针 > ./sealkit.json（若存在）
	path := c.Config
	var raw []byte
	if s := os.Getenv("SEALKIT_CONFIG_JSON"); s != "" && path == "" {
		raw = []byte(s)
	}
	if path == "" && raw == nil {
		if s := os.Getenv("SEALKIT_CONFIG_FILE"); s != "" {
			path = s
		}
	}
	if path == "" && raw == nil {
		if _, err := os.Stat("sealkit.json"); err == nil {
			path = "sealkit.json"
		}
	}
	if path != "" || raw != nil {
		base, err := cfgpkg.Load(path, raw)
		if err != nil {
			fmt.Fprintf(stderr, "配置解析失败: %v\n", err)
			return cfg, 3
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	// ENV 覆盖
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fmt.Fprintf(stderr, "环境变量解析失败: %v\n", err)
		return cfg, 3
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// 全局旗标覆盖
	var overCLI cfgpkg.Config
	if c.Concurrency > 0 {
		overCLI.Concurrency = c.Concurrency
	}
	if strings.TrimSpace(c.LogLevel) != "" {
		overCLI.Logging.Level = c.LogLevel
	}
	cfg = cfgpkg.Merge(cfg, overCLI)
	return cfg, 0
}

// printVerify 输出逐文件校验结论；任一文件不洁净则整体判败。
func printVerify(stdout io.Writer, reports []pipeline.Report, logger *diag.Logger) int {
	exit := 0
	for _, rep := range reports {
		verdict := "ok"
		if !rep.Clean() {
			verdict = "FAIL"
			exit = 1
		}
		fmt.Fprintf(stdout, "%s: %s (%d region(s))\n", rep.FileID, verdict, len(rep.Regions))
		for _, ri := range rep.Regions {
			if ri.Status == contract.StatusIntact {
				continue
			}
			fmt.Fprintf(stdout, "  line %d-%d: %s\n", ri.StartLine+1, ri.EndLine+1, ri.Status)
		}
		for _, pe := range rep.ParseErrs {
			fmt.Fprintf(stdout, "  %s\n", pe.Error())
			logger.Warnf("verifier", string(rep.FileID), pe.Kind.String(), map[string]string{"line": fmt.Sprintf("%d", pe.Line+1)})
		}
	}
	return exit
}

// printRunError 将运行错误翻译为用户可读输出；结构缺陷逐条展开。
func printRunError(stderr io.Writer, err error) {
	var se *contract.StructuralError
	if errors.As(err, &se) {
		fmt.Fprintf(stderr, "封印中止（结构缺陷，未写出任何文件）:\n")
		for _, pe := range se.Errs {
			fmt.Fprintf(stderr, "  %s\n", pe.Error())
		}
		return
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "运行失败: %v\n", err)
	}
}

func dumpConfig(stderr io.Writer, c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(stderr, "有效配置:\n%s\n", b)
}

// writeConfig 以 O_EXCL 写出模板；不覆盖已存在文件。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

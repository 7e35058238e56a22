package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sealkit/internal/pipeline"
	"sealkit/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "error", "info", "debug":
	default:
		return fmt.Errorf("config: unknown log level %q", cfg.Logging.Level)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults()
	wn := effName(cfg.Components.Writer, d.Components.Writer)
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Splitter, d.Components.Splitter); registry.Splitter[name] == nil {
		return fmt.Errorf("config: splitter %q not registered", name)
	}
	if name := effName(cfg.Components.Grammar, d.Components.Grammar); registry.Grammar[name] == nil {
		return fmt.Errorf("config: grammar %q not registered", name)
	}
	if registry.Writer[wn] == nil {
		return fmt.Errorf("config: writer %q not registered", wn)
	}
	// 原位回写与 STDIN 输入互斥（stdin 没有可回写的路径）。
	if wn == "fs" && dash && inPlaceRequested(cfg.Options.Writer) {
		return errors.New("config: in-place write cannot be combined with stdin input")
	}
	return nil
}

// inPlaceRequested 宽松探测 writer options 中的 in_place 标志。
// 严格解析仍在 registry 工厂层进行；这里只为交叉校验提前窥视一个键。
func inPlaceRequested(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var probe struct {
		InPlace bool `json:"in_place"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.InPlace
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config, mode pipeline.Mode) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 有效名称
	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	sn := effName(cfg.Components.Splitter, d.Components.Splitter)
	gn := effName(cfg.Components.Grammar, d.Components.Grammar)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	// 构造实例
	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	s, err := registry.Splitter[sn](cfg.Options.Splitter)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	g, err := registry.Grammar[gn](cfg.Options.Grammar)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	comp := pipeline.Components{
		Reader:   r,
		Splitter: s,
		Grammar:  g,
		Writer:   w,
	}
	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Concurrency: cfg.Concurrency,
		Mode:        mode,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}

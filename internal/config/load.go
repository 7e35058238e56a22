package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		Logging:     Logging{Level: "info"},
		Components: Components{
			Reader:   "fs",
			Splitter: "lines",
			Grammar:  "line",
			Writer:   "stdout",
		},
	}
}

// Load 从文件路径或原始字节解析 Config。
// JSON 严格拒绝未知字段；.yaml/.yml 先经 YAML 解析再转 JSON 严格解码，
// 未知字段同样失败。
func Load(path string, raw []byte) (Config, error) {
	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	yamlHint := ext == ".yaml" || ext == ".yml"
	if len(raw) == 0 {
		if path == "" {
			return cfg, errors.New("no config source provided")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		raw = b
	}
	if yamlHint {
		jb, err := yamlToJSON(raw)
		if err != nil {
			return cfg, fmt.Errorf("config yaml: %w", err)
		}
		raw = jb
	}
	return decodeStrict(bytes.NewReader(raw))
}

func decodeStrict(r io.Reader) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// yamlToJSON 将 YAML 文档转为等价 JSON 字节流，保证后续统一走严格
// JSON 解码路径（未知字段检测只实现一次）。
func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAML(v))
}

// normalizeYAML 把 yaml.v3 的 map[string]any/map[any]any 归一为
// json.Marshal 可处理的形态。
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Splitter != "" {
		out.Components.Splitter = over.Components.Splitter
	}
	if over.Components.Grammar != "" {
		out.Components.Grammar = over.Components.Grammar
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Splitter) > 0 {
		out.Options.Splitter = cloneRaw(over.Options.Splitter)
	}
	if len(over.Options.Grammar) > 0 {
		out.Options.Grammar = cloneRaw(over.Options.Grammar)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 SEALKIT_；集合之外的键忽略。
// 支持：INPUTS, CONCURRENCY, LOG_LEVEL, COMPONENTS_{READER,SPLITTER,GRAMMAR,WRITER},
// OPTIONS_{READER,SPLITTER,GRAMMAR,WRITER}_JSON（原样 JSON）。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, "SEALKIT_") {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len("SEALKIT_") {
			continue
		}
		key := kv[:eq]
		val := kv[eq+1:]
		switch strings.TrimPrefix(key, "SEALKIT_") {
		case "INPUTS":
			if val != "" {
				over.Inputs = splitComma(val)
			}
		case "CONCURRENCY":
			if v, err := atoi(val); err == nil {
				over.Concurrency = v
			}
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_SPLITTER":
			over.Components.Splitter = strings.TrimSpace(val)
		case "COMPONENTS_GRAMMAR":
			over.Components.Grammar = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "OPTIONS_READER_JSON":
			if strings.TrimSpace(val) != "" {
				over.Options.Reader = json.RawMessage(val)
			}
		case "OPTIONS_SPLITTER_JSON":
			if strings.TrimSpace(val) != "" {
				over.Options.Splitter = json.RawMessage(val)
			}
		case "OPTIONS_GRAMMAR_JSON":
			if strings.TrimSpace(val) != "" {
				over.Options.Grammar = json.RawMessage(val)
			}
		case "OPTIONS_WRITER_JSON":
			if strings.TrimSpace(val) != "" {
				over.Options.Writer = json.RawMessage(val)
			}
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

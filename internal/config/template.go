package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为 STDIN（"-"），Writer 输出到标准输出；
// - 组件名采用仓库内置实现；
// - 选项给出安全中性默认值，所有键齐全（值可为空/默认）。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:      []string{"-"},
		Concurrency: d.Concurrency,
		Logging:     Logging{Level: "info"},
		Components:  d.Components,
	}
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor", "__pycache__"],
  "allow_exts": [".py"]
}`)
	cfg.Options.Splitter = json.RawMessage(`{
  "max_bytes": 0
}`)
	cfg.Options.Grammar = json.RawMessage(`{
  "comment_token": "#"
}`)
	cfg.Options.Writer = json.RawMessage(`{}`)
	return cfg
}

package registry

import (
	"bytes"
	"encoding/json"

	"sealkit/pkg/contract"
	gline "sealkit/plugins/grammar/line"
	rfs "sealkit/plugins/reader/filesystem"
	slines "sealkit/plugins/splitter/lines"
	wfs "sealkit/plugins/writer/filesystem"
	wstd "sealkit/plugins/writer/stdout"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewGrammar 工厂签名：接收原样 JSON Options。
type NewGrammar func(raw json.RawMessage) (contract.Grammar, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// lines: 逐行拆分器
	"lines": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts slines.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return slines.New(&opts), nil
	},
}

// Grammar 工厂注册表。
var Grammar = map[string]NewGrammar{
	// line: 行级标记文法（注释词法可配置）
	"line": func(raw json.RawMessage) (contract.Grammar, error) {
		var opts gline.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return gline.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原位回写/输出目录，原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// stdout: 标准输出 Writer
	"stdout": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wstd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wstd.New(&opts), nil
	},
}

package registry

import (
	"encoding/json"
	"fmt"
	"testing"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		if _, err := Reader["fs"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("reader: %v", err)
		}
		if _, err := Reader["fs"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("reader 未对未知字段报错")
		}
	})
	t.Run("splitter", func(t *testing.T) {
		if _, err := Splitter["lines"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("splitter: %v", err)
		}
		if _, err := Splitter["lines"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("splitter 未对未知字段报错")
		}
	})
	t.Run("grammar", func(t *testing.T) {
		if _, err := Grammar["line"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("grammar: %v", err)
		}
		if _, err := Grammar["line"](json.RawMessage(`{"comment_token":"//"}`)); err != nil {
			t.Fatalf("grammar options: %v", err)
		}
		if _, err := Grammar["line"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("grammar 未对未知字段报错")
		}
	})
	t.Run("writer-fs", func(t *testing.T) {
		tmp := t.TempDir()
		raw := json.RawMessage([]byte(fmt.Sprintf(`{"output_dir":%q}`, tmp)))
		if _, err := Writer["fs"](raw); err != nil {
			t.Fatalf("writer: %v", err)
		}
		if _, err := Writer["fs"](json.RawMessage(`{"in_place":true}`)); err != nil {
			t.Fatalf("writer in-place: %v", err)
		}
		bad := json.RawMessage([]byte(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp)))
		if _, err := Writer["fs"](bad); err == nil {
			t.Fatalf("writer 未对未知字段报错")
		}
	})
	t.Run("writer-stdout", func(t *testing.T) {
		if _, err := Writer["stdout"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("stdout: %v", err)
		}
	})
}

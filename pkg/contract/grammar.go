package contract

// Grammar: 标记行文法。实现须为纯函数、无内部可变状态。
// 注释词法（如 "#"、"//"）由实现配置；核心不内嵌任何宿主语言假设，
// 只把它当作不透明前缀。
type Grammar interface {
	// Match 识别一行是否为标记行。
	// ok 为 true 时返回标记类别、改写时保留的前缀（行首到 on/off 词含），
	// 以及行尾残余（已去除首尾空白；空串表示未封印）。
	Match(line string) (kind MarkerKind, prefix, suffix string, ok bool)
}

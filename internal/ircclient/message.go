package ircclient

import "strings"

// Line 一行 IRC 消息
type Line struct {
	Tags    string
	Prefix  string
	Command string
	Params  []string
}

// ParseLine 解析一行 IRC 消息，line 不含结尾的 CRLF
func ParseLine(line string) Line {
	var l Line
	if strings.HasPrefix(line, "@") {
		i := strings.IndexByte(line, ' ')
		if i < 0 {
			return l
		}
		l.Tags, line = line[1:i], strings.TrimLeft(line[i+1:], " ")
	}
	if strings.HasPrefix(line, ":") {
		i := strings.IndexByte(line, ' ')
		if i < 0 {
			l.Prefix = line[1:]
			return l
		}
		l.Prefix, line = line[1:i], strings.TrimLeft(line[i+1:], " ")
	}

	trailing, hasTrailing := "", false
	if i := strings.Index(line, " :"); i >= 0 {
		trailing, hasTrailing = line[i+2:], true
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) > 0 {
		l.Command = strings.ToUpper(fields[0])
		l.Params = fields[1:]
	}
	if hasTrailing {
		l.Params = append(l.Params, trailing)
	}
	return l
}

// Nick 返回前缀中的昵称
func (l Line) Nick() string {
	if i := strings.IndexAny(l.Prefix, "!@"); i >= 0 {
		return l.Prefix[:i]
	}
	return l.Prefix
}

// Param 返回第 i 个参数，不存在时为空
func (l Line) Param(i int) string {
	if i < 0 || i >= len(l.Params) {
		return ""
	}
	return l.Params[i]
}

// Trailing 返回最后一个参数
func (l Line) Trailing() string {
	return l.Param(len(l.Params) - 1)
}

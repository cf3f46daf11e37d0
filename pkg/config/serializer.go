package config

import (
	"bytes"
	"encoding/json"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v2"
)

// Serializer 配置文件格式
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	// GetFileExts 按后缀识别格式时使用，如 .yml/.yaml
	GetFileExts() []string
	GetName() string
}

// 内置格式
var (
	YAML Serializer = &format{name: "yaml", exts: []string{".yml", ".yaml"}, marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
	JSON Serializer = &format{name: "json", exts: []string{".json"}, marshal: marshalJSON, unmarshal: json.Unmarshal}
	INI  Serializer = &format{name: "ini", exts: []string{".ini", ".conf"}, marshal: marshalINI, unmarshal: unmarshalINI}
)

type format struct {
	name      string
	exts      []string
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

func (f *format) Marshal(v interface{}) ([]byte, error)      { return f.marshal(v) }
func (f *format) Unmarshal(data []byte, v interface{}) error { return f.unmarshal(data, v) }
func (f *format) GetFileExts() []string                      { return f.exts }
func (f *format) GetName() string                            { return f.name }

func marshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func marshalINI(v interface{}) ([]byte, error) {
	cfg := ini.Empty()
	if err := cfg.ReflectFrom(v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unmarshalINI 分节映射到嵌套结构体，键名不区分大小写
func unmarshalINI(data []byte, v interface{}) error {
	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, data)
	if err != nil {
		return err
	}
	return cfg.MapTo(v)
}

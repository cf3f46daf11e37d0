package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// applyEnvOverrides 按 `env:"NAME"` 标签用环境变量覆盖字段，嵌套结构体同样生效。
// 未设置的变量保持文件中的值。
func applyEnvOverrides(v interface{}, prefix string) error {
	opts := env.Options{Prefix: prefix}
	if err := env.ParseWithOptions(v, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/timer"
)

var (
	// ErrNotLoaded 尚未加载配置
	ErrNotLoaded = errors.New("config: not loaded")

	// ErrNotFound 默认路径中找不到配置文件
	ErrNotFound = errors.New("config: no config file found")
)

// Defaulter 配置结构体实现该接口时，每次解析前先填充默认值
type Defaulter interface {
	SetDefaults()
}

// Validator 配置结构体实现该接口时，解析后进行校验，失败的重载不会生效
type Validator interface {
	Validate() error
}

// ConfigManager 通用配置管理器
type ConfigManager struct {
	mu               sync.RWMutex
	instance         interface{}  // 配置实例（指针）
	configPath       string       // 配置文件路径
	appName          string       // 应用名称
	serializer       Serializer   // 当前使用的序列化器
	forceFormat      Serializer   // 强制指定的格式（优先级最高）
	supportedFormats []Serializer // 支持的配置格式列表
	defaultPaths     []string     // 默认配置路径模板
	envPrefix        string       // 环境变量前缀
	loaded           bool

	// 配置监听
	enableWatch   bool
	watchDebounce time.Duration
	watcher       *fsnotify.Watcher
	watchQuit     chan struct{}

	callbacks []func(old, new interface{})
}

// NewConfigManager 创建配置管理器，cfg 必须是结构体指针
func NewConfigManager(cfg interface{}, options ...Option) *ConfigManager {
	if cfg == nil {
		panic("config instance cannot be nil")
	}
	if reflect.ValueOf(cfg).Kind() != reflect.Ptr {
		panic("config instance must be a pointer")
	}

	cm := &ConfigManager{
		instance:         cfg,
		appName:          "app",
		serializer:       YAML,
		supportedFormats: []Serializer{YAML, JSON, INI},
		defaultPaths: []string{
			"./{{.AppName}}",
			"{{.ExecDir}}/{{.AppName}}",
			"/etc/{{.AppName}}/{{.AppName}}",
		},
		watchDebounce: 500 * time.Millisecond,
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// LoadConfig 加载配置文件，customPath 为空时按默认路径查找
func (cm *ConfigManager) LoadConfig(customPath string) error {
	cm.mu.Lock()

	if customPath != "" {
		if err := validateConfigPath(customPath); err != nil {
			cm.mu.Unlock()
			return fmt.Errorf("invalid config path: %w", err)
		}
		cm.configPath = customPath
		cm.chooseSerializer(customPath)
	} else {
		path, err := cm.findDefaultConfigPath()
		if err != nil {
			cm.mu.Unlock()
			return err
		}
		cm.configPath = path
	}

	if err := cm.decodeInto(cm.instance); err != nil {
		cm.mu.Unlock()
		return err
	}
	cm.loaded = true
	watch := cm.enableWatch
	path, format := cm.configPath, cm.serializer.GetName()
	cm.mu.Unlock()

	logger.Debug("config loaded", logger.String("path", path), logger.String("format", format))

	if watch {
		return cm.startWatch()
	}
	return nil
}

// GetConfig 获取配置实例
func (cm *ConfigManager) GetConfig() (interface{}, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.loaded {
		return nil, ErrNotLoaded
	}
	return cm.instance, nil
}

// ConfigPath 返回当前使用的配置文件路径
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// SaveConfig 保存配置到文件，先写临时文件再替换
func (cm *ConfigManager) SaveConfig() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.loaded || cm.configPath == "" {
		return ErrNotLoaded
	}

	data, err := cm.serializer.Marshal(cm.instance)
	if err != nil {
		return fmt.Errorf("marshal config failed: %w", err)
	}

	tmpPath := cm.configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp config failed: %w", err)
	}
	if err := os.Rename(tmpPath, cm.configPath); err != nil {
		return fmt.Errorf("rename temp config failed: %w", err)
	}
	return nil
}

// ReloadConfig 重新加载配置，解析到新实例，成功后替换并触发变更回调
func (cm *ConfigManager) ReloadConfig() error {
	cm.mu.Lock()
	if !cm.loaded {
		cm.mu.Unlock()
		return ErrNotLoaded
	}

	newInstance := reflect.New(reflect.ValueOf(cm.instance).Elem().Type()).Interface()
	if err := cm.decodeInto(newInstance); err != nil {
		cm.mu.Unlock()
		return err
	}

	oldInstance := cm.instance
	cm.instance = newInstance
	callbacks := append([]func(old, new interface{}){}, cm.callbacks...)
	cm.mu.Unlock()

	for _, callback := range callbacks {
		callback(oldInstance, newInstance)
	}
	return nil
}

// OnChange 注册配置变更回调，在重载成功后同步调用
func (cm *ConfigManager) OnChange(callback func(old, new interface{})) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, callback)
}

// EnableWatch 动态启用/禁用配置监听
func (cm *ConfigManager) EnableWatch(enable bool) error {
	cm.mu.Lock()
	cm.enableWatch = enable
	loaded := cm.loaded
	cm.mu.Unlock()

	if !enable {
		cm.stopWatch()
		return nil
	}
	if loaded {
		return cm.startWatch()
	}
	return nil
}

// Close 停止监听
func (cm *ConfigManager) Close() {
	cm.stopWatch()
}

/* ------------------------------ 内部方法 ------------------------------ */

// decodeInto 调用方需持有锁
func (cm *ConfigManager) decodeInto(target interface{}) error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}

	if d, ok := target.(Defaulter); ok {
		d.SetDefaults()
	}
	if err := cm.serializer.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal failed (%s): %w", cm.serializer.GetName(), err)
	}
	if err := applyEnvOverrides(target, cm.envPrefix); err != nil {
		return fmt.Errorf("apply env overrides failed: %w", err)
	}
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config failed: %w", err)
		}
	}
	return nil
}

// chooseSerializer 强制格式 > 后缀识别 > 默认
func (cm *ConfigManager) chooseSerializer(path string) {
	if cm.forceFormat != nil {
		cm.serializer = cm.forceFormat
		return
	}

	ext := filepath.Ext(path)
	for _, format := range cm.supportedFormats {
		for _, e := range format.GetFileExts() {
			if e == ext {
				cm.serializer = format
				return
			}
		}
	}
}

// findDefaultConfigPath 依次尝试无后缀文件和各格式后缀
func (cm *ConfigManager) findDefaultConfigPath() (string, error) {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)

	for _, pathTpl := range cm.defaultPaths {
		basePath := replacePathVars(pathTpl, map[string]string{
			"AppName": cm.appName,
			"ExecDir": execDir,
		})

		if validateConfigPath(basePath) == nil {
			cm.chooseSerializer(basePath)
			return basePath, nil
		}

		for _, format := range cm.supportedFormats {
			for _, ext := range format.GetFileExts() {
				fullPath := basePath + ext
				if validateConfigPath(fullPath) == nil {
					cm.serializer = format
					if cm.forceFormat != nil {
						cm.serializer = cm.forceFormat
					}
					return fullPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf("%w: app %s", ErrNotFound, cm.appName)
}

// startWatch 监听配置文件所在目录，编辑器的重命名写入也能被捕获
func (cm *ConfigManager) startWatch() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher failed: %w", err)
	}
	if err := w.Add(filepath.Dir(cm.configPath)); err != nil {
		_ = w.Close()
		return fmt.Errorf("add watch path failed: %w", err)
	}

	cm.watcher = w
	cm.watchQuit = make(chan struct{})
	go cm.watchLoop(w, cm.watchQuit, filepath.Clean(cm.configPath))
	return nil
}

func (cm *ConfigManager) stopWatch() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.watcher == nil {
		return
	}
	close(cm.watchQuit)
	_ = cm.watcher.Close()
	cm.watcher = nil
}

func (cm *ConfigManager) watchLoop(w *fsnotify.Watcher, quit chan struct{}, path string) {
	reload := timer.Debounce(cm.watchDebounce, func() {
		select {
		case <-quit:
			return
		default:
		}
		if err := cm.ReloadConfig(); err != nil {
			logger.Warn("config auto reload failed", logger.String("path", path), logger.Err(err))
			return
		}
		logger.Info("config auto reloaded", logger.String("path", path))
	})

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("config watch error", logger.Err(err))

		case <-quit:
			return
		}
	}
}

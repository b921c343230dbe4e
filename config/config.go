package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config 服务端全部可调参数，对应 config.toml 的各个段
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Network NetworkConfig `toml:"network"`
	Game    GameConfig    `toml:"game"`
	Upload  UploadConfig  `toml:"upload"`
	Logging LogConfig     `toml:"logging"`
}

type ServerConfig struct {
	Addr        string `toml:"addr"`
	DefaultRoom string `toml:"default_room"`
	PresetsPath string `toml:"presets_path"` // 预置攻击图案（YAML），留空则不加载
	StaticDir   string `toml:"static_dir"`
}

type NetworkConfig struct {
	EventQueueSize int           `toml:"event_queue_size"` // 房间入站事件通道容量
	SendQueueSize  int           `toml:"send_queue_size"`  // 每连接发送队列容量
	ReadLimit      int64         `toml:"read_limit"`       // 单条 WS 消息上限（字节）
	ReadTimeout    time.Duration `toml:"read_timeout"`
	WriteTimeout   time.Duration `toml:"write_timeout"`
}

// GameConfig 移动经济与攻击时序参数
type GameConfig struct {
	CooldownWindow time.Duration `toml:"cooldown_window"` // 最后一次移动后多久恢复移动点
	SweepInterval  time.Duration `toml:"sweep_interval"`  // 冷却扫描 + 命中判定周期
	PhaseInterval  time.Duration `toml:"phase_interval"`  // 相邻攻击阶段的间隔
	WarningWindow  time.Duration `toml:"warning_window"`  // 阶段开始后的预警时长
	EffectWindow   time.Duration `toml:"effect_window"`   // 阶段开始到生效结束的总时长
	DefaultSpeed   int           `toml:"default_speed"`
	GridWidth      int           `toml:"grid_width"`
	GridHeight     int           `toml:"grid_height"`
	GridMin        int           `toml:"grid_min"`
	GridMax        int           `toml:"grid_max"`
}

type UploadConfig struct {
	MaxChunks int `toml:"max_chunks"`
	MaxBytes  int `toml:"max_bytes"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" or "console"
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Stderr     bool   `toml:"stderr"`
}

// Load 读取 TOML 配置并覆盖默认值；文件不存在时直接使用默认值
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查时序、上传与网络参数的基本约束
func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.PhaseInterval <= 0, g.SweepInterval <= 0, g.CooldownWindow <= 0:
		return errors.New("game intervals must be positive")
	case g.WarningWindow <= 0 || g.WarningWindow >= g.EffectWindow:
		return errors.New("warning_window must be positive and shorter than effect_window")
	case g.GridMin < 1 || g.GridMin > g.GridMax:
		return errors.New("grid_min/grid_max out of order")
	case c.Upload.MaxChunks < 1 || c.Upload.MaxBytes < 1:
		return errors.New("upload limits must be positive")
	}
	n := c.Network
	switch {
	case n.ReadTimeout <= 0 || n.WriteTimeout <= 0:
		return errors.New("network read_timeout/write_timeout must be positive")
	case n.EventQueueSize < 1 || n.SendQueueSize < 1:
		return errors.New("network queue sizes must be positive")
	case n.ReadLimit < 1:
		return errors.New("network read_limit must be positive")
	}
	return nil
}

// Defaults 与前端约定一致的默认参数
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			DefaultRoom: "main",
			StaticDir:   "web",
		},
		Network: NetworkConfig{
			EventQueueSize: 256,
			SendQueueSize:  64,
			ReadLimit:      1 << 20, // 前端按 100KB 切片，1MB 足够
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   5 * time.Second,
		},
		Game: GameConfig{
			CooldownWindow: 6000 * time.Millisecond,
			SweepInterval:  100 * time.Millisecond,
			PhaseInterval:  800 * time.Millisecond,
			WarningWindow:  500 * time.Millisecond,
			EffectWindow:   1500 * time.Millisecond,
			DefaultSpeed:   5,
			GridWidth:      15,
			GridHeight:     15,
			GridMin:        5,
			GridMax:        30,
		},
		Upload: UploadConfig{
			MaxChunks: 256,
			MaxBytes:  16 << 20,
		},
		Logging: LogConfig{
			Level:      "debug",
			Format:     "console",
			File:       "app.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Package config 应用配置
//
// YAML 配置文件加载与校验。对应原始部署的 /etc/footage-browser/app.conf。
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"footage-browser/internal/models"
)

// AppConfig 服务配置
type AppConfig struct {
	Title string `yaml:"title"`
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
}

// StorageConfig 存储路径配置
type StorageConfig struct {
	// Datadirs 录像根目录列表。含 info.bin 的路径按 NAS 结构展开为
	// datadir0..N-1, 否则视为单个 datadir
	Datadirs     []string `yaml:"datadirs"`
	CacheFile    string   `yaml:"cache_file"`
	ProgressFile string   `yaml:"progress_file"`
	MtimeFile    string   `yaml:"mtime_file"`
}

// ParserConfig 扫描核心配置
type ParserConfig struct {
	Interval        int                 `yaml:"interval"` // 周期扫描间隔, 秒
	OffsetUnit      models.OffsetUnit   `yaml:"offset_unit"`
	RecordLayout    models.RecordLayout `yaml:"record_layout"`
	RecordMode      models.RecordMode   `yaml:"record_mode"`
	Strategy        string              `yaml:"strategy"`
	MinSegmentBytes uint64              `yaml:"min_segment_bytes"`
	FFprobePath     string              `yaml:"ffprobe_path"`
	ProbeTimeout    int                 `yaml:"probe_timeout"`   // 秒
	SceneThreshold  float64             `yaml:"scene_threshold"` // 场景切换检测阈值 (0-1)
}

// DisplayConfig 展示配置
type DisplayConfig struct {
	DefaultDays int `yaml:"default_days"`
}

// Config 顶层配置
type Config struct {
	App     AppConfig     `yaml:"app"`
	Storage StorageConfig `yaml:"storage"`
	Parser  ParserConfig  `yaml:"parser"`
	Display DisplayConfig `yaml:"display"`
}

// 段落推导策略名
const (
	StrategyIndexOffsets    = "index-offsets"
	StrategyWholeFile       = "whole-file"
	StrategyFFprobeDuration = "ffprobe-duration"
	StrategySceneDetection  = "scene-detection"
	StrategyKeyframe        = "keyframe"
)

// Default 返回默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			Title: "Footage Browser",
			Host:  "0.0.0.0",
			Port:  8000,
		},
		Parser: ParserConfig{
			Interval:        300,
			RecordLayout:    models.LayoutAuto,
			RecordMode:      models.ModeFirst,
			Strategy:        StrategyIndexOffsets,
			MinSegmentBytes: 1024,
			FFprobePath:     "ffprobe",
			ProbeTimeout:    15,
			SceneThreshold:  0.4,
		},
		Display: DisplayConfig{
			DefaultDays: 7,
		},
	}
}

// Load 加载并校验配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
// 偏移单位是硬性要求: 索引文件不自描述偏移语义, 缺省会导致
// 字节偏移被当成秒偏移使用, 必须在配置层就失败
func (c *Config) Validate() error {
	if len(c.Storage.Datadirs) == 0 {
		return fmt.Errorf("storage.datadirs 不能为空")
	}
	if c.Storage.CacheFile == "" {
		return fmt.Errorf("storage.cache_file 不能为空")
	}

	switch c.Parser.OffsetUnit {
	case models.UnitBytes, models.UnitSeconds:
	case "":
		return fmt.Errorf("parser.offset_unit 未声明 (bytes 或 seconds)")
	default:
		return fmt.Errorf("parser.offset_unit 无效: %q", c.Parser.OffsetUnit)
	}

	switch c.Parser.RecordLayout {
	case models.LayoutV1, models.LayoutV2, models.LayoutAuto:
	default:
		return fmt.Errorf("parser.record_layout 无效: %q", c.Parser.RecordLayout)
	}

	switch c.Parser.RecordMode {
	case models.ModeFirst, models.ModeAll:
	default:
		return fmt.Errorf("parser.record_mode 无效: %q", c.Parser.RecordMode)
	}

	switch c.Parser.Strategy {
	case StrategyIndexOffsets, StrategyWholeFile, StrategyFFprobeDuration,
		StrategySceneDetection, StrategyKeyframe:
	default:
		return fmt.Errorf("parser.strategy 无效: %q", c.Parser.Strategy)
	}

	if c.Parser.SceneThreshold < 0 || c.Parser.SceneThreshold > 1 {
		return fmt.Errorf("parser.scene_threshold 超出范围 [0,1]: %v", c.Parser.SceneThreshold)
	}

	if c.Storage.ProgressFile == "" {
		c.Storage.ProgressFile = c.Storage.CacheFile + ".progress"
	}
	if c.Storage.MtimeFile == "" {
		c.Storage.MtimeFile = c.Storage.CacheFile + ".mtime"
	}
	return nil
}

// ScanInterval 周期扫描间隔
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Parser.Interval) * time.Second
}

// ProbeTimeout 外部进程超时
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Parser.ProbeTimeout) * time.Second
}

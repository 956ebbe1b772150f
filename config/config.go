package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"syncarena/shared"
)

// Config 服务端与客户端共用的运行配置；默认值即协议常量
type Config struct {
	Addr      string `yaml:"addr"`
	ServerURL string `yaml:"server_url"`
	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`

	BroadcastIntervalMs  int `yaml:"broadcast_interval_ms"`
	InterpolationDelayMs int `yaml:"interpolation_delay_ms"`
	FrameIntervalMs      int `yaml:"frame_interval_ms"`
	InputQueueSize       int `yaml:"input_queue_size"`

	AxisMin    float64 `yaml:"axis_min"`
	AxisMax    float64 `yaml:"axis_max"`
	MaxInputDt float64 `yaml:"max_input_dt"`
	Speed      float64 `yaml:"speed"`

	// 被拒绝的输入是否仍推进确认游标（视为已确认的空操作）
	AckRejectedInputs bool `yaml:"ack_rejected_inputs"`
}

// Default 返回默认配置
func Default() Config {
	r := shared.DefaultRules()
	return Config{
		Addr:                 ":8081",
		ServerURL:            "ws://localhost:8081/ws",
		LogFile:              "app.log",
		LogLevel:             "info",
		BroadcastIntervalMs:  100,
		InterpolationDelayMs: 100,
		FrameIntervalMs:      16,
		InputQueueSize:       256,
		AxisMin:              r.Min,
		AxisMax:              r.Max,
		MaxInputDt:           r.MaxDt,
		Speed:                shared.DefaultSpeed,
	}
}

// Load 依次应用：默认值 → yaml 文件（可选）→ .env → 环境变量
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// .env 不存在不是错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Addr = getEnv("SYNC_ADDR", c.Addr)
	c.ServerURL = getEnv("SYNC_SERVER_URL", c.ServerURL)
	c.LogFile = getEnv("SYNC_LOG_FILE", c.LogFile)
	c.LogLevel = getEnv("SYNC_LOG_LEVEL", c.LogLevel)
	c.BroadcastIntervalMs = getEnvAsInt("SYNC_BROADCAST_INTERVAL_MS", c.BroadcastIntervalMs)
	c.InterpolationDelayMs = getEnvAsInt("SYNC_INTERPOLATION_DELAY_MS", c.InterpolationDelayMs)
	c.FrameIntervalMs = getEnvAsInt("SYNC_FRAME_INTERVAL_MS", c.FrameIntervalMs)
	c.InputQueueSize = getEnvAsInt("SYNC_INPUT_QUEUE_SIZE", c.InputQueueSize)
	c.AxisMin = getEnvAsFloat("SYNC_AXIS_MIN", c.AxisMin)
	c.AxisMax = getEnvAsFloat("SYNC_AXIS_MAX", c.AxisMax)
	c.MaxInputDt = getEnvAsFloat("SYNC_MAX_INPUT_DT", c.MaxInputDt)
	c.Speed = getEnvAsFloat("SYNC_SPEED", c.Speed)
	c.AckRejectedInputs = getEnvAsBool("SYNC_ACK_REJECTED_INPUTS", c.AckRejectedInputs)
}

// Validate 汇总所有配置问题一次性返回
func (c Config) Validate() error {
	var err error
	if c.BroadcastIntervalMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("broadcast_interval_ms must be positive, got %d", c.BroadcastIntervalMs))
	}
	if c.InterpolationDelayMs < c.BroadcastIntervalMs {
		// 插值延迟不能短于广播周期，否则渲染时刻通常拿不到两个夹住它的样本
		err = multierr.Append(err, fmt.Errorf("interpolation_delay_ms (%d) must not be shorter than broadcast_interval_ms (%d)",
			c.InterpolationDelayMs, c.BroadcastIntervalMs))
	}
	if c.FrameIntervalMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("frame_interval_ms must be positive, got %d", c.FrameIntervalMs))
	}
	if c.InputQueueSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("input_queue_size must be positive, got %d", c.InputQueueSize))
	}
	if c.AxisMax <= c.AxisMin {
		err = multierr.Append(err, fmt.Errorf("axis_max (%v) must exceed axis_min (%v)", c.AxisMax, c.AxisMin))
	}
	if c.MaxInputDt <= 0 {
		err = multierr.Append(err, fmt.Errorf("max_input_dt must be positive, got %v", c.MaxInputDt))
	}
	if c.Speed <= 0 {
		err = multierr.Append(err, fmt.Errorf("speed must be positive, got %v", c.Speed))
	}
	return err
}

// Rules 由配置构造预测与权威共用的校验规则
func (c Config) Rules() shared.Rules {
	return shared.Rules{Min: c.AxisMin, Max: c.AxisMax, MaxDt: c.MaxInputDt}
}

func (c Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMs) * time.Millisecond
}

func (c Config) InterpolationDelay() time.Duration {
	return time.Duration(c.InterpolationDelayMs) * time.Millisecond
}

func (c Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "github.com/DigitalWolfInc/mindtrainer-sub002/common/config"
)

// Config 夜惊监测服务配置
type Config struct {
	Database commoncfg.DatabaseConfig
	Redis    commoncfg.RedisConfig
	MQTT     commoncfg.MQTTConfig

	// 监测服务特定配置
	Nightwatch struct {
		// MQTT 主题
		Topics struct {
			Vitals    string // 穿戴设备数据订阅主题，如 "wearable/+/vitals"
			CueFormat string // 音箱指令主题格式，如 "speaker/%s/cue"
		}

		// 协议事件输出
		Events struct {
			Stream      string // Redis Stream 名称
			CachePrefix string // 最新事件缓存键前缀
			CacheSuffix string // 最新事件缓存键后缀
			CacheTTL    int    // 最新事件缓存 TTL（秒）
		}

		// 协议参数
		Protocol struct {
			BaselineWindowSec  int     // 基线滑动窗口（秒）
			CooldownSec        int     // 音频触发后的冷却期（秒）
			RecoveryWindowSec  int     // 恢复确认窗口（秒）
			MinBaselineSamples int     // 开始检测前的最少采样数
			HRSpikeMargin      float64 // 心率骤升裕量（bpm）
			HRVDropRatio       float64 // HRV下降比例阈值
			MotionSpikeFactor  float64 // 体动倍数阈值
			CueTimeoutSec      int     // 音频播放有界等待（秒）
		}

		SampleBuffer int    // 每设备采样通道缓冲大小
		MetricsAddr  string // Prometheus /metrics 监听地址
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（带默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "nightwatch")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "nightwatch")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Nightwatch.Topics.Vitals = getEnv("WEARABLE_TOPIC_VITALS", "wearable/+/vitals")
	cfg.Nightwatch.Topics.CueFormat = getEnv("SPEAKER_TOPIC_CUE_FORMAT", "speaker/%s/cue")

	cfg.Nightwatch.Events.Stream = getEnv("PROTOCOL_EVENT_STREAM", "night-watch:events:stream")
	cfg.Nightwatch.Events.CachePrefix = getEnv("PROTOCOL_EVENT_CACHE_PREFIX", "night-watch:device:")
	cfg.Nightwatch.Events.CacheSuffix = getEnv("PROTOCOL_EVENT_CACHE_SUFFIX", ":last-event")
	cfg.Nightwatch.Events.CacheTTL = getEnvInt("PROTOCOL_EVENT_CACHE_TTL", 300)

	cfg.Nightwatch.Protocol.BaselineWindowSec = getEnvInt("BASELINE_WINDOW_SEC", 300)
	cfg.Nightwatch.Protocol.CooldownSec = getEnvInt("COOLDOWN_SEC", 600)
	cfg.Nightwatch.Protocol.RecoveryWindowSec = getEnvInt("RECOVERY_WINDOW_SEC", 120)
	cfg.Nightwatch.Protocol.MinBaselineSamples = getEnvInt("MIN_BASELINE_SAMPLES", 5)
	cfg.Nightwatch.Protocol.HRSpikeMargin = getEnvFloat("HR_SPIKE_MARGIN", 50)
	cfg.Nightwatch.Protocol.HRVDropRatio = getEnvFloat("HRV_DROP_RATIO", 0.30)
	cfg.Nightwatch.Protocol.MotionSpikeFactor = getEnvFloat("MOTION_SPIKE_FACTOR", 10)
	cfg.Nightwatch.Protocol.CueTimeoutSec = getEnvInt("CUE_TIMEOUT_SEC", 5)

	cfg.Nightwatch.SampleBuffer = getEnvInt("SAMPLE_BUFFER", 256)
	cfg.Nightwatch.MetricsAddr = getEnv("METRICS_ADDR", ":9143")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// BaselineWindow 基线滑动窗口时长
func (c *Config) BaselineWindow() time.Duration {
	return time.Duration(c.Nightwatch.Protocol.BaselineWindowSec) * time.Second
}

// Cooldown 冷却期时长
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Nightwatch.Protocol.CooldownSec) * time.Second
}

// RecoveryWindow 恢复确认窗口时长
func (c *Config) RecoveryWindow() time.Duration {
	return time.Duration(c.Nightwatch.Protocol.RecoveryWindowSec) * time.Second
}

// CueTimeout 音频播放有界等待时长
func (c *Config) CueTimeout() time.Duration {
	return time.Duration(c.Nightwatch.Protocol.CueTimeoutSec) * time.Second
}

// EventCacheTTL 最新事件缓存 TTL
func (c *Config) EventCacheTTL() time.Duration {
	return time.Duration(c.Nightwatch.Events.CacheTTL) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/any-hub/blobfetch/internal/codec"
)

const (
	defaultBatchSize       = 10000
	defaultListenPort      = 5000
	defaultShutdownTimeout = 10 * time.Second
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectTopLevelPort(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyRemoteFileDefaults(&cfg.RemoteFile)
	applyServerDefaults(&cfg.Server)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.RemoteFile.CachePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.RemoteFile.CachePath = absCache

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("RemoteFile.PayloadCodec", codec.Default)
	v.SetDefault("RemoteFile.BatchSize", defaultBatchSize)
	v.SetDefault("Server.ListenPort", defaultListenPort)
	v.SetDefault("Server.ShutdownTimeout", "10s")
}

func applyRemoteFileDefaults(r *RemoteFileConfig) {
	r.CachePath = strings.TrimSpace(r.CachePath)
	r.CacheProcess = strings.TrimSpace(r.CacheProcess)
	r.FallbackRemote = strings.TrimSpace(r.FallbackRemote)
	r.PayloadCodec = strings.ToLower(strings.TrimSpace(r.PayloadCodec))
	if r.PayloadCodec == "" {
		r.PayloadCodec = codec.Default
	}
	if r.BatchSize == 0 {
		r.BatchSize = defaultBatchSize
	}
	if r.ExcludePaths == nil {
		r.ExcludePaths = []string{".hgtags"}
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenPort == 0 {
		s.ListenPort = defaultListenPort
	}
	if s.ShutdownTimeout.DurationValue() == 0 {
		s.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectTopLevelPort 拒绝写在顶层的 ListenPort，端口只属于 [Server]。
func rejectTopLevelPort(v *viper.Viper) error {
	if v.InConfig("ListenPort") {
		return newFieldError("ListenPort", "请移到 [Server] 段")
	}
	return nil
}

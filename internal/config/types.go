package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 只描述日志输出，fetch 相关参数放在 [RemoteFile]。
type GlobalConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// RemoteFileConfig 对应 [RemoteFile] 段，决定缓存位置、daemon 命令与 origin 命令。
type RemoteFileConfig struct {
	// CachePath 是多个仓库、多个用户共享的缓存根目录。
	CachePath string `mapstructure:"CachePath"`
	// CacheProcess 是 daemon 命令行，运行时会追加缓存根目录作为最后一个参数；留空则不使用 daemon。
	CacheProcess string `mapstructure:"CacheProcess"`
	// CacheGroup 非空时，缓存根目录的属组会被设置为该组。
	CacheGroup string `mapstructure:"CacheGroup"`
	Debug      bool   `mapstructure:"Debug"`
	// FallbackRemote 是 origin 命令行，stdin/stdout 上承载 getfiles 流；留空则 daemon miss 直接视为不可用。
	FallbackRemote string   `mapstructure:"FallbackRemote"`
	RepoName       string   `mapstructure:"RepoName"`
	RepoPath       string   `mapstructure:"RepoPath"`
	StorePath      string   `mapstructure:"StorePath"`
	PayloadCodec   string   `mapstructure:"PayloadCodec"`
	BatchSize      int      `mapstructure:"BatchSize"`
	ExcludePaths   []string `mapstructure:"ExcludePaths"`
}

// ServerConfig 对应 [Server] 段，仅在 -serve 模式下使用。
type ServerConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig     `mapstructure:",squash"`
	RemoteFile RemoteFileConfig `mapstructure:"RemoteFile"`
	Server     ServerConfig     `mapstructure:"Server"`
}

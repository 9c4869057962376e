package config

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobfetch/internal/codec"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return newFieldError("LogLevel", "无法识别的日志级别: "+c.Global.LogLevel)
	}

	r := c.RemoteFile
	if r.CachePath == "" {
		return newFieldError(sectionField("RemoteFile", "CachePath"), "不能为空")
	}
	if r.RepoName == "" {
		return newFieldError(sectionField("RemoteFile", "RepoName"), "不能为空")
	}
	if strings.ContainsAny(r.RepoName, " \t\r\n") {
		return newFieldError(sectionField("RemoteFile", "RepoName"), "不允许包含空白字符")
	}
	if _, err := codec.Lookup(r.PayloadCodec); err != nil {
		return newFieldError(sectionField("RemoteFile", "PayloadCodec"), "仅支持 "+strings.Join(codec.Names(), "|"))
	}
	if r.BatchSize <= 0 {
		return newFieldError(sectionField("RemoteFile", "BatchSize"), "必须大于 0")
	}
	for _, p := range r.ExcludePaths {
		if strings.TrimSpace(p) == "" {
			return newFieldError(sectionField("RemoteFile", "ExcludePaths"), "不允许空路径")
		}
	}

	s := c.Server
	if s.ListenPort <= 0 || s.ListenPort > 65535 {
		return newFieldError(sectionField("Server", "ListenPort"), "必须在 1-65535")
	}
	if s.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError(sectionField("Server", "ShutdownTimeout"), "必须大于 0")
	}

	return nil
}

package daemon

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Spawn 通过 /bin/sh 启动 "<command> <cacheRoot>"，stdin/stdout 承载协议，stderr 逐行转发到日志。
func Spawn(command, cacheRoot string, logger *logrus.Logger) (Channel, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	cmd := exec.Command("/bin/sh", "-c", command+" "+ShellQuote(cacheRoot))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("daemon stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("daemon stdout: %w", err)
	}
	stderr := logger.WithFields(logrus.Fields{
		"action":  "cache_daemon",
		"command": command,
	}).WriterLevel(logrus.WarnLevel)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stderr.Close()
		return nil, fmt.Errorf("start cache daemon %q: %w", command, err)
	}

	logger.WithFields(logrus.Fields{
		"action":  "cache_daemon",
		"command": command,
		"pid":     cmd.Process.Pid,
	}).Debug("cache daemon started")

	wait := func() error {
		defer stderr.Close()
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("cache daemon exit: %w", err)
		}
		return nil
	}
	return NewPipe(stdin, stdout, wait), nil
}

// ShellQuote 用单引号包裹参数，使其在 /bin/sh 中按字面量传递。
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 提供一次 prefetch 的仓库与条目数字段。
func FetchFields(repo string, requested int) logrus.Fields {
	return logrus.Fields{
		"action":    "prefetch",
		"repo":      repo,
		"requested": requested,
	}
}

// RequestFields 用于本地 fetch 服务的访问日志。
func RequestFields(requestID, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}

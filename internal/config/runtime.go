package config

// DaemonEnabled 表示是否配置了 daemon 命令；否则使用 null channel。
func (r RemoteFileConfig) DaemonEnabled() bool {
	return r.CacheProcess != ""
}

// RemoteEnabled 表示是否配置了 origin 回退命令。
func (r RemoteFileConfig) RemoteEnabled() bool {
	return r.FallbackRemote != ""
}

// Summary 汇总启动日志需要的 fetch 配置字段。
func (r RemoteFileConfig) Summary() map[string]interface{} {
	return map[string]interface{}{
		"repo":       r.RepoName,
		"cache_path": r.CachePath,
		"daemon":     r.DaemonEnabled(),
		"remote":     r.RemoteEnabled(),
		"codec":      r.PayloadCodec,
		"batch_size": r.BatchSize,
	}
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobfetch/internal/cache"
	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/codec"
	"github.com/any-hub/blobfetch/internal/config"
	"github.com/any-hub/blobfetch/internal/daemon"
	"github.com/any-hub/blobfetch/internal/fetch"
	"github.com/any-hub/blobfetch/internal/progress"
	"github.com/any-hub/blobfetch/internal/remote"
)

// buildClient 根据 [RemoteFile] 段组装共享缓存、origin 回退与 fetch.Client。
func buildClient(cfg *config.Config, logger *logrus.Logger) (*fetch.Client, error) {
	rf := cfg.RemoteFile

	store, err := cache.NewStore(rf.CachePath, cache.Options{Group: rf.CacheGroup, OwnerUID: -1})
	if err != nil {
		return nil, err
	}

	var fallback fetch.RemoteFetcher
	if rf.RemoteEnabled() {
		payloadCodec, err := codec.Lookup(rf.PayloadCodec)
		if err != nil {
			return nil, err
		}
		fetcher, err := remote.NewFetcher(remote.Options{
			Peer:      remote.NewCommandPeer(rf.FallbackRemote, logger),
			Codec:     payloadCodec,
			Store:     store,
			BatchSize: rf.BatchSize,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		fallback = fetcher
	}

	var host fetch.HostStore
	if hs := fetch.NewDirHostStore(rf.StorePath); hs != nil {
		host = hs
	}

	return fetch.New(fetch.Options{
		Namespace: rf.RepoName,
		RepoPath:  rf.RepoPath,
		Store:     store,
		Host:      host,
		Dial: func() (daemon.Channel, error) {
			return daemon.Dial(daemon.Options{
				Command:   rf.CacheProcess,
				CacheRoot: store.Root(),
				Logger:    logger,
			})
		},
		Remote:  fallback,
		Sink:    progress.NewLogSink(logger),
		Logger:  logger,
		Debug:   rf.Debug,
		Exclude: rf.ExcludePaths,
	})
}

// readEntries 解析每行一个 "path\trev" 的输入，空行会被忽略。
func readEntries(in io.Reader) ([]cachekey.FileID, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var entries []cachekey.FileID
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		path, rev, ok := strings.Cut(line, "\t")
		if !ok || path == "" || rev == "" {
			return nil, fmt.Errorf("第 %d 行格式错误，应为 path<TAB>rev: %q", lineNo, line)
		}
		entries = append(entries, cachekey.FileID{Path: path, Rev: rev})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取输入失败: %w", err)
	}
	return entries, nil
}

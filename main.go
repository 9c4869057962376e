package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/blobfetch/internal/config"
	"github.com/any-hub/blobfetch/internal/fetch"
	"github.com/any-hub/blobfetch/internal/logging"
	"github.com/any-hub/blobfetch/internal/server"
	"github.com/any-hub/blobfetch/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	serve       bool
	force       bool
}

var (
	stdIn  io.Reader = os.Stdin
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		for k, v := range cfg.RemoteFile.Summary() {
			fields[k] = v
		}
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为“配置 → 共享缓存 → codec/origin → fetch.Client”，daemon 在首次请求时才会启动。
	client, err := buildClient(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化 fetch 客户端失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	for k, v := range cfg.RemoteFile.Summary() {
		fields[k] = v
	}
	fields["serve"] = opts.serve
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if opts.serve {
		if err := startHTTPServer(cfg, client, logger); err != nil {
			fmt.Fprintf(stdErr, "HTTP 服务异常退出: %v\n", err)
			return 1
		}
		return 0
	}

	if err := prefetchFromInput(client, stdIn, opts.force); err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("blobfetch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		serve      bool
		force      bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 BLOBFETCH_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&serve, "serve", false, "以 HTTP 服务方式运行，而不是从 stdin 读取条目")
	fs.BoolVar(&force, "force", false, "忽略已缓存的条目，强制重新请求")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("BLOBFETCH_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		serve:       serve,
		force:       force,
	}, nil
}

// prefetchFromInput 读取 "path\trev" 行并一次性 prefetch，结束时输出统计摘要。
func prefetchFromInput(client *fetch.Client, in io.Reader, force bool) error {
	entries, err := readEntries(in)
	if err != nil {
		_ = client.Close()
		return err
	}

	prefetchErr := client.Prefetch(context.Background(), entries, force)
	closeErr := client.Close()
	if prefetchErr != nil {
		return prefetchErr
	}
	if closeErr != nil {
		return fmt.Errorf("关闭 daemon 会话失败: %w", closeErr)
	}

	fmt.Fprintln(stdOut, client.Stats().Snapshot().Summary())
	return nil
}

func startHTTPServer(cfg *config.Config, client *fetch.Client, logger *logrus.Logger) error {
	port := cfg.Server.ListenPort
	svc := server.NewService(client)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Service:    svc,
		ListenPort: port,
	})
	if err != nil {
		_ = svc.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("Fiber 服务停止")
		shutdownErr := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout.DurationValue())
		return errors.Join(shutdownErr, svc.Close())
	})

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"spotpilot/internal/agent"
	"spotpilot/internal/app"
	"spotpilot/internal/config"
	"spotpilot/internal/logger"
)

// 退出码：0 正常停止，1 启动期配置错误，2 循环重试预算耗尽。
const (
	exitOK          = 0
	exitConfig      = 1
	exitRetryBudget = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(os.Getenv("SPOTPILOT_ENV_FILE")); err != nil {
		log.Printf("读取 .env 失败: %v", err)
		return exitConfig
	}
	cfgPath := config.PathFromEnv()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("读取配置失败: %v", err)
		return exitConfig
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Printf("初始化日志文件失败: %v", err)
		return exitConfig
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，dry_run=%v，config=%s）", cfg.App.Env, cfg.App.DryRun, cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfg, app.WithConfigPath(cfgPath))
	if err != nil {
		logger.Errorf("初始化应用失败: %v", err)
		return exitConfig
	}
	if err := a.Run(ctx); err != nil {
		logger.Errorf("运行失败: %v", err)
		if errors.Is(err, agent.ErrRetryBudgetExhausted) {
			return exitRetryBudget
		}
		// 其余运行期错误来自 HTTP 监听等启动资源。
		return exitConfig
	}
	logger.Infof("spotpilot stopped")
	return exitOK
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	logger.SetTraceOutput(file)
	return file, nil
}

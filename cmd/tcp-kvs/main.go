// Package main is the entry point for the tcp-kvs server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tcp-kvs/internal/app"
	"tcp-kvs/internal/config"
	"tcp-kvs/internal/logger"
)

var (
	version = "dev"
)

func main() {
	var (
		configFile  = flag.String("config", "", "設定ファイルパス (YAML/JSON)。省略時はカレントから親へ conf/server.yaml を探す")
		adminAddr   = flag.String("admin", "", "管理 API のアドレス (例: 127.0.0.1:8080)。設定ファイルより優先")
		logLevel    = flag.String("log-level", "", "ログレベル (debug, info, warn, error)。設定ファイルより優先")
		showVersion = flag.Bool("version", false, "バージョンを表示")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `tcp-kvs - In-Memory Key-Value Server over TCP

Usage:
  tcp-kvs [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # conf/server.yaml を自動検出して起動
  tcp-kvs

  # 設定ファイルを指定
  tcp-kvs --config /etc/tcp-kvs/server.yaml

  # 管理 API を有効化
  tcp-kvs --admin 127.0.0.1:8080
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("tcp-kvs version %s\n", version)
		return
	}

	cfg, err := loadConfig(*configFile, *adminAddr, *logLevel)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}
	logger.Default.SetLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.Error("", "サーバーエラー: %v", err)
		os.Exit(1)
	}
}

// loadConfig は設定ファイルを読み込み、フラグで上書きする
func loadConfig(configFile, adminAddr, logLevel string) (config.Server, error) {
	path := configFile
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return config.Server{}, err
		}
		path, err = config.Find(wd)
		if err != nil {
			return config.Server{}, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	logger.Info("", "using config %s", path)

	if adminAddr != "" {
		cfg.AdminAddr = adminAddr
	}
	if logLevel != "" {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = level
	}
	return cfg, nil
}

// run はサーバーを起動し、シグナルを受けたら停止する
func run(cfg config.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	fmt.Println("tcp-kvs - In-Memory Key-Value Server")
	fmt.Println("====================================")
	fmt.Printf("Listening: %s\n", a.Addr())
	fmt.Printf("Snapshot:  %s (every %v)\n", cfg.SnapshotPath, cfg.PersistInterval)
	fmt.Printf("Stats:     every %v\n", cfg.StatsInterval)
	if cfg.AdminAddr != "" {
		fmt.Printf("Admin API: http://%s\n", cfg.AdminAddr)
	}
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	return a.Run(ctx)
}

// Package main is a load generator for the tcp-kvs server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tcp-kvs/internal/loadgen"
	"tcp-kvs/internal/logger"
)

var (
	version = "dev"
)

func main() {
	var (
		addr         = flag.String("addr", "127.0.0.1:12345", "サーバーアドレス")
		profileName  = flag.String("profile", "default", "負荷プロファイル名")
		clients      = flag.Int("clients", 0, "同時接続数 (0 でプロファイルの値)")
		requests     = flag.Int("requests", 0, "1クライアントあたりのリクエスト数 (0 でプロファイルの値)")
		readRatio    = flag.Float64("read-ratio", -1, "get の比率 0.0〜1.0 (負ならプロファイルの値)")
		reconnect    = flag.Duration("reconnect", time.Second, "接続失敗後の再試行間隔")
		jsonOutput   = flag.Bool("json", false, "結果を JSON で出力")
		listProfiles = flag.Bool("list-profiles", false, "利用可能なプロファイルを表示")
		showVersion  = flag.Bool("version", false, "バージョンを表示")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `kvload - load generator for tcp-kvs

Usage:
  kvload [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # 既定プロファイル (99%% get)
  kvload --addr 127.0.0.1:9999

  # 書き込み中心で 50 クライアント
  kvload --profile write-heavy --clients 50

  # 分割送信の挙動を確認
  kvload --profile fragmented
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("kvload version %s\n", version)
		return
	}

	if *listProfiles {
		printProfiles()
		return
	}

	profile, ok := loadgen.GetProfile(*profileName)
	if !ok {
		logger.Error("", "不明なプロファイル: %s (利用可能: %v)", *profileName, loadgen.ListProfiles())
		os.Exit(1)
	}
	if *clients > 0 {
		profile.Clients = *clients
	}
	if *requests > 0 {
		profile.Requests = *requests
	}
	if *readRatio >= 0 {
		profile.ReadRatio = *readRatio
	}

	cfg := loadgen.DefaultConfig(*addr)
	cfg.Profile = profile
	cfg.ReconnectDelay = *reconnect

	if err := run(cfg, *jsonOutput); err != nil {
		logger.Error("", "実行エラー: %v", err)
		os.Exit(1)
	}
}

func run(cfg loadgen.Config, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := loadgen.New(cfg).Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(result)
	return nil
}

func printResult(r loadgen.Result) {
	m := r.Metrics
	fmt.Println("kvload result")
	fmt.Println("=============")
	fmt.Printf("Profile:     %s\n", r.Profile)
	fmt.Printf("Elapsed:     %v\n", m.Elapsed.Round(time.Millisecond))
	fmt.Printf("Requests:    %d (get %d, set %d)\n", m.Total, m.Gets, m.Sets)
	fmt.Printf("Success:     %d (misses %d)\n", m.Success, m.Misses)
	fmt.Printf("Failures:    %d (%.2f%%)\n", m.Failures, m.ErrorRate*100)
	fmt.Printf("Reconnects:  %d\n", m.Reconnects)
	fmt.Printf("Throughput:  %.1f req/s\n", m.RPS)
	fmt.Printf("Latency:     avg %v, p99 %v\n", m.AverageLatency, m.P99Latency)
	fmt.Println()

	for _, c := range r.Clients {
		fmt.Printf("client %-3d get_count: %-6d set_count: %-6d reconnects: %d\n",
			c.ID, c.Gets, c.Sets, c.Reconnects)
		for _, resp := range c.Responses {
			fmt.Printf("           response: %s\n", resp)
		}
	}
}

func printProfiles() {
	fmt.Println("利用可能なプロファイル:")
	fmt.Println()
	for _, name := range loadgen.ListProfiles() {
		p, _ := loadgen.GetProfile(name)
		fmt.Printf("  %-12s %s\n", p.Name, p.Description)
	}
	fmt.Println()
	fmt.Println("使用例: kvload --profile write-heavy")
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tcp-kvs/internal/logger"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultStatsTimeout は stats_timeout 未指定時の秒数
	DefaultStatsTimeout = 5
	// DefaultFileWriteTimeout は file_write_timeout 未指定時の秒数
	DefaultFileWriteTimeout = 5

	// DirName と FileName は Find が探索する設定ファイルの位置
	DirName  = "conf"
	FileName = "server.yaml"
)

// ErrNotFound は Find が設定ファイルを見つけられなかったことを表す
var ErrNotFound = errors.New("configuration file not found")

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Server ServerSection `yaml:"server" json:"server"`
	Admin  AdminSection  `yaml:"admin" json:"admin"`
	Log    LogSection    `yaml:"log" json:"log"`
}

// ServerSection は server キー配下の設定
type ServerSection struct {
	Host             string `yaml:"host" json:"host"`
	Port             int    `yaml:"port" json:"port"`
	StatsTimeout     int    `yaml:"stats_timeout" json:"stats_timeout"`
	FileWriteTimeout int    `yaml:"file_write_timeout" json:"file_write_timeout"`
	KeyValuesFile    string `yaml:"key_values_file" json:"key_values_file"`
	MaxConnections   int    `yaml:"max_connections" json:"max_connections"`
}

// AdminSection は管理用 HTTP API の設定
type AdminSection struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LogSection はログ設定
type LogSection struct {
	Level string `yaml:"level" json:"level"`
}

// Server は起動時に一度だけ組み立てられる不変のサーバー設定
type Server struct {
	Host            string
	Port            int
	StatsInterval   time.Duration
	PersistInterval time.Duration
	SnapshotPath    string
	MaxConnections  int
	AdminAddr       string
	LogLevel        logger.Level
}

// Addr は listen 用の host:port を返す
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	sc := f.Server

	if strings.TrimSpace(sc.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if sc.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if sc.Port < 0 || sc.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if sc.StatsTimeout < 0 {
		return fmt.Errorf("server.stats_timeout must be non-negative")
	}
	if sc.FileWriteTimeout < 0 {
		return fmt.Errorf("server.file_write_timeout must be non-negative")
	}
	if strings.TrimSpace(sc.KeyValuesFile) == "" {
		return fmt.Errorf("server.key_values_file is required")
	}
	if sc.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must be non-negative")
	}
	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// ToServer は FileConfig を Server に変換する
// key_values_file は baseDir からの相対パスとして解決する
func (f *FileConfig) ToServer(baseDir string) (Server, error) {
	sc := f.Server

	cfg := Server{
		Host:            sc.Host,
		Port:            sc.Port,
		StatsInterval:   DefaultStatsTimeout * time.Second,
		PersistInterval: DefaultFileWriteTimeout * time.Second,
		MaxConnections:  sc.MaxConnections,
		AdminAddr:       strings.TrimSpace(f.Admin.Addr),
	}

	if sc.StatsTimeout > 0 {
		cfg.StatsInterval = time.Duration(sc.StatsTimeout) * time.Second
	}
	if sc.FileWriteTimeout > 0 {
		cfg.PersistInterval = time.Duration(sc.FileWriteTimeout) * time.Second
	}

	path := sc.KeyValuesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	cfg.SnapshotPath = filepath.Clean(path)

	level, err := logger.ParseLevel(f.Log.Level)
	if err != nil {
		return cfg, fmt.Errorf("log.level: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// Load は設定ファイルの読み込み・検証・変換をまとめて行う
func Load(path string) (Server, error) {
	fileConfig, err := LoadFile(path)
	if err != nil {
		return Server{}, err
	}
	if err := fileConfig.Validate(); err != nil {
		return Server{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return fileConfig.ToServer(filepath.Dir(path))
}

// Find は start から親ディレクトリへ遡り conf/server.yaml を探す
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	for {
		candidate := filepath.Join(dir, DirName, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s/%s above %s", ErrNotFound, DirName, FileName, start)
		}
		dir = parent
	}
}

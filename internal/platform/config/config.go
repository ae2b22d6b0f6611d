package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ROLLCALL-backend/internal/compliance"
	"ROLLCALL-backend/internal/platform/db"
	"ROLLCALL-backend/internal/platform/logging"
)

const (
	DefaultPath = "config/config.yaml"
	envPrefix   = "ROLLCALL_"
)

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// 両方指定されたときだけ TLS で待ち受ける
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

func (s ServerConfig) TLS() bool { return s.TLSCert != "" && s.TLSKey != "" }

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type SessionConfig struct {
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
	MaxDurationMinutes     int    `yaml:"max_duration_minutes"`
	CodeAttempts           int    `yaml:"code_attempts"`
	DefaultRoom            string `yaml:"default_room"`
}

type Config struct {
	Version  string            `yaml:"version"`
	Mode     string            `yaml:"mode"`
	Server   ServerConfig      `yaml:"server"`
	DB       db.DatabaseConfig `yaml:"database"`
	Auth     AuthConfig        `yaml:"auth"`
	Policy   compliance.Policy `yaml:"policy"`
	Sessions SessionConfig     `yaml:"sessions"`
	Log      logging.Config    `yaml:"log"`
	Seed     string            `yaml:"seed"` // memory ドライバ用の初期データ
}

func Default() Config {
	return Config{
		Mode: "dev",
		Server: ServerConfig{
			Addr:         ":8080",
			CORSOrigins:  []string{"http://localhost:3000"},
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		DB:     db.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: 3306},
		Auth:   AuthConfig{TokenTTL: 24 * time.Hour},
		Policy: compliance.DefaultPolicy(),
		Sessions: SessionConfig{
			DefaultDurationMinutes: 15,
			MaxDurationMinutes:     600,
			CodeAttempts:           10,
			DefaultRoom:            "TBD",
		},
		Log: logging.Config{Level: "info", Format: "json"},
	}
}

// Load は .env → YAML → 環境変数 の順に読み、最後に検証する
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	cfg := Default()
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envFile := os.Getenv(envPrefix + "ENV_FILE")
	explicit := envFile != ""
	if !explicit {
		envFile = filepath.Join(filepath.Dir(configPath), ".env")
	}
	if _, err := os.Stat(envFile); err != nil {
		if explicit {
			return fmt.Errorf("env file %s: %w", envFile, err)
		}
		return nil
	}
	// 既にある環境変数は上書きしない
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("config.godotenv(%s): %w", envFile, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	str("MODE", &c.Mode)
	str("HTTP_ADDR", &c.Server.Addr)
	str("TLS_CERT", &c.Server.TLSCert)
	str("TLS_KEY", &c.Server.TLSKey)
	str("DB_DRIVER", &c.DB.Driver)
	str("DB_HOST", &c.DB.Host)
	str("DB_USER", &c.DB.Username)
	str("DB_PASSWORD", &c.DB.Password)
	str("DB_NAME", &c.DB.DBName)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("SEED", &c.Seed)

	if v, ok := os.LookupEnv(envPrefix + "DB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sDB_PORT: %w", envPrefix, err)
		}
		c.DB.Port = port
	}
	if v, ok := os.LookupEnv(envPrefix + "CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.Mode != "dev" && c.Mode != "release" {
		errs = append(errs, fmt.Errorf("mode must be dev or release, got %q", c.Mode))
	}
	switch c.DB.Driver {
	case "mysql":
		if c.DB.Host == "" || c.DB.DBName == "" {
			errs = append(errs, errors.New("database.host and database.dbname are required for mysql"))
		}
	case "memory":
		if c.Mode == "release" {
			errs = append(errs, errors.New("memory driver is not allowed in release mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be mysql or memory, got %q", c.DB.Driver))
	}
	if c.Auth.JWTSecret == "" && c.Mode == "release" {
		errs = append(errs, errors.New("auth.jwt_secret is required in release mode"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	s := c.Sessions
	if s.DefaultDurationMinutes <= 0 || s.MaxDurationMinutes < s.DefaultDurationMinutes {
		errs = append(errs, errors.New("sessions: need 0 < default_duration_minutes <= max_duration_minutes"))
	}
	if s.CodeAttempts <= 0 {
		errs = append(errs, errors.New("sessions.code_attempts must be positive"))
	}
	return errors.Join(errs...)
}

// Secret は JWT の署名鍵。dev で未設定なら固定値を使う
func (c *Config) Secret() []byte {
	if c.Auth.JWTSecret == "" {
		return []byte("dev-only-secret")
	}
	return []byte(c.Auth.JWTSecret)
}

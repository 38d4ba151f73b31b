package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// StorageDriverPostgres は PostgreSQL を永続化先とします。
	StorageDriverPostgres = "postgres"
	// StorageDriverMemory はプロセス内メモリを永続化先とします (デモ・検証用)。
	StorageDriverMemory = "memory"
)

const (
	envDatabasePassword = "SITEACCESS_DATABASE_PASSWORD"
	envJWTSecret        = "SITEACCESS_JWT_SECRET"
	envStorageDriver    = "SITEACCESS_STORAGE_DRIVER"
)

const (
	defaultAdmissionTimeout = 3 * time.Second
	defaultScanCooldown     = 5 * time.Second
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Admission AdmissionConfig `yaml:"admission"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig は gRPC サーバーと運用 HTTP エンドポイントに関する設定です。
type ServerConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	HTTPListenAddr string `yaml:"http_listen_addr"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	AutoMigrate        bool          `yaml:"auto_migrate"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// StorageConfig は入退場台帳の永続化先を選択します。
type StorageConfig struct {
	Driver string `yaml:"driver"`
	// SeedFile は memory ドライバ起動時に読み込む名簿データ (YAML) です。
	SeedFile string `yaml:"seed_file"`
}

// AuthConfig はオペレーター (スキャナー担当者) のトークン検証設定です。
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// AdmissionConfig は入場判定に関する設定です。
type AdmissionConfig struct {
	Timeout             time.Duration `yaml:"-"`
	TimeoutRaw          string        `yaml:"timeout"`
	EnforceAllowedDates bool          `yaml:"enforce_allowed_dates"`
}

// LedgerConfig は台帳の日付境界に関する設定です。
type LedgerConfig struct {
	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

// ScannerConfig はスキャン端末のデバウンス設定です。
type ScannerConfig struct {
	Cooldown    time.Duration `yaml:"-"`
	CooldownRaw string        `yaml:"cooldown"`
}

// LoggingConfig はログ出力に関する設定です。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
// カレントディレクトリに .env があれば環境変数として読み込み、機密値の上書きに利用します。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	return Parse(b)
}

// Parse は YAML バイト列から設定を構築します。
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envDatabasePassword); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv(envJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(envStorageDriver); v != "" {
		c.Storage.Driver = v
	}
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = StorageDriverPostgres
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("config: storage.driver %q is not supported", c.Storage.Driver)
	}

	if c.Storage.Driver == StorageDriverPostgres {
		if err := c.Database.validateAndNormalize(); err != nil {
			return err
		}
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("config: auth.jwt_secret must be set")
	}

	timeout, err := parseDurationAllowEmpty(c.Admission.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: admission.timeout: %w", err)
	}
	if timeout == 0 {
		timeout = defaultAdmissionTimeout
	}
	c.Admission.Timeout = timeout

	cooldown, err := parseDurationAllowEmpty(c.Scanner.CooldownRaw)
	if err != nil {
		return fmt.Errorf("config: scanner.cooldown: %w", err)
	}
	if cooldown == 0 {
		cooldown = defaultScanCooldown
	}
	c.Scanner.Cooldown = cooldown

	if c.Ledger.Timezone == "" {
		c.Ledger.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return fmt.Errorf("config: ledger.timezone: %w", err)
	}
	c.Ledger.Location = loc

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("config: logging.format must be json or text")
	}

	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。ユーザー名とパスワードはエスケープされます。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

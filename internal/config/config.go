// Package config provides configuration management for cloudfm.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"github.com/rescale/cloudfm/internal/constants"
)

// Config is the cloudfm configuration.
//
// Config file location:
//   - Windows: %APPDATA%\cloudfm\cloudfm.conf
//   - Unix: ~/.config/cloudfm/cloudfm.conf
//
// INI format:
//
//	[ui]
//	coalesce_window_ms = 100
//	linger_ms = 2000
//	style = bars
//
//	[upload]
//	backend = s3
//	max_concurrent = 5
//	include_hidden = false
//	max_retries = 5
//	exclude = *.tmp, scratch/**
//
//	[s3]
//	bucket = my-bucket
//	region = us-east-1
//	prefix = backups
//	endpoint =
//
//	[azure]
//	container_url = https://acct.blob.core.windows.net/backups
//
//	[local]
//	root = /mnt/archive
//
//	[network]
//	proxy_mode = no-proxy
//	proxy_host =
//	proxy_port = 8080
//	proxy_user =
//	no_proxy = localhost,127.0.0.1
//
//	[logging]
//	level = info
//	file = cloudfm.log
//
// Secrets (s3 secret_key, proxy_password) are never written by Save; supply
// them through the environment or a .env file.
type Config struct {
	UI      UIConfig
	Upload  UploadConfig
	S3      S3Config
	Azure   AzureConfig
	Local   LocalConfig
	Network NetworkConfig
	Logging LoggingConfig
}

// UIConfig controls progress rendering.
type UIConfig struct {
	// CoalesceWindowMs is the redraw coalescing window. Default: 100
	CoalesceWindowMs int `ini:"coalesce_window_ms"`

	// LingerMs is how long a finished operation stays on screen. Default: 2000
	LingerMs int `ini:"linger_ms"`

	// Style is bars, compact or plain. Default: bars
	Style string `ini:"style"`
}

// UploadConfig controls the folder upload engine.
type UploadConfig struct {
	// Backend is local, s3 or azure. Default: local
	Backend string `ini:"backend"`

	// MaxConcurrent is the number of files uploaded at once.
	// Minimum: 1, Maximum: 32, Default: 5
	MaxConcurrent int `ini:"max_concurrent"`

	// IncludeHidden uploads dot-files and hidden directories. Default: false
	IncludeHidden bool `ini:"include_hidden"`

	// MaxRetries is the number of retries per file for transient errors. Default: 5
	MaxRetries int `ini:"max_retries"`

	// FilesPerSecond caps how many files start uploading per second.
	// 0 means unlimited. Default: 0
	FilesPerSecond int `ini:"files_per_second"`

	// Include and Exclude are comma-separated glob patterns matched against
	// each file's path relative to the uploaded folder. ** spans directories.
	Include string `ini:"include"`
	Exclude string `ini:"exclude"`
}

// S3Config configures the S3 backend. Empty credentials fall back to the
// AWS default credential chain.
type S3Config struct {
	Bucket    string `ini:"bucket"`
	Region    string `ini:"region"`
	Prefix    string `ini:"prefix"`
	Endpoint  string `ini:"endpoint"` // S3-compatible endpoint; enables path-style addressing
	AccessKey string `ini:"access_key"`
	SecretKey string `ini:"-"`
}

// AzureConfig configures the Azure Blob backend. ContainerURL may carry a
// SAS token; otherwise AccountURL and Container are used with the shared key
// from AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY.
type AzureConfig struct {
	ContainerURL string `ini:"container_url"`
	AccountURL   string `ini:"account_url"`
	Container    string `ini:"container"`
}

// LocalConfig configures the local directory backend.
type LocalConfig struct {
	Root string `ini:"root"`
}

// NetworkConfig holds proxy settings shared by the cloud backends.
type NetworkConfig struct {
	ProxyMode     string `ini:"proxy_mode"` // no-proxy, system, basic, ntlm
	ProxyHost     string `ini:"proxy_host"`
	ProxyPort     int    `ini:"proxy_port"`
	ProxyUser     string `ini:"proxy_user"`
	ProxyPassword string `ini:"-"`
	NoProxy       string `ini:"no_proxy"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `ini:"level"` // debug, info, warn, error
	File  string `ini:"file"`  // Empty disables file logging
}

// Config validation errors
var (
	ErrInvalidBackend        = errors.New("upload backend must be local, s3 or azure")
	ErrInvalidMaxConcurrent  = fmt.Errorf("max_concurrent must be between 1 and %d", constants.MaxConcurrentLimit)
	ErrInvalidMaxRetries     = errors.New("max_retries must be between 0 and 20")
	ErrInvalidFilesPerSecond = errors.New("files_per_second must not be negative")
	ErrInvalidCoalesceWindow = errors.New("coalesce_window_ms must be between 1 and 10000")
	ErrInvalidLinger         = errors.New("linger_ms must be between 0 and 60000")
	ErrInvalidStyle          = errors.New("ui style must be bars, compact or plain")
	ErrMissingS3Bucket       = errors.New("s3 bucket is required for the s3 backend")
	ErrMissingAzureContainer = errors.New("azure container_url, or account_url and container, are required for the azure backend")
	ErrMissingLocalRoot      = errors.New("local root is required for the local backend")
	ErrInvalidProxyMode      = errors.New("proxy_mode must be no-proxy, system, basic or ntlm")
	ErrMissingProxyHost      = errors.New("proxy_host is required for basic and ntlm proxy modes")
)

// Backend names
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendAzure = "azure"
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		UI: UIConfig{
			CoalesceWindowMs: int(constants.CoalesceWindow / time.Millisecond),
			LingerMs:         int(constants.TerminalLingerDelay / time.Millisecond),
			Style:            "bars",
		},
		Upload: UploadConfig{
			Backend:       BackendLocal,
			MaxConcurrent: constants.DefaultMaxConcurrent,
			MaxRetries:    constants.MaxRetries,
		},
		Local: LocalConfig{
			Root: defaultLocalRoot(),
		},
		Network: NetworkConfig{
			ProxyMode: "no-proxy",
			ProxyPort: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultLocalRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return "C:\\cloudfm"
		}
		return "/tmp/cloudfm"
	}
	return filepath.Join(home, "cloudfm")
}

// Load reads configuration in increasing precedence: defaults, the INI file
// at path, then CLOUDFM_* environment variables. envFiles are loaded into the
// environment first without overriding variables that are already set;
// with none given, ./.env is tried. Missing files are not errors.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path, _ = DefaultConfigPath() // no home directory: defaults and environment only
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadINI(path); err != nil {
				return nil, err
			}
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) loadINI(path string) error {
	iniFile, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}
	d := DefaultConfig()

	ui := iniFile.Section("ui")
	cfg.UI.CoalesceWindowMs = ui.Key("coalesce_window_ms").MustInt(d.UI.CoalesceWindowMs)
	cfg.UI.LingerMs = ui.Key("linger_ms").MustInt(d.UI.LingerMs)
	cfg.UI.Style = ui.Key("style").MustString(d.UI.Style)

	upload := iniFile.Section("upload")
	cfg.Upload.Backend = upload.Key("backend").MustString(d.Upload.Backend)
	cfg.Upload.MaxConcurrent = upload.Key("max_concurrent").MustInt(d.Upload.MaxConcurrent)
	cfg.Upload.IncludeHidden = upload.Key("include_hidden").MustBool(false)
	cfg.Upload.MaxRetries = upload.Key("max_retries").MustInt(d.Upload.MaxRetries)
	cfg.Upload.FilesPerSecond = upload.Key("files_per_second").MustInt(0)
	cfg.Upload.Include = upload.Key("include").String()
	cfg.Upload.Exclude = upload.Key("exclude").String()

	s3 := iniFile.Section("s3")
	cfg.S3.Bucket = s3.Key("bucket").String()
	cfg.S3.Region = s3.Key("region").String()
	cfg.S3.Prefix = s3.Key("prefix").String()
	cfg.S3.Endpoint = s3.Key("endpoint").String()
	cfg.S3.AccessKey = s3.Key("access_key").String()

	az := iniFile.Section("azure")
	cfg.Azure.ContainerURL = az.Key("container_url").String()
	cfg.Azure.AccountURL = az.Key("account_url").String()
	cfg.Azure.Container = az.Key("container").String()

	cfg.Local.Root = iniFile.Section("local").Key("root").MustString(d.Local.Root)

	network := iniFile.Section("network")
	cfg.Network.ProxyMode = network.Key("proxy_mode").MustString(d.Network.ProxyMode)
	cfg.Network.ProxyHost = network.Key("proxy_host").String()
	cfg.Network.ProxyPort = network.Key("proxy_port").MustInt(d.Network.ProxyPort)
	cfg.Network.ProxyUser = network.Key("proxy_user").String()
	cfg.Network.NoProxy = network.Key("no_proxy").String()

	logging := iniFile.Section("logging")
	cfg.Logging.Level = logging.Key("level").MustString(d.Logging.Level)
	cfg.Logging.File = logging.Key("file").String()

	return nil
}

// applyEnv overrides fields from CLOUDFM_* environment variables.
func (cfg *Config) applyEnv() error {
	strs := map[string]*string{
		"CLOUDFM_UI_STYLE":            &cfg.UI.Style,
		"CLOUDFM_BACKEND":             &cfg.Upload.Backend,
		"CLOUDFM_INCLUDE":             &cfg.Upload.Include,
		"CLOUDFM_EXCLUDE":             &cfg.Upload.Exclude,
		"CLOUDFM_S3_BUCKET":           &cfg.S3.Bucket,
		"CLOUDFM_S3_REGION":           &cfg.S3.Region,
		"CLOUDFM_S3_PREFIX":           &cfg.S3.Prefix,
		"CLOUDFM_S3_ENDPOINT":         &cfg.S3.Endpoint,
		"CLOUDFM_S3_ACCESS_KEY":       &cfg.S3.AccessKey,
		"CLOUDFM_S3_SECRET_KEY":       &cfg.S3.SecretKey,
		"CLOUDFM_AZURE_CONTAINER_URL": &cfg.Azure.ContainerURL,
		"CLOUDFM_AZURE_ACCOUNT_URL":   &cfg.Azure.AccountURL,
		"CLOUDFM_AZURE_CONTAINER":     &cfg.Azure.Container,
		"CLOUDFM_LOCAL_ROOT":          &cfg.Local.Root,
		"CLOUDFM_PROXY_MODE":          &cfg.Network.ProxyMode,
		"CLOUDFM_PROXY_HOST":          &cfg.Network.ProxyHost,
		"CLOUDFM_PROXY_USER":          &cfg.Network.ProxyUser,
		"CLOUDFM_PROXY_PASSWORD":      &cfg.Network.ProxyPassword,
		"CLOUDFM_NO_PROXY":            &cfg.Network.NoProxy,
		"CLOUDFM_LOG_LEVEL":           &cfg.Logging.Level,
		"CLOUDFM_LOG_FILE":            &cfg.Logging.File,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CLOUDFM_COALESCE_WINDOW_MS": &cfg.UI.CoalesceWindowMs,
		"CLOUDFM_LINGER_MS":          &cfg.UI.LingerMs,
		"CLOUDFM_MAX_CONCURRENT":     &cfg.Upload.MaxConcurrent,
		"CLOUDFM_MAX_RETRIES":        &cfg.Upload.MaxRetries,
		"CLOUDFM_FILES_PER_SECOND":   &cfg.Upload.FilesPerSecond,
		"CLOUDFM_PROXY_PORT":         &cfg.Network.ProxyPort,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("CLOUDFM_INCLUDE_HIDDEN"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CLOUDFM_INCLUDE_HIDDEN=%q: %w", v, err)
		}
		cfg.Upload.IncludeHidden = b
	}
	return nil
}

// Save writes the configuration to path, or the default path when empty.
// Creates parent directories and replaces the file atomically.
func (cfg *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"ui", [][2]string{
			{"coalesce_window_ms", strconv.Itoa(cfg.UI.CoalesceWindowMs)},
			{"linger_ms", strconv.Itoa(cfg.UI.LingerMs)},
			{"style", cfg.UI.Style},
		}},
		{"upload", [][2]string{
			{"backend", cfg.Upload.Backend},
			{"max_concurrent", strconv.Itoa(cfg.Upload.MaxConcurrent)},
			{"include_hidden", strconv.FormatBool(cfg.Upload.IncludeHidden)},
			{"max_retries", strconv.Itoa(cfg.Upload.MaxRetries)},
			{"files_per_second", strconv.Itoa(cfg.Upload.FilesPerSecond)},
			{"include", cfg.Upload.Include},
			{"exclude", cfg.Upload.Exclude},
		}},
		{"s3", [][2]string{
			{"bucket", cfg.S3.Bucket},
			{"region", cfg.S3.Region},
			{"prefix", cfg.S3.Prefix},
			{"endpoint", cfg.S3.Endpoint},
			{"access_key", cfg.S3.AccessKey},
		}},
		{"azure", [][2]string{
			{"container_url", cfg.Azure.ContainerURL},
			{"account_url", cfg.Azure.AccountURL},
			{"container", cfg.Azure.Container},
		}},
		{"local", [][2]string{
			{"root", cfg.Local.Root},
		}},
		{"network", [][2]string{
			{"proxy_mode", cfg.Network.ProxyMode},
			{"proxy_host", cfg.Network.ProxyHost},
			{"proxy_port", strconv.Itoa(cfg.Network.ProxyPort)},
			{"proxy_user", cfg.Network.ProxyUser},
			{"no_proxy", cfg.Network.NoProxy},
		}},
		{"logging", [][2]string{
			{"level", cfg.Logging.Level},
			{"file", cfg.Logging.File},
		}},
	}
	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Validate checks if the configuration is usable.
// Returns nil if valid, or an error describing what's wrong.
func (cfg *Config) Validate() error {
	if cfg.UI.CoalesceWindowMs < 1 || cfg.UI.CoalesceWindowMs > 10000 {
		return ErrInvalidCoalesceWindow
	}
	if cfg.UI.LingerMs < 0 || cfg.UI.LingerMs > 60000 {
		return ErrInvalidLinger
	}
	switch strings.ToLower(cfg.UI.Style) {
	case "", "bars", "compact", "plain":
	default:
		return ErrInvalidStyle
	}

	if cfg.Upload.MaxConcurrent < 1 || cfg.Upload.MaxConcurrent > constants.MaxConcurrentLimit {
		return ErrInvalidMaxConcurrent
	}
	if cfg.Upload.MaxRetries < 0 || cfg.Upload.MaxRetries > 20 {
		return ErrInvalidMaxRetries
	}
	if cfg.Upload.FilesPerSecond < 0 {
		return ErrInvalidFilesPerSecond
	}

	switch cfg.Upload.Backend {
	case BackendLocal:
		if strings.TrimSpace(cfg.Local.Root) == "" {
			return ErrMissingLocalRoot
		}
	case BackendS3:
		if strings.TrimSpace(cfg.S3.Bucket) == "" {
			return ErrMissingS3Bucket
		}
	case BackendAzure:
		if cfg.Azure.ContainerURL == "" && (cfg.Azure.AccountURL == "" || cfg.Azure.Container == "") {
			return ErrMissingAzureContainer
		}
	default:
		return ErrInvalidBackend
	}

	switch strings.ToLower(cfg.Network.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if cfg.Network.ProxyHost == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	return nil
}

// CoalesceWindow returns the redraw window as a duration.
func (cfg *Config) CoalesceWindow() time.Duration {
	return time.Duration(cfg.UI.CoalesceWindowMs) * time.Millisecond
}

// LingerDelay returns how long finished operations stay attached.
func (cfg *Config) LingerDelay() time.Duration {
	return time.Duration(cfg.UI.LingerMs) * time.Millisecond
}

// NeedsProxyPassword returns true if the proxy requires credentials that are
// only partially configured.
func (cfg *Config) NeedsProxyPassword() bool {
	mode := strings.ToLower(cfg.Network.ProxyMode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return cfg.Network.ProxyUser != "" && cfg.Network.ProxyPassword == ""
}

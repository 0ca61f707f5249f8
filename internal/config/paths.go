package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath returns the default path for cloudfm.conf.
//   - Windows: %APPDATA%\cloudfm\cloudfm.conf
//   - Unix: ~/.config/cloudfm/cloudfm.conf
func DefaultConfigPath() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", errors.New("neither APPDATA nor USERPROFILE environment variable set")
			}
			appData = filepath.Join(userProfile, "AppData", "Roaming")
		}
		return filepath.Join(appData, "cloudfm", "cloudfm.conf"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cloudfm", "cloudfm.conf"), nil
}

// LogDirectory returns the directory for rotated log files.
//   - Windows: %LOCALAPPDATA%\cloudfm\logs
//   - Unix: ~/.config/cloudfm/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "cloudfm-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "cloudfm", "logs")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "cloudfm-logs")
		}
		return filepath.Join(homeDir, ".config", "cloudfm", "logs")
	}
	return filepath.Join(configDir, "cloudfm", "logs")
}

// ResolveLogFile turns a configured log file into an absolute path. Bare file
// names go under LogDirectory, whose permissions are restricted to the owner.
func ResolveLogFile(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name, nil
	}
	dir := LogDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

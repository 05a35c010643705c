package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	// MaxBackups is the number of user config backups kept.
	MaxBackups = 3

	// BackupSuffix precedes the timestamp in backup file names.
	BackupSuffix = ".bak"
)

// BackupUserConfig copies the user config to a timestamped sibling file
// and prunes old backups. It returns "" when there is nothing to back up.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Pruning is best effort; the backup itself succeeded.
	_ = pruneBackups()

	return backupPath, nil
}

// ListUserConfigBackups returns backup files, newest first.
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	configDir := filepath.Dir(configPath)

	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(configPath) + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(configDir, entry.Name()))
		}
	}

	// Timestamps sort lexically.
	slices.Sort(backups)
	slices.Reverse(backups)
	return backups, nil
}

func pruneBackups() error {
	backups, err := ListUserConfigBackups()
	if err != nil {
		return err
	}
	if len(backups) <= MaxBackups {
		return nil
	}
	for _, backup := range backups[MaxBackups:] {
		_ = os.Remove(backup)
	}
	return nil
}

// InitUserConfig writes the default configuration to the user config path.
// An existing file is left alone unless force is set, in which case it is
// backed up first. It returns the written path and the backup path, if any.
func InitUserConfig(force bool) (string, string, error) {
	configPath := GetUserConfigPath()
	if UserConfigExists() && !force {
		return "", "", fmt.Errorf("user config already exists at %s (use --force to overwrite)", configPath)
	}

	backupPath, err := BackupUserConfig()
	if err != nil {
		return "", "", err
	}
	if err := NewConfig().WriteYAML(configPath); err != nil {
		return "", "", err
	}
	return configPath, backupPath, nil
}

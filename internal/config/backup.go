package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the number of user config backups kept.
	MaxBackups = 3

	// BackupSuffix separates the config file name from the backup timestamp.
	BackupSuffix = ".bak"
)

// InitUserConfig writes c to the user config path. An existing file is
// backed up first and the backup path returned; without force an existing
// file is left untouched and an error returned.
func InitUserConfig(c *Config, force bool) (string, error) {
	path := GetUserConfigPath()
	var backup string
	if fileExists(path) {
		if !force {
			return "", fmt.Errorf("user config already exists at %s", path)
		}
		var err error
		if backup, err = BackupUserConfig(time.Now()); err != nil {
			return "", err
		}
	}
	if err := c.WriteYAML(path); err != nil {
		return backup, err
	}
	return backup, nil
}

// BackupUserConfig copies the user config to a backup stamped with now and
// prunes all but the newest MaxBackups. Returns "" when there is no config.
func BackupUserConfig(now time.Time) (string, error) {
	path := GetUserConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backup := fmt.Sprintf("%s%s.%s", path, BackupSuffix, now.Format("20060102-150405.000"))
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	backups, err := ListUserConfigBackups()
	if err == nil && len(backups) > MaxBackups {
		for _, old := range backups[MaxBackups:] {
			_ = os.Remove(old)
		}
	}
	return backup, nil
}

// ListUserConfigBackups returns the user config backups, newest first.
// Backup names embed a sortable timestamp, so ordering is by name.
func ListUserConfigBackups() ([]string, error) {
	path := GetUserConfigPath()
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(path) + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(filepath.Dir(path), entry.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

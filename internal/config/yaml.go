package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile           = "ROOM_GATEWAY_CONFIG_FILE"
	configDirName           = ".room-gateway"
	defaultConfigFileName   = "config.yaml"
	alternateConfigFileName = "config.yml"
)

type fileConfig struct {
	Version   int                 `yaml:"version"`
	HTTPAddr  string              `yaml:"http_addr"`
	Frontend  string              `yaml:"frontend_url"`
	LiveKit   fileLiveKitConfig   `yaml:"livekit"`
	Tokens    fileTokensConfig    `yaml:"tokens"`
	Rooms     fileRoomsConfig     `yaml:"rooms"`
	Recording fileRecordingConfig `yaml:"recording"`
	Records   fileRecordsConfig   `yaml:"records"`
	Webhooks  fileWebhooksConfig  `yaml:"webhooks"`
}

type fileLiveKitConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

type fileTokensConfig struct {
	AgentIdentity string `yaml:"agent_identity"`
	TTL           string `yaml:"ttl"`
}

type fileRoomsConfig struct {
	IdleTimeout     string `yaml:"idle_timeout"`
	MaxParticipants int    `yaml:"max_participants"`
	PollInterval    string `yaml:"poll_interval"`
}

type fileRecordingConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	Bucket          string `yaml:"bucket"`
	Layout          string `yaml:"layout"`
	Preset          string `yaml:"preset"`
	FileType        string `yaml:"file_type"`
	Timeout         string `yaml:"timeout"`
}

type fileRecordsConfig struct {
	Driver   string             `yaml:"driver"`
	DSN      string             `yaml:"dsn"`
	Airtable fileAirtableConfig `yaml:"airtable"`
}

type fileAirtableConfig struct {
	BaseID        string `yaml:"base_id"`
	SubjectsTable string `yaml:"subjects_table"`
	SessionsTable string `yaml:"sessions_table"`
	URL           string `yaml:"url"`
}

type fileWebhooksConfig struct {
	URLs   []string `yaml:"urls"`
	Secret string   `yaml:"secret"`
}

func loadFileConfig() (fileConfig, error) {
	path, ok, err := resolveConfigFilePath()
	if err != nil {
		return fileConfig{}, err
	}
	if !ok {
		return fileConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return cfg, nil
}

func resolveConfigFilePath() (string, bool, error) {
	if explicit := EnvString(EnvConfigFile); explicit != "" {
		resolvedPath, err := expandPath(explicit)
		if err != nil {
			return "", false, fmt.Errorf("resolve %s: %w", EnvConfigFile, err)
		}
		info, err := os.Stat(resolvedPath)
		if err != nil {
			return "", false, fmt.Errorf("config file %s: %w", resolvedPath, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config file %s is a directory", resolvedPath)
		}
		return resolvedPath, true, nil
	}

	candidates := []string{
		filepath.Join(configDirName, defaultConfigFileName),
		filepath.Join(configDirName, alternateConfigFileName),
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", false, fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}
	return "", false, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		return os.UserHomeDir()
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(trimmed, "~/")), nil
	}
	return trimmed, nil
}

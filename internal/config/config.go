// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/Corphon/DialogueEngine/internal/utils"
)

// Save backends
const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// 当前配置的单例实例
var (
	currentConfig *Config
	configMutex   sync.RWMutex
	configFile    string
)

// Config 存储应用配置
type Config struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	LogLevel  string `json:"log_level"`
	DebugMode bool   `json:"debug_mode"`

	// 对话配置
	DialogueDB              string `json:"dialogue_db"`
	Language                string `json:"language"`
	AlwaysForceResponseMenu bool   `json:"always_force_response_menu"`

	// 存档配置
	SaveBackend  string `json:"save_backend"`
	SaveDir      string `json:"save_dir"`
	SaveEncrypt  bool   `json:"save_encrypt"`
	SavePassword string `json:"-"`
	SceneName    string `json:"scene_name"`
	SceneIndex   int    `json:"scene_index"`

	// 认证配置，为空时不校验令牌
	AuthSecret string `json:"-"`
}

// Load 从环境变量加载配置，.env 文件可选
func Load() (*Config, error) {
	godotenv.Load()

	dataDir := getEnvPath("DATA_DIR", "data")
	config := &Config{
		Port:                    getEnv("PORT", "8080"),
		DataDir:                 dataDir,
		LogDir:                  getEnvPath("LOG_DIR", "logs"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DebugMode:               getEnvBool("DEBUG_MODE", false),
		DialogueDB:              getEnv("DIALOGUE_DB", filepath.Join(dataDir, "dialogue.json")),
		Language:                getEnv("LANGUAGE", ""),
		AlwaysForceResponseMenu: getEnvBool("ALWAYS_FORCE_RESPONSE_MENU", true),
		SaveBackend:             strings.ToLower(getEnv("SAVE_BACKEND", BackendDisk)),
		SaveDir:                 getEnv("SAVE_DIR", filepath.Join(dataDir, "saves")),
		SaveEncrypt:             getEnvBool("SAVE_ENCRYPT", false),
		SavePassword:            getEnv("SAVE_PASSWORD", ""),
		SceneName:               getEnv("SCENE_NAME", "main"),
		SceneIndex:              getEnvInt("SCENE_INDEX", 0),
		AuthSecret:              getEnv("AUTH_SECRET_KEY", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that cannot be defaulted. Soft problems are logged.
func (c *Config) Validate() error {
	switch c.SaveBackend {
	case BackendDisk, BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown SAVE_BACKEND %q (want disk, memory or sqlite)", c.SaveBackend)
	}
	if c.SceneIndex < 0 {
		return fmt.Errorf("SCENE_INDEX must not be negative")
	}
	if c.SaveEncrypt && c.SavePassword == "" {
		utils.GetLogger().Warn("SAVE_ENCRYPT is set but SAVE_PASSWORD is empty; saves will not be encrypted", nil)
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径并确保目录存在
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			utils.GetLogger().Warn("Failed to create directory", map[string]interface{}{"path": path, "error": err.Error()})
		}
	}
	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量，无法解析时使用默认值
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		utils.GetLogger().Warn("Ignoring non-numeric environment value", map[string]interface{}{"key": key, "value": value})
		return defaultValue
	}
	return n
}

// settingsFile is the part of the configuration persisted in DATA_DIR
type settingsFile struct {
	Language                *string `json:"language,omitempty"`
	AlwaysForceResponseMenu *bool   `json:"always_force_response_menu,omitempty"`
}

// InitConfig 初始化配置管理器: 环境变量为基础，data 目录下 config.json 覆盖对话设置
func InitConfig(base *Config) error {
	if base == nil {
		return fmt.Errorf("配置为空")
	}
	configFile = filepath.Join(base.DataDir, "config.json")

	cfg := *base
	if data, err := os.ReadFile(configFile); err == nil {
		var saved settingsFile
		if err := json.Unmarshal(data, &saved); err != nil {
			utils.GetLogger().Warn("Ignoring unreadable config file", map[string]interface{}{"file": configFile, "error": err.Error()})
		} else {
			if saved.Language != nil {
				cfg.Language = *saved.Language
			}
			if saved.AlwaysForceResponseMenu != nil {
				cfg.AlwaysForceResponseMenu = *saved.AlwaysForceResponseMenu
			}
		}
	}

	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = &cfg
	return nil
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		cfg, err := Load()
		if err != nil {
			return &Config{Port: "8080", DataDir: "data", LogDir: "logs", SaveBackend: BackendMemory, SceneName: "main"}
		}
		return cfg
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateDialogueSettings 更新对话设置并保存到文件
func UpdateDialogueSettings(language string, alwaysForceResponseMenu bool) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	currentConfig.Language = language
	currentConfig.AlwaysForceResponseMenu = alwaysForceResponseMenu
	return saveConfigLocked()
}

// saveConfigLocked 保存对话设置到文件
func saveConfigLocked() error {
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(settingsFile{
		Language:                &currentConfig.Language,
		AlwaysForceResponseMenu: &currentConfig.AlwaysForceResponseMenu,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	return os.WriteFile(configFile, data, 0644)
}

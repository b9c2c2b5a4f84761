// internal/app/app.go
package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Corphon/DialogueEngine/internal/config"
	"github.com/Corphon/DialogueEngine/internal/di"
	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/savesystem"
	"github.com/Corphon/DialogueEngine/internal/services"
	"github.com/Corphon/DialogueEngine/internal/storage"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// LogFileName is the log file created inside LOG_DIR
const LogFileName = "dialogue.log"

// App 持有按依赖顺序构建好的服务
type App struct {
	Config        *config.Config
	Container     *di.Container
	Logger        *utils.Logger
	Metrics       *utils.DialogueMetrics
	Events        *services.EventBus
	Conversations *services.ConversationService
	Saves         *services.SaveService
	Stats         *services.StatsService
	DatabaseCache *storage.DatabaseCache

	closers []io.Closer
}

// New 初始化所有服务（按依赖顺序）并注册到容器
func New(cfg *config.Config, logger *utils.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = utils.GetLogger()
	}

	a := &App{
		Config:        cfg,
		Container:     di.NewContainer(),
		Logger:        logger,
		DatabaseCache: storage.NewDatabaseCache(4),
	}

	a.Metrics = utils.NewDialogueMetrics(utils.NewMetricsCollector(), logger)
	a.Events = services.NewEventBus()

	db := a.loadDatabase()

	storer, closer, err := NewStorer(cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	system := savesystem.New(storer,
		savesystem.WithLogger(logger),
		savesystem.WithScene(cfg.SceneName, cfg.SceneIndex),
	)

	a.Conversations = services.NewConversationService(db, services.ConversationServiceOptions{
		Language:                cfg.Language,
		AlwaysForceResponseMenu: cfg.AlwaysForceResponseMenu,
		Publisher:               a.Events,
		Metrics:                 a.Metrics,
		Logger:                  logger,
	})
	system.RegisterSaver(a.Conversations.Variables())

	a.Saves = services.NewSaveService(system, a.Metrics, logger)
	a.Saves.OnLoad(a.Conversations.RefreshResponses)

	a.Stats = services.NewStatsService(a.Metrics, a.Conversations)

	a.Container.Register(di.ServiceConfig, cfg)
	a.Container.Register(di.ServiceLogger, logger)
	a.Container.Register(di.ServiceMetrics, a.Metrics)
	a.Container.Register(di.ServiceEvents, a.Events)
	a.Container.Register(di.ServiceConversations, a.Conversations)
	a.Container.Register(di.ServiceSaves, a.Saves)
	a.Container.Register(di.ServiceStats, a.Stats)
	a.Container.Register(di.ServiceDatabaseCache, a.DatabaseCache)

	logger.Info("Services initialized", map[string]interface{}{
		"services":     len(a.Container.GetNames()),
		"save_backend": cfg.SaveBackend,
	})
	return a, nil
}

// loadDatabase reads DIALOGUE_DB. A missing or broken database is logged and
// replaced by an empty one so the save endpoints keep working.
func (a *App) loadDatabase() *models.DialogueDatabase {
	db, err := a.DatabaseCache.Load(a.Config.DialogueDB)
	if err != nil {
		a.Logger.Warn("Dialogue database not loaded; conversations are unavailable", map[string]interface{}{
			"path":  a.Config.DialogueDB,
			"error": err.Error(),
		})
		return &models.DialogueDatabase{}
	}

	for _, problem := range db.Validate() {
		a.Logger.Warn("Dialogue database problem", map[string]interface{}{"problem": problem})
	}
	a.Logger.Info("Dialogue database loaded", map[string]interface{}{
		"path":          a.Config.DialogueDB,
		"actors":        len(db.Actors),
		"conversations": len(db.Conversations),
	})
	return db
}

// NewStorer builds the save storer selected by SAVE_BACKEND. The closer is
// nil when the storer holds no resources.
func NewStorer(cfg *config.Config, logger *utils.Logger) (savesystem.Storer, io.Closer, error) {
	serializer := savesystem.JSONSerializer{Indent: cfg.DebugMode}

	switch cfg.SaveBackend {
	case config.BackendMemory:
		return storage.NewMemoryStorer(serializer, logger), nil, nil
	case config.BackendSQLite:
		s, err := storage.NewSQLiteStorer(filepath.Join(cfg.SaveDir, "saves.db"), serializer, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite save store: %w", err)
		}
		return s, s, nil
	case config.BackendDisk, "":
		s, err := storage.NewDiskStorer(storage.DiskOptions{
			Dir:        cfg.SaveDir,
			Encrypt:    cfg.SaveEncrypt,
			Password:   cfg.SavePassword,
			Serializer: serializer,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open disk save store: %w", err)
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown save backend %q", cfg.SaveBackend)
	}
}

// SetupLogger applies the configured level and adds the log file sink.
func SetupLogger(cfg *config.Config) *utils.Logger {
	logger := utils.GetLogger()
	level := utils.ParseLogLevel(cfg.LogLevel)
	if cfg.DebugMode {
		level = utils.DEBUG
	}
	logger.SetLogLevel(level)
	logger.Enable(!strings.EqualFold(strings.TrimSpace(cfg.LogLevel), "off"))

	if err := os.MkdirAll(cfg.LogDir, 0755); err == nil {
		if err := logger.OpenFile(filepath.Join(cfg.LogDir, LogFileName)); err != nil {
			logger.Warn("Logging to stdout only", map[string]interface{}{"error": err.Error()})
		}
	}
	return logger
}

// AddCloser registers c to be closed by Close.
func (a *App) AddCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Close ends running conversations and releases storage.
func (a *App) Close() error {
	if a.Conversations != nil {
		a.Conversations.CloseAll()
	}
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// internal/storage/file_cache.go
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Corphon/DialogueEngine/internal/models"
)

// DatabaseCache 缓存已解析的对话数据库，文件变化时重新加载
type DatabaseCache struct {
	cache   map[string]*DatabaseCacheEntry
	mutex   sync.RWMutex
	maxSize int
}

// DatabaseCacheEntry 缓存条目
type DatabaseCacheEntry struct {
	Database *models.DialogueDatabase
	LoadedAt time.Time
	LastRead time.Time
	ModTime  time.Time
	Size     int64
}

// NewDatabaseCache 创建对话数据库缓存
func NewDatabaseCache(maxSize int) *DatabaseCache {
	if maxSize <= 0 {
		maxSize = 8
	}
	return &DatabaseCache{
		cache:   make(map[string]*DatabaseCacheEntry),
		maxSize: maxSize,
	}
}

// Load returns the database at path, parsing it again only when the file
// changed since the cached copy was read.
func (c *DatabaseCache) Load(path string) (*models.DialogueDatabase, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("获取文件绝对路径失败: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件信息失败: %w", err)
	}

	c.mutex.Lock()
	entry, exists := c.cache[absPath]
	if exists && !info.ModTime().After(entry.ModTime) && info.Size() == entry.Size {
		entry.LastRead = time.Now()
		c.mutex.Unlock()
		return entry.Database, nil
	}
	c.mutex.Unlock()

	db, err := models.LoadDialogueDatabase(absPath)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[absPath] = &DatabaseCacheEntry{
		Database: db,
		LoadedAt: now,
		LastRead: now,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}
	if len(c.cache) > c.maxSize {
		c.cleanupLRU(len(c.cache) - c.maxSize)
	}
	return db, nil
}

// Invalidate drops the cached copy of path.
func (c *DatabaseCache) Invalidate(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	c.mutex.Lock()
	delete(c.cache, absPath)
	c.mutex.Unlock()
}

// Len returns the number of cached databases.
func (c *DatabaseCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}

// 清理最少使用的条目
func (c *DatabaseCache) cleanupLRU(count int) {
	type keyAge struct {
		key  string
		time time.Time
	}

	entries := make([]keyAge, 0, len(c.cache))
	for k, v := range c.cache {
		entries = append(entries, keyAge{k, v.LastRead})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	for i := 0; i < min(count, len(entries)); i++ {
		delete(c.cache, entries[i].key)
	}
}

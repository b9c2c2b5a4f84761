// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 按键分配互斥锁，用于串行化同一对角色的会话启动
type LockManager struct {
	locks      map[string]*LockInfo
	globalLock sync.Mutex
	maxLocks   int
	lockTTL    time.Duration
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    *sync.Mutex
	LastUsed time.Time
	refs     int
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	return &LockManager{
		locks:    make(map[string]*LockInfo),
		maxLocks: 200,
		lockTTL:  30 * time.Minute,
	}
}

func (lm *LockManager) acquire(key string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.locks[key]
	if !exists {
		if len(lm.locks) >= lm.maxLocks {
			lm.cleanupUnusedLocked()
		}
		info = &LockInfo{Mutex: &sync.Mutex{}}
		lm.locks[key] = info
	}
	info.refs++
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	info.refs--
	info.LastUsed = time.Now()
}

// ExecuteWithLock 在键锁保护下执行操作
func (lm *LockManager) ExecuteWithLock(key string, fn func() error) error {
	info := lm.acquire(key)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()
	return fn()
}

// Len returns the number of tracked keys.
func (lm *LockManager) Len() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}

// 清理长时间未使用且无人持有的锁
func (lm *LockManager) cleanupUnusedLocked() {
	now := time.Now()
	for key, info := range lm.locks {
		if info.refs == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.locks, key)
		}
	}
}

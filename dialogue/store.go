package dialogue

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/types"
)

// Session 会话数据
// Messages 的首条永远是固定的 system 指令，只有整体替换才会动它。
type Session struct {
	Key       string          `json:"key"`
	Messages  []types.Message `json:"messages"`
	Turns     int             `json:"turns"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SessionStore 会话存储接口
// 实现必须幂等：删除不存在的键、重复创建同一个键都是 no-op。
type SessionStore interface {
	// GetOrCreate 获取会话；不存在时惰性创建，初始仅含 system 指令
	GetOrCreate(sessionKey string) Session
	// Get 只读获取会话，不触发创建
	Get(sessionKey string) (Session, bool)
	// Append 追加消息
	Append(sessionKey string, msgs ...types.Message)
	// Replace 原子替换整个消息序列（压缩与终态重置使用）
	Replace(sessionKey string, messages []types.Message)
	// Delete 删除会话；键不存在时为 no-op
	Delete(sessionKey string)
	// Len 返回当前会话数
	Len() int
	// Keys 返回当前全部会话键
	Keys() []string
}

// sessionEntry 内部存储单元
type sessionEntry struct {
	messages  []types.Message
	turns     int
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore 进程内会话存储
// 无自动过期：保留期与进程同寿，显式删除是唯一的清理路径。
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]*sessionEntry
	systemPrompt string
	logger       *zap.Logger
}

// NewMemoryStore 创建内存会话存储
// systemPrompt 是每个新会话的首条 system 指令。
func NewMemoryStore(systemPrompt string, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]*sessionEntry),
		systemPrompt: systemPrompt,
		logger:       logger.With(zap.String("component", "session_store")),
	}
}

// GetOrCreate 实现 SessionStore.GetOrCreate
func (s *MemoryStore) GetOrCreate(sessionKey string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionKey]
	if !ok {
		now := time.Now()
		entry = &sessionEntry{
			messages:  []types.Message{types.NewSystemMessage(s.systemPrompt)},
			createdAt: now,
			updatedAt: now,
		}
		s.sessions[sessionKey] = entry
		s.logger.Info("session created", zap.String("session_key", sessionKey))
	}

	return s.snapshot(sessionKey, entry)
}

// Get 实现 SessionStore.Get
func (s *MemoryStore) Get(sessionKey string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionKey]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(sessionKey, entry), true
}

// Append 实现 SessionStore.Append
// 键不存在时为 no-op；调用方应先 GetOrCreate。
func (s *MemoryStore) Append(sessionKey string, msgs ...types.Message) {
	if len(msgs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionKey]
	if !ok {
		return
	}

	entry.messages = append(entry.messages, msgs...)
	for _, msg := range msgs {
		if msg.Role == types.RoleAssistant {
			entry.turns++
		}
	}
	entry.updatedAt = time.Now()
}

// Replace 实现 SessionStore.Replace
// 键不存在时等同创建。
func (s *MemoryStore) Replace(sessionKey string, messages []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionKey]
	if !ok {
		now := time.Now()
		entry = &sessionEntry{createdAt: now}
		s.sessions[sessionKey] = entry
	}

	entry.messages = types.CloneMessages(messages)
	entry.updatedAt = time.Now()

	s.logger.Debug("session replaced",
		zap.String("session_key", sessionKey),
		zap.Int("message_count", len(messages)),
	)
}

// Delete 实现 SessionStore.Delete
func (s *MemoryStore) Delete(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionKey]; !ok {
		return
	}

	delete(s.sessions, sessionKey)
	s.logger.Info("session deleted", zap.String("session_key", sessionKey))
}

// Len 实现 SessionStore.Len
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Keys 实现 SessionStore.Keys
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.sessions))
	for key := range s.sessions {
		keys = append(keys, key)
	}
	return keys
}

// snapshot 复制出独立副本，调用方拿不到内部切片的别名。
// 调用前必须持有锁。
func (s *MemoryStore) snapshot(sessionKey string, entry *sessionEntry) Session {
	return Session{
		Key:       sessionKey,
		Messages:  types.CloneMessages(entry.messages),
		Turns:     entry.turns,
		CreatedAt: entry.createdAt,
		UpdatedAt: entry.updatedAt,
	}
}

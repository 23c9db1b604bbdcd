package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"inline-media-backend/internal/model"
	"inline-media-backend/pkg/logger"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DiskStorage persists each session as two json files (metadata and messages) plus a
// session index. Recently used sessions stay in an LRU cache.
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     *lru.Cache[string, *model.Session]
	cacheSize int
}

type SessionIndex struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	if cacheSize <= 0 {
		cacheSize = 100
	}
	cache, _ := lru.New[string, *model.Session](cacheSize)
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     cache,
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadSessions(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Disk storage initialized successfully")
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "sessions"),
		filepath.Join(d.dataDir, "messages"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) loadSessions() error {
	indexPath := filepath.Join(d.dataDir, "sessions.json")

	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return d.saveSessionIndex([]*SessionIndex{})
	}

	indexes, err := d.readIndex()
	if err != nil {
		return err
	}

	// 最近更新的会话优先进入缓存
	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].UpdatedAt.After(indexes[j].UpdatedAt)
	})
	for i := len(indexes) - 1; i >= 0; i-- {
		if i >= d.cacheSize {
			continue
		}
		session, err := d.loadSessionFromFile(indexes[i].ID)
		if err != nil {
			logger.Errorf("Failed to load session %s: %v", indexes[i].ID, err)
			continue
		}
		d.cache.Add(session.ID, session)
	}

	return nil
}

func (d *DiskStorage) readIndex() ([]*SessionIndex, error) {
	data, err := os.ReadFile(filepath.Join(d.dataDir, "sessions.json"))
	if err != nil {
		return nil, err
	}
	var indexes []*SessionIndex
	if err := json.Unmarshal(data, &indexes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return indexes, nil
}

func (d *DiskStorage) loadSessionFromFile(sessionID string) (*model.Session, error) {
	sessionPath := filepath.Join(d.dataDir, "sessions", sessionID+".json")

	data, err := os.ReadFile(sessionPath)
	if err != nil {
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}

	messages, err := d.loadMessagesFromFile(sessionID)
	if err != nil {
		logger.Errorf("Failed to load messages for session %s: %v", sessionID, err)
		messages = []model.Message{}
	}

	session.Messages = messages
	return &session, nil
}

func (d *DiskStorage) loadMessagesFromFile(sessionID string) ([]model.Message, error) {
	messagesPath := filepath.Join(d.dataDir, "messages", sessionID+".json")

	if _, err := os.Stat(messagesPath); os.IsNotExist(err) {
		return []model.Message{}, nil
	}

	data, err := os.ReadFile(messagesPath)
	if err != nil {
		return nil, err
	}

	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func writeJSONAtomic(path string, v any) error {
	tempPath := path + ".tmp"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

func (d *DiskStorage) saveSessionIndex(indexes []*SessionIndex) error {
	return writeJSONAtomic(filepath.Join(d.dataDir, "sessions.json"), indexes)
}

func (d *DiskStorage) saveSessionToFile(session *model.Session) error {
	sessionData := *session
	sessionData.Messages = nil
	return writeJSONAtomic(filepath.Join(d.dataDir, "sessions", session.ID+".json"), sessionData)
}

func (d *DiskStorage) saveMessagesToFile(sessionID string, messages []model.Message) error {
	if messages == nil {
		messages = []model.Message{}
	}
	return writeJSONAtomic(filepath.Join(d.dataDir, "messages", sessionID+".json"), messages)
}

// persist writes both session files and refreshes the index entry.
func (d *DiskStorage) persist(session *model.Session) error {
	if err := d.saveSessionToFile(session); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	if err := d.saveMessagesToFile(session.ID, session.Messages); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	if err := d.upsertIndex(session); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}

func (d *DiskStorage) upsertIndex(session *model.Session) error {
	indexes, err := d.readIndex()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	entry := &SessionIndex{
		ID:        session.ID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
	for i, idx := range indexes {
		if idx.ID == session.ID {
			indexes[i] = entry
			return d.saveSessionIndex(indexes)
		}
	}
	return d.saveSessionIndex(append(indexes, entry))
}

func (d *DiskStorage) removeFromIndex(sessionID string) error {
	indexes, err := d.readIndex()
	if err != nil {
		return err
	}
	kept := indexes[:0]
	for _, idx := range indexes {
		if idx.ID != sessionID {
			kept = append(kept, idx)
		}
	}
	return d.saveSessionIndex(kept)
}

// loadLocked returns the live cached session, loading it from disk on a miss.
// Callers hold d.mu.
func (d *DiskStorage) loadLocked(sessionID string) (*model.Session, error) {
	if session, ok := d.cache.Get(sessionID); ok {
		return session, nil
	}
	session, err := d.loadSessionFromFile(sessionID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	d.cache.Add(sessionID, session)
	return session, nil
}

func (d *DiskStorage) CreateSession(session *model.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := session.Clone()
	if err := d.persist(stored); err != nil {
		return err
	}
	d.cache.Add(stored.ID, stored)
	return nil
}

func (d *DiskStorage) GetSession(sessionID string) (*model.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, err := d.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

func (d *DiskStorage) UpdateSession(session *model.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.loadLocked(session.ID); err != nil {
		return err
	}

	stored := session.Clone()
	if err := d.persist(stored); err != nil {
		return err
	}
	d.cache.Add(stored.ID, stored)
	return nil
}

func (d *DiskStorage) DeleteSession(sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sessionPath := filepath.Join(d.dataDir, "sessions", sessionID+".json")
	messagesPath := filepath.Join(d.dataDir, "messages", sessionID+".json")

	if _, err := os.Stat(sessionPath); os.IsNotExist(err) {
		return ErrSessionNotFound
	}

	if err := os.Remove(sessionPath); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if _, err := os.Stat(messagesPath); err == nil {
		if err := os.Remove(messagesPath); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}

	d.cache.Remove(sessionID)

	return d.removeFromIndex(sessionID)
}

func (d *DiskStorage) ListSessions() ([]*model.Session, error) {
	d.mu.RLock()
	indexes, err := d.readIndex()
	d.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	sessions := make([]*model.Session, 0, len(indexes))
	for _, index := range indexes {
		sessions = append(sessions, &model.Session{
			ID:        index.ID,
			Title:     index.Title,
			CreatedAt: index.CreatedAt,
			UpdatedAt: index.UpdatedAt,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	return sessions, nil
}

func (d *DiskStorage) AddMessage(sessionID string, message *model.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, err := d.loadLocked(sessionID)
	if err != nil {
		return err
	}

	session.Messages = append(session.Messages, *message.Clone())
	session.UpdatedAt = time.Now()

	return d.persist(session)
}

func (d *DiskStorage) GetMessages(sessionID string) ([]*model.Message, error) {
	session, err := d.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]*model.Message, len(session.Messages))
	for i := range session.Messages {
		messages[i] = &session.Messages[i]
	}

	return messages, nil
}

func (d *DiskStorage) GetMessage(sessionID, messageID string) (*model.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, err := d.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	i := indexOf(session, messageID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return session.Messages[i].Clone(), nil
}

func (d *DiskStorage) UpdateMessage(sessionID, messageID string, fn MessageMutator) (*model.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, err := d.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	i := indexOf(session, messageID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}

	// 在副本上修改，写盘成功后才替换缓存
	next := session.Clone()
	msg, err := applyMutation(next, i, fn)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	if err := d.persist(next); err != nil {
		return nil, err
	}
	d.cache.Add(sessionID, next)
	return msg, nil
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.Purge()
	return nil
}

func (d *DiskStorage) Backup() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().UnixNano()))

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	sourceDirs := []string{"sessions", "messages"}
	for _, dir := range sourceDirs {
		srcDir := filepath.Join(d.dataDir, dir)
		dstDir := filepath.Join(backupDir, dir)

		if err := os.MkdirAll(dstDir, 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}

		if err := d.copyDir(srcDir, dstDir); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}

	indexSrc := filepath.Join(d.dataDir, "sessions.json")
	indexDst := filepath.Join(backupDir, "sessions.json")
	if err := d.copyFile(indexSrc, indexDst); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func (d *DiskStorage) copyDir(src, dst string) error {
	files, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		if err := d.copyFile(filepath.Join(src, file.Name()), filepath.Join(dst, file.Name())); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0644)
}

// ✅ 约束2：更新单个消息渲染结果，严格验证会话ID
func (d *DiskStorage) UpdateMessageRender(sessionID, messageID, htmlContent string, renderTimeMs int64) error {
	_, err := d.UpdateMessage(sessionID, messageID, renderMutator(htmlContent, renderTimeMs))
	return err
}

// ✅ 约束2：批量更新渲染结果，按会话ID分组验证
func (d *DiskStorage) UpdateMessagesRender(sessionID string, renders []model.RenderUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, err := d.loadLocked(sessionID)
	if err != nil {
		return err
	}

	next := session.Clone()
	updated := false
	for _, r := range renders {
		i := indexOf(next, r.MessageID)
		if i < 0 {
			logger.Warnf("Message %s not found in session %s, skipping", r.MessageID, sessionID)
			continue
		}
		if _, err := applyMutation(next, i, renderMutator(r.HTMLContent, r.RenderTime)); err != nil {
			return err
		}
		updated = true
	}

	if !updated {
		return nil
	}
	if err := d.saveMessagesToFile(sessionID, next.Messages); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	d.cache.Add(sessionID, next)
	return nil
}

// ✅ 约束2：获取未渲染的消息，严格按会话ID过滤
func (d *DiskStorage) GetPendingRenders(sessionID string) ([]*model.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, err := d.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	return pendingRenders(session.Messages, sessionID), nil
}

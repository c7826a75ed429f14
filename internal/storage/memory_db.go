package storage

import (
	"time"

	"gorm.io/gorm"
)

// MemoryFilter narrows delete/list passes over the memories table. Zero
// values are "no constraint" for that field.
type MemoryFilter struct {
	IDs             []string
	UserID          string
	MemoryTypes     []string
	Tier            string
	OlderThanDays   int
	ImportanceLT    *float64
	ImportanceGTE   *float64
	AccessCountZero bool
}

func (f MemoryFilter) apply(q *gorm.DB) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if len(f.MemoryTypes) > 0 {
		q = q.Where("memory_type IN ?", f.MemoryTypes)
	}
	if f.Tier != "" {
		q = q.Where("tier = ?", f.Tier)
	}
	if f.OlderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -f.OlderThanDays).Format(time.RFC3339)
		q = q.Where("created_at < ?", cutoff)
	}
	if f.ImportanceLT != nil {
		q = q.Where("importance < ?", *f.ImportanceLT)
	}
	if f.ImportanceGTE != nil {
		q = q.Where("importance >= ?", *f.ImportanceGTE)
	}
	if f.AccessCountZero {
		q = q.Where("access_count = 0")
	}
	return q
}

// SaveMemory upserts a memory row.
func (s *Storage) SaveMemory(m Memory) error {
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return s.DB.Save(&m).Error
}

func (s *Storage) GetMemory(id string) (Memory, error) {
	var m Memory
	err := s.DB.First(&m, "id = ?", id).Error
	return m, err
}

// FindByContentHash backs the exact-content dedup gate in store(): a hit
// means the incoming memory is a duplicate and should be skipped.
func (s *Storage) FindByContentHash(userID, hash string) (Memory, bool, error) {
	var m Memory
	err := s.DB.Where("user_id = ? AND content_hash = ?", userID, hash).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return Memory{}, false, nil
	}
	return m, err == nil, err
}

func (s *Storage) ListMemories(filter MemoryFilter, limit, offset int) ([]Memory, error) {
	var memories []Memory
	q := filter.apply(s.DB.Model(&Memory{})).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&memories).Error
	return memories, err
}

// DeleteMemories removes every memory matching filter and returns the
// count deleted; callers cascade the orphaned vector entries separately
// (the relational delete here is the authoritative half of that ordering).
func (s *Storage) DeleteMemories(filter MemoryFilter) (int64, error) {
	tx := filter.apply(s.DB.Model(&Memory{})).Delete(&Memory{})
	return tx.RowsAffected, tx.Error
}

func (s *Storage) CountMemories(filter MemoryFilter) (int64, error) {
	var n int64
	err := filter.apply(s.DB.Model(&Memory{})).Count(&n).Error
	return n, err
}

// OldestMemories returns up to limit rows matching filter, oldest first -
// the order tier promotion and archival evict in.
func (s *Storage) OldestMemories(filter MemoryFilter, limit int) ([]Memory, error) {
	var memories []Memory
	err := filter.apply(s.DB.Model(&Memory{})).Order("created_at asc").Limit(limit).Find(&memories).Error
	return memories, err
}

func (s *Storage) UpdateMemoryTier(id, tier string) error {
	return s.DB.Model(&Memory{}).Where("id = ?", id).Update("tier", tier).Error
}

func (s *Storage) SetMemoryVectorIndexed(id string, indexed bool) error {
	return s.DB.Model(&Memory{}).Where("id = ?", id).Update("vector_indexed", indexed).Error
}

func (s *Storage) MarkSummaryOnly(id string, content string) error {
	return s.DB.Model(&Memory{}).Where("id = ?", id).Updates(map[string]interface{}{
		"content":      content,
		"summary_only": true,
	}).Error
}

func (s *Storage) TouchMemoryAccess(id string) error {
	return s.DB.Model(&Memory{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": time.Now().Format(time.RFC3339),
		}).Error
}

// DistinctMemoryUsers lists every user_id with at least one memory row,
// the scheduler's fan-out set for a weekly sweep across all users.
func (s *Storage) DistinctMemoryUsers() ([]string, error) {
	var ids []string
	err := s.DB.Model(&Memory{}).Distinct("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

// AllMemoryIDs is used by the orphan-vector sweep to diff against every id
// present in a vector index's id-map.
func (s *Storage) AllMemoryIDs(userID string) (map[string]bool, error) {
	var ids []string
	q := s.DB.Model(&Memory{}).Select("id")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// ---- Memory relations (related-memories edge set) ----

func (s *Storage) AddMemoryRelation(from, to string) error {
	return s.DB.Save(&MemoryRelation{FromID: from, ToID: to}).Error
}

// RelatedIDs materializes the DAG view lazily at read time; a cycle just
// means the same id may already be present, which callers must tolerate.
func (s *Storage) RelatedIDs(id string) ([]string, error) {
	var ids []string
	err := s.DB.Model(&MemoryRelation{}).Where("from_id = ?", id).Pluck("to_id", &ids).Error
	return ids, err
}

// ---- User profiles ----

func (s *Storage) GetProfile(userID string) (UserProfile, error) {
	var p UserProfile
	err := s.DB.First(&p, "user_id = ?", userID).Error
	return p, err
}

func (s *Storage) SaveProfile(p UserProfile) error {
	p.UpdatedAt = time.Now().Format(time.RFC3339)
	return s.DB.Save(&p).Error
}

// ---- Pending chats (downstream of the learning queue, drained by the
// memory-extraction pass while the UI is inactive) ----

func (s *Storage) EnqueuePendingChat(pc PendingChat) error {
	if pc.CreatedAt == "" {
		pc.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return s.DB.Create(&pc).Error
}

// NextPendingChat fetches the oldest unprocessed row, or nil if the queue
// is empty.
func (s *Storage) NextPendingChat() (*PendingChat, error) {
	var pc PendingChat
	err := s.DB.Where("processed = ?", QueueUnprocessed).Order("created_at asc").First(&pc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (s *Storage) MarkPendingChat(id uint, status int) error {
	return s.DB.Model(&PendingChat{}).Where("id = ?", id).Update("processed", status).Error
}

// ---- Learning queue ----

func (s *Storage) EnqueueLearning(item LearningQueueItem) error {
	if item.CreatedAt == "" {
		item.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return s.DB.Create(&item).Error
}

// NextLearningItem fetches the smallest-created_at unprocessed row and
// returns nil if the queue is drained.
func (s *Storage) NextLearningItem() (*LearningQueueItem, error) {
	var item LearningQueueItem
	err := s.DB.Where("processed = ?", QueueUnprocessed).Order("created_at asc").First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Storage) MarkLearningInProgress(id uint) error {
	return s.DB.Model(&LearningQueueItem{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed":          QueueInProgress,
		"process_started_at": time.Now().Format(time.RFC3339),
	}).Error
}

func (s *Storage) MarkLearningDone(id uint) error {
	return s.DB.Model(&LearningQueueItem{}).Where("id = ?", id).Update("processed", QueueDone).Error
}

func (s *Storage) MarkLearningFailed(id uint) error {
	return s.DB.Model(&LearningQueueItem{}).Where("id = ?", id).Update("processed", QueueFailed).Error
}

// MarkLearningUnprocessed re-queues a row after a UI-active preemption;
// re-queuing must not duplicate memories already written by an earlier,
// partially-completed pass over the same row.
func (s *Storage) MarkLearningUnprocessed(id uint) error {
	return s.DB.Model(&LearningQueueItem{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed":          QueueUnprocessed,
		"process_started_at": "",
	}).Error
}

// CountLearningItems reports how many learning_queue rows sit in a given
// processed state, backing the extraction worker's status endpoint.
func (s *Storage) CountLearningItems(status int) (int64, error) {
	var n int64
	err := s.DB.Model(&LearningQueueItem{}).Where("processed = ?", status).Count(&n).Error
	return n, err
}

// ---- Chat sessions / messages ----

func (s *Storage) CreateSession(sess ChatSession) error {
	now := time.Now().Format(time.RFC3339)
	sess.CreatedAt, sess.UpdatedAt = now, now
	return s.DB.Create(&sess).Error
}

func (s *Storage) GetSession(id string) (ChatSession, error) {
	var sess ChatSession
	err := s.DB.First(&sess, "id = ?", id).Error
	return sess, err
}

func (s *Storage) SetSessionTitle(id, title string) error {
	return s.DB.Model(&ChatSession{}).Where("id = ?", id).Updates(map[string]interface{}{
		"title":      title,
		"updated_at": time.Now().Format(time.RFC3339),
	}).Error
}

func (s *Storage) AppendMessage(msg ChatMessage) error {
	if msg.CreatedAt == "" {
		msg.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if err := s.DB.Create(&msg).Error; err != nil {
		return err
	}
	return s.DB.Model(&ChatSession{}).Where("id = ?", msg.SessionID).
		Update("updated_at", time.Now().Format(time.RFC3339)).Error
}

// RecentMessages returns up to limit messages for a session, oldest
// first, for rendering the bounded transcript window into a prompt.
func (s *Storage) RecentMessages(sessionID string, limit int) ([]ChatMessage, error) {
	var msgs []ChatMessage
	err := s.DB.Where("session_id = ?", sessionID).
		Order("created_at desc").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Storage) MessageCount(sessionID string) (int64, error) {
	var n int64
	err := s.DB.Model(&ChatMessage{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}

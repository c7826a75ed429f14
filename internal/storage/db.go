package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage wraps the gorm handle to the local SQLite database. All relational
// state lives here: download tasks/locations/stats, app settings, and the
// memory subsystem's tables (memories, profiles, pending chats, the
// learning queue, chat transcripts).
type Storage struct {
	DB *gorm.DB
}

// NewStorage opens (creating if needed) the database under the user's
// config directory and migrates every known model.
func NewStorage() (*Storage, error) {
	appData, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	dataDir := filepath.Join(appData, "Ruma", "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "ruma.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode lets the extraction worker read while rumad writes.
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	s := &Storage{DB: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-memory, migrated database for use by other
// packages' tests (internal/memstore, internal/retrieval, etc.) that
// need a real Storage without the user-config-dir side effects of
// NewStorage.
func OpenMemory() (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	db.Exec("PRAGMA journal_mode=WAL;")
	s := &Storage{DB: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) migrate() error {
	return s.DB.AutoMigrate(
		&DownloadTask{},
		&DownloadLocation{},
		&DailyStat{},
		&AppSetting{},
		&SpeedTestHistory{},
		&Memory{},
		&MemoryRelation{},
		&UserProfile{},
		&PendingChat{},
		&LearningQueueItem{},
		&ChatSession{},
		&ChatMessage{},
	)
}

func (s *Storage) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Checkpoint forces a WAL checkpoint; the scheduler calls this alongside
// its weekly VACUUM pass.
func (s *Storage) Checkpoint() error {
	return s.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE);").Error
}

// Vacuum reclaims space freed by the optimizer's deletion passes.
func (s *Storage) Vacuum() error {
	return s.DB.Exec("VACUUM;").Error
}

// ---- Download tasks ----

func (s *Storage) SaveTask(task DownloadTask) error {
	now := time.Now().Format(time.RFC3339)
	task.UpdatedAt = now
	if task.CreatedAt == "" {
		task.CreatedAt = now
	}
	return s.DB.Save(&task).Error
}

func (s *Storage) GetTask(id string) (DownloadTask, error) {
	var task DownloadTask
	err := s.DB.First(&task, "id = ?", id).Error
	return task, err
}

func (s *Storage) DeleteTask(id string) error {
	return s.DB.Delete(&DownloadTask{}, "id = ?", id).Error
}

func (s *Storage) GetAllTasks() ([]DownloadTask, error) {
	var tasks []DownloadTask
	err := s.DB.Order("created_at desc").Find(&tasks).Error
	return tasks, err
}

// GetTaskByURL finds the most recent task for a URL, used to skip
// re-queuing an artifact already marked ready/completed.
func (s *Storage) GetTaskByURL(url string) (DownloadTask, error) {
	var task DownloadTask
	err := s.DB.Where("url = ?", url).Order("created_at desc").First(&task).Error
	return task, err
}

// ---- Daily statistics ----

func (s *Storage) IncrementDailyBytes(n int64) error {
	return s.touchDailyStat(func(d *DailyStat) { d.Bytes += n })
}

func (s *Storage) IncrementDailyFiles() error {
	return s.touchDailyStat(func(d *DailyStat) { d.Files++ })
}

func (s *Storage) touchDailyStat(apply func(*DailyStat)) error {
	today := time.Now().Format("2006-01-02")
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var stat DailyStat
		err := tx.First(&stat, "date = ?", today).Error
		if err == gorm.ErrRecordNotFound {
			stat = DailyStat{Date: today}
		} else if err != nil {
			return err
		}
		apply(&stat)
		return tx.Save(&stat).Error
	})
}

func (s *Storage) GetTotalLifetime() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("COALESCE(SUM(bytes), 0)").Row().Scan(&total)
	return total, err
}

func (s *Storage) GetTotalFiles() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("COALESCE(SUM(files), 0)").Row().Scan(&total)
	return total, err
}

func (s *Storage) GetDailyHistory(days int) ([]DailyStat, error) {
	var stats []DailyStat
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	err := s.DB.Where("date >= ?", cutoff).Order("date asc").Find(&stats).Error
	return stats, err
}

// ---- Saved download locations ----

func (s *Storage) AddLocation(path, nickname string) error {
	loc := DownloadLocation{Path: path, Nickname: nickname}
	return s.DB.Save(&loc).Error
}

func (s *Storage) GetLocations() ([]DownloadLocation, error) {
	var locs []DownloadLocation
	err := s.DB.Find(&locs).Error
	return locs, err
}

// ---- Speed test history ----

func (s *Storage) SaveSpeedTest(result SpeedTestHistory) error {
	return s.DB.Create(&result).Error
}

func (s *Storage) GetSpeedTestHistory(limit int) ([]SpeedTestHistory, error) {
	var history []SpeedTestHistory
	q := s.DB.Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&history).Error
	return history, err
}

// ---- App settings (key/value) ----

func (s *Storage) SetString(key, val string) error {
	return s.DB.Save(&AppSetting{Key: key, Value: val}).Error
}

func (s *Storage) GetString(key string) (string, error) {
	var setting AppSetting
	err := s.DB.First(&setting, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	return setting.Value, err
}

func (s *Storage) SetStringList(key string, list []string) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.SetString(key, string(b))
}

func (s *Storage) GetStringList(key string) ([]string, error) {
	raw, err := s.GetString(key)
	if err != nil || raw == "" {
		return []string{}, err
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return []string{}, err
	}
	return list, nil
}

// GetBool reads a setting as a boolean, defaulting to def if absent or
// unparseable. Mirrors the ad-hoc "enable_integrity_check" string checks
// the download engine used directly against AppSetting.
func (s *Storage) GetBool(key string, def bool) bool {
	raw, err := s.GetString(key)
	if err != nil || raw == "" {
		return def
	}
	return raw == "true"
}

func (s *Storage) SetBool(key string, val bool) error {
	if val {
		return s.SetString(key, "true")
	}
	return s.SetString(key, "false")
}

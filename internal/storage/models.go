package storage

import (
	"encoding/json"
	"path"
	"strings"

	"gorm.io/gorm"
)

// Artifact kinds for DownloadState.Kind.
const (
	ArtifactSingleFile = "single-file"
	ArtifactMultiFile  = "multi-file"
)

// Download statuses shared by DownloadState and the legacy per-file
// DownloadTask.
const (
	DownloadDownloading = "downloading"
	DownloadPaused      = "paused"
	DownloadCancelled   = "cancelled"
	DownloadReady       = "ready"
	DownloadError       = "error"
)

// FileProgress is one file's transfer progress within a DownloadState.
type FileProgress struct {
	URL        string `json:"url"`
	TotalSize  int64  `json:"total_size"`
	Downloaded int64  `json:"downloaded"`
	Complete   bool   `json:"complete"`
}

// DownloadState is one artifact tracked end to end: a single file, or a
// named group of files belonging to one logical model. Unlike the
// relational tables, DownloadState is persisted as a single JSON
// document keyed by unique id (see internal/download's ArtifactStore),
// written atomically via temp-file-rename - the external interface and
// the on-disk format are the same document.
type DownloadState struct {
	ID            string                   `json:"unique_id"`
	ModelID       string                   `json:"model_id"`
	Kind          string                   `json:"kind"`
	Files         []string                 `json:"files"`
	TotalSize     int64                    `json:"total_size"`
	Downloaded    int64                    `json:"downloaded"`
	Status        string                   `json:"status"`
	CreatedAt     string                   `json:"created_at"`
	UpdatedAt     string                   `json:"updated_at"`
	FileProgress  map[string]*FileProgress `json:"file_progress"`
	ErrorMessage  string                   `json:"error_message"`
	ExpectedHash  string                   `json:"expected_hash,omitempty"`
	HashAlgorithm string                   `json:"hash_algorithm,omitempty"`
}

// DeriveDownloadID computes the unique id for an artifact per §3.1: for
// a single-file artifact, "{author}/{basename-without-extension}"
// derived from modelID; for a multi-file artifact, modelID itself.
func DeriveDownloadID(modelID, kind string, files []string) string {
	if kind != ArtifactSingleFile {
		return modelID
	}
	author := modelID
	if idx := strings.IndexByte(modelID, '/'); idx >= 0 {
		author = modelID[:idx]
	}
	name := modelID
	if len(files) > 0 {
		name = files[0]
	}
	base := path.Base(name)
	base = strings.TrimSuffix(base, path.Ext(base))
	return author + "/" + base
}

// Recompute derives Downloaded/TotalSize from FileProgress and applies
// the §3.1 invariant: status=ready iff every file is complete and the
// artifact has at least one byte.
func (d *DownloadState) Recompute() {
	var downloaded, total int64
	allComplete := len(d.Files) > 0
	for _, name := range d.Files {
		fp := d.FileProgress[name]
		if fp == nil {
			allComplete = false
			continue
		}
		downloaded += fp.Downloaded
		total += fp.TotalSize
		if !fp.Complete {
			allComplete = false
		}
	}
	d.Downloaded = downloaded
	d.TotalSize = total
	if allComplete && downloaded == total && total > 0 {
		d.Status = DownloadReady
	}
}

// DownloadTask represents a download task in the database
type DownloadTask struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	Filename      string         `json:"filename"`
	URL           string         `json:"url"`
	SavePath      string         `json:"save_path"`
	Status        string         `gorm:"index" json:"status"`          // downloading, completed, paused, error, pending
	Priority      int            `gorm:"default:1" json:"priority"`    // 1=Low, 2=Normal, 3=High
	QueueOrder    int            `gorm:"default:0" json:"queue_order"` // Sequential order in queue
	Category      string         `gorm:"index" json:"category"`
	TotalSize     int64          `json:"total_size"`
	Downloaded    int64          `json:"downloaded"`
	Progress      float64        `json:"progress"`
	Speed         float64        `json:"speed"` // bytes/sec
	TimeRemaining string         `json:"time_remaining"`
	MetaJSON      string         `json:"-"` // Store complex chunk data/headers as JSON
	FileExists    bool           `gorm:"-" json:"file_exists"`
	ExpectedHash  string         `json:"expected_hash"`
	HashAlgorithm string         `json:"hash_algorithm"`
	Headers       string         `json:"headers"`    // JSON serialized
	Cookies       string         `json:"cookies"`    // JSON serialized
	StartTime     string         `json:"start_time"` // ISO 8601 for scheduled start
	Domain        string         `json:"domain"`     // e.g. "google.com" for concurrency limits
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for DownloadTask
func (DownloadTask) TableName() string {
	return "download_tasks"
}

// PartState represents the state of a single download chunk
type PartState struct {
	Start    int64 `json:"s"`           // Start offset
	End      int64 `json:"e"`           // End offset
	Complete bool  `json:"c,omitempty"` // Is chunk fully downloaded and verified?
	Offset   int64 `json:"o,omitempty"` // Current write offset relative to Start (for clean pause)
}

// ResumeState represents the serialized resume data
type ResumeState struct {
	Version      int               `json:"v"`
	ETag         string            `json:"etag"`
	LastModified string            `json:"lm"`
	TotalSize    int64             `json:"total_size"`
	Parts        map[int]PartState `json:"parts"`
}

// DownloadLocation stores saved download locations with nicknames
type DownloadLocation struct {
	Path     string `gorm:"primaryKey" json:"path"`
	Nickname string `json:"nickname"` // e.g., "Gaming Drive", "SSD"
}

// TableName specifies the table name for DownloadLocation
func (DownloadLocation) TableName() string {
	return "download_locations"
}

// DailyStat tracks daily download statistics for analytics
type DailyStat struct {
	Date  string `gorm:"primaryKey"` // Format: "YYYY-MM-DD"
	Bytes int64  `gorm:"default:0"`  // Total bytes for this day
	Files int64  `gorm:"default:0"`  // Files completed this day
}

// TableName specifies the table name for DailyStat
func (DailyStat) TableName() string {
	return "daily_stats"
}

// AppSetting stores key-value application settings
type AppSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// TableName specifies the table name for AppSetting
func (AppSetting) TableName() string {
	return "app_settings"
}

// SpeedTestHistory stores past speed test results
type SpeedTestHistory struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	DownloadSpeed  float64 `json:"download_mbps"`
	UploadSpeed    float64 `json:"upload_mbps"`
	Ping           int64   `json:"ping_ms"`
	Jitter         int64   `json:"jitter_ms"`
	ISP            string  `json:"isp"`
	ServerName     string  `json:"server_name"`
	ServerLocation string  `json:"server_location"`
	Timestamp      string  `json:"timestamp"`
}

// TableName specifies the table name for SpeedTestHistory
func (SpeedTestHistory) TableName() string {
	return "speed_test_history"
}

// Task is an alias for backward compatibility with existing code
// Deprecated: Use DownloadTask instead
type Task = DownloadTask

// Memory tiers, strictly monotonic hot -> warm -> cold.
const (
	TierHot  = "hot"
	TierWarm = "warm"
	TierCold = "cold"
)

// The ~12 extraction aspects the learning pipeline prompts for; also used
// as the memory_type enum for manually-stored (fast-path) memories.
const (
	MemoryTypeFact       = "fact"
	MemoryTypePreference = "preference"
	MemoryTypePattern    = "pattern"
	MemoryTypeSkill      = "skill"
	MemoryTypeGoal       = "goal"
	MemoryTypeEvent      = "event"
	MemoryTypeEmotional  = "emotional"
	MemoryTypeTemporal   = "temporal"
	MemoryTypeContext    = "context"
	MemoryTypeMeta       = "meta"
	MemoryTypeSocial     = "social"
	MemoryTypeProcedural = "procedural"
)

// Memory is a single stored recollection, tiered by age/importance and
// mirrored into the vector index once it clears the embedding threshold.
type Memory struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	UserID         string         `gorm:"index" json:"user_id"`
	Content        string         `json:"content"`
	ContentHash    string         `gorm:"index" json:"-"` // sha256(content), dedup key
	MemoryType     string         `gorm:"index" json:"memory_type"`
	Importance     float64        `gorm:"index" json:"importance"`
	Confidence     float64        `gorm:"default:1" json:"confidence"`
	Category       string         `gorm:"index" json:"category"`
	Keywords       string         `json:"keywords"` // comma-separated
	Context        string         `json:"context"`
	TemporalPattern string        `json:"temporal_pattern"`
	MetadataJSON   string         `json:"-"` // structured metadata, JSON object
	Tier           string         `gorm:"index;default:hot" json:"tier"`
	SummaryOnly    bool           `gorm:"default:false" json:"summary_only"`
	VectorIndexed  bool           `gorm:"default:false" json:"-"` // true once present in C2
	AccessCount    int64          `gorm:"default:0" json:"access_count"`
	CreatedAt      string         `gorm:"index" json:"created_at"`
	LastAccessed   string         `json:"last_accessed"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// Metadata unmarshals MetadataJSON into a generic map; callers that
// never set metadata get an empty, non-nil map back.
func (m Memory) Metadata() map[string]any {
	out := map[string]any{}
	if m.MetadataJSON == "" {
		return out
	}
	_ = json.Unmarshal([]byte(m.MetadataJSON), &out)
	return out
}

// SetMetadata serializes meta into MetadataJSON.
func (m *Memory) SetMetadata(meta map[string]any) error {
	if len(meta) == 0 {
		m.MetadataJSON = ""
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	m.MetadataJSON = string(raw)
	return nil
}

func (Memory) TableName() string { return "memories" }

// MemoryRelation is an edge in the "related memories" graph. Stored as a
// side table rather than an id list on Memory so cycles can be tolerated
// at read time (materialized lazily as a DAG view) instead of rejected
// at write time.
type MemoryRelation struct {
	FromID string `gorm:"primaryKey" json:"from_id"`
	ToID   string `gorm:"primaryKey" json:"to_id"`
}

func (MemoryRelation) TableName() string { return "memory_relations" }

// UserProfile aggregates the durable personalization signal extracted
// from memories over time.
type UserProfile struct {
	UserID             string `gorm:"primaryKey" json:"user_id"`
	CommunicationStyle string `json:"communication_style"`
	Interests          string `json:"interests"`      // JSON array
	ExpertiseAreas     string `json:"expertise_areas"` // JSON array
	PersonalityTraits  string `json:"personality_traits"`
	Preferences        string `json:"preferences"` // JSON object
	UpdatedAt          string `json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// PendingChat holds a chat turn copied out of the learning queue, awaiting
// the memory-extraction pass while the UI is inactive.
type PendingChat struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string `gorm:"index" json:"user_id"`
	ChatID       string `gorm:"index" json:"chat_id"`
	MessagesJSON string `json:"messages"`
	CreatedAt    string `json:"created_at"`
	Processed    int    `gorm:"index;default:0" json:"processed"` // 0=unprocessed, 1=done, -1=failed
}

func (PendingChat) TableName() string { return "pending_chats" }

// Processed states for LearningQueueItem / PendingChat.
const (
	QueueUnprocessed = 0
	QueueDone        = 1
	QueueFailed      = -1
	QueueInProgress  = 2
)

// LearningQueueItem is one FIFO entry produced at the end of a chat turn,
// drained by the extraction worker in a separate OS process.
type LearningQueueItem struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string `gorm:"index" json:"user_id"`
	ChatID        string `gorm:"index" json:"chat_id"`
	MessagesJSON  string `json:"messages"`
	CreatedAt     string `gorm:"index" json:"created_at"`
	Processed     int    `gorm:"index;default:0" json:"processed"`
	ProcessStartedAt string `json:"process_started_at"`
}

func (LearningQueueItem) TableName() string { return "learning_queue" }

// ChatSession is one conversation thread, titled from its first message.
type ChatSession struct {
	ID        string `gorm:"primaryKey" json:"id"`
	UserID    string `gorm:"index" json:"user_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage is one turn's worth of transcript, role "user" or "assistant".
type ChatMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string `gorm:"index" json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

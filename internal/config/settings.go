package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"dario.cat/mergo"

	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// Keys for AppSettings in DB.
const (
	KeyEnableAIInterface    = "enable_ai_interface"
	KeyAIToken              = "ai_token"
	KeyEnableIntegrityCheck = "enable_integrity_check"
	KeyAIPort               = "ai_port"
	KeyAIMaxConcurrent      = "ai_max_concurrent"
	KeyUserAgent            = "user_agent"
	KeyDomainOverrides      = "domain_config_overrides" // JSON-serialized DomainDefaults subset
	KeyUIActive             = "ui_active"                // cooperative preemption signal, cross-process via SQLite
)

// DomainDefaults holds the memory/retrieval/learning knobs that don't
// belong as single AppSetting rows since they're read together and
// validated as a unit. Stored as one JSON blob under KeyDomainOverrides,
// merged onto builtin defaults with mergo so a partial override file
// only needs to name the fields it changes.
type DomainDefaults struct {
	RetrievalBudgetInstantMS       int     `json:"retrieval_budget_instant_ms"`
	RetrievalBudgetNormalMS        int     `json:"retrieval_budget_normal_ms"`
	RetrievalBudgetComprehensiveMS int     `json:"retrieval_budget_comprehensive_ms"`
	RetrievalCacheTTLSeconds       int     `json:"retrieval_cache_ttl_seconds"`
	EmbedImportanceThreshold       float64 `json:"embed_importance_threshold"`
	CleanupImportanceThreshold     float64 `json:"cleanup_importance_threshold"`
	SimilarityMergeThreshold       float64 `json:"similarity_merge_threshold"`
	CompressionCharThreshold       int     `json:"compression_char_threshold"`
	MaxHotPerUser                 int     `json:"max_hot_per_user"`
	MaxWarmPerUser                int     `json:"max_warm_per_user"`
	HotTierMaxAgeDays              int     `json:"hot_tier_max_age_days"`
	WarmTierMaxAgeDays             int     `json:"warm_tier_max_age_days"`
	HighImportanceAgeMultiplier   float64 `json:"high_importance_age_multiplier"`
	HighImportanceThreshold        float64 `json:"high_importance_threshold"`
	LearningQueuePollIntervalMS    int     `json:"learning_queue_poll_interval_ms"`
	LLMEngine                      string  `json:"llm_engine"` // "ollama" or "mock"
	OllamaModel                    string  `json:"ollama_model"`
	SchedulerIntervalDays          int     `json:"scheduler_interval_days"`
}

// defaultDomainConfig mirrors §4.2/§4.3/§4.4/§4.5/§4.7 of the memory
// subsystem spec exactly; callers may override any subset via
// KeyDomainOverrides.
func defaultDomainConfig() DomainDefaults {
	return DomainDefaults{
		RetrievalBudgetInstantMS:       30,
		RetrievalBudgetNormalMS:        100,
		RetrievalBudgetComprehensiveMS: 300,
		RetrievalCacheTTLSeconds:       300,
		EmbedImportanceThreshold:       0.2,
		CleanupImportanceThreshold:     0.3,
		SimilarityMergeThreshold:       0.85,
		CompressionCharThreshold:       100,
		MaxHotPerUser:                  500,
		MaxWarmPerUser:                 2000,
		HotTierMaxAgeDays:              7,
		WarmTierMaxAgeDays:             90,
		HighImportanceAgeMultiplier:    2.0,
		HighImportanceThreshold:        0.8,
		LearningQueuePollIntervalMS:    2000,
		LLMEngine:                      "ollama",
		OllamaModel:                    "llama3",
		SchedulerIntervalDays:          7,
	}
}

type ConfigManager struct {
	storage *storage.Storage
}

func NewConfigManager(s *storage.Storage) *ConfigManager {
	return &ConfigManager{storage: s}
}

// Domain loads the effective domain configuration: builtin defaults with
// any persisted override merged on top.
func (c *ConfigManager) Domain() DomainDefaults {
	cfg := defaultDomainConfig()

	raw, err := c.storage.GetString(KeyDomainOverrides)
	if err != nil || raw == "" {
		return cfg
	}

	var override DomainDefaults
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		return cfg
	}

	if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
		return defaultDomainConfig()
	}
	return cfg
}

// SetDomainOverride persists a (possibly partial) override; callers
// typically read Domain(), mutate a field, and pass the whole struct
// back so only genuinely-changed fields differ from default.
func (c *ConfigManager) SetDomainOverride(d DomainDefaults) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.storage.SetString(KeyDomainOverrides, string(b))
}

func (c *ConfigManager) GetAIPort() int {
	valStr, err := c.storage.GetString(KeyAIPort)
	if err != nil || valStr == "" {
		return 4444
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 4444
	}
	return val
}

func (c *ConfigManager) SetAIPort(port int) error {
	return c.storage.SetString(KeyAIPort, strconv.Itoa(port))
}

func (c *ConfigManager) GetAIMaxConcurrent() int {
	valStr, err := c.storage.GetString(KeyAIMaxConcurrent)
	if err != nil || valStr == "" {
		return 5
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 5
	}
	return val
}

func (c *ConfigManager) SetAIMaxConcurrent(max int) error {
	return c.storage.SetString(KeyAIMaxConcurrent, strconv.Itoa(max))
}

func (c *ConfigManager) GetEnableAI() bool {
	val, err := c.storage.GetString(KeyEnableAIInterface)
	if err != nil {
		return false
	}
	return val == "true"
}

func (c *ConfigManager) SetEnableAI(enabled bool) error {
	val := "false"
	if enabled {
		val = "true"
	}
	return c.storage.SetString(KeyEnableAIInterface, val)
}

func (c *ConfigManager) GetAIToken() string {
	val, err := c.storage.GetString(KeyAIToken)
	if err != nil || val == "" {
		token := generateSecureToken()
		c.storage.SetString(KeyAIToken, token)
		return token
	}
	return val
}

func (c *ConfigManager) GetEnableIntegrityCheck() bool {
	val, err := c.storage.GetString(KeyEnableIntegrityCheck)
	if err != nil {
		return true
	}
	return val != "false"
}

func (c *ConfigManager) SetEnableIntegrityCheck(enabled bool) error {
	val := "false"
	if enabled {
		val = "true"
	}
	return c.storage.SetString(KeyEnableIntegrityCheck, val)
}

func generateSecureToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "ruma-fallback-token-change-me"
	}
	return hex.EncodeToString(b)
}

// GetUserAgent returns the custom User-Agent string, empty if unset.
func (c *ConfigManager) GetUserAgent() string {
	val, err := c.storage.GetString(KeyUserAgent)
	if err != nil {
		return ""
	}
	return val
}

func (c *ConfigManager) SetUserAgent(ua string) error {
	return c.storage.SetString(KeyUserAgent, ua)
}

// SetUIActive flips the signal the extraction worker polls cooperatively:
// the chat orchestrator calls this true while a turn is in flight and
// false once it's idle. Crosses the process boundary via the shared
// SQLite file rather than a pipe or socket, since C8 and the extraction
// worker (C7) are deliberately separate OS processes.
func (c *ConfigManager) SetUIActive(active bool) error {
	return c.storage.SetBool(KeyUIActive, active)
}

func (c *ConfigManager) IsUIActive() bool {
	return c.storage.GetBool(KeyUIActive, false)
}

// FactoryReset resets all configuration to defaults.
func (c *ConfigManager) FactoryReset() error {
	keys := []string{
		KeyEnableAIInterface,
		KeyAIToken,
		KeyEnableIntegrityCheck,
		KeyAIPort,
		KeyAIMaxConcurrent,
		KeyUserAgent,
		KeyDomainOverrides,
	}

	for _, key := range keys {
		if err := c.storage.SetString(key, ""); err != nil {
			return err
		}
	}
	return nil
}

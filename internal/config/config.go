package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	AdminKey        string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`

	JiraBaseURL       string        `mapstructure:"JIRA_BASE_URL"`
	JiraEmail         string        `mapstructure:"JIRA_EMAIL"`
	JiraAPIToken      string        `mapstructure:"JIRA_API_TOKEN"`
	JiraBearerAuth    bool          `mapstructure:"JIRA_USE_BEARER_AUTH"`
	JiraTimeout       time.Duration `mapstructure:"JIRA_TIMEOUT"`
	JiraProject       string        `mapstructure:"JIRA_PROJECT"`
	JiraIssueType     string        `mapstructure:"JIRA_ISSUE_TYPE"`
	OwnerField        string        `mapstructure:"TECHNICAL_OWNER_FIELD"`
	CandidateOwnerFld string        `mapstructure:"CANDIDATE_OWNER_FIELD"`
	CloudField        string        `mapstructure:"HYPERSCALER_FIELD"`
	CloudValue        string        `mapstructure:"HYPERSCALER_VALUE"`
	TerminalStatuses  string        `mapstructure:"TERMINAL_STATUSES"`
	TriageLabel       string        `mapstructure:"TRIAGE_LABEL"`

	LLMBaseURL     string        `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey      string        `mapstructure:"LLM_API_KEY"`
	LLMUser        string        `mapstructure:"LLM_USER"`
	LLMChatModel   string        `mapstructure:"LLM_CHAT_MODEL"`
	EmbeddingModel string        `mapstructure:"EMBEDDING_MODEL"`
	LLMTimeout     time.Duration `mapstructure:"LLM_TIMEOUT"`
	LLMMaxTokens   int           `mapstructure:"LLM_MAX_TOKENS"`

	VectorBackend    string `mapstructure:"VECTOR_BACKEND"`
	QdrantHost       string `mapstructure:"QDRANT_HOST"`
	QdrantPort       int    `mapstructure:"QDRANT_PORT"`
	QdrantAPIKey     string `mapstructure:"QDRANT_API_KEY"`
	QdrantUseTLS     bool   `mapstructure:"QDRANT_USE_TLS"`
	VectorCollection string `mapstructure:"VECTOR_COLLECTION"`
	EmbeddingDim     int    `mapstructure:"EMBEDDING_DIM"`
	TeamMetadataKey  string `mapstructure:"TEAM_METADATA_KEY"`

	SimilarityThreshold float64 `mapstructure:"SIMILARITY_THRESHOLD"`
	MinSimilarTickets   int     `mapstructure:"MIN_SIMILAR_TICKETS"`
	FineTuningEnabled   bool    `mapstructure:"FINE_TUNING_ENABLED"`
	RetrievalK          int     `mapstructure:"RETRIEVAL_K"`
	ArbiterK            int     `mapstructure:"ARBITER_K"`
	ScoringTablesFile   string  `mapstructure:"SCORING_TABLES_FILE"`

	SchedulerEnabled bool          `mapstructure:"SCHEDULER_ENABLED"`
	PollInterval     time.Duration `mapstructure:"AUTO_ASSIGN_INTERVAL"`
	TicketDelay      time.Duration `mapstructure:"TICKET_DELAY"`
	ProcessedWindow  time.Duration `mapstructure:"PROCESSED_WINDOW"`
	ProcessedBackend string        `mapstructure:"PROCESSED_BACKEND"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int           `mapstructure:"REDIS_DB"`
	RedisKey         string        `mapstructure:"REDIS_PROCESSED_KEY"`

	Teams            string `mapstructure:"TEAMS"`
	TeamDisplayNames string `mapstructure:"TEAM_DISPLAY_NAMES"`

	NotifyWebhookURL string `mapstructure:"NOTIFY_WEBHOOK_URL"`
	StatsdAddr       string `mapstructure:"STATSD_ADDR"`
	AppName          string `mapstructure:"APP_NAME"`
}

const defaultTeams = "team-cit,team-himalaya,team-mercury,team-meteor,team-nandi,team-omega," +
	"team-rocket,team-sirius,team-supernova,team-svl,team-tunnel-snakes,team-vega"

const defaultDisplayNames = "team-cit=Team CIT,team-svl=Team SVL,team-anf-pas=Team ANF PaS"

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 20)

	v.SetDefault("JIRA_TIMEOUT", "30s")
	v.SetDefault("JIRA_PROJECT", "NFSAAS")
	v.SetDefault("JIRA_ISSUE_TYPE", "Bug")
	v.SetDefault("TECHNICAL_OWNER_FIELD", "customfield_15906")
	v.SetDefault("CANDIDATE_OWNER_FIELD", "customfield_10050")
	v.SetDefault("HYPERSCALER_FIELD", "customfield_16202")
	v.SetDefault("HYPERSCALER_VALUE", "Azure")
	v.SetDefault("TERMINAL_STATUSES", "Done,Resolved,Closed,Cancelled,Withdrawn")
	v.SetDefault("TRIAGE_LABEL", "triage_needed")

	v.SetDefault("LLM_CHAT_MODEL", "gpt-4o-mini")
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("LLM_TIMEOUT", "45s")
	v.SetDefault("LLM_MAX_TOKENS", 400)

	v.SetDefault("VECTOR_BACKEND", "memory")
	v.SetDefault("QDRANT_HOST", "localhost")
	v.SetDefault("QDRANT_PORT", 6334)
	v.SetDefault("VECTOR_COLLECTION", "jira_tickets")
	v.SetDefault("EMBEDDING_DIM", 1536)
	v.SetDefault("TEAM_METADATA_KEY", "team")

	v.SetDefault("SIMILARITY_THRESHOLD", 0.6)
	v.SetDefault("MIN_SIMILAR_TICKETS", 2)
	v.SetDefault("FINE_TUNING_ENABLED", true)
	v.SetDefault("RETRIEVAL_K", 25)
	v.SetDefault("ARBITER_K", 20)

	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("AUTO_ASSIGN_INTERVAL", "20s")
	v.SetDefault("TICKET_DELAY", "2s")
	v.SetDefault("PROCESSED_WINDOW", "24h")
	v.SetDefault("PROCESSED_BACKEND", "memory")
	v.SetDefault("REDIS_PROCESSED_KEY", "triage:processed")

	v.SetDefault("TEAMS", defaultTeams)
	v.SetDefault("TEAM_DISPLAY_NAMES", defaultDisplayNames)
	v.SetDefault("APP_NAME", "team-triage")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TeamList returns the configured team slugs.
func (c Config) TeamList() []string {
	return SplitList(c.Teams)
}

func (c Config) TerminalStatusList() []string {
	return SplitList(c.TerminalStatuses)
}

// DisplayNames parses TEAM_DISPLAY_NAMES ("slug=Display,slug=Display").
func (c Config) DisplayNames() map[string]string {
	out := map[string]string{}
	for _, pair := range SplitList(c.TeamDisplayNames) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

func SplitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

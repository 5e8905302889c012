package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	EnvPort              = "PORT"
	EnvHTTPAddr          = "ROOM_GATEWAY_HTTP_ADDR"
	EnvFrontendURL       = "FRONTEND_URL"
	EnvLiveKitURL        = "LIVEKIT_URL"
	EnvLiveKitAPIKey     = "LIVEKIT_API_KEY"
	EnvLiveKitAPISecret  = "LIVEKIT_API_SECRET"
	EnvAgentIdentity     = "AGENT_IDENTITY"
	EnvTokenTTL          = "ROOM_GATEWAY_TOKEN_TTL"
	EnvRoomIdleTimeout   = "ROOM_GATEWAY_ROOM_IDLE_TIMEOUT"
	EnvRoomMaxParticip   = "ROOM_GATEWAY_ROOM_MAX_PARTICIPANTS"
	EnvRoomsPollInterval = "ROOM_GATEWAY_ROOMS_POLL_INTERVAL"
	EnvRecordingCreds    = "GCP_RECORDER_CREDENTIALS_JSON"
	EnvRecordingBucket   = "ROOM_GATEWAY_RECORDING_BUCKET"
	EnvRecordingTimeout  = "ROOM_GATEWAY_RECORDING_TIMEOUT"
	EnvRecordsDriver     = "ROOM_GATEWAY_RECORDS_DRIVER"
	EnvRecordsDSN        = "ROOM_GATEWAY_DB_DSN"
	EnvAirtableToken     = "AIRTABLE_PAT_BACKEND"
	EnvAirtableBaseID    = "AIRTABLE_BASE_ID"
	EnvAirtableSubjects  = "AIRTABLE_SUBJECTS_TABLE_ID"
	EnvAirtableSessions  = "AIRTABLE_SESSIONS_TABLE_ID"
	EnvWebhookURLs       = "ROOM_GATEWAY_WEBHOOK_URLS"
	EnvWebhookSecret     = "ROOM_GATEWAY_WEBHOOK_SECRET"
)

const (
	DefaultPort                = "8080"
	DefaultFrontendURL         = "http://localhost:3000"
	DefaultAgentIdentity       = "alex-agent"
	DefaultTokenTTL            = 6 * time.Hour
	DefaultRoomIdleTimeout     = 10 * time.Minute
	DefaultRoomMaxParticipants = 10
	DefaultRoomsPollInterval   = 5 * time.Second
	DefaultRecordingTimeout    = 15 * time.Second
	DefaultSQLiteDSN           = "room-gateway.db"
	DefaultAirtableBaseID      = "appgRwS5bf1GRGhBI"
	DefaultAirtableSubjects    = "tbl1RYRfDafP5vO9O"
	DefaultAirtableSessions    = "tbl2FlhFsZ2JknhaX"
)

const (
	RecordsDriverAirtable = "airtable"
	RecordsDriverSQLite   = "sqlite"
	RecordsDriverPostgres = "postgres"
	RecordsDriverMemory   = "memory"
)

type RecordingConfig struct {
	CredentialsJSON string
	Bucket          string
	Layout          string
	Preset          string
	FileType        string
	Timeout         time.Duration
}

type AirtableConfig struct {
	Token         string
	BaseID        string
	SubjectsTable string
	SessionsTable string
	URL           string
}

type RecordsConfig struct {
	// Driver is resolved by Load: airtable when a token is present, sqlite otherwise.
	Driver   string
	DSN      string
	Airtable AirtableConfig
}

type Config struct {
	HTTPAddr            string
	FrontendURL         string
	LiveKitURL          string
	LiveKitAPIKey       string
	LiveKitAPISecret    string
	AgentIdentity       string
	TokenTTL            time.Duration
	RoomIdleTimeout     time.Duration
	RoomMaxParticipants int
	RoomsPollInterval   time.Duration
	Recording           RecordingConfig
	Records             RecordsConfig
	WebhookURLs         []string
	WebhookSecret       string
}

// Load layers defaults, the optional YAML file and the environment, in that order.
// Callers that accept flags apply them afterwards with BindFlags.
func Load() (Config, error) {
	cfg := defaultConfig()

	fileCfg, err := loadFileConfig()
	if err != nil {
		return Config{}, err
	}
	if err := applyYAML(&cfg, fileCfg); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Records.Driver = resolveRecordsDriver(cfg.Records)
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:            ":" + DefaultPort,
		FrontendURL:         DefaultFrontendURL,
		AgentIdentity:       DefaultAgentIdentity,
		TokenTTL:            DefaultTokenTTL,
		RoomIdleTimeout:     DefaultRoomIdleTimeout,
		RoomMaxParticipants: DefaultRoomMaxParticipants,
		RoomsPollInterval:   DefaultRoomsPollInterval,
		Recording: RecordingConfig{
			Timeout: DefaultRecordingTimeout,
		},
		Records: RecordsConfig{
			Airtable: AirtableConfig{
				BaseID:        DefaultAirtableBaseID,
				SubjectsTable: DefaultAirtableSubjects,
				SessionsTable: DefaultAirtableSessions,
			},
		},
	}
}

func applyYAML(cfg *Config, source fileConfig) error {
	if value := strings.TrimSpace(source.HTTPAddr); value != "" {
		cfg.HTTPAddr = value
	}
	if value := strings.TrimSpace(source.Frontend); value != "" {
		cfg.FrontendURL = value
	}
	if value := strings.TrimSpace(source.LiveKit.URL); value != "" {
		cfg.LiveKitURL = value
	}
	if value := strings.TrimSpace(source.LiveKit.APIKey); value != "" {
		cfg.LiveKitAPIKey = value
	}
	if value := strings.TrimSpace(source.LiveKit.APISecret); value != "" {
		cfg.LiveKitAPISecret = value
	}
	if value := strings.TrimSpace(source.Tokens.AgentIdentity); value != "" {
		cfg.AgentIdentity = value
	}

	ttl, err := parseOptionalDuration(source.Tokens.TTL, cfg.TokenTTL, "tokens.ttl")
	if err != nil {
		return err
	}
	cfg.TokenTTL = ttl

	idle, err := parseOptionalDuration(source.Rooms.IdleTimeout, cfg.RoomIdleTimeout, "rooms.idle_timeout")
	if err != nil {
		return err
	}
	cfg.RoomIdleTimeout = idle
	if source.Rooms.MaxParticipants < 0 {
		return fmt.Errorf("invalid rooms.max_participants %d: must be > 0", source.Rooms.MaxParticipants)
	}
	if source.Rooms.MaxParticipants > 0 {
		cfg.RoomMaxParticipants = source.Rooms.MaxParticipants
	}
	poll, err := parseOptionalDuration(source.Rooms.PollInterval, cfg.RoomsPollInterval, "rooms.poll_interval")
	if err != nil {
		return err
	}
	cfg.RoomsPollInterval = poll

	if path := strings.TrimSpace(source.Recording.CredentialsFile); path != "" {
		resolved, err := expandPath(path)
		if err != nil {
			return fmt.Errorf("resolve recording.credentials_file: %w", err)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return fmt.Errorf("read recording.credentials_file: %w", err)
		}
		cfg.Recording.CredentialsJSON = strings.TrimSpace(string(data))
	}
	if value := strings.TrimSpace(source.Recording.Bucket); value != "" {
		cfg.Recording.Bucket = value
	}
	if value := strings.TrimSpace(source.Recording.Layout); value != "" {
		cfg.Recording.Layout = value
	}
	if value := strings.TrimSpace(source.Recording.Preset); value != "" {
		cfg.Recording.Preset = value
	}
	if value := strings.TrimSpace(source.Recording.FileType); value != "" {
		cfg.Recording.FileType = value
	}
	recordingTimeout, err := parseOptionalDuration(source.Recording.Timeout, cfg.Recording.Timeout, "recording.timeout")
	if err != nil {
		return err
	}
	cfg.Recording.Timeout = recordingTimeout

	if value := strings.TrimSpace(source.Records.Driver); value != "" {
		cfg.Records.Driver = strings.ToLower(value)
	}
	if value := strings.TrimSpace(source.Records.DSN); value != "" {
		cfg.Records.DSN = value
	}
	if value := strings.TrimSpace(source.Records.Airtable.BaseID); value != "" {
		cfg.Records.Airtable.BaseID = value
	}
	if value := strings.TrimSpace(source.Records.Airtable.SubjectsTable); value != "" {
		cfg.Records.Airtable.SubjectsTable = value
	}
	if value := strings.TrimSpace(source.Records.Airtable.SessionsTable); value != "" {
		cfg.Records.Airtable.SessionsTable = value
	}
	if value := strings.TrimSpace(source.Records.Airtable.URL); value != "" {
		cfg.Records.Airtable.URL = value
	}

	if len(source.Webhooks.URLs) > 0 {
		cfg.WebhookURLs = splitList(strings.Join(source.Webhooks.URLs, ","))
	}
	if value := strings.TrimSpace(source.Webhooks.Secret); value != "" {
		cfg.WebhookSecret = value
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if port := EnvString(EnvPort); port != "" {
		cfg.HTTPAddr = ":" + port
	}
	cfg.HTTPAddr = EnvOrDefault(EnvHTTPAddr, cfg.HTTPAddr)
	cfg.FrontendURL = EnvOrDefault(EnvFrontendURL, cfg.FrontendURL)
	cfg.LiveKitURL = EnvOrDefault(EnvLiveKitURL, cfg.LiveKitURL)
	cfg.LiveKitAPIKey = EnvOrDefault(EnvLiveKitAPIKey, cfg.LiveKitAPIKey)
	cfg.LiveKitAPISecret = EnvOrDefault(EnvLiveKitAPISecret, cfg.LiveKitAPISecret)
	cfg.AgentIdentity = EnvOrDefault(EnvAgentIdentity, cfg.AgentIdentity)

	var err error
	if cfg.TokenTTL, err = parseOptionalDuration(EnvString(EnvTokenTTL), cfg.TokenTTL, EnvTokenTTL); err != nil {
		return err
	}
	if cfg.RoomIdleTimeout, err = parseOptionalDuration(EnvString(EnvRoomIdleTimeout), cfg.RoomIdleTimeout, EnvRoomIdleTimeout); err != nil {
		return err
	}
	if cfg.RoomMaxParticipants, err = parseOptionalInt(EnvString(EnvRoomMaxParticip), cfg.RoomMaxParticipants, EnvRoomMaxParticip); err != nil {
		return err
	}
	if cfg.RoomsPollInterval, err = parseOptionalDuration(EnvString(EnvRoomsPollInterval), cfg.RoomsPollInterval, EnvRoomsPollInterval); err != nil {
		return err
	}

	cfg.Recording.CredentialsJSON = EnvOrDefault(EnvRecordingCreds, cfg.Recording.CredentialsJSON)
	cfg.Recording.Bucket = EnvOrDefault(EnvRecordingBucket, cfg.Recording.Bucket)
	if cfg.Recording.Timeout, err = parseOptionalDuration(EnvString(EnvRecordingTimeout), cfg.Recording.Timeout, EnvRecordingTimeout); err != nil {
		return err
	}

	cfg.Records.Driver = strings.ToLower(EnvOrDefault(EnvRecordsDriver, cfg.Records.Driver))
	cfg.Records.DSN = EnvOrDefault(EnvRecordsDSN, cfg.Records.DSN)
	cfg.Records.Airtable.Token = EnvOrDefault(EnvAirtableToken, cfg.Records.Airtable.Token)
	cfg.Records.Airtable.BaseID = EnvOrDefault(EnvAirtableBaseID, cfg.Records.Airtable.BaseID)
	cfg.Records.Airtable.SubjectsTable = EnvOrDefault(EnvAirtableSubjects, cfg.Records.Airtable.SubjectsTable)
	cfg.Records.Airtable.SessionsTable = EnvOrDefault(EnvAirtableSessions, cfg.Records.Airtable.SessionsTable)

	if urls := splitList(EnvString(EnvWebhookURLs)); len(urls) > 0 {
		cfg.WebhookURLs = urls
	}
	cfg.WebhookSecret = EnvOrDefault(EnvWebhookSecret, cfg.WebhookSecret)
	return nil
}

func resolveRecordsDriver(rc RecordsConfig) string {
	if rc.Driver != "" {
		return rc.Driver
	}
	if rc.Airtable.Token != "" {
		return RecordsDriverAirtable
	}
	return RecordsDriverSQLite
}

// BindFlags registers command-line overrides on fs with the loaded values as defaults.
// Values land in cfg when fs is parsed.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "listen address")
	fs.StringVar(&cfg.FrontendURL, "frontend-url", cfg.FrontendURL, "allowed CORS origin")
	fs.StringVar(&cfg.LiveKitURL, "livekit-url", cfg.LiveKitURL, "media server websocket url")
	fs.StringVar(&cfg.AgentIdentity, "agent-identity", cfg.AgentIdentity, "reserved identity of the automated participant")
	fs.StringVar(&cfg.Records.Driver, "records-driver", cfg.Records.Driver, "session record backend: airtable|sqlite|postgres|memory")
	fs.StringVar(&cfg.Records.DSN, "db-dsn", cfg.Records.DSN, "database dsn for the sqlite and postgres record backends")
	fs.DurationVar(&cfg.Recording.Timeout, "recording-timeout", cfg.Recording.Timeout, "upper bound for starting a recording")
	fs.DurationVar(&cfg.RoomsPollInterval, "rooms-poll-interval", cfg.RoomsPollInterval, "room list refresh period for websocket watchers")
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.LiveKitURL) == "" {
		return fmt.Errorf("%s is required", EnvLiveKitURL)
	}
	parsed, err := url.Parse(c.LiveKitURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid %s %q", EnvLiveKitURL, c.LiveKitURL)
	}
	if strings.TrimSpace(c.LiveKitAPIKey) == "" || strings.TrimSpace(c.LiveKitAPISecret) == "" {
		return fmt.Errorf("%s and %s are required", EnvLiveKitAPIKey, EnvLiveKitAPISecret)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("http addr is required")
	}
	if frontend, err := url.Parse(strings.TrimSpace(c.FrontendURL)); err != nil || frontend.Scheme == "" || frontend.Host == "" {
		return fmt.Errorf("invalid %s %q", EnvFrontendURL, c.FrontendURL)
	}
	if strings.TrimSpace(c.AgentIdentity) == "" {
		return fmt.Errorf("agent identity must not be blank")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be > 0")
	}
	if c.RoomMaxParticipants <= 0 {
		return fmt.Errorf("room max participants must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Records.Driver)) {
	case RecordsDriverAirtable:
		if c.Records.Airtable.Token == "" {
			return fmt.Errorf("records driver airtable requires %s", EnvAirtableToken)
		}
	case RecordsDriverPostgres:
		if strings.TrimSpace(c.Records.DSN) == "" {
			return fmt.Errorf("records driver postgres requires %s", EnvRecordsDSN)
		}
	case RecordsDriverSQLite, RecordsDriverMemory:
	default:
		return fmt.Errorf("unsupported records driver %q", c.Records.Driver)
	}

	for _, raw := range c.WebhookURLs {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid webhook url %q", raw)
		}
	}
	return nil
}

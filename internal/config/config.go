package config

import "time"

// Config holds runtime configuration for the maschine API service.
type Config struct {
	Environment   string
	Addr          string
	StorageDriver string

	DatabaseURL   string
	MigrationsDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GitHubBaseURL    string
	GitHubToken      string
	GitHubAppID      string
	GitHubInstallID  string
	GitHubAppKeyPEM  string
	GitHubOrg        string
	TemplateOwner    string
	TemplateRepo     string
	DefaultBranch    string

	VercelBaseURL string
	VercelToken   string
	VercelTeamID  string

	NameGenBaseURL string
	NameGenAPIKey  string
	NameGenModel   string

	IdentityBaseURL string
	IdentityAPIKey  string
	MinUserScore    float64

	KVRestAPIURL   string
	KVRestAPIToken string

	FetchConcurrency int
	PollInterval     time.Duration
	PollTimeout      time.Duration
}

// Load constructs a Config from environment variables.
func Load() Config {
	return Config{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":4000"),
		StorageDriver: GetString("STORAGE_DRIVER", "redis"),

		DatabaseURL:   GetString("DATABASE_URL", "postgres://maschine:maschine@db:5432/maschine?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "db/migrations"),

		RedisAddr:     GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),

		GitHubBaseURL:   GetString("GITHUB_API_URL", "https://api.github.com"),
		GitHubToken:     GetString("GITHUB_TOKEN", ""),
		GitHubAppID:     GetString("GITHUB_APP_ID", ""),
		GitHubInstallID: GetString("GITHUB_INSTALLATION_ID", ""),
		GitHubAppKeyPEM: GetString("GITHUB_APP_PRIVATE_KEY", ""),
		GitHubOrg:       GetString("GITHUB_ORG", "frameception-v2"),
		TemplateOwner:   GetString("TEMPLATE_OWNER", "hellno"),
		TemplateRepo:    GetString("TEMPLATE_REPO", "farcaster-frames-template"),
		DefaultBranch:   GetString("DEFAULT_BRANCH", "main"),

		VercelBaseURL: GetString("VERCEL_API_URL", "https://api.vercel.com"),
		VercelToken:   GetString("VERCEL_TOKEN", ""),
		VercelTeamID:  GetString("VERCEL_TEAM_ID", ""),

		NameGenBaseURL: GetString("NAMEGEN_API_URL", "https://api.openai.com/v1"),
		NameGenAPIKey:  GetString("NAMEGEN_API_KEY", ""),
		NameGenModel:   GetString("NAMEGEN_MODEL", "gpt-4o-mini"),

		IdentityBaseURL: GetString("IDENTITY_API_URL", "https://api.neynar.com"),
		IdentityAPIKey:  GetString("IDENTITY_API_KEY", ""),
		MinUserScore:    GetFloat("MIN_USER_SCORE", 0),

		KVRestAPIURL:   GetString("KV_REST_API_URL", ""),
		KVRestAPIToken: GetString("KV_REST_API_TOKEN", ""),

		FetchConcurrency: GetInt("FETCH_CONCURRENCY", 8),
		PollInterval:     time.Duration(GetInt("POLL_INTERVAL_SECONDS", 5)) * time.Second,
		PollTimeout:      time.Duration(GetInt("POLL_TIMEOUT_SECONDS", 600)) * time.Second,
	}
}

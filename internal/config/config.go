package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is loaded once at process start and passed by value to the
// orchestrator. Nothing below internal/config reads the environment.
type Config struct {
	Addr   string
	APIKey string

	Repo     RepoConfig
	Extract  ExtractConfig
	Prompt   PromptConfig
	Model    ModelConfig
	Artifact ArtifactConfig

	// Capacity is the number of pipeline runs allowed to hold an
	// outstanding inference call at once.
	Capacity int
	// QueueTimeout bounds how long a run waits for capacity. Zero waits
	// until the request context is done.
	QueueTimeout time.Duration
}

type RepoConfig struct {
	MinDepth     int
	MaxDepth     int
	MaxRepoBytes int64
	TempRoot     string
	TempPrefix   string
	AllowedHosts []string
}

type ExtractConfig struct {
	MaxTreeLines   int
	MaxFileBytes   int64
	MaxFilesPerDir int
	MaxDeps        int
	// MaxDepth limits directory descent; zero means unlimited.
	MaxDepth int
}

type PromptConfig struct {
	CharBudget int
}

type ModelConfig struct {
	BaseURL     string
	Name        string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Threads     int
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

func Default() Config {
	return Config{
		Addr: ":8080",
		Repo: RepoConfig{
			MinDepth:     1,
			MaxDepth:     3,
			MaxRepoBytes: 100 << 20,
			TempPrefix:   "repo_analyze_",
			AllowedHosts: []string{"github.com", "gitlab.com", "bitbucket.org"},
		},
		Extract: ExtractConfig{
			MaxTreeLines:   300,
			MaxFileBytes:   40 << 10,
			MaxFilesPerDir: 20,
			MaxDeps:        10,
		},
		Prompt: PromptConfig{CharBudget: 12000},
		Model: ModelConfig{
			BaseURL:     "http://localhost:11434",
			Name:        "llama3.2:3b-instruct-q4_0",
			Timeout:     1200 * time.Second,
			Temperature: 0.1,
			MaxTokens:   2000,
			Threads:     2,
		},
		Artifact: ArtifactConfig{
			Region:    "us-east-1",
			Bucket:    "archgen-diagrams",
			UseSSL:    true,
			URLExpiry: 15 * time.Minute,
		},
		Capacity: 1,
	}
}

// Load reads .env (if present) and the process environment on top of Default.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Default()

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if strings.HasPrefix(port, ":") {
			cfg.Addr = port
		} else {
			cfg.Addr = ":" + port
		}
	}
	cfg.APIKey = strings.TrimSpace(os.Getenv("API_KEY"))

	cfg.Model.BaseURL = strings.TrimRight(firstNonEmpty(os.Getenv("OLLAMA_API_URL"), cfg.Model.BaseURL), "/")
	cfg.Model.Name = firstNonEmpty(os.Getenv("OLLAMA_MODEL"), cfg.Model.Name)

	var errs []error
	readInt := func(key string, dst *int) {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	readInt64 := func(key string, dst *int64) {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	readDur := func(key string, dst *time.Duration) {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return
		}
		// Bare integers are seconds, matching the original OLLAMA timeout knob.
		if n, err := strconv.Atoi(raw); err == nil {
			*dst = time.Duration(n) * time.Second
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	readInt("ARCHGEN_MAX_TREE_LINES", &cfg.Extract.MaxTreeLines)
	readInt64("ARCHGEN_MAX_FILE_BYTES", &cfg.Extract.MaxFileBytes)
	readInt("ARCHGEN_MAX_FILES_PER_DIR", &cfg.Extract.MaxFilesPerDir)
	readInt("ARCHGEN_MAX_DEPS", &cfg.Extract.MaxDeps)
	readInt("ARCHGEN_MAX_WALK_DEPTH", &cfg.Extract.MaxDepth)
	readInt("ARCHGEN_PROMPT_CHAR_BUDGET", &cfg.Prompt.CharBudget)
	readInt64("ARCHGEN_MAX_REPO_BYTES", &cfg.Repo.MaxRepoBytes)
	readInt("ARCHGEN_CAPACITY", &cfg.Capacity)
	readDur("ARCHGEN_QUEUE_TIMEOUT", &cfg.QueueTimeout)
	readDur("OLLAMA_TIMEOUT", &cfg.Model.Timeout)
	readInt("OLLAMA_NUM_PREDICT", &cfg.Model.MaxTokens)
	readInt("OLLAMA_NUM_THREAD", &cfg.Model.Threads)
	cfg.Repo.TempRoot = strings.TrimSpace(os.Getenv("ARCHGEN_TEMP_DIR"))

	cfg.Artifact = loadArtifactConfig(cfg.Artifact)
	readDur("ARTIFACT_URL_EXPIRY", &cfg.Artifact.URLExpiry)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadArtifactConfig(def ArtifactConfig) ArtifactConfig {
	out := def
	out.Endpoint = strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	out.Enabled = out.Endpoint != ""
	out.Region = firstNonEmpty(os.Getenv("ARTIFACT_S3_REGION"), def.Region)
	out.AccessKey = firstNonEmpty(os.Getenv("ARTIFACT_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER"))
	out.SecretKey = firstNonEmpty(os.Getenv("ARTIFACT_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD"))
	out.Bucket = firstNonEmpty(os.Getenv("ARTIFACT_S3_BUCKET"), def.Bucket)
	if raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			out.UseSSL = v
		}
	}
	return out
}

func (c Config) Validate() error {
	switch {
	case c.Extract.MaxTreeLines < 1:
		return fmt.Errorf("config: max tree lines must be >= 1, got %d", c.Extract.MaxTreeLines)
	case c.Extract.MaxFileBytes <= 0:
		return fmt.Errorf("config: max file bytes must be positive")
	case c.Prompt.CharBudget <= 0:
		return fmt.Errorf("config: prompt char budget must be positive")
	case c.Capacity < 1:
		return fmt.Errorf("config: capacity must be >= 1, got %d", c.Capacity)
	case c.Repo.MinDepth < 1 || c.Repo.MinDepth > c.Repo.MaxDepth:
		return fmt.Errorf("config: invalid clone depth bounds %d..%d", c.Repo.MinDepth, c.Repo.MaxDepth)
	case c.Repo.MaxRepoBytes <= 0:
		return fmt.Errorf("config: max repo bytes must be positive")
	case c.Model.Timeout <= 0:
		return fmt.Errorf("config: model timeout must be positive")
	case strings.TrimSpace(c.Model.BaseURL) == "" || strings.TrimSpace(c.Model.Name) == "":
		return fmt.Errorf("config: model endpoint and name are required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

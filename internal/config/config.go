package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"
)

// Config aggregates all service configuration.
type Config struct {
	Server    ServerConfig
	Detection DetectionConfig
	AI        AIConfig
}

// Load reads configuration from environment variables, plus an optional
// detector tuning file.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	detection, err := loadDetectionConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Detection: detection, AI: ai}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// DetectionConfig controls the frame pipeline and broadcast hub.
type DetectionConfig struct {
	DetectorTimeout  time.Duration
	SubscriberBuffer int
	Tuning           Tuning
}

// Tuning holds the trigger rates of the built-in stand-in detectors. Rates
// can be overridden from a YAML file so operators can adjust them without a
// rebuild.
type Tuning struct {
	SecondFaceRate float64 `yaml:"second_face_rate"`
	GazeOffRate    float64 `yaml:"gaze_off_rate"`
	VoiceRate      float64 `yaml:"voice_rate"`
}

func defaultTuning() Tuning {
	return Tuning{
		SecondFaceRate: 0.50,
		GazeOffRate:    0.15,
		VoiceRate:      0.10,
	}
}

func loadDetectionConfig() (DetectionConfig, error) {
	timeoutSeconds := 2
	if override, err := parseOptionalIntEnv("DETECTOR_TIMEOUT"); err != nil {
		return DetectionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return DetectionConfig{}, fmt.Errorf("DETECTOR_TIMEOUT must be at least 1 second")
		}
		timeoutSeconds = *override
	}

	buffer := 16
	if override, err := parseOptionalIntEnv("HUB_BUFFER"); err != nil {
		return DetectionConfig{}, err
	} else if override != nil && *override > 0 {
		buffer = *override
	}

	tuning := defaultTuning()
	if path := strings.TrimSpace(os.Getenv("DETECTION_TUNING")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return DetectionConfig{}, fmt.Errorf("read detection tuning file: %w", err)
		}
		if err := yaml.Unmarshal(data, &tuning); err != nil {
			return DetectionConfig{}, fmt.Errorf("parse detection tuning file: %w", err)
		}
	}

	return DetectionConfig{
		DetectorTimeout:  time.Duration(timeoutSeconds) * time.Second,
		SubscriberBuffer: buffer,
		Tuning:           tuning,
	}, nil
}

// AIConfig describes the optional chat model used for session reports.
type AIConfig struct {
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	MaxTokens     *int
	ReportEnabled bool
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel instantiates the configured Ark chat model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL, or AK/SK")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	reportEnabled, err := parseBoolEnv("REPORT_LLM_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		MaxTokens:     maxTokens,
		ReportEnabled: reportEnabled,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB     DBConfig
	JWT    JWTConfig
	OTP    OTPConfig
	MinIO  MinIOConfig
	Server ServerConfig
	Audit  AuditConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	PendingTTL time.Duration
}

type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
	BcryptCost     int
}

type AuditConfig struct {
	ExportEnabled  bool
	ExportInterval time.Duration
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "nhalege"),
			Password: getEnv("DB_PASSWORD", "nhalege_secret"),
			Name:     getEnv("DB_NAME", "nhalege"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-me-in-production"),
			AccessTTL:  getEnvAsDuration("JWT_ACCESS_TTL", 30*time.Minute),
			PendingTTL: getEnvAsDuration("JWT_MFA_PENDING_TTL", 5*time.Minute),
		},
		OTP: OTPConfig{
			TTL:         getEnvAsDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts: getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "nhalege"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "nhalege_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "nhalege-audit"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
			BcryptCost:     getEnvAsInt("BCRYPT_COST", 0),
		},
		Audit: AuditConfig{
			ExportEnabled:  getEnvAsBool("AUDIT_EXPORT_ENABLED", false),
			ExportInterval: getEnvAsDuration("AUDIT_EXPORT_INTERVAL", 1*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

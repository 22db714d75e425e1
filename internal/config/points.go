package config

import (
	"os"
	"strconv"
	"time"
)

type PointsConfig struct {
	RegisterRewardPoints int64
	DownloadTokenTTL     time.Duration
	DownloadTokenPrefix  string
	PaymentQRTTL         time.Duration
	ResourceRefPrefix    string
	MaxPageSize          int
}

func LoadPointsConfig() *PointsConfig {
	return &PointsConfig{
		RegisterRewardPoints: getEnvAsInt64("POINTS_REGISTER_REWARD", 300),
		DownloadTokenTTL:     getEnvAsDuration("DOWNLOAD_TOKEN_TTL", 1*time.Hour),
		DownloadTokenPrefix:  getEnv("DOWNLOAD_TOKEN_PREFIX", "dl"),
		PaymentQRTTL:         getEnvAsDuration("PAYMENT_QR_TTL", 15*time.Minute),
		ResourceRefPrefix:    getEnv("RESOURCE_REF_PREFIX", "resource"),
		MaxPageSize:          getEnvAsInt("POINTS_MAX_PAGE_SIZE", 100),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

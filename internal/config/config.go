package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT (admin sessions)
	JWTSecret      string
	JWTExpireHours int

	// Download token signing
	DownloadSecret     string
	DownloadTTLMinutes int

	// API
	APIPort int

	// Renewal reminder worker
	ReminderIntervalMinutes int
	ReminderBatchSize       int
	ReminderLeadDays        int
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a hostname-based value if crypto/rand fails
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	// JWT Secret - generate random if not provided
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32) // 64 character hex string
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Admin sessions will not persist across restarts.")
	}

	// Download token secret - generate random if not provided
	downloadSecret := os.Getenv("DOWNLOAD_SECRET")
	if downloadSecret == "" {
		downloadSecret = generateSecureSecret(32)
		log.Println("WARNING: DOWNLOAD_SECRET not set - generated random secret. Issued download links will not survive restarts.")
	}

	// Database password - warn if using default
	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	// Redis password - warn if using default
	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "keyforge"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "keyforge"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		// JWT
		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168), // 7 days default

		// Downloads
		DownloadSecret:     downloadSecret,
		DownloadTTLMinutes: getEnvInt("DOWNLOAD_TTL_MINUTES", 15),

		// API
		APIPort: getEnvInt("API_PORT", 8080),

		// Reminders
		ReminderIntervalMinutes: getEnvInt("REMINDER_INTERVAL_MINUTES", 60),
		ReminderBatchSize:       getEnvInt("REMINDER_BATCH_SIZE", 25),
		ReminderLeadDays:        getEnvInt("REMINDER_LEAD_DAYS", 14),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

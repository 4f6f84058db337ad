package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env                 string
	StationPort         string
	WebPort             string
	DataDir             string
	RosterCSV           string
	UploadDir           string
	FrameDir            string
	ClassLabel          string
	ScanInterval        time.Duration
	DedupWindow         time.Duration
	SimilarityThreshold float64
	FaceServiceURL      string
	FaceSkip            bool
	QueueBackend        string
	RedisAddr           string
	DatabaseURL         string
	RateLimitPerMin     int
}

// Load returns application config populated from environment variables with
// sensible defaults. A .env file in the working directory is read first when
// present.
func Load() App {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("skipping .env: %v", err)
	}
	return App{
		Env:                 getEnv("APP_ENV", "dev"),
		StationPort:         getEnv("STATION_PORT", "8082"),
		WebPort:             getEnv("WEB_PORT", "8081"),
		DataDir:             getEnv("DATA_DIR", "local_data"),
		RosterCSV:           getEnv("ROSTER_CSV", "students.csv"),
		UploadDir:           getEnv("UPLOAD_DIR", "uploads"),
		FrameDir:            getEnv("FRAME_DIR", "frames"),
		ClassLabel:          getEnv("CLASS_LABEL", ""),
		ScanInterval:        durationEnv("SCAN_INTERVAL", time.Second),
		DedupWindow:         durationEnv("DEDUP_WINDOW", 5*time.Minute),
		SimilarityThreshold: floatEnv("SIMILARITY_THRESHOLD", 80),
		FaceServiceURL:      getEnv("FACE_SERVICE_URL", "http://localhost:8000"),
		FaceSkip:            boolEnv("FACE_SKIP", true),
		QueueBackend:        getEnv("QUEUE_BACKEND", "memory"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RateLimitPerMin:     intEnv("RATE_LIMIT_PER_MIN", 120),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		var parsed float64
		if _, err := fmt.Sscanf(val, "%g", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid float for %s, using fallback %g", key, fallback)
	}
	return fallback
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string

	// backend Ohtomi
	BackendBaseURL string
	BackendTimeout time.Duration

	// persistencia de identidad
	RedisAddr string
	RedisDB   int

	// fuente GPS: "serial" o "demo"
	GPSMode string
	GPSPort string
	GPSBaud int

	// fuente IMU: "mqtt" o "demo"
	IMUMode    string
	MQTTBroker string
	MQTTTopic  string
	MQTTUser   string
	MQTTPass   string

	// batería: "sysfs" o "static"
	BatteryMode string
	BatteryPath string

	SampleInterval time.Duration
	ListenAddr     string
	RawLogDir      string
	AutoStart      bool
}

func Load() Config {
	// .env opcional, el entorno real manda
	_ = godotenv.Load()

	return Config{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		BackendBaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:8080/"),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		GPSMode:        getEnv("GPS_MODE", "demo"),
		GPSPort:        getEnv("GPS_PORT", "/dev/ttyGPS"),
		GPSBaud:        getEnvInt("GPS_BAUD", 9600),
		IMUMode:        getEnv("IMU_MODE", "demo"),
		MQTTBroker:     getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTTopic:      getEnv("MQTT_TOPIC", "vehicle/imu"),
		MQTTUser:       getEnv("MQTT_USER", ""),
		MQTTPass:       getEnv("MQTT_PASS", ""),
		BatteryMode:    getEnv("BATTERY_MODE", "sysfs"),
		BatteryPath:    getEnv("BATTERY_PATH", ""),
		SampleInterval: getEnvDuration("SAMPLE_INTERVAL", 3*time.Second),
		ListenAddr:     getEnv("LISTEN_ADDR", ":9000"),
		RawLogDir:      getEnv("RAW_LOG_DIR", ""),
		AutoStart:      getEnvBool("AUTO_START", true),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

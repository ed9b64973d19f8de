// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	Timezone                string `yaml:"timezone" env-default:"UTC"`
	RedisConnection         `yaml:"redis_connection"`
	Completion              `yaml:"completion"`
	Chat                    `yaml:"chat"`
	Payments                `yaml:"payments"`
	Subscriptions           `yaml:"subscriptions"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// Completion структура для настройки клиента chat-completion API
type Completion struct {
	APIKey            string        `yaml:"api_key" env:"COMPLETION_API_KEY"`
	BaseURL           string        `yaml:"base_url" env-default:"https://api.deepseek.com"`
	Model             string        `yaml:"model" env-default:"deepseek-chat"`
	MaxResponseTokens int           `yaml:"max_response_tokens" env-default:"2048"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env-default:"60s"`
	RequestsPerSec    float64       `yaml:"requests_per_sec" env-default:"1"`
	RequestsBurst     int           `yaml:"requests_burst" env-default:"3"`
}

// Chat структура для настройки сборки контекстного окна диалога
type Chat struct {
	SystemPrompt     string `yaml:"system_prompt" env-default:"Ты полезный ассистент. Отвечай кратко и по делу."`
	HistoryWindow    int    `yaml:"history_window" env-default:"15"`
	MaxHistoryTokens int    `yaml:"max_history_tokens" env-default:"1024"`
}

// Payments структура для настройки платежного шлюза и поллера
type Payments struct {
	ShopID       string        `yaml:"shop_id" env:"YOOKASSA_SHOP_ID"`
	SecretKey    string        `yaml:"secret_key" env:"YOOKASSA_SECRET_KEY"`
	ReturnURL    string        `yaml:"return_url"`
	PollInterval time.Duration `yaml:"poll_interval" env-default:"10s"`
	PollTimeout  time.Duration `yaml:"poll_timeout" env-default:"5m"`
}

// Subscriptions структура для настройки фоновой проверки подписок
type Subscriptions struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1m"`
}

// MustLoad функция для загрузки конфига, путь берется из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

// Location возвращает часовой пояс сервиса; при некорректном значении
// в конфиге используется UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Log struct {
	Level string `yaml:"level"`
}

type Session struct {
	Backend string        `yaml:"backend"` // memory | redis | postgres
	ID      string        `yaml:"id"`
	TTL     time.Duration `yaml:"ttl"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"password"`
	Name     string `yaml:"database"`
	MaxConns int    `yaml:"max_conns"`
}

type MQ struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	User  string `yaml:"user"`
	Pass  string `yaml:"password"`
	VHost string `yaml:"vhost"`
}

type Realtime struct {
	Transport string        `yaml:"transport"` // nats | amqp
	NATSURL   string        `yaml:"nats_url"`
	Reconnect time.Duration `yaml:"reconnect_wait"`
	Rabbit    MQ            `yaml:"rabbitmq"`
}

type HotelAPI struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// ReportStatus pushes every status clock advance to PATCH /orders/{id}/status.
	ReportStatus bool `yaml:"report_status"`
}

type StatusClock struct {
	Confirmed      time.Duration `yaml:"confirmed"`
	Preparing      time.Duration `yaml:"preparing"`
	OutForDelivery time.Duration `yaml:"out_for_delivery"`
	Tick           time.Duration `yaml:"tick"`
}

type HTTP struct {
	Port int `yaml:"port"`
}

type App struct {
	Log         Log         `yaml:"log"`
	Session     Session     `yaml:"session"`
	Redis       Redis       `yaml:"redis"`
	Database    DB          `yaml:"database"`
	Realtime    Realtime    `yaml:"realtime"`
	HotelAPI    HotelAPI    `yaml:"hotel_api"`
	StatusClock StatusClock `yaml:"status_clock"`
	HTTP        HTTP        `yaml:"http"`
}

func Defaults() App {
	return App{
		Log:      Log{Level: "info"},
		Session:  Session{Backend: "memory", TTL: 12 * time.Hour},
		Redis:    Redis{Addr: "localhost:6379"},
		Database: DB{Host: "localhost", Port: 5432, MaxConns: 4},
		Realtime: Realtime{
			Transport: "nats",
			NATSURL:   "nats://localhost:4222",
			Reconnect: 2 * time.Second,
			Rabbit:    MQ{Host: "localhost", Port: 5672, VHost: "/"},
		},
		HotelAPI: HotelAPI{BaseURL: "http://localhost:8080", Timeout: 10 * time.Second},
		StatusClock: StatusClock{
			Confirmed:      2 * time.Minute,
			Preparing:      8 * time.Minute,
			OutForDelivery: 5 * time.Minute,
			Tick:           time.Second,
		},
		HTTP: HTTP{Port: 3000},
	}
}

// Load reads the YAML file at path on top of Defaults, then applies .env and
// GUEST_* environment overrides. An empty path skips the file.
func Load(path string) (App, error) {
	a := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return App{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &a); err != nil {
			return App{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnv(&a)

	if err := a.Validate(); err != nil {
		return App{}, err
	}
	return a, nil
}

func (a App) Validate() error {
	switch a.Session.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("invalid config: unknown session backend %q", a.Session.Backend)
	}
	switch a.Realtime.Transport {
	case "nats", "amqp":
	default:
		return fmt.Errorf("invalid config: unknown realtime transport %q", a.Realtime.Transport)
	}
	if a.Session.Backend == "postgres" && (a.Database.Host == "" || a.Database.Name == "") {
		return errors.New("invalid config: postgres session backend needs database host/name")
	}
	if a.StatusClock.Tick <= 0 {
		return errors.New("invalid config: status_clock.tick must be positive")
	}
	return nil
}

func applyEnv(a *App) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("GUEST_LOG_LEVEL", &a.Log.Level)
	str("GUEST_SESSION_BACKEND", &a.Session.Backend)
	str("GUEST_SESSION_ID", &a.Session.ID)
	str("GUEST_REDIS_ADDR", &a.Redis.Addr)
	str("GUEST_REDIS_PASSWORD", &a.Redis.Password)
	str("GUEST_DB_HOST", &a.Database.Host)
	num("GUEST_DB_PORT", &a.Database.Port)
	str("GUEST_DB_USER", &a.Database.User)
	str("GUEST_DB_PASSWORD", &a.Database.Pass)
	str("GUEST_DB_NAME", &a.Database.Name)
	str("GUEST_REALTIME_TRANSPORT", &a.Realtime.Transport)
	str("GUEST_NATS_URL", &a.Realtime.NATSURL)
	str("GUEST_RABBITMQ_HOST", &a.Realtime.Rabbit.Host)
	num("GUEST_RABBITMQ_PORT", &a.Realtime.Rabbit.Port)
	str("GUEST_RABBITMQ_USER", &a.Realtime.Rabbit.User)
	str("GUEST_RABBITMQ_PASSWORD", &a.Realtime.Rabbit.Pass)
	str("GUEST_HOTEL_API_URL", &a.HotelAPI.BaseURL)
	num("GUEST_HTTP_PORT", &a.HTTP.Port)
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}

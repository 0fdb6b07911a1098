package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		Driver   string `yaml:"driver"` // pg | fs
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int32         `yaml:"max_conns"`
			MinConns        int32         `yaml:"min_conns"`
			ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		FS struct {
			Path string `yaml:"path"` // YAML con los clientes
		} `yaml:"fs"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Registry struct {
		// Vacío/0 => default (5m). Negativo (p.ej. -1s) => las entradas no
		// expiran y sólo se invalidan con Evict. Ver RegistryTTL.
		TTL         time.Duration `yaml:"ttl"`
		LoadTimeout time.Duration `yaml:"load_timeout"`
	} `yaml:"registry"`

	AuthReq struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"authreq"`

	LoginRate struct {
		// Intentos por (cliente, usuario) y ventana. 0 = sin límite.
		MaxAttempts int           `yaml:"max_attempts"`
		Window      time.Duration `yaml:"window"`
	} `yaml:"login_rate"`

	Security struct {
		SecretBoxMasterKey string `yaml:"secretbox_master_key"` // base64(32 bytes); preferir SECRETBOX_MASTER_KEY
	} `yaml:"security"`

	Users struct {
		File string `yaml:"file"`
	} `yaml:"users"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Default devuelve una config válida para desarrollo (fs + memory).
func Default() *Config {
	var c Config
	c.setDefaults()
	return &c
}

// Load lee el YAML, completa defaults, aplica overrides de env y valida.
// Un path vacío arranca de Default() (sólo env).
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	c.setDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// rutas relativas al directorio del YAML
	if path != "" {
		base := filepath.Dir(path)
		c.Storage.FS.Path = resolve(base, c.Storage.FS.Path)
		c.Users.File = resolve(base, c.Users.File)
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.FS.Path == "" {
		c.Storage.FS.Path = "./data/clients.yaml"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "tokenauthority"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 5 * time.Minute
	}
	if c.Registry.TTL == 0 {
		c.Registry.TTL = 5 * time.Minute
	}
	if c.Registry.LoadTimeout == 0 {
		c.Registry.LoadTimeout = 3 * time.Second
	}
	if c.AuthReq.TTL == 0 {
		c.AuthReq.TTL = 10 * time.Minute
	}
	if c.LoginRate.Window == 0 {
		c.LoginRate.Window = time.Minute
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// RegistryTTL es el TTL efectivo de las entradas del registry; 0 = sin expiración.
func (c *Config) RegistryTTL() time.Duration {
	if c.Registry.TTL < 0 {
		return 0
	}
	return c.Registry.TTL
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = int32(v)
	}
	if v, ok := getEnvInt("POSTGRES_MIN_CONNS"); ok {
		c.Storage.Postgres.MinConns = int32(v)
	}
	if v, ok := getEnvDur("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}
	if v, ok := getEnvStr("CLIENTS_FILE"); ok {
		c.Storage.FS.Path = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvDur("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// REGISTRY / AUTHREQ
	if v, ok := getEnvDur("REGISTRY_TTL"); ok {
		c.Registry.TTL = v
	}
	if v, ok := getEnvDur("REGISTRY_LOAD_TIMEOUT"); ok {
		c.Registry.LoadTimeout = v
	}
	if v, ok := getEnvDur("AUTHREQ_TTL"); ok {
		c.AuthReq.TTL = v
	}

	if v, ok := getEnvInt("LOGIN_RATE_MAX_ATTEMPTS"); ok {
		c.LoginRate.MaxAttempts = v
	}
	if v, ok := getEnvDur("LOGIN_RATE_WINDOW"); ok {
		c.LoginRate.Window = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}

	if v, ok := getEnvStr("USERS_FILE"); ok {
		c.Users.File = v
	}
	if v, ok := getEnvStr("METRICS_ADDR"); ok {
		c.Metrics.Addr = v
	}
}

// Validate rechaza drivers desconocidos y TTLs no positivos.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("config: storage.dsn required for driver pg")
		}
	case "fs":
		if strings.TrimSpace(c.Storage.FS.Path) == "" {
			return fmt.Errorf("config: storage.fs.path required for driver fs")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("config: cache.redis.addr required for kind redis")
		}
	default:
		return fmt.Errorf("config: unknown cache kind %q", c.Cache.Kind)
	}

	if c.Registry.LoadTimeout <= 0 {
		return fmt.Errorf("config: registry.load_timeout must be positive")
	}
	if c.AuthReq.TTL <= 0 {
		return fmt.Errorf("config: authreq.ttl must be positive")
	}
	if c.LoginRate.MaxAttempts < 0 || c.LoginRate.Window <= 0 {
		return fmt.Errorf("config: login_rate needs max_attempts >= 0 and a positive window")
	}
	if c.Cache.Memory.DefaultTTL <= 0 {
		return fmt.Errorf("config: cache.memory.default_ttl must be positive")
	}
	return nil
}

func resolve(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

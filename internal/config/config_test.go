package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeYAML(t, "app:\n  env: dev\n")
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "fs", c.Storage.Driver)
	assert.Equal(t, "memory", c.Cache.Kind)
	assert.Equal(t, 10*time.Minute, c.AuthReq.TTL)
	assert.Equal(t, 3*time.Second, c.Registry.LoadTimeout)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "data", "clients.yaml"), c.Storage.FS.Path)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	p := writeYAML(t, `
storage:
  driver: pg
  dsn: postgres://u:p@localhost/db
  postgres:
    max_conns: 8
    conn_max_lifetime: 30m
cache:
  kind: redis
  redis:
    addr: localhost:6379
registry:
  ttl: 1m
  load_timeout: 500ms
authreq:
  ttl: 2m
login_rate:
  max_attempts: 5
users:
  file: users.yaml
`)
	t.Setenv("REDIS_DB", "3")
	t.Setenv("AUTHREQ_TTL", "90s")
	t.Setenv("SECRETBOX_MASTER_KEY", "k")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "pg", c.Storage.Driver)
	assert.Equal(t, int32(8), c.Storage.Postgres.MaxConns)
	assert.Equal(t, 30*time.Minute, c.Storage.Postgres.ConnMaxLifetime)
	assert.Equal(t, 3, c.Cache.Redis.DB)
	assert.Equal(t, time.Minute, c.Registry.TTL)
	assert.Equal(t, 500*time.Millisecond, c.Registry.LoadTimeout)
	assert.Equal(t, 90*time.Second, c.AuthReq.TTL)
	assert.Equal(t, "k", c.Security.SecretBoxMasterKey)
	assert.Equal(t, 5, c.LoginRate.MaxAttempts)
	assert.Equal(t, time.Minute, c.LoginRate.Window)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "users.yaml"), c.Users.File)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown storage": func(c *Config) { c.Storage.Driver = "mongo" },
		"pg without dsn":  func(c *Config) { c.Storage.Driver = "pg" },
		"unknown cache":   func(c *Config) { c.Cache.Kind = "memcached" },
		"redis no addr":   func(c *Config) { c.Cache.Kind = "redis" },
		"authreq ttl":     func(c *Config) { c.AuthReq.TTL = -time.Second },
		"load timeout":    func(c *Config) { c.Registry.LoadTimeout = -1 },
		"login rate":      func(c *Config) { c.LoginRate.MaxAttempts = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRegistryTTL_NegativeMeansNoExpiry(t *testing.T) {
	c, err := Load(writeYAML(t, "registry:\n  ttl: -1s\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), c.RegistryTTL())

	t.Setenv("REGISTRY_TTL", "2m")
	c, err = Load(writeYAML(t, "registry:\n  ttl: -1s\n"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, c.RegistryTTL())

	// sin valor queda el default
	assert.Equal(t, 5*time.Minute, Default().RegistryTTL())
}

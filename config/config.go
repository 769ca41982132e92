package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type KeyringConfig struct {
	Backend      string `mapstructure:"backend"`
	Service      string `mapstructure:"service"`
	FileDir      string `mapstructure:"file_dir"`
	FilePassword string `mapstructure:"file_password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	AppName      string        `mapstructure:"app_name"`
	ListenIP     string        `mapstructure:"listen_ip"`
	ListenPort   int           `mapstructure:"listen_port"`
	DatabasePath string        `mapstructure:"database_path"`
	CSRFKey      string        `mapstructure:"csrf_key"`
	KeyCacheTTL  time.Duration `mapstructure:"key_cache_ttl"`
	Keyring      KeyringConfig `mapstructure:"keyring"`
	Log          LogConfig     `mapstructure:"log"`
}

var AppConfig Config

const envPrefix = "DATAVAULT"

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("app_name", "DataVault")
	v.SetDefault("listen_ip", "127.0.0.1")
	v.SetDefault("listen_port", 8080)
	v.SetDefault("database_path", "./datavault.db")
	v.SetDefault("csrf_key", "")
	v.SetDefault("key_cache_ttl", "5m")
	v.SetDefault("keyring.backend", "")
	v.SetDefault("keyring.service", "datavault")
	v.SetDefault("keyring.file_dir", filepath.Join(home, ".datavault", "keyring"))
	v.SetDefault("keyring.file_password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads path (JSON) into AppConfig. A missing file leaves the
// defaults in place; DATAVAULT_* environment variables, optionally from a
// .env file, override both.
func LoadConfig(path string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}

	// If no key is provided or it's the placeholder, generate a secure random one
	if cfg.CSRFKey == "" || cfg.CSRFKey == "CHANGE_ME_IN_PRODUCTION" {
		slog.Warn("no csrf key configured, generating a random key; browser tokens are invalidated on restart")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return err
		}
		cfg.CSRFKey = hex.EncodeToString(randomKey)
	}

	AppConfig = cfg
	return nil
}

// CSRFKeyBytes returns the 32-byte key gorilla/csrf expects.
func (c Config) CSRFKeyBytes() []byte {
	if b, err := hex.DecodeString(c.CSRFKey); err == nil && len(b) == 32 {
		return b
	}
	// Free-form keys are stretched to 32 bytes.
	key := sha256.Sum256([]byte(c.CSRFKey + "csrf"))
	return key[:]
}

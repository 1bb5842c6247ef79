package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable gostage reads.
const EnvPrefix = "GOSTAGE"

// EnvConfigFile names a YAML config file when --config is not given.
const EnvConfigFile = EnvPrefix + "_CONFIG"

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
)

// SetConfigFile sets the YAML file read by subsequent Load calls. An
// empty path falls back to $GOSTAGE_CONFIG.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// EnvSpec maps an environment variable to a config key.
type EnvSpec struct {
	Name string
	Path string
}

// getEnvSpecs returns the short environment aliases. Every other key is
// also reachable as GOSTAGE_<SECTION>_<KEY>, e.g. GOSTAGE_FTP_HOST.
func getEnvSpecs() []EnvSpec {
	return []EnvSpec{
		{Name: EnvPrefix + "_BACKEND", Path: "backend.type"},
		{Name: EnvPrefix + "_LOG_LEVEL", Path: "logging.level"},
		{Name: EnvPrefix + "_LOG_PROFILE", Path: "logging.profile"},
		{Name: EnvPrefix + "_FORMAT", Path: "output.format"},
		{Name: EnvPrefix + "_MAX_DEPTH", Path: "listing.max_depth"},
		{Name: EnvPrefix + "_CONCURRENCY", Path: "listing.concurrency"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.type", "")

	v.SetDefault("ftp.host", "")
	v.SetDefault("ftp.port", 21)
	v.SetDefault("ftp.username", "")
	v.SetDefault("ftp.password", "")
	v.SetDefault("ftp.timeout", 30*time.Second)
	v.SetDefault("ftp.explicit_tls", false)
	v.SetDefault("ftp.insecure_skip_verify", false)

	v.SetDefault("sftp.host", "")
	v.SetDefault("sftp.port", 22)
	v.SetDefault("sftp.username", "")
	v.SetDefault("sftp.password", "")
	v.SetDefault("sftp.private_key_path", "")
	v.SetDefault("sftp.private_key_passphrase", "")
	v.SetDefault("sftp.known_hosts_path", "")
	v.SetDefault("sftp.insecure_ignore_host_key", false)
	v.SetDefault("sftp.timeout", 30*time.Second)

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.max_keys", 1000)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.bucket", "")
	v.SetDefault("minio.region", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", true)

	v.SetDefault("listing.max_depth", 64)
	v.SetDefault("listing.concurrency", 4)

	v.SetDefault("output.format", "jsonl")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", ProfileConsole)
}

// Load builds the configuration and makes it available via GetConfig.
// Precedence, lowest first: defaults, config file, environment, overrides.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		// Explicit names take priority over the derived GOSTAGE_<KEY> form.
		if err := v.BindEnv(spec.Path, spec.Name, envName(spec.Path)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	configMu.RLock()
	path := configFile
	configMu.RUnlock()
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, o := range overrides {
		flat := make(map[string]any)
		flatten("", o, flat)
		for k, val := range flat {
			v.Set(k, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, val := range in {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = val
	}
}

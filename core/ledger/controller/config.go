package controller

import (
	"os"
	"path/filepath"

	"go.dedis.ch/crush/core/rent"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// ConfigFile is the name of the optional configuration file in the config
// folder of the node.
const ConfigFile = "crush.yaml"

const (
	// BackendBolt is the name of the bbolt database backend.
	BackendBolt = "bolt"

	// BackendSQLite is the name of the SQLite database backend.
	BackendSQLite = "sqlite"
)

// Config is the configuration of a node. Relative paths are resolved against
// the config folder.
//
//	database:
//	  backend: sqlite
//	  path: crush.sqlite
//	rent:
//	  lamports_per_byte_year: 3480
//	  exemption_years: 2
//	relayer:
//	  key: relayer.key
//	  balance: 1000000000
//	proxy:
//	  addr: 127.0.0.1:8080
type Config struct {
	// Dir is the config folder the file was loaded from.
	Dir string `yaml:"-"`

	Database DatabaseConfig `yaml:"database"`
	Rent     RentConfig     `yaml:"rent"`
	Relayer  RelayerConfig  `yaml:"relayer"`
	Proxy    ProxyConfig    `yaml:"proxy"`
}

// DatabaseConfig is the configuration of the storage.
type DatabaseConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RentConfig is the configuration of the rent service.
type RentConfig struct {
	LamportsPerByteYear uint64 `yaml:"lamports_per_byte_year"`
	ExemptionYears      uint64 `yaml:"exemption_years"`
}

// RelayerConfig is the configuration of the key of the node that pays for the
// submissions it relays.
type RelayerConfig struct {
	Key string `yaml:"key"`

	// Balance is credited once to a relayer key the first time it starts.
	Balance uint64 `yaml:"balance"`
}

// ProxyConfig is the configuration of the HTTP proxy.
type ProxyConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Backend: BackendBolt,
		},
		Rent: RentConfig{
			LamportsPerByteYear: rent.DefaultLamportsPerByteYear,
			ExemptionYears:      rent.DefaultExemptionYears,
		},
		Relayer: RelayerConfig{
			Key:     "relayer.key",
			Balance: 1_000_000_000,
		},
	}
}

// LoadConfig reads the configuration file of the folder. The default
// configuration is returned if the file does not exist, and missing values are
// taken from it.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if os.IsNotExist(err) {
		return cfg.resolve(dir), nil
	}
	if err != nil {
		return cfg, xerrors.Errorf("failed to read config file: %v", err)
	}

	err = yaml.UnmarshalStrict(data, &cfg)
	if err != nil {
		return cfg, xerrors.Errorf("failed to unmarshal config: %v", err)
	}

	switch cfg.Database.Backend {
	case BackendBolt, BackendSQLite:
	default:
		return cfg, xerrors.Errorf("unknown database backend '%s'", cfg.Database.Backend)
	}

	return cfg.resolve(dir), nil
}

// RentOptions returns the options of the rent service.
func (cfg Config) RentOptions() []rent.Option {
	return []rent.Option{
		rent.WithLamportsPerByteYear(cfg.Rent.LamportsPerByteYear),
		rent.WithExemptionYears(cfg.Rent.ExemptionYears),
	}
}

// DatabasePath returns the path of the database file for the backend.
func (cfg Config) DatabasePath(dir string) string {
	if cfg.Database.Path != "" {
		return cfg.Database.Path
	}

	name := "crush.db"
	if cfg.Database.Backend == BackendSQLite {
		name = "crush.sqlite"
	}

	return filepath.Join(dir, name)
}

func (cfg Config) resolve(dir string) Config {
	cfg.Dir = dir

	if cfg.Database.Path != "" && !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(dir, cfg.Database.Path)
	}

	if !filepath.IsAbs(cfg.Relayer.Key) {
		cfg.Relayer.Key = filepath.Join(dir, cfg.Relayer.Key)
	}

	return cfg
}

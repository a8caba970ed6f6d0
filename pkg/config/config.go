package config

// Package config provides a reusable loader for botho node configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"botho/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a botho node. It mirrors
// the structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ID             string   `mapstructure:"id" json:"id"`
		ChainID        int      `mapstructure:"chain_id" json:"chain_id"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		QuorumThreshold int      `mapstructure:"quorum_threshold" json:"quorum_threshold"`
		QuorumMembers   []string `mapstructure:"quorum_members" json:"quorum_members"`
		MinBlockTimeSec int      `mapstructure:"min_block_time_sec" json:"min_block_time_sec"`
		MaxBlockTimeSec int      `mapstructure:"max_block_time_sec" json:"max_block_time_sec"`
	} `mapstructure:"consensus" json:"consensus"`

	Privacy struct {
		Level         string  `mapstructure:"level" json:"level"`
		ForcePrivate  bool    `mapstructure:"force_private" json:"force_private"`
		AllowFallback bool    `mapstructure:"allow_fallback" json:"allow_fallback"`
		CircuitHops   int     `mapstructure:"circuit_hops" json:"circuit_hops"`
		MinRelayScore float64 `mapstructure:"min_relay_score" json:"min_relay_score"`
	} `mapstructure:"privacy" json:"privacy"`

	Transport struct {
		Kind      string `mapstructure:"kind" json:"kind"` // webrtc | tls | http2
		CertPath  string `mapstructure:"cert_path" json:"cert_path"`
		KeyPath   string `mapstructure:"key_path" json:"key_path"`
		PinnedFpr string `mapstructure:"pinned_fingerprint" json:"pinned_fingerprint"`
	} `mapstructure:"transport" json:"transport"`

	Wallet struct {
		DustThreshold uint64 `mapstructure:"dust_threshold" json:"dust_threshold"`
		RingSize      int    `mapstructure:"ring_size" json:"ring_size"`
	} `mapstructure:"wallet" json:"wallet"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
		Prune  bool   `mapstructure:"prune" json:"prune"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // process environment variables; no .env file is read

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the BOTHO_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("BOTHO_ENV", ""))
}

// Package config loads the moderation settings from a YAML file with
// environment overrides and turns them into the settings of each component.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gomoderate/pkg/datastore"
	"github.com/NicolasHaas/gomoderate/pkg/gate"
	"github.com/NicolasHaas/gomoderate/pkg/logging"
	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/notify"
	"github.com/NicolasHaas/gomoderate/pkg/punish"
	"github.com/NicolasHaas/gomoderate/pkg/rank"
	"github.com/NicolasHaas/gomoderate/pkg/render"
	"github.com/NicolasHaas/gomoderate/pkg/scheduler"
)

// RankYAML is one rank entry. Its id is the map key.
type RankYAML struct {
	Tier         int    `yaml:"tier"`
	DisplayName  string `yaml:"display-name"`
	DisplayColor string `yaml:"display-color"`
	Permission   string `yaml:"permission,omitempty"`
}

// RanksConfig selects the rank source and lists the ladder for each mode.
type RanksConfig struct {
	Mode          string              `yaml:"mode"`           // builtin or groups
	OfflinePolicy string              `yaml:"offline-policy"` // deny or allow
	Builtin       map[string]RankYAML `yaml:"builtin-ranks"`
	Groups        map[string]RankYAML `yaml:"group-ranks"`
}

type PunishmentsConfig struct {
	AppealURL     string `yaml:"appeal-url"`
	DefaultReason string `yaml:"default-reason"`
}

type StorageConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max-open-conns"`
	Timeout      time.Duration `yaml:"timeout"`
}

type WorkersConfig struct {
	Size       int `yaml:"size"`
	QueueDepth int `yaml:"queue-depth"`
}

type WorldConfig struct {
	TickRate int `yaml:"tick-rate"`
}

type GateConfig struct {
	RefreshInterval time.Duration `yaml:"refresh-interval"` // negative disables the periodic mute refresh
	FailOpen        bool          `yaml:"fail-open"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	TopicPrefix string   `yaml:"topic-prefix"`
	ClientID    string   `yaml:"client-id"`
}

type NotifyConfig struct {
	Timeout  time.Duration           `yaml:"timeout"`
	Kafka    KafkaConfig             `yaml:"kafka"`
	Channels map[string]string       `yaml:"channels"`
	Embeds   map[string]notify.Embed `yaml:"embeds"`
}

type MetricsConfig struct {
	Addr        string        `yaml:"addr"`         // "" disables the HTTP endpoint
	LogInterval time.Duration `yaml:"log-interval"` // 0 disables the periodic summary
}

// BridgeConfig enables the websocket endpoint for out-of-process game
// servers.
type BridgeConfig struct {
	Addr  string `yaml:"addr"` // "" disables the bridge
	Token string `yaml:"token"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the whole settings file.
type Config struct {
	Ranks       RanksConfig         `yaml:"ranks"`
	Permissions map[string]string   `yaml:"permissions"` // command -> capability
	Messages    render.Templates    `yaml:"messages"`
	Punishments PunishmentsConfig   `yaml:"punishments"`
	Storage     StorageConfig       `yaml:"storage"`
	Workers     WorkersConfig       `yaml:"workers"`
	World       WorldConfig         `yaml:"world"`
	Gate        GateConfig          `yaml:"gate"`
	Notify      NotifyConfig        `yaml:"notify"`
	Staff       map[string][]string `yaml:"staff"`  // player uuid -> capabilities
	Groups      map[string][]string `yaml:"groups"` // player uuid -> groups, primary first
	Metrics     MetricsConfig       `yaml:"metrics"`
	Bridge      BridgeConfig        `yaml:"bridge"`
	Log         LogConfig           `yaml:"log"`
}

// Environment overrides. Unset variables leave the file value alone.
type overrides struct {
	DBDriver     string   `env:"MODERATION_DB_DRIVER"`
	DBDSN        string   `env:"MODERATION_DB_DSN"`
	KafkaBrokers []string `env:"MODERATION_KAFKA_BROKERS" envSeparator:","`
	KafkaEnabled *bool    `env:"MODERATION_KAFKA_ENABLED"`
	MetricsAddr  string   `env:"MODERATION_METRICS_ADDR"`
	LogLevel     string   `env:"MODERATION_LOG_LEVEL"`
	AppealURL    string   `env:"MODERATION_APPEAL_URL"`
	BridgeAddr   string   `env:"MODERATION_BRIDGE_ADDR"`
	BridgeToken  string   `env:"MODERATION_BRIDGE_TOKEN"`
}

// DefaultRanks is the ladder used when the file lists no built-in ranks.
func DefaultRanks() map[string]RankYAML {
	return map[string]RankYAML{
		"admin":     {Tier: 3, DisplayName: "Admin", DisplayColor: "#FF5555", Permission: "moderation.rank.admin"},
		"moderator": {Tier: 2, DisplayName: "Moderator", DisplayColor: "#55FF55", Permission: "moderation.rank.moderator"},
		"helper":    {Tier: 1, DisplayName: "Helper", DisplayColor: "#55FFFF", Permission: "moderation.rank.helper"},
	}
}

// Default returns the settings used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	d := punish.DefaultConfig()
	if c.Ranks.Mode == "" {
		c.Ranks.Mode = rank.ModeBuiltin.String()
	}
	if c.Ranks.OfflinePolicy == "" {
		c.Ranks.OfflinePolicy = string(punish.OfflineDeny)
	}
	if len(c.Ranks.Builtin) == 0 {
		c.Ranks.Builtin = DefaultRanks()
	}
	if c.Punishments.AppealURL == "" {
		c.Punishments.AppealURL = d.AppealURL
	}
	if c.Punishments.DefaultReason == "" {
		c.Punishments.DefaultReason = d.DefaultReason
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = "moderation.db"
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = d.StorageTimeout
	}
	if c.Workers.Size == 0 {
		c.Workers.Size = 4
	}
	if c.Workers.QueueDepth == 0 {
		c.Workers.QueueDepth = 256
	}
	if c.World.TickRate == 0 {
		c.World.TickRate = 20
	}
	if c.Gate.RefreshInterval == 0 {
		c.Gate.RefreshInterval = time.Minute
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = d.NotifyTimeout
	}
	if c.Notify.Kafka.TopicPrefix == "" {
		c.Notify.Kafka.TopicPrefix = "moderation"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Load reads path, applies defaults and environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(nil); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes a settings file and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

// ApplyEnv overlays MODERATION_* variables. A nil environ reads the process
// environment.
func (c *Config) ApplyEnv(environ map[string]string) error {
	var o overrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if o.DBDriver != "" {
		c.Storage.Driver = o.DBDriver
	}
	if o.DBDSN != "" {
		c.Storage.DSN = o.DBDSN
	}
	if len(o.KafkaBrokers) > 0 {
		c.Notify.Kafka.Brokers = o.KafkaBrokers
	}
	if o.KafkaEnabled != nil {
		c.Notify.Kafka.Enabled = *o.KafkaEnabled
	}
	if o.MetricsAddr != "" {
		c.Metrics.Addr = o.MetricsAddr
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.AppealURL != "" {
		c.Punishments.AppealURL = o.AppealURL
	}
	if o.BridgeAddr != "" {
		c.Bridge.Addr = o.BridgeAddr
	}
	if o.BridgeToken != "" {
		c.Bridge.Token = o.BridgeToken
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.Ladder(); err != nil {
		return err
	}
	switch punish.OfflinePolicy(strings.ToLower(c.Ranks.OfflinePolicy)) {
	case punish.OfflineDeny, punish.OfflineAllow:
	default:
		return fmt.Errorf("ranks.offline-policy: unknown value %q (valid: deny, allow)", c.Ranks.OfflinePolicy)
	}
	for cmd := range c.Permissions {
		if punish.UsageFor(cmd) == "" {
			return fmt.Errorf("permissions: unknown command %q", cmd)
		}
	}
	if _, err := datastore.ParseDialect(c.Storage.Driver); err != nil {
		return fmt.Errorf("storage.driver: %w", err)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage.dsn must be set")
	}
	if c.Storage.Timeout < 0 || c.Notify.Timeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Workers.Size <= 0 || c.Workers.QueueDepth <= 0 {
		return fmt.Errorf("workers: size and queue-depth must be positive (got %d, %d)", c.Workers.Size, c.Workers.QueueDepth)
	}
	if c.World.TickRate <= 0 {
		return fmt.Errorf("world.tick-rate must be positive (got %d)", c.World.TickRate)
	}
	if c.Notify.Kafka.Enabled && len(c.Notify.Kafka.Brokers) == 0 {
		return errors.New("notify.kafka: enabled without brokers")
	}
	if c.Bridge.Addr != "" && len(c.Bridge.Token) < 16 {
		return errors.New("bridge.token must be at least 16 characters when the bridge is enabled")
	}
	if _, err := parsePlayers("staff", c.Staff); err != nil {
		return err
	}
	if _, err := parsePlayers("groups", c.Groups); err != nil {
		return err
	}
	if err := logging.Validate(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Ladder builds the rank ladder for the configured mode.
func (c *Config) Ladder() (*rank.Ladder, error) {
	mode, err := rank.ParseMode(c.Ranks.Mode)
	if err != nil {
		return nil, fmt.Errorf("ranks.mode: %w", err)
	}
	src := c.Ranks.Builtin
	if mode == rank.ModeGroups {
		src = c.Ranks.Groups
	}
	ids := make([]string, 0, len(src))
	for id := range src {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ranks := make([]model.StaffRank, 0, len(ids))
	for _, id := range ids {
		r := src[id]
		ranks = append(ranks, model.StaffRank{
			ID:           id,
			Tier:         r.Tier,
			DisplayName:  r.DisplayName,
			DisplayColor: r.DisplayColor,
			Permission:   r.Permission,
		})
	}
	l, err := rank.NewLadder(mode, ranks)
	if err != nil {
		return nil, fmt.Errorf("ranks: %w", err)
	}
	return l, nil
}

// Engine returns the punishment engine settings.
func (c *Config) Engine() punish.Config {
	caps := punish.DefaultConfig().Capabilities
	for cmd, capability := range c.Permissions {
		caps[strings.ToLower(cmd)] = capability
	}
	return punish.Config{
		DefaultReason:  c.Punishments.DefaultReason,
		AppealURL:      c.Punishments.AppealURL,
		StorageTimeout: c.Storage.Timeout,
		NotifyTimeout:  c.Notify.Timeout,
		OfflinePolicy:  punish.OfflinePolicy(strings.ToLower(c.Ranks.OfflinePolicy)),
		Capabilities:   caps,
		Templates:      c.Messages,
	}
}

// GateSettings returns the enforcement gate settings.
func (c *Config) GateSettings() gate.Config {
	return gate.Config{
		AppealURL:      c.Punishments.AppealURL,
		Templates:      c.Messages,
		StorageTimeout: c.Storage.Timeout,
		FailOpen:       c.Gate.FailOpen,
	}
}

func (c *Config) Scheduler() scheduler.Config {
	return scheduler.Config{TickRateHz: c.World.TickRate, Workers: c.Workers.Size, QueueDepth: c.Workers.QueueDepth}
}

func (c *Config) StorageOptions() datastore.Options {
	return datastore.Options{Driver: c.Storage.Driver, DSN: c.Storage.DSN, MaxOpenConns: c.Storage.MaxOpenConns}
}

func (c *Config) Routing() notify.Routing {
	return notify.Routing{Channels: c.Notify.Channels, Embeds: c.Notify.Embeds}
}

func (c *Config) Kafka() notify.KafkaConfig {
	return notify.KafkaConfig{Brokers: c.Notify.Kafka.Brokers, TopicPrefix: c.Notify.Kafka.TopicPrefix, ClientID: c.Notify.Kafka.ClientID}
}

func (c *Config) Logging() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format}
}

// Grants returns the static capability table. Invalid keys are skipped;
// Validate reports them.
func (c *Config) Grants() map[uuid.UUID][]string {
	m, _ := parsePlayers("staff", c.Staff)
	return m
}

// GroupAssignments returns the static group table used in groups mode when
// no external provider is attached.
func (c *Config) GroupAssignments() map[uuid.UUID][]string {
	m, _ := parsePlayers("groups", c.Groups)
	return m
}

func parsePlayers(section string, in map[string][]string) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(in))
	var bad error
	for key, v := range in {
		id, err := uuid.Parse(strings.TrimSpace(key))
		if err != nil {
			if bad == nil {
				bad = fmt.Errorf("%s: %q is not a player uuid: %w", section, key, err)
			}
			continue
		}
		out[id] = v
	}
	return out, bad
}

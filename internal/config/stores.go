package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/congo-pay/crossbank/internal/store"
)

// Store kinds.
const (
	KindMemory   = "memory"
	KindPostgres = "postgres"
	KindMongo    = "mongo"
	KindDocStore = "docstore"
)

// Stores is the store topology file. Order of Stores is routing priority.
type Stores struct {
	// Sender names the store of the initiating party.
	Sender string        `toml:"sender"`
	Stores []StoreConfig `toml:"stores"`
}

// StoreConfig describes one ledger store.
type StoreConfig struct {
	Name        string `toml:"name"`
	Kind        string `toml:"kind"`
	Role        string `toml:"role"`
	RoutingCode string `toml:"routing_code"`
	// DSN is the postgres connection string or mongo URI. Postgres stores fall
	// back to DATABASE_URL.
	DSN         string            `toml:"dsn"`
	URL         string            `toml:"url"`
	APIKey      string            `toml:"api_key"`
	Database    string            `toml:"database"`
	Timeout     string            `toml:"timeout"`
	Breaker     *BreakerConfig    `toml:"breaker"`
	Collections store.Collections `toml:"collections"`
	// Accounts seeds memory stores.
	Accounts []SeedAccount `toml:"accounts"`
}

// BreakerConfig enables a circuit breaker around a store.
type BreakerConfig struct {
	ConsecutiveFailures uint32 `toml:"consecutive_failures"`
	OpenTimeout         string `toml:"open_timeout"`
	HalfOpenRequests    uint32 `toml:"half_open_requests"`
}

// SeedAccount is an account preloaded into a memory store.
type SeedAccount struct {
	AccountID   string `toml:"account_id"`
	RoutingCode string `toml:"routing_code"`
	Name        string `toml:"name"`
	Balance     int64  `toml:"balance"`
	Status      string `toml:"status"`
	Unlisted    bool   `toml:"unlisted"`
}

// LoadStores reads and validates a TOML topology file.
func LoadStores(path string) (Stores, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Stores{}, fmt.Errorf("read stores file: %w", err)
	}
	return ParseStores(b)
}

// ParseStores decodes and validates a TOML topology.
func ParseStores(b []byte) (Stores, error) {
	var s Stores
	if err := toml.Unmarshal(b, &s); err != nil {
		return Stores{}, fmt.Errorf("parse stores file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Stores{}, fmt.Errorf("invalid stores file: %w", err)
	}
	return s, nil
}

// Validate checks every store entry and the sender reference.
func (s Stores) Validate() error {
	if len(s.Stores) == 0 {
		return fmt.Errorf("at least one store is required")
	}
	seen := make(map[string]bool, len(s.Stores))
	for i, sc := range s.Stores {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("stores[%d]: %w", i, err)
		}
		if seen[sc.Name] {
			return fmt.Errorf("stores[%d]: duplicate name %q", i, sc.Name)
		}
		seen[sc.Name] = true
	}
	if s.Sender != "" && !seen[s.Sender] {
		return fmt.Errorf("sender %q is not a configured store", s.Sender)
	}
	return nil
}

// Validate checks the fields each kind needs.
func (c StoreConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Kind, validation.Required, validation.In(KindMemory, KindPostgres, KindMongo, KindDocStore)),
		validation.Field(&c.Role, validation.In(string(store.RoleSender), string(store.RoleReceiver), string(store.RoleBoth))),
		validation.Field(&c.DSN, validation.When(c.Kind == KindMongo, validation.Required)),
		validation.Field(&c.Database, validation.When(c.Kind == KindMongo, validation.Required)),
		validation.Field(&c.URL, validation.When(c.Kind == KindDocStore, validation.Required)),
		validation.Field(&c.Timeout, validation.By(isDuration)),
		validation.Field(&c.Accounts, validation.When(c.Kind != KindMemory, validation.Empty.Error("only memory stores can be seeded"))),
	)
}

// StoreRole resolves the effective role of a store: the top-level sender
// makes its store a sender unless it is already marked both.
func (s Stores) StoreRole(c StoreConfig) store.Role {
	role := store.Role(c.Role)
	if s.Sender == c.Name && role != store.RoleBoth {
		return store.RoleSender
	}
	if s.Sender != "" && s.Sender != c.Name && role == store.RoleSender {
		return store.RoleReceiver
	}
	return role
}

// TimeoutOr parses Timeout, returning fallback when unset.
func (c StoreConfig) TimeoutOr(fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return fallback
}

// Settings converts the file form into store.BreakerConfig.
func (b BreakerConfig) Settings() store.BreakerConfig {
	open, _ := time.ParseDuration(b.OpenTimeout)
	return store.BreakerConfig{
		ConsecutiveFailures: b.ConsecutiveFailures,
		OpenTimeout:         open,
		HalfOpenRequests:    b.HalfOpenRequests,
	}
}

func isDuration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a duration such as 5s")
	}
	return nil
}

package brands

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// SMTP holds outbound mail credentials for one brand. Password is taken
// from the environment variable named by password_env so secrets stay out
// of the registry file.
type SMTP struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"-"`
	PasswordEnv string `yaml:"password_env"`
}

// Brand is one brand's resolved outreach configuration
type Brand struct {
	Key       string `yaml:"-"`
	Name      string `yaml:"name"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	ReplyTo   string `yaml:"reply_to"`
	Timezone  string `yaml:"timezone"`
	SMTP      SMTP   `yaml:"smtp"`

	// InboxAccount is the mailbox polled for replies
	InboxAccount string `yaml:"inbox_account"`

	loc *time.Location
}

// Location returns the brand's timezone, defaulting to UTC
func (b *Brand) Location() *time.Location {
	if b.loc != nil {
		return b.loc
	}
	return time.UTC
}

// Registry maps brand keys to their resolved configuration. Built once at
// startup; lookups never touch the environment afterwards.
type Registry struct {
	brands map[string]*Brand
}

type registryFile struct {
	Brands map[string]*Brand `yaml:"brands"`
}

// Load reads the brand registry from a YAML file and resolves credentials
// and timezones
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brand registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from raw YAML
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse brand registry: %w", err)
	}
	if len(file.Brands) == 0 {
		return nil, fmt.Errorf("brand registry defines no brands")
	}

	registry := &Registry{brands: make(map[string]*Brand)}
	for key, brand := range file.Brands {
		brand.Key = key
		if brand.FromEmail == "" {
			return nil, fmt.Errorf("brand '%s' has no from_email", key)
		}
		if brand.SMTP.PasswordEnv != "" {
			brand.SMTP.Password = os.Getenv(brand.SMTP.PasswordEnv)
		}
		if brand.Timezone != "" {
			loc, err := time.LoadLocation(brand.Timezone)
			if err != nil {
				return nil, fmt.Errorf("brand '%s' has invalid timezone '%s': %w", key, brand.Timezone, err)
			}
			brand.loc = loc
		}
		registry.brands[key] = brand
	}

	return registry, nil
}

// Get returns the configuration for a brand key
func (r *Registry) Get(key string) (*Brand, error) {
	brand, exists := r.brands[key]
	if !exists {
		return nil, fmt.Errorf("brand '%s' is not registered", key)
	}
	return brand, nil
}

// Keys returns all registered brand keys, sorted
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.brands))
	for key := range r.brands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

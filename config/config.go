// Package config loads the client's connection configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportKind names one of the wire transports the client can dial.
type TransportKind string

const (
	TransportDirectTCP TransportKind = "tcp"
	TransportNetBIOS   TransportKind = "netbios"
	TransportQUIC      TransportKind = "quic"
)

// Config lists the fields that shape a connection before NEGOTIATE is sent.
type Config struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Transport TransportKind `yaml:"transport"`

	// MinDialect/MaxDialect bound the dialect range offered in NEGOTIATE.
	// 0 means "use the package default" (3.0.0 .. 3.1.1).
	MinDialect uint16 `yaml:"minDialect"`
	MaxDialect uint16 `yaml:"maxDialect"`

	RequireSigning    bool `yaml:"requireSigning"`
	RequireEncryption bool `yaml:"requireEncryption"`

	SendTimeout time.Duration `yaml:"sendTimeout"`
	IdleTimeout time.Duration `yaml:"idleTimeout"`

	MaxCreditBalance uint16 `yaml:"maxCreditBalance"`

	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Domain   string `yaml:"domain"`
}

// Default returns a Config with the package's default timeouts and dialect
// ceiling applied over zero-valued fields.
func Default() Config {
	return Config{
		Transport:        TransportDirectTCP,
		Port:             445,
		MinDialect:       0x0300,
		MaxDialect:       0x0311,
		SendTimeout:      30 * time.Second,
		IdleTimeout:      10 * time.Minute,
		MaxCreditBalance: 128,
	}
}

// Read loads a YAML config file from dir/smb3.yml, applying Default() for
// any field left unset in the file.
func Read(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, "smb3.yml")
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

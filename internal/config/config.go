package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Fuseki holds everything the connection manager needs to reach the store.
type Fuseki struct {
	BaseURL  string `yaml:"base_url"`
	Dataset  string `yaml:"dataset"`
	QueryURL string `yaml:"query_url"` // optional override of <base>/<dataset>/query
	// optional override of <base>/<dataset>/update
	UpdateURL string `yaml:"update_url"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`

	Timeout      time.Duration `yaml:"timeout"`
	PingAttempts int           `yaml:"ping_attempts"`
}

// Endpoint returns the query endpoint, honouring an explicit override.
func (f Fuseki) Endpoint() string {
	if f.QueryURL != "" {
		return f.QueryURL
	}
	return strings.TrimRight(f.BaseURL, "/") + "/" + f.Dataset + "/query"
}

// UpdateEndpoint returns the update endpoint, honouring an explicit override.
func (f Fuseki) UpdateEndpoint() string {
	if f.UpdateURL != "" {
		return f.UpdateURL
	}
	return strings.TrimRight(f.BaseURL, "/") + "/" + f.Dataset + "/update"
}

// HasCredentials reports whether basic auth should be sent.
func (f Fuseki) HasCredentials() bool {
	return f.User != "" || f.Password != ""
}

type SFTP struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	User                  string `yaml:"user"`
	Pass                  string `yaml:"pass"`
	Dir                   string `yaml:"dir"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_hostkey"`
	KnownHosts            string `yaml:"known_hosts"`
}

// Config is built once at startup and passed explicitly; nothing reads it
// through package state.
type Config struct {
	Fuseki      Fuseki `yaml:"fuseki"`
	SFTP        SFTP   `yaml:"sftp"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Fuseki: Fuseki{
			BaseURL:      getenv("FUSEKI_URL", "http://localhost:3030"),
			Dataset:      getenv("FUSEKI_DATASET", "university"),
			QueryURL:     os.Getenv("FUSEKI_QUERY_URL"),
			UpdateURL:    os.Getenv("FUSEKI_UPDATE_URL"),
			User:         os.Getenv("FUSEKI_USER"),
			Password:     os.Getenv("FUSEKI_PASSWORD"),
			Timeout:      getenvDuration("FUSEKI_TIMEOUT", 30*time.Second),
			PingAttempts: getenvInt("FUSEKI_PING_ATTEMPTS", 5),
		},
		SFTP: SFTP{
			Host:                  os.Getenv("SFTP_HOST"),
			Port:                  getenvInt("SFTP_PORT", 22),
			User:                  os.Getenv("SFTP_USER"),
			Pass:                  os.Getenv("SFTP_PASS"),
			Dir:                   getenv("SFTP_DIR", "/inbound"),
			InsecureIgnoreHostKey: getenvBool("SFTP_INSECURE_IGNORE_HOSTKEY", true),
			KnownHosts:            os.Getenv("SFTP_KNOWN_HOSTS"),
		},
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}
}

// LoadFile loads the environment configuration and overlays the YAML file
// at path on top of it. Fields absent from the file keep their env value.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the Fuseki section; SFTP is only checked by the uploader.
func (c Config) Validate() error {
	var errs []error

	if c.Fuseki.QueryURL == "" {
		if c.Fuseki.BaseURL == "" {
			errs = append(errs, errors.New("fuseki: base url is required"))
		}
		if c.Fuseki.Dataset == "" {
			errs = append(errs, errors.New("fuseki: dataset is required"))
		}
	}
	for _, raw := range []string{c.Fuseki.Endpoint(), c.Fuseki.UpdateEndpoint()} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("fuseki: invalid endpoint %q", raw))
		}
	}
	if c.Fuseki.Timeout <= 0 {
		errs = append(errs, errors.New("fuseki: timeout must be positive"))
	}

	return errors.Join(errs...)
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// plain seconds
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

// Package config loads AgentPipe settings from an optional YAML file and the
// environment. Environment variables win over the file, and the file wins
// over the defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Trace output formats.
const (
	TraceText = "text"
	TraceJSON = "json"
	TraceNone = "none"
)

var (
	debugTrue  = []string{"1", "true", "yes", "on", "dev", "debug", "development"}
	debugFalse = []string{"0", "false", "no", "off", "release", "prod", "production"}
)

// Settings is the process configuration.
type Settings struct {
	AppName         string `yaml:"app_name"`
	Debug           Debug  `yaml:"debug"`
	HardwareProfile string `yaml:"hardware_profile"`
	LogLevel        string `yaml:"log_level"`
	ModelPath       string `yaml:"model_path"`
	DataPath        string `yaml:"data_path"`
	BackendPort     int    `yaml:"backend_port"`
	CatalogPath     string `yaml:"catalog_path"`
	MaxMessages     int    `yaml:"max_messages"`

	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Trace struct {
		Format string `yaml:"format"`
		OTel   bool   `yaml:"otel"`
	} `yaml:"trace"`

	Replay struct {
		LatencyToleranceRatio float64 `yaml:"latency_tolerance_ratio"`
	} `yaml:"replay"`
}

// Default returns the built-in settings.
func Default() *Settings {
	s := &Settings{
		AppName:         "AgentPipe",
		Debug:           true,
		HardwareProfile: "Medium",
		LogLevel:        "INFO",
		ModelPath:       "models/",
		DataPath:        "data/",
		BackendPort:     8000,
		CatalogPath:     "models/models.yaml",
		MaxMessages:     10,
	}
	s.Store.Driver = DriverMemory
	s.Trace.Format = TraceNone
	return s
}

// Load builds settings from defaults, then the YAML file at path (skipped
// when path is empty), then the environment read through getenv (os.Getenv
// when nil).
func Load(path string, getenv func(string) string) (*Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAMLStrict(data, s); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := s.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeYAMLStrict(data []byte, s *Settings) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("multiple YAML documents are not allowed")
		}
		return err
	}
	return nil
}

func (s *Settings) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("APP_NAME", &s.AppName)
	str("HARDWARE_PROFILE", &s.HardwareProfile)
	str("LOG_LEVEL", &s.LogLevel)
	str("MODEL_PATH", &s.ModelPath)
	str("DATA_PATH", &s.DataPath)
	str("CATALOG_PATH", &s.CatalogPath)
	str("STORE_DRIVER", &s.Store.Driver)
	str("STORE_DSN", &s.Store.DSN)
	str("TRACE_FORMAT", &s.Trace.Format)

	if v := strings.TrimSpace(getenv("DEBUG")); v != "" {
		d, err := ParseDebug(v)
		if err != nil {
			return err
		}
		s.Debug = d
	}
	if v := strings.TrimSpace(getenv("TRACE_OTEL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRACE_OTEL %q: %w", v, err)
		}
		s.Trace.OTel = b
	}
	for name, dst := range map[string]*int{"BACKEND_PORT": &s.BackendPort, "MAX_MESSAGES": &s.MaxMessages} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, v, err)
			}
			*dst = n
		}
	}
	if v := strings.TrimSpace(getenv("REPLAY_LATENCY_TOLERANCE_RATIO")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid REPLAY_LATENCY_TOLERANCE_RATIO %q: %w", v, err)
		}
		s.Replay.LatencyToleranceRatio = f
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (s *Settings) Validate() error {
	var errs []error
	switch s.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverMySQL:
		if s.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", s.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", s.Store.Driver))
	}
	switch s.Trace.Format {
	case TraceText, TraceJSON, TraceNone:
	default:
		errs = append(errs, fmt.Errorf("unknown trace.format %q", s.Trace.Format))
	}
	if s.BackendPort < 1 || s.BackendPort > 65535 {
		errs = append(errs, fmt.Errorf("backend_port %d out of range", s.BackendPort))
	}
	if s.MaxMessages < 1 {
		errs = append(errs, fmt.Errorf("max_messages must be positive, got %d", s.MaxMessages))
	}
	if s.Replay.LatencyToleranceRatio < 0 {
		errs = append(errs, errors.New("replay.latency_tolerance_ratio must not be negative"))
	}
	if _, err := s.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level. WARNING and CRITICAL are
// accepted as aliases of WARN and ERROR.
func (s *Settings) SlogLevel() (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s.LogLevel)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s.LogLevel)
	}
}

// Debug is a boolean that also accepts the deployment words in debugTrue
// and debugFalse.
type Debug bool

// ParseDebug parses a DEBUG value. Matching is case-insensitive.
func ParseDebug(v string) (Debug, error) {
	n := strings.ToLower(strings.TrimSpace(v))
	for _, t := range debugTrue {
		if n == t {
			return true, nil
		}
	}
	for _, f := range debugFalse {
		if n == f {
			return false, nil
		}
	}
	accepted := append(append([]string{}, debugTrue...), debugFalse...)
	sort.Strings(accepted)
	return false, fmt.Errorf("invalid DEBUG value %q. Accepted values: %s", v, strings.Join(accepted, ", "))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Debug) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		*d = Debug(b)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("debug: expected bool or string")
	}
	parsed, err := ParseDebug(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

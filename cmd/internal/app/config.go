package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"acdisplay/cmd/internal/telemetry"
)

// DefaultConfigPath is read when no --config flag is given.
const DefaultConfigPath = "./configuration.json"

// maxConfigBytes caps the configuration file size.
const maxConfigBytes = 20 << 10

// Telemetry sources.
const (
	SourceACUDP     = "acudp"
	SourceSimulator = "simulator"
)

// ErrInvalidConfig wraps every validation failure returned by LoadConfig.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that reads and writes as "20ms", "2s", ...
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Endpoint is an IPv4 host and port.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// HTTPSConfig is the dashboard listener. Leaving both key and certificate
// empty serves plain HTTP.
type HTTPSConfig struct {
	Endpoint
	PrivateKey string `json:"private_key"`
	PublicCert string `json:"public_cert"`

	ReadHeaderTimeout Duration `json:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout"`
	MaxHeaderBytes    int      `json:"max_header_bytes"`
}

// TLSEnabled reports whether a key pair is configured.
func (c HTTPSConfig) TLSEnabled() bool {
	return c.PrivateKey != "" && c.PublicCert != ""
}

// CarConfig holds the dial limits pushed to every dashboard.
type CarConfig struct {
	RPMRedLine   int `json:"rpm_red_line"`
	RPMMaximum   int `json:"rpm_maximum"`
	SpeedRedLine int `json:"speedometer_red_line_kph"`
	SpeedMaximum int `json:"speedometer_maximum_kph"`
}

// Telemetry converts c for the snapshot store.
func (c CarConfig) Telemetry() telemetry.CarConfig {
	return telemetry.CarConfig{
		RPMRedLine:   c.RPMRedLine,
		RPMMaximum:   c.RPMMaximum,
		SpeedRedLine: c.SpeedRedLine,
		SpeedMaximum: c.SpeedMaximum,
	}
}

// RealtimeConfig tunes the WebSocket sessions and their shutdown.
type RealtimeConfig struct {
	BroadcastInterval Duration `json:"broadcast_interval"`
	WriteTimeout      Duration `json:"write_timeout"`
	ShutdownGrace     Duration `json:"shutdown_grace"`
	CloseGrace        Duration `json:"close_grace"`
}

// Config contains all runtime configuration.
type Config struct {
	ACUDP    Endpoint       `json:"acudp"`
	HTTPS    HTTPSConfig    `json:"https"`
	Car      CarConfig      `json:"car"`
	Realtime RealtimeConfig `json:"realtime"`

	Source    string `json:"source"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	DatabaseURL string `json:"database_url"`
	DBMaxConns  int32  `json:"db_max_conns"`
	DBMinConns  int32  `json:"db_min_conns"`
}

// DefaultConfig returns the values used for keys absent from the file.
func DefaultConfig() Config {
	car := telemetry.DefaultCarConfig()
	return Config{
		ACUDP: Endpoint{Host: "127.0.0.1", Port: 9996},
		HTTPS: HTTPSConfig{
			Endpoint:          Endpoint{Host: "127.0.0.1", Port: 8443},
			ReadHeaderTimeout: Duration(5 * time.Second),
			IdleTimeout:       Duration(60 * time.Second),
			MaxHeaderBytes:    1 << 20,
		},
		Car: CarConfig{
			RPMRedLine:   car.RPMRedLine,
			RPMMaximum:   car.RPMMaximum,
			SpeedRedLine: car.SpeedRedLine,
			SpeedMaximum: car.SpeedMaximum,
		},
		Realtime: RealtimeConfig{
			BroadcastInterval: Duration(20 * time.Millisecond),
			WriteTimeout:      Duration(5 * time.Second),
			ShutdownGrace:     Duration(2 * time.Second),
			CloseGrace:        Duration(2 * time.Second),
		},
		Source:     SourceACUDP,
		LogLevel:   "info",
		LogFormat:  "json",
		DBMaxConns: 4,
	}
}

// LoadConfig reads the JSON file at path over the defaults, applies
// ACDISPLAY_* environment overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxConfigBytes+1))
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(raw) > maxConfigBytes {
		return Config{}, fmt.Errorf("%w: %s is larger than %d bytes", ErrInvalidConfig, path, maxConfigBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ACUDP.Host = EnvString("ACDISPLAY_ACUDP_HOST", c.ACUDP.Host)
	c.ACUDP.Port = EnvInt("ACDISPLAY_ACUDP_PORT", c.ACUDP.Port)

	c.HTTPS.Host = EnvString("ACDISPLAY_HTTPS_HOST", c.HTTPS.Host)
	c.HTTPS.Port = EnvInt("ACDISPLAY_HTTPS_PORT", c.HTTPS.Port)
	c.HTTPS.PrivateKey = EnvString("ACDISPLAY_HTTPS_PRIVATE_KEY", c.HTTPS.PrivateKey)
	c.HTTPS.PublicCert = EnvString("ACDISPLAY_HTTPS_PUBLIC_CERT", c.HTTPS.PublicCert)

	c.Source = EnvString("ACDISPLAY_SOURCE", c.Source)
	c.LogLevel = EnvString("ACDISPLAY_LOG_LEVEL", c.LogLevel)
	c.LogFormat = EnvString("ACDISPLAY_LOG_FORMAT", c.LogFormat)

	c.DatabaseURL = EnvString("ACDISPLAY_DATABASE_URL", c.DatabaseURL)
	c.DBMaxConns = EnvInt32("ACDISPLAY_DB_MAX_CONNS", c.DBMaxConns)
	c.DBMinConns = EnvInt32("ACDISPLAY_DB_MIN_CONNS", c.DBMinConns)

	c.Realtime.BroadcastInterval = Duration(EnvDuration("ACDISPLAY_BROADCAST_INTERVAL", c.Realtime.BroadcastInterval.Std()))
	c.Realtime.WriteTimeout = Duration(EnvDuration("ACDISPLAY_WRITE_TIMEOUT", c.Realtime.WriteTimeout.Std()))
	c.Realtime.ShutdownGrace = Duration(EnvDuration("ACDISPLAY_SHUTDOWN_GRACE", c.Realtime.ShutdownGrace.Std()))
	c.Realtime.CloseGrace = Duration(EnvDuration("ACDISPLAY_CLOSE_GRACE", c.Realtime.CloseGrace.Std()))
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := validateHost(c.ACUDP.Host); err != nil {
		add("acudp.host: %v", err)
	}
	if !validPort(c.ACUDP.Port) {
		add("acudp.port: %d out of range", c.ACUDP.Port)
	}
	if err := validateHost(c.HTTPS.Host); err != nil {
		add("https.host: %v", err)
	}
	if !validPort(c.HTTPS.Port) {
		add("https.port: %d out of range", c.HTTPS.Port)
	}
	if (c.HTTPS.PrivateKey == "") != (c.HTTPS.PublicCert == "") {
		add("https: private_key and public_cert must be set together")
	}

	checkDial := func(name string, redLine, maximum int) {
		if redLine <= 0 || maximum <= 0 {
			add("car.%s: values must be positive", name)
			return
		}
		if redLine > maximum {
			add("car.%s: red line %d above maximum %d", name, redLine, maximum)
		}
	}
	checkDial("rpm", c.Car.RPMRedLine, c.Car.RPMMaximum)
	checkDial("speedometer", c.Car.SpeedRedLine, c.Car.SpeedMaximum)

	switch c.Source {
	case SourceACUDP, SourceSimulator:
	default:
		add("source: %q is not %q or %q", c.Source, SourceACUDP, SourceSimulator)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		add("log_format: %q is not json or console", c.LogFormat)
	}

	for name, d := range map[string]Duration{
		"broadcast_interval": c.Realtime.BroadcastInterval,
		"write_timeout":      c.Realtime.WriteTimeout,
		"shutdown_grace":     c.Realtime.ShutdownGrace,
		"close_grace":        c.Realtime.CloseGrace,
	} {
		if d <= 0 {
			add("realtime.%s: must be positive", name)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// validateHost accepts private IPv4 ranges and loopback 127.0.0.1.
func validateHost(host string) error {
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%q is not an IPv4 address", host)
	}
	if !ip.Is4() {
		return fmt.Errorf("%q is not an IPv4 address", host)
	}
	if ip == netip.AddrFrom4([4]byte{127, 0, 0, 1}) || ip.IsPrivate() {
		return nil
	}
	return fmt.Errorf("%s is not a private network address", host)
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// Package config loads the bridge configuration file.
package config

import (
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"midi-bridge/internal/transport"
)

// MaxPollInterval is the longest idle sleep allowed between empty reads
const MaxPollInterval = 5 * time.Millisecond

// Defaults taken from the keyboard firmware setup
var (
	DefaultTransports = []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0", "/dev/ttyUSB1"}
	DefaultSink       = "Arduino Bridge"
	DefaultTCPSink    = "Wokwi Bridge"
	DefaultPanicSink  = "Organ Mock"
)

const (
	defaultBaudRate     = 115200
	defaultPollInterval = time.Millisecond
	defaultReadTimeout  = 100 * time.Millisecond
	defaultBackoff      = time.Second
	defaultPanicWait    = time.Second
	defaultSendAttempts = 3
)

// Bridge is the configuration of a single transport to sink bridge
type Bridge struct {
	Name         string        `yaml:"name" valid:"required,matches(^[A-Za-z0-9_.-]+$)"`
	Transports   []string      `yaml:"transports"`
	BaudRate     int           `yaml:"baud_rate"`
	Sink         string        `yaml:"sink" valid:"required,stringlength(1|64)"`
	Virtual      *bool         `yaml:"virtual"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	Reconnect    bool          `yaml:"reconnect"`
	Retries      int           `yaml:"retries"`
	Backoff      time.Duration `yaml:"backoff"`
	SendAttempts int           `yaml:"send_attempts"`
}

// IsVirtual reports whether the sink should be created as a virtual port.
// Unset means virtual.
func (b Bridge) IsVirtual() bool {
	return b.Virtual == nil || *b.Virtual
}

// Panic configures the panic command
type Panic struct {
	Sink    string        `yaml:"sink" valid:"required,stringlength(1|64)"`
	Virtual *bool         `yaml:"virtual"`
	Wait    time.Duration `yaml:"wait"`
}

// IsVirtual reports whether the panic sink is a virtual port
func (p Panic) IsVirtual() bool {
	return p.Virtual == nil || *p.Virtual
}

// Config is the whole configuration file
type Config struct {
	LogLevel string   `yaml:"log_level"`
	Bridges  []Bridge `yaml:"bridges"`
	Panic    Panic    `yaml:"panic"`
}

// Default returns the configuration used when no file is given: one bridge
// probing the usual USB serial devices.
func Default() Config {
	c := Config{Bridges: []Bridge{{}}}
	c.applyDefaults()
	return c
}

// Load reads, completes and validates a YAML configuration file
func Load(fileName string) (config Config, err error) {
	data, err := ioutil.ReadFile(fileName)
	if err != nil {
		return config, errors.Wrap(err, "read config")
	}

	if err = yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrapf(err, "parse %s", fileName)
	}

	if len(config.Bridges) == 0 {
		config.Bridges = []Bridge{{}}
	}
	config.applyDefaults()

	return config, config.Validate()
}

func (c *Config) applyDefaults() {
	for i := range c.Bridges {
		b := &c.Bridges[i]
		if b.Name == "" {
			b.Name = fmt.Sprintf("bridge%d", i+1)
		}
		if len(b.Transports) == 0 {
			b.Transports = append([]string(nil), DefaultTransports...)
		}
		if b.BaudRate <= 0 {
			b.BaudRate = defaultBaudRate
		}
		if b.Sink == "" {
			b.Sink = DefaultSink
			if allSockets(b.Transports) {
				b.Sink = DefaultTCPSink
			}
		}
		if b.PollInterval == 0 {
			b.PollInterval = defaultPollInterval
		}
		if b.ReadTimeout == 0 {
			b.ReadTimeout = defaultReadTimeout
		}
		if b.Backoff == 0 {
			b.Backoff = defaultBackoff
		}
		if b.SendAttempts == 0 {
			b.SendAttempts = defaultSendAttempts
		}
	}

	if c.Panic.Sink == "" {
		c.Panic.Sink = DefaultPanicSink
	}
	if c.Panic.Wait == 0 {
		c.Panic.Wait = defaultPanicWait
	}
}

// Validate checks every bridge. Names must be unique.
func (c Config) Validate() error {
	names := map[string]bool{}
	for _, b := range c.Bridges {
		if _, err := govalidator.ValidateStruct(b); err != nil {
			return errors.Wrapf(err, "bridge %q", b.Name)
		}
		if names[b.Name] {
			return errors.Errorf("duplicate bridge name %q", b.Name)
		}
		names[b.Name] = true

		if b.PollInterval <= 0 || b.PollInterval > MaxPollInterval {
			return errors.Errorf("bridge %q: poll_interval must be in (0, %s]", b.Name, MaxPollInterval)
		}
		if b.ReadTimeout < 0 || b.Backoff < 0 || b.Retries < 0 {
			return errors.Errorf("bridge %q: negative read_timeout, backoff or retries", b.Name)
		}
		if b.SendAttempts < 1 {
			return errors.Errorf("bridge %q: send_attempts must be at least 1", b.Name)
		}
		for _, t := range b.Transports {
			if t == "" {
				return errors.Errorf("bridge %q: empty transport", b.Name)
			}
		}
	}

	if _, err := govalidator.ValidateStruct(c.Panic); err != nil {
		return errors.Wrap(err, "panic")
	}
	return nil
}

func allSockets(candidates []string) bool {
	for _, c := range candidates {
		if !transport.IsSocket(c) {
			return false
		}
	}
	return len(candidates) > 0
}

// StringList is a flag.Value that may be repeated; each value may also hold
// a comma separated list
type StringList []string

func (l *StringList) String() string {
	return strings.Join(*l, ",")
}

// Set appends the non-empty items of value
func (l *StringList) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*l = append(*l, v)
		}
	}
	return nil
}

// Overrides are the single bridge settings given on the command line
type Overrides struct {
	Transports []string
	Sink       string
	BaudRate   int
	Reconnect  bool
}

// IsSet reports whether any override was given
func (o Overrides) IsSet() bool {
	return len(o.Transports) > 0 || o.Sink != "" || o.BaudRate > 0 || o.Reconnect
}

// Resolve returns the configuration to run with. A file and overrides are
// mutually exclusive; without a file the overrides describe one bridge on top
// of the defaults.
func Resolve(fileName string, o Overrides) (Config, error) {
	if fileName != "" {
		if o.IsSet() {
			return Config{}, errors.New("bridge flags cannot be combined with a config file")
		}
		return Load(fileName)
	}

	b := Bridge{
		Transports: o.Transports,
		Sink:       o.Sink,
		BaudRate:   o.BaudRate,
		Reconnect:  o.Reconnect,
	}
	c := Config{Bridges: []Bridge{b}, Panic: Panic{Sink: o.Sink}}
	c.applyDefaults()
	return c, c.Validate()
}

package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// TCP Address optionally specifies the TCP address for the monitor to listen on,
	// in the form "host:port". If empty, and no other network protocol is used, ":5000" is used.
	TCP struct {
		Address string `json:"address" toml:"address"`
	} `json:"tcp" toml:"tcp"`

	// TLS Address optionally specifies an address for the monitor to listen on for TLS connections,
	// in the form "host:port". If empty, TLS is not used.
	TLS struct {
		Address string `json:"address" toml:"address"`
		keyPair
	} `json:"tls" toml:"tls"`

	// WS Address optionally specifies an address for the monitor to accept Websocket connections on.
	// Binary messages carry the same byte stream as TCP. If empty, Websocket is not used.
	WS struct {
		Address     string `json:"address" toml:"address"`
		Path        string `json:"path" toml:"path"`
		CheckOrigin bool   `json:"check_origin" toml:"check_origin"`
	} `json:"ws" toml:"ws"`

	// Log configures optional log output file as well as the log level setting.
	Log struct {
		File  string `json:"file" toml:"file"`
		Level string `json:"level" toml:"level"`
	} `json:"log" toml:"log"`

	// Metrics Address optionally specifies where Prometheus metrics are served over HTTP. Disabled if empty.
	Metrics struct {
		Address string `json:"address" toml:"address"`
		Path    string `json:"path" toml:"path"`
	} `json:"metrics" toml:"metrics"`

	Debug struct {
		// Address for the gops diagnostics agent. Disabled if empty.
		GopsAddress string `json:"gops_address" toml:"gops_address"`
	} `json:"debug" toml:"debug"`

	Protocol struct {
		// "little" (default, matches the ARM monitor) or "big".
		ByteOrder string `json:"byte_order" toml:"byte_order"`
		// Largest packet (header and trailing payload) a connection may buffer. Default 16 MiB.
		MaxBuffer int `json:"max_buffer" toml:"max_buffer"`
		// Send a status frame for successful write type packets as well.
		AckWrites bool `json:"ack_writes" toml:"ack_writes"`
		// Drop connections idle for this many seconds. 0 disables.
		IdleTimeout int64 `json:"idle_timeout_s" toml:"idle_timeout_s"`
		// Upper bound of number_of_points for read_buffer and read_repeat. Default 1M.
		MaxReadPoints uint32 `json:"max_read_points" toml:"max_read_points"`
	} `json:"protocol" toml:"protocol"`

	Registers struct {
		// Size of the register window in bytes. Default 4 MiB.
		Size uint32 `json:"size" toml:"size"`
		// Physical base address mapped from Device.
		Base int64 `json:"base" toml:"base"`
		// Memory device to map, e.g. "/dev/mem". Registers are simulated in memory if empty.
		Device string `json:"device" toml:"device"`
	} `json:"registers" toml:"registers"`

	Servo ServoLimits `json:"servo" toml:"servo"`

	Files struct {
		// "dir" (default) or "badger".
		Backend string `json:"backend" toml:"backend"`
		Dir     string `json:"dir" toml:"dir"`
	} `json:"files" toml:"files"`

	Shell struct {
		Shell   string `json:"shell" toml:"shell"`
		Timeout int64  `json:"timeout_s" toml:"timeout_s"`
	} `json:"shell" toml:"shell"`

	Reboot struct {
		Command string `json:"command" toml:"command"`
	} `json:"reboot" toml:"reboot"`

	Repeat struct {
		// Period between read_repeat frames in ms. Default 100.
		Interval int64 `json:"interval_ms" toml:"interval_ms"`
		// Frames buffered between the reader and the connection writer. Default 4.
		Queue int `json:"queue" toml:"queue"`
		// Refuse other packets with a busy status while a stream is running.
		Exclusive bool `json:"exclusive" toml:"exclusive"`
	} `json:"repeat" toml:"repeat"`
}

// ServoLimits bound the accepted flank servo parameters.
type ServoLimits struct {
	MaxIterations uint32 `json:"max_iterations" toml:"max_iterations"`
	MaxRamps      uint32 `json:"max_ramps" toml:"max_ramps"`
	MaxSteps      uint32 `json:"max_steps" toml:"max_steps"`
	RampMin       int16  `json:"ramp_min" toml:"ramp_min"`
	RampMax       int16  `json:"ramp_max" toml:"ramp_max"`
	ThresholdMax  int16  `json:"threshold_max" toml:"threshold_max"`
}

type keyPair struct {
	Cert string `json:"cert" toml:"cert"`
	Key  string `json:"key" toml:"key"`
}

// LoadFromFile reads a JSON config file, or TOML if the file has a .toml extension.
func (c *Config) LoadFromFile(fPath string) error {
	if strings.EqualFold(filepath.Ext(fPath), ".toml") {
		if _, err := toml.DecodeFile(fPath, c); err != nil {
			return errors.New("error reading config file: " + err.Error())
		}
		return c.Validate()
	}

	f, err := os.Open(fPath)
	if err != nil {
		return errors.New("error opening config file: " + err.Error())
	}

	defer f.Close()

	if err = json.NewDecoder(f).Decode(c); err != nil {
		return errors.New("error reading config file: " + err.Error())
	}

	return c.Validate()
}

// Validate checks the config and fills in defaults for everything not set.
func (c *Config) Validate() error {
	if c.TCP.Address == "" && c.TLS.Address == "" && c.WS.Address == "" {
		c.TCP.Address = ":5000" // default to basic TCP only server if nothing specified.
	}

	if c.TCP.Address != "" {
		if !strings.Contains(c.TCP.Address, ":") {
			c.TCP.Address += ":5000" // if just ip/host specified
		}
	}

	if c.TLS.Address != "" {
		if c.TLS.Cert == "" || c.TLS.Key == "" {
			return errors.New("invalid TLS certificate and/or private key file path setup")
		}

		if !strings.Contains(c.TLS.Address, ":") {
			c.TLS.Address += ":5001"
		}
	}

	if c.WS.Address != "" {
		if !strings.Contains(c.WS.Address, ":") {
			c.WS.Address += ":80"
		}
		if c.WS.Path == "" {
			c.WS.Path = "/monitor"
		}
	}

	if c.Metrics.Address != "" && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	switch strings.ToLower(c.Protocol.ByteOrder) {
	case "":
		c.Protocol.ByteOrder = "little"
	case "little", "big":
	default:
		return errors.New("unknown byte order: " + c.Protocol.ByteOrder)
	}
	if c.Protocol.MaxBuffer == 0 {
		c.Protocol.MaxBuffer = 16 << 20
	}
	if c.Protocol.MaxBuffer < 64 {
		return errors.New("protocol max_buffer must hold at least one packet header")
	}
	if c.Protocol.MaxReadPoints == 0 {
		c.Protocol.MaxReadPoints = 1 << 20
	}

	if c.Registers.Size == 0 {
		c.Registers.Size = 4 << 20
	}
	if c.Registers.Size%4 != 0 {
		return errors.New("register window size must be a multiple of 4")
	}

	s := &c.Servo
	if s.MaxIterations == 0 {
		s.MaxIterations = 100000
	}
	if s.MaxRamps == 0 {
		s.MaxRamps = 1000
	}
	if s.MaxSteps == 0 {
		s.MaxSteps = 16384
	}
	if s.RampMin == 0 && s.RampMax == 0 {
		s.RampMin, s.RampMax = -8192, 8191 // 14-bit DAC
	}
	if s.RampMin >= s.RampMax {
		return errors.New("servo ramp_min must be below ramp_max")
	}
	if s.ThresholdMax == 0 {
		s.ThresholdMax = 8191
	}

	switch c.Files.Backend {
	case "":
		c.Files.Backend = "dir"
	case "dir", "badger":
	default:
		return errors.New("unknown files backend: " + c.Files.Backend)
	}
	if c.Files.Dir == "" {
		c.Files.Dir = "files"
	}

	if c.Shell.Shell == "" {
		c.Shell.Shell = "/bin/sh"
	}
	if c.Shell.Timeout == 0 {
		c.Shell.Timeout = 30
	}

	if c.Reboot.Command == "" {
		c.Reboot.Command = "reboot"
	}

	if c.Repeat.Interval == 0 {
		c.Repeat.Interval = 100
	}
	if c.Repeat.Queue == 0 {
		c.Repeat.Queue = 4
	}

	return nil
}

func (c *Config) ShellTimeout() time.Duration {
	return time.Duration(c.Shell.Timeout) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Protocol.IdleTimeout) * time.Second
}

func (c *Config) RepeatInterval() time.Duration {
	return time.Duration(c.Repeat.Interval) * time.Millisecond
}

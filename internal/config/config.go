// Package config loads gamepi configuration from TOML files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/teslashibe/go-gamepi/pkg/flash"
)

// FileName is the default configuration file name.
const FileName = "gamepi.toml"

// Default configuration values.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 5000
	DefaultGamesDir       = "./games"
	DefaultThumbDir       = "./static/thumbnails"
	DefaultThumbURLPrefix = "/static/thumbnails"
	DefaultImageSuffix    = ".hex"
	DefaultStripSuffix    = ".ino.hex"
	DefaultThumbExt       = ".png"

	DefaultFlashCommand = "avrdude"
	DefaultChip         = "atmega328p"
	DefaultProgrammer   = "arduino"
	DefaultSerialPort   = "/dev/ttyACM0"
	DefaultBaud         = 115200
)

// Validation errors.
var (
	ErrInvalidPort     = errors.New("config: server port must be between 1 and 65535")
	ErrNoGamesDir      = errors.New("config: paths.games_dir is required")
	ErrNoImageSuffix   = errors.New("config: paths.image_suffix is required")
	ErrNoFlashCommand  = errors.New("config: flash.command is required")
	ErrNoFilePlacement = errors.New("config: flash arguments must contain " + flash.FilePlaceholder)
)

// Duration is a time.Duration that reads and writes as a string ("90s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full gamepi configuration.
type Config struct {
	Server     ServerConfig    `toml:"server"`
	Paths      PathsConfig     `toml:"paths"`
	Flash      FlashConfig     `toml:"flash"`
	Thumbnails ThumbnailConfig `toml:"thumbnails"`
	Discovery  DiscoveryConfig `toml:"discovery"`
	Log        LogConfig       `toml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PathsConfig describes where game images and thumbnails live.
type PathsConfig struct {
	GamesDir       string `toml:"games_dir"`
	ThumbDir       string `toml:"thumb_dir"`
	ThumbURLPrefix string `toml:"thumb_url_prefix"`
	ImageSuffix    string `toml:"image_suffix"`
	StripSuffix    string `toml:"strip_suffix"`
	ThumbExt       string `toml:"thumb_ext"`
}

// FlashConfig describes the external flashing command.
// When Args is set it is used verbatim; otherwise the argument list is
// built from the individual fields in avrdude order. In either form
// "{file}" receives the image path and "{port}" receives SerialPort, so
// verbatim Args must use "{port}" for serial port overrides to reach the
// programmer.
type FlashConfig struct {
	Command     string   `toml:"command"`
	Chip        string   `toml:"chip"`
	Programmer  string   `toml:"programmer"`
	SerialPort  string   `toml:"serial_port"`
	Baud        int      `toml:"baud"`
	Verbose     bool     `toml:"verbose"`
	NoAutoErase bool     `toml:"no_auto_erase"`
	Args        []string `toml:"args,omitempty"`
	CheckPort   bool     `toml:"check_port"`
	Timeout     Duration `toml:"timeout"`
	// LockFile is shared by every gamepi process using SerialPort; empty
	// means flash.DefaultLockPath(SerialPort).
	LockFile string `toml:"lock_file"`
}

// ThumbnailConfig controls thumbnail serving.
type ThumbnailConfig struct {
	// MaxSize bounds the longest edge in pixels; 0 serves files untouched.
	MaxSize      uint `toml:"max_size"`
	CacheEntries int  `toml:"cache_entries"`
}

// DiscoveryConfig controls the mDNS announcement of the station.
type DiscoveryConfig struct {
	Enabled bool `toml:"enabled"`
	// Instance is the advertised name; empty means "gamepi on <hostname>".
	Instance string `toml:"instance"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string `toml:"level"`
	Format   string `toml:"format"`
	Requests bool   `toml:"requests"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Paths: PathsConfig{
			GamesDir:       DefaultGamesDir,
			ThumbDir:       DefaultThumbDir,
			ThumbURLPrefix: DefaultThumbURLPrefix,
			ImageSuffix:    DefaultImageSuffix,
			StripSuffix:    DefaultStripSuffix,
			ThumbExt:       DefaultThumbExt,
		},
		Flash: FlashConfig{
			Command:     DefaultFlashCommand,
			Chip:        DefaultChip,
			Programmer:  DefaultProgrammer,
			SerialPort:  DefaultSerialPort,
			Baud:        DefaultBaud,
			Verbose:     true,
			NoAutoErase: true,
			CheckPort:   true,
		},
		Thumbnails: ThumbnailConfig{
			CacheEntries: 128,
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// FlashArgs returns the ordered argument template for the flash command.
// The template still contains flash.FilePlaceholder.
func (c *Config) FlashArgs() []string {
	if len(c.Flash.Args) > 0 {
		out := make([]string, len(c.Flash.Args))
		copy(out, c.Flash.Args)
		return out
	}

	var args []string
	if c.Flash.Verbose {
		args = append(args, "-v")
	}
	args = append(args,
		"-p"+c.Flash.Chip,
		"-c"+c.Flash.Programmer,
		"-P"+flash.PortPlaceholder,
		"-b"+strconv.Itoa(c.Flash.Baud),
	)
	if c.Flash.NoAutoErase {
		args = append(args, "-D")
	}
	args = append(args, "-Uflash:w:"+flash.FilePlaceholder+":i")
	return args
}

// DeviceLockPath returns the cross-process lock file for the serial port.
func (c *Config) DeviceLockPath() string {
	if c.Flash.LockFile != "" {
		return c.Flash.LockFile
	}
	return flash.DefaultLockPath(c.Flash.SerialPort)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Paths.GamesDir == "" {
		return ErrNoGamesDir
	}
	if c.Paths.ImageSuffix == "" {
		return ErrNoImageSuffix
	}
	if c.Flash.Command == "" {
		return ErrNoFlashCommand
	}
	for _, a := range c.FlashArgs() {
		if strings.Contains(a, flash.FilePlaceholder) {
			return nil
		}
	}
	return ErrNoFilePlacement
}

// ApplyEnvOverrides applies GAMEPI_* and LOG_LEVEL environment variables.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("GAMEPI_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("GAMEPI_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid GAMEPI_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("GAMEPI_GAMES_DIR"); v != "" {
		c.Paths.GamesDir = v
	}
	if v := os.Getenv("GAMEPI_THUMB_DIR"); v != "" {
		c.Paths.ThumbDir = v
	}
	if v := os.Getenv("GAMEPI_SERIAL_PORT"); v != "" {
		c.Flash.SerialPort = v
	}
	if v := os.Getenv("GAMEPI_FLASH_COMMAND"); v != "" {
		c.Flash.Command = v
	}
	if v := os.Getenv("GAMEPI_DISCOVERY"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GAMEPI_DISCOVERY %q: %w", v, err)
		}
		c.Discovery.Enabled = enabled
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Resolve loads configuration from path, or from the first file found in the
// search paths when path is empty, then applies environment overrides.
// A missing file is not an error when path is empty.
func Resolve(path string) (*Config, string, error) {
	cfg := Default()
	source := ""

	if path == "" {
		if found, ok := FindConfigFile(FileName); ok {
			path = found
		}
	}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
		source = path
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, "", err
	}
	return cfg, source, nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	return Write(path, Default())
}

// Write encodes cfg as TOML to path, creating parent directories.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindConfigFile returns the first existing file among the search paths.
func FindConfigFile(filename string) (string, bool) {
	for _, p := range SearchPaths(filename) {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// SearchPaths returns the ordered list of locations checked for filename:
// system directory, user config directory, executable directory, cwd.
func SearchPaths(filename string) []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, filepath.Join("/etc/gamepi", filename))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "gamepi", filename))
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), filename))
	}
	paths = append(paths, filepath.Join(".", filename))

	return paths
}

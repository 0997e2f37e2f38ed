package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

const (
	configDir  string = "a2lobf"
	configFile string = "config.yml"
)

// Policies for attributes whose form can not be rebuilt.
const (
	UnimplementedDrop = "drop"
	UnimplementedFail = "fail"
)

// Flag names registered by AddFlags.
const (
	flagUnimplementedForms  = "unimplemented-forms"
	flagScrubPlainStrings   = "scrub-plain-strings"
	flagPreserveAddressBits = "preserve-address-bits"
	flagMaskCodeAddresses   = "mask-code-addresses"
	flagSeed                = "seed"
	flagSymbolCacheSize     = "symbol-cache-size"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// UnimplementedForms is the policy for attributes using forms that
	// reference sections which are not rebuilt: "drop" or "fail".
	UnimplementedForms string `yaml:"unimplemented-forms"`
	// ScrubPlainStrings obfuscates every string attribute, not only names.
	ScrubPlainStrings bool `yaml:"scrub-plain-strings"`
	// PreserveAddressBits is the number of low address bits kept by
	// address masking.
	PreserveAddressBits int `yaml:"preserve-address-bits"`
	// MaskCodeAddresses also masks the code addresses of the debug info.
	MaskCodeAddresses bool `yaml:"mask-code-addresses"`
	// Seed of the random source, 0 picks a random seed.
	Seed int64 `yaml:"seed"`
	// SymbolCacheSize is the number of symbol names remembered while
	// correlating the A2L file with the debug info.
	SymbolCacheSize int `yaml:"symbol-cache-size"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		UnimplementedForms:  UnimplementedDrop,
		PreserveAddressBits: 8,
		SymbolCacheSize:     1024,
	}
}

// Validate checks the values of c.
func (c *Config) Validate() error {
	switch c.UnimplementedForms {
	case UnimplementedDrop, UnimplementedFail:
	default:
		return fmt.Errorf("%s: must be %q or %q, not %q", flagUnimplementedForms, UnimplementedDrop, UnimplementedFail, c.UnimplementedForms)
	}
	if c.PreserveAddressBits < 0 || c.PreserveAddressBits > 64 {
		return fmt.Errorf("%s: must be between 0 and 64, not %d", flagPreserveAddressBits, c.PreserveAddressBits)
	}
	if c.SymbolCacheSize <= 0 {
		return fmt.Errorf("%s: must be positive, not %d", flagSymbolCacheSize, c.SymbolCacheSize)
	}
	return nil
}

// LoadConfig attempts to populate a Config object from the config.yml
// file at path. An empty path selects the default location. A missing
// file yields the default configuration, keys missing from the file keep
// their default value.
func LoadConfig(path string) (*Config, error) {
	c := Default()
	if path == "" {
		var err error
		path, err = GetConfigFilePath(configFile)
		if err != nil {
			return c, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unable to decode config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// SaveConfig writes conf to path, or to the default location when path
// is empty, creating the directory if needed.
func SaveConfig(conf *Config, path string) error {
	if path == "" {
		var err error
		path, err = GetConfigFilePath(configFile)
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, conf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write writes conf to w in the format read by LoadConfig.
func Write(w io.Writer, conf *Config) error {
	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

const header = `# Configuration file for a2lobf.
#
# unimplemented-forms: drop or fail on attributes that reference
# sections which are not rebuilt (.debug_addr, .debug_str_offsets,
# supplementary files, type units).
# scrub-plain-strings: also obfuscate string attributes that are not names.
# preserve-address-bits: low address bits kept when masking addresses.
# mask-code-addresses: also mask code addresses such as subprogram bounds.
# seed: seed of the random source, 0 picks a random one.
# symbol-cache-size: symbol names remembered while correlating the A2L file.
`

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configDir, file), nil
}

// AddFlags registers the command line flags overriding the configuration
// file on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(flagUnimplementedForms, d.UnimplementedForms, `Policy for attributes that can not be rebuilt, "drop" or "fail".`)
	fs.Bool(flagScrubPlainStrings, d.ScrubPlainStrings, "Obfuscate every string attribute of the debug info, not only names.")
	fs.Int(flagPreserveAddressBits, d.PreserveAddressBits, "Number of low address bits kept by address masking.")
	fs.Bool(flagMaskCodeAddresses, d.MaskCodeAddresses, "Also mask the code addresses of the debug info, keeping the length of ranges.")
	fs.Int64(flagSeed, d.Seed, "Seed of the random source, 0 picks a random seed.")
	fs.Int(flagSymbolCacheSize, d.SymbolCacheSize, "Number of symbol names remembered while correlating the A2L file.")
}

// ApplyFlags copies the flags registered by AddFlags that were set on the
// command line into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	set := func(name string, fn func() error) {
		if err == nil && fs.Changed(name) {
			err = fn()
		}
	}
	set(flagUnimplementedForms, func() (e error) {
		c.UnimplementedForms, e = fs.GetString(flagUnimplementedForms)
		return e
	})
	set(flagScrubPlainStrings, func() (e error) {
		c.ScrubPlainStrings, e = fs.GetBool(flagScrubPlainStrings)
		return e
	})
	set(flagPreserveAddressBits, func() (e error) {
		c.PreserveAddressBits, e = fs.GetInt(flagPreserveAddressBits)
		return e
	})
	set(flagMaskCodeAddresses, func() (e error) {
		c.MaskCodeAddresses, e = fs.GetBool(flagMaskCodeAddresses)
		return e
	})
	set(flagSeed, func() (e error) {
		c.Seed, e = fs.GetInt64(flagSeed)
		return e
	})
	set(flagSymbolCacheSize, func() (e error) {
		c.SymbolCacheSize, e = fs.GetInt(flagSymbolCacheSize)
		return e
	})
	if err != nil {
		return err
	}
	return c.Validate()
}

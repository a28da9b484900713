package litetouch

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Device types understood by the bridge.
const (
	// DeviceTypeLoad is a dimmable or switched panel load.
	DeviceTypeLoad = "load"

	// DeviceTypeButton is a keypad button with an LED.
	DeviceTypeButton = "button"
)

// Config is the bridge device map, loaded from its own YAML file.
type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig maps a Gray Logic device onto a panel load or keypad button.
type DeviceConfig struct {
	// DeviceID is the Gray Logic device identifier.
	DeviceID string `yaml:"device_id"`

	// Name is a display name (optional).
	Name string `yaml:"name"`

	// Type is "load" or "button".
	Type string `yaml:"type"`

	// Load is the one-based panel load id (loads only).
	Load int `yaml:"load"`

	// Keypad and Button locate a keypad button (buttons only).
	// Keypad is 0-999, Button is one-based 1-9.
	Keypad int `yaml:"keypad"`
	Button int `yaml:"button"`
}

// Address returns the device's panel address as used in MQTT topics.
// Examples: load 12 → "load_12"; keypad 14 button 3 → "014_3"
func (d DeviceConfig) Address() string {
	if d.Type == DeviceTypeLoad {
		return "load_" + strconv.Itoa(d.Load)
	}
	return FormatKeypad(d.Keypad) + "_" + strconv.Itoa(d.Button)
}

// LoadConfig reads the device map from a YAML file.
//
// Parameters:
//   - path: Path to the YAML device map
//
// Returns:
//   - *Config: Loaded and validated device map
//   - error: If the file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device map: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates a YAML device map.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{Devices: []DeviceConfig{}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing device map: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating device map: %w", err)
	}
	return cfg, nil
}

// Validate checks the device map for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []string
	ids := make(map[string]bool)
	addresses := make(map[string]string)

	for i, dev := range c.Devices {
		if dev.DeviceID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].device_id is required", i))
			continue
		}
		if ids[dev.DeviceID] {
			errs = append(errs, fmt.Sprintf("devices[%d].device_id %q is duplicate", i, dev.DeviceID))
		}
		ids[dev.DeviceID] = true

		switch dev.Type {
		case DeviceTypeLoad:
			if err := validateLoad(dev.Load); err != nil {
				errs = append(errs, fmt.Sprintf("devices[%d].load: %v", i, err))
				continue
			}
		case DeviceTypeButton:
			if err := validateButton(dev.Keypad, dev.Button); err != nil {
				errs = append(errs, fmt.Sprintf("devices[%d]: %v", i, err))
				continue
			}
		default:
			errs = append(errs, fmt.Sprintf("devices[%d].type %q is invalid (use load or button)", i, dev.Type))
			continue
		}

		addr := dev.Address()
		if other, dup := addresses[addr]; dup {
			errs = append(errs, fmt.Sprintf("devices[%d] address %s already used by %q", i, addr, other))
		}
		addresses[addr] = dev.DeviceID
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// BuildDeviceIndex creates lookup maps for command and event routing.
//
// Returns:
//   - byID: device_id → device
//   - byAddress: panel address → device (buttons are keyed by Event.ID())
func (c *Config) BuildDeviceIndex() (byID, byAddress map[string]DeviceConfig) {
	byID = make(map[string]DeviceConfig, len(c.Devices))
	byAddress = make(map[string]DeviceConfig, len(c.Devices))
	for _, dev := range c.Devices {
		byID[dev.DeviceID] = dev
		byAddress[dev.Address()] = dev
	}
	return byID, byAddress
}

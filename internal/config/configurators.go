package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cshum/megacmd/megaapi"
)

// Configurator is a megacmd.cfg key that can be changed with "configure".
// Apply pushes an accepted value into the API.
type Configurator struct {
	Key         string
	Description string
	Validate    func(value string) error
	Apply       func(api megaapi.API, value string) error
}

func unsignedValidator(min, max uint64, bounded bool) func(string) error {
	return func(value string) error {
		if strings.HasPrefix(value, "-") {
			return fmt.Errorf("negative values are not allowed")
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%q is not an unsigned integer", value)
		}
		if bounded && (n < min || n > max) {
			return fmt.Errorf("value out of range [%d, %d]", min, max)
		}
		return nil
	}
}

var configurators = map[string]*Configurator{
	"max_nodes_in_cache": {
		Key:         "max_nodes_in_cache",
		Description: "Max nodes loaded in memory",
		Validate:    unsignedValidator(0, 0, false),
		Apply: func(api megaapi.API, value string) error {
			n, _ := strconv.ParseUint(value, 10, 64)
			api.SetLRUCacheSize(n)
			return nil
		},
	},
	"exported_folders_sdks": {
		Key:         "exported_folders_sdks",
		Description: "Number of additional SDK instances loaded at startup",
		Validate:    unsignedValidator(0, 20, true),
		Apply: func(api megaapi.API, value string) error {
			n, _ := strconv.ParseUint(value, 10, 64)
			api.SetExportedFoldersSDKs(n)
			return nil
		},
	},
}

func GetConfigurator(key string) (*Configurator, bool) {
	c, ok := configurators[key]
	return c, ok
}

// Configurators returns every configurator sorted by key.
func Configurators() []*Configurator {
	out := make([]*Configurator, 0, len(configurators))
	for _, c := range configurators {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Configure validates value, saves it and applies it to api.
func (m *Manager) Configure(api megaapi.API, key, value string) error {
	c, ok := GetConfigurator(key)
	if !ok {
		return fmt.Errorf("invalid key: %s", key)
	}
	if err := c.Validate(value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if _, err := m.SaveProperty(key, value); err != nil {
		return err
	}
	if api == nil {
		return nil
	}
	return c.Apply(api, value)
}

// ApplyConfigurators pushes every saved configurator value to api, as done
// after login.
func (m *Manager) ApplyConfigurators(api megaapi.API) {
	for _, c := range Configurators() {
		value := m.GetConfigurationValue(c.Key, "")
		if value == "" || c.Validate(value) != nil {
			continue
		}
		if err := c.Apply(api, value); err != nil {
			m.logger.Errorf("Could not apply %s: %v", c.Key, err)
		}
	}
}

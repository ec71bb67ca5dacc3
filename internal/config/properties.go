package config

import (
	"strconv"
	"strings"
)

func (m *Manager) GetBool(key string, def bool) bool {
	v := m.GetConfigurationValue(key, "")
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func (m *Manager) GetInt64(key string, def int64) int64 {
	v, err := strconv.ParseInt(m.GetConfigurationValue(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func (m *Manager) GetUint(key string, def uint64) uint64 {
	v, err := strconv.ParseUint(m.GetConfigurationValue(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func (m *Manager) SaveBool(key string, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	_, err := m.SaveProperty(key, v)
	return err
}

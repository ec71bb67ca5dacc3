package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/urfave/cli/v2"
)

const (
	clientConfigFile = "client.json"
	localConfigDir   = ".megacmd"
	localConfigFile  = "client.local.json"
)

// setting is a key understood by the megacmd binary itself.
type setting struct {
	def  string
	help string
}

var settings = map[string]setting{
	"provider":    {"local", "backend the server drives"},
	"drive_root":  {"", "folder holding the local drive, defaults to <config dir>/drive"},
	"port":        {"", "websocket address the server also listens on"},
	"events_addr": {"", "address the server mirrors state messages to as SSE"},
	"server_url":  {"", "websocket URL clients use instead of the unix socket"},
	"update_url":  {"", "release manifest checked by \"update\""},
}

// Config holds the settings of the megacmd binary: which provider the
// server builds, where the drive lives and which addresses to serve. A
// .megacmd/client.local.json found walking up from the working directory
// overrides the global file.
type Config struct {
	configDir string
	global    map[string]string
	local     map[string]string
	localPath string
}

var (
	instance *Config
	once     sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		instance = Load(PlatformDirs().ConfigDir)
	})
	return instance
}

// Load reads the global settings in configDir and the closest local ones.
func Load(configDir string) *Config {
	c := &Config{
		configDir: configDir,
		global:    readSettings(filepath.Join(configDir, clientConfigFile)),
		local:     map[string]string{},
	}
	if p := findLocalConfig(); p != "" {
		c.localPath = p
		c.local = readSettings(p)
	}
	return c
}

func (c *Config) ConfigDir() string {
	return c.configDir
}

func findLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(dir, localConfigDir, localConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func readSettings(path string) map[string]string {
	values := map[string]string{}
	data, err := os.ReadFile(path)
	if err != nil {
		return values
	}
	var raw map[string]interface{}
	if json.Unmarshal(data, &raw) != nil {
		return values
	}
	for k, v := range raw {
		if v != nil {
			values[k] = fmt.Sprint(v)
		}
	}
	return values
}

func writeSettings(path string, values map[string]string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

// lookup returns the value of key and where it came from.
func (c *Config) lookup(key string) (string, string) {
	if v, ok := c.local[key]; ok && v != "" {
		return v, "local"
	}
	if v, ok := c.global[key]; ok && v != "" {
		return v, "global"
	}
	if s, ok := settings[key]; ok && s.def != "" {
		return s.def, "default"
	}
	return "", ""
}

// GetString returns key, falling back to def and then to the built-in
// default.
func (c *Config) GetString(key, def string) string {
	v, from := c.lookup(key)
	if from == "" || from == "default" && def != "" {
		return def
	}
	return v
}

// Set stores key globally, or in the local file of the working directory.
func (c *Config) Set(key, value string, local bool) error {
	if !local {
		c.global[key] = value
		return writeSettings(filepath.Join(c.configDir, clientConfigFile), c.global, 0600)
	}
	if c.localPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		c.localPath = filepath.Join(cwd, localConfigDir, localConfigFile)
	}
	c.local[key] = value
	return writeSettings(c.localPath, c.local, 0644)
}

func (c *Config) Unset(key string, local bool) error {
	if local {
		if c.localPath == "" {
			return nil
		}
		delete(c.local, key)
		return writeSettings(c.localPath, c.local, 0644)
	}
	delete(c.global, key)
	return writeSettings(filepath.Join(c.configDir, clientConfigFile), c.global, 0600)
}

func Command() *cli.Command {
	localFlag := &cli.BoolFlag{
		Name:  "local",
		Usage: "Use the .megacmd folder of the working directory",
	}
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the settings of the megacmd binary",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Set a setting",
				ArgsUsage: "<key> <value>",
				Flags:     []cli.Flag{localFlag},
				Action:    setConfig,
			},
			{
				Name:      "unset",
				Usage:     "Remove a setting",
				ArgsUsage: "<key>",
				Flags:     []cli.Flag{localFlag},
				Action:    unsetConfig,
			},
			{
				Name:      "get",
				Usage:     "Show a setting",
				ArgsUsage: "<key>",
				Action:    getConfig,
			},
			{
				Name:   "ls",
				Usage:  "List every known setting",
				Action: listConfig,
			},
			{
				Name:   "paths",
				Usage:  "Show the directories and socket used by the server",
				Action: showPaths,
			},
		},
	}
}

func checkKey(key string) error {
	if _, ok := settings[key]; !ok {
		return fmt.Errorf("unknown setting %q, see \"config ls\"", key)
	}
	return nil
}

func setConfig(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("please provide both key and value")
	}
	key := c.Args().Get(0)
	if err := checkKey(key); err != nil {
		return err
	}
	return GetConfig().Set(key, c.Args().Get(1), c.Bool("local"))
}

func unsetConfig(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("please provide a key")
	}
	return GetConfig().Unset(c.Args().First(), c.Bool("local"))
}

func getConfig(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("please provide a key")
	}
	key := c.Args().First()
	v, from := GetConfig().lookup(key)
	switch from {
	case "":
		fmt.Printf("%s is not set\n", key)
	case "default":
		fmt.Printf("%s: %s (default)\n", key, v)
	default:
		fmt.Printf("%s: %s\n", key, v)
	}
	return nil
}

func listConfig(c *cli.Context) error {
	cfg := GetConfig()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, from := cfg.lookup(k)
		if from == "" {
			v, from = "-", "unset"
		}
		fmt.Printf("%-12s %-24s %-8s # %s\n", k, v, from, settings[k].help)
	}
	return nil
}

func showPaths(c *cli.Context) error {
	d := PlatformDirs()
	fmt.Printf("config:  %s\n", d.ConfigDir)
	fmt.Printf("runtime: %s\n", d.RuntimeDir)
	fmt.Printf("cache:   %s\n", d.CacheDir)
	fmt.Printf("socket:  %s\n", d.SocketPath())
	return nil
}

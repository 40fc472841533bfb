package main

import (
	"flag"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is everything the server needs to start. Values come from built-in
// defaults, then an optional TOML file, then flags; an explicit flag always
// wins over the file.
type Config struct {
	General string `toml:"general"`
	Chats   string `toml:"chats"`
	Files   string `toml:"files"`
	HTTP    string `toml:"http"`
	DB      string `toml:"db"`
	DataDir string `toml:"data_dir"`
	Name    string `toml:"name"`
	Debug   bool   `toml:"debug"`
}

func defaultConfig() Config {
	return Config{
		General: ":3108",
		Chats:   ":2907",
		Files:   ":3103",
		HTTP:    ":8311",
		DB:      "strife.db",
		Name:    "strife server",
	}
}

// loadConfig parses args into a Config and returns the remaining non-flag
// arguments, which may name a subcommand. args excludes the program name.
func loadConfig(args []string) (Config, []string, error) {
	cfg := defaultConfig()

	fs := flag.NewFlagSet("strife-server", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	general := fs.String("general", cfg.General, "general channel listen address")
	chats := fs.String("chats", cfg.Chats, "chats channel listen address")
	files := fs.String("files", cfg.Files, "files channel listen address")
	httpAddr := fs.String("http", cfg.HTTP, "admin HTTP listen address")
	db := fs.String("db", cfg.DB, "SQLite database path")
	dataDir := fs.String("data-dir", cfg.DataDir, "blob directory path (defaults to <db-dir>/data)")
	name := fs.String("name", cfg.Name, "server display name")
	debug := fs.Bool("debug", cfg.Debug, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			err = fmt.Errorf("read config %s: %w", *configPath, err)
			fmt.Fprintln(fs.Output(), err)
			return Config{}, nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "general":
			cfg.General = *general
		case "chats":
			cfg.Chats = *chats
		case "files":
			cfg.Files = *files
		case "http":
			cfg.HTTP = *httpAddr
		case "db":
			cfg.DB = *db
		case "data-dir":
			cfg.DataDir = *dataDir
		case "name":
			cfg.Name = *name
		case "debug":
			cfg.Debug = *debug
		}
	})
	return cfg, fs.Args(), nil
}

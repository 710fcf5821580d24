// Command eruler is a thin CLI over package ruler: it loads a directory
// of named JSON rule files and reports which ones match a JSON event read
// from stdin or a file.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/eventruler/eventruler/ruler"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("eruler failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	runID := uuid.New().String()
	log := slog.Default().With("run_id", runID)

	fs := flag.NewFlagSet("eruler", flag.ContinueOnError)
	rulesDir := fs.String("rules", "", "directory of *.json rule files, one rule per file")
	eventFile := fs.String("event", "", "JSON event file; reads stdin if unset")
	configFile := fs.String("config", "", "optional config file (yaml/json/toml) overriding defaults")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rulesDir == "" {
		return fmt.Errorf("eruler: -rules is required")
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	m, err := ruler.NewMachineWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("eruler: building machine: %w", err)
	}

	if err := loadRules(m, *rulesDir, log); err != nil {
		return err
	}

	raw, err := readEvent(*eventFile)
	if err != nil {
		return err
	}

	names, err := m.RulesForJSONEvent(raw)
	if err != nil {
		return fmt.Errorf("eruler: matching event: %w", err)
	}

	for _, n := range names {
		fmt.Println(n)
	}
	log.Info("matched event", "rules", len(names))
	return nil
}

// loadConfig reads ruler.Config overrides via viper, falling back to
// ruler.DefaultConfig() for anything unset.
func loadConfig(path string) (ruler.Config, error) {
	cfg := ruler.DefaultConfig()

	v := viper.New()
	v.SetDefault("max_complexity", cfg.MaxComplexity)
	v.SetDefault("max_name_states", cfg.MaxNameStates)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("eruler: reading config %s: %w", path, err)
		}
	}

	cfg.MaxComplexity = v.GetInt("max_complexity")
	cfg.MaxNameStates = v.GetInt("max_name_states")
	return cfg, nil
}

func loadRules(m *ruler.Machine, dir string, log *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("eruler: reading rules directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("eruler: reading rule %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if err := m.AddRule(name, raw); err != nil {
			return fmt.Errorf("eruler: adding rule %s: %w", name, err)
		}
		log.Debug("loaded rule", "name", name)
	}
	return nil
}

func readEvent(path string) ([]byte, error) {
	if path == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("eruler: reading stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eruler: reading event file %s: %w", path, err)
	}
	return raw, nil
}

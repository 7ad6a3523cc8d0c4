package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flowd-dev/flowd/config"
)

// cmdConfig reads and writes the configuration document. The document is
// edited as a raw JSON object so unknown fields survive round trips.
func cmdConfig(args []string) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	set := fs.String("set", "", "set a top-level key, as key=value")
	get := fs.String("get", "", "print the value of a top-level key")
	apiKey := fs.String("api-key", "", "set a provider credential, as provider=key")
	show := fs.Bool("show", false, "print the configuration with credentials masked")
	if err := fs.Parse(args); err != nil {
		return exitUserError
	}

	path := configPath()
	switch {
	case *set != "":
		key, value, ok := strings.Cut(*set, "=")
		if !ok {
			return fail(exitUserError, "config: --set requires key=value")
		}
		if err := editConfig(path, func(doc map[string]any) {
			doc[key] = coerceValue(value)
		}); err != nil {
			return fail(exitUserError, "config: %s", err)
		}
		return exitOK

	case *get != "":
		doc, err := readConfigDoc(path)
		if err != nil {
			return fail(exitUserError, "config: %s", err)
		}
		v, ok := doc[*get]
		if !ok {
			return fail(exitUserError, "config: key %q is not set", *get)
		}
		encoded, _ := json.Marshal(v)
		fmt.Println(string(encoded))
		return exitOK

	case *apiKey != "":
		provider, key, ok := strings.Cut(*apiKey, "=")
		if !ok {
			return fail(exitUserError, "config: --api-key requires provider=key")
		}
		if !knownProvider(provider) {
			return fail(exitUserError, "config: unknown provider %q", provider)
		}
		if err := editConfig(path, func(doc map[string]any) {
			providers, _ := doc["providers"].(map[string]any)
			if providers == nil {
				providers = map[string]any{}
			}
			providers[provider] = map[string]any{"apiKey": key}
			doc["providers"] = providers
		}); err != nil {
			return fail(exitUserError, "config: %s", err)
		}
		return exitOK

	case *show:
		cfg, err := config.Load(path)
		if err != nil {
			return fail(exitUserError, "config: %s", err)
		}
		masked := *cfg
		masked.Providers = make(map[string]config.Provider, len(cfg.Providers))
		for name, p := range cfg.Providers {
			masked.Providers[name] = config.Provider{APIKey: maskKey(p.APIKey)}
		}
		encoded, err := marshalIndent(masked)
		if err != nil {
			return fail(exitExecFailure, "config: %s", err)
		}
		fmt.Println(string(encoded))
		return exitOK

	default:
		return fail(exitUserError, "config: one of --set, --get, --api-key, --show is required")
	}
}

// cmdInit creates the default configuration file.
func cmdInit(args []string) int {
	if len(args) != 0 {
		return fail(exitUserError, "init: no arguments expected")
	}
	path := configPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("configuration already exists at %s\n", path)
		return exitOK
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fail(exitUserError, "init: %s", err)
	}
	encoded, err := marshalIndent(config.Default())
	if err != nil {
		return fail(exitExecFailure, "init: %s", err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o600); err != nil {
		return fail(exitUserError, "init: %s", err)
	}
	fmt.Printf("wrote %s\n", path)
	return exitOK
}

func readConfigDoc(path string) (map[string]any, error) {
	doc := map[string]any{}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func editConfig(path string, edit func(map[string]any)) error {
	doc, err := readConfigDoc(path)
	if err != nil {
		return err
	}
	edit(doc)
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o600)
}

// coerceValue turns CLI strings into JSON scalars where they parse as such.
func coerceValue(value string) any {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

func knownProvider(name string) bool {
	for _, p := range config.KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

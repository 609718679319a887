// Package config decodes and validates the daemon's configuration keys
// (spec §6), the way the teacher's pkg/schema validates config documents
// against an embedded JSON Schema before decoding into a Go struct.
// Reading the file and parsing a config-path flag are left to
// cmd/stsdbd/main.go, per spec's explicit exclusion of CLI/INI concerns
// from the core.
package config

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

// url.Parse lowercases the scheme, so the loader is registered under
// "embedfs"; "embedFS://schemas/x.json" parses to host "schemas" and path
// "/x.json", which together name the embedded file.
func init() {
	jsonschema.Loaders["embedfs"] = func(s string) (readCloser, error) {
		u, err := url.Parse(s)
		if err != nil {
			return nil, err
		}
		return schemaFiles.Open(u.Host + u.Path)
	}
}

type readCloser = io.ReadCloser

// Config holds every key recognized in spec §6, with the defaults a
// fresh install should run with.
type Config struct {
	LogPath     string `json:"logpath"`
	DataPath    string `json:"datapath"`
	LogLevel    string `json:"loglevel"`
	DBExt       string `json:"dbext"`
	Hostname    string `json:"hostname"`
	BindAddress string `json:"bind_address"`
	TelnetPort  string `json:"telnet_port"`
	HTTPPort    string `json:"http_port"`
	GopsPort    string `json:"gops_port"`
}

// Default returns a Config with the same defaults the original process
// falls back to when a key is omitted.
func Default() Config {
	return Config{
		LogPath:     ".",
		DataPath:    "./data",
		LogLevel:    "info",
		DBExt:       "tsdb",
		Hostname:    "localhost",
		BindAddress: "0.0.0.0",
		TelnetPort:  "4242",
		HTTPPort:    "4243",
		GopsPort:    "",
	}
}

// Parse validates raw against the embedded JSON Schema, then decodes it
// over a copy of Default() so omitted keys keep their default values.
func Parse(raw json.RawMessage) (Config, error) {
	schema, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}

	var doc interface{}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

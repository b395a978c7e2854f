// Package config loads settings for the unitypkg command and importer.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds importer and command settings.
type Config struct {
	// TextureExtensions lists pathname extensions imported as textures.
	TextureExtensions []string `yaml:"textureExtensions"`

	// ModelExtensions lists pathname extensions imported as models.
	ModelExtensions []string `yaml:"modelExtensions"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	// Workers bounds parallel import handlers. Zero means one per CPU.
	Workers int `yaml:"workers"`

	// TempDir holds temporary files handed to importers. Empty means os.TempDir.
	TempDir string `yaml:"tempDir"`

	// SpoolDir holds decompressed package spools. Empty means os.TempDir.
	SpoolDir string `yaml:"spoolDir"`

	// MaxMemberSize limits a single field read, in bytes. Zero disables it.
	MaxMemberSize int64 `yaml:"maxMemberSize"`

	// MaxSpoolSize limits the decompressed package size, in bytes. Zero disables it.
	MaxSpoolSize uint64 `yaml:"maxSpoolSize"`

	// MaxAnomalies bounds unrecognized members before a package is rejected.
	// Zero logs and continues.
	MaxAnomalies int `yaml:"maxAnomalies"`
}

// Default returns the built-in configuration.
//
// Texture extensions are the image formats Blender can load; model
// extensions are the mesh formats it imports.
func Default() Config {
	return Config{
		TextureExtensions: []string{
			".bmp",
			".sgi", ".rgb", ".bw",
			".png",
			".jpg", ".jpeg",
			".jp2", ".j2c",
			".tga",
			".cin", ".dpx",
			".exr",
			".hdr",
			".tif", ".tiff",
			".webp",
		},
		ModelExtensions: []string{".fbx", ".glb", ".gltf"},
		LogLevel:        "info",
		MaxMemberSize:   1 << 30,
	}
}

// Load reads a YAML file at path on top of Default.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path) //nolint:gosec // caller chooses the config file
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r on top of Default and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	for _, list := range [][]string{c.TextureExtensions, c.ModelExtensions} {
		for _, ext := range list {
			if len(ext) < 2 || !strings.HasPrefix(ext, ".") || strings.Contains(ext, "/") {
				return fmt.Errorf("invalid extension %q: must look like \".png\"", ext)
			}
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch {
	case c.Workers < 0:
		return errors.New("workers must be >= 0")
	case c.MaxMemberSize < 0:
		return errors.New("maxMemberSize must be >= 0")
	case c.MaxAnomalies < 0:
		return errors.New("maxAnomalies must be >= 0")
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}

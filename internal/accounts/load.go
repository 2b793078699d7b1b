package accounts

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v3"

	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
)

// Options controls how accounts are loaded and validated.
type Options struct {
	// LegacyCredentialsFile is the YouTube credentials file of the implicit account.
	LegacyCredentialsFile string
	// Getenv resolves token variables; defaults to [os.Getenv].
	Getenv func(string) string
}

func (o Options) getenv(key string) string {
	if o.Getenv == nil {
		return os.Getenv(key)
	}
	return o.Getenv(key)
}

// file mirrors the accounts file layout: platform -> account ID -> config.
type file struct {
	YouTube   map[string]YouTubeConfig   `toml:"youtube" yaml:"youtube"`
	Facebook  map[string]FacebookConfig  `toml:"facebook" yaml:"facebook"`
	Instagram map[string]InstagramConfig `toml:"instagram" yaml:"instagram"`
	TikTok    map[string]TikTokConfig    `toml:"tiktok" yaml:"tiktok"`
}

// Load reads and validates the accounts file at path. The format follows the extension:
// .toml, or .yaml/.yml. A missing file yields a legacy registry.
func Load(path string, opts Options) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return legacyRegistry(path, opts), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	f, order, err := decode(path, data)
	if err != nil {
		return nil, err
	}

	r := &Registry{path: path, specs: make(map[models.Platform][]*Spec)}
	for _, p := range models.Platforms() {
		for _, id := range order[p] {
			spec := newSpec(p, id, f)
			validate(spec, opts)
			r.specs[p] = append(r.specs[p], spec)
		}
	}
	return r, nil
}

func legacyRegistry(path string, opts Options) *Registry {
	cfg := YouTubeConfig{CredentialsFile: opts.LegacyCredentialsFile}
	cfg.Default = true

	spec := &Spec{Platform: models.YouTube, ID: LegacyAccountID, Config: cfg, Selection: cfg.Selection}
	validate(spec, opts)

	return &Registry{
		path:   path,
		legacy: true,
		specs:  map[models.Platform][]*Spec{models.YouTube: {spec}},
	}
}

func newSpec(p models.Platform, id string, f *file) *Spec {
	spec := &Spec{Platform: p, ID: id}
	switch p {
	case models.YouTube:
		cfg := f.YouTube[id]
		spec.Config, spec.Selection = cfg, cfg.Selection
	case models.Facebook:
		cfg := f.Facebook[id]
		spec.Config, spec.Selection = cfg, cfg.Selection
	case models.Instagram:
		cfg := f.Instagram[id]
		spec.Config, spec.Selection = cfg, cfg.Selection
	case models.TikTok:
		cfg := f.TikTok[id]
		spec.Config, spec.Selection = cfg, cfg.Selection
	}
	return spec
}

// decode parses data and returns the account IDs of each platform in document order.
func decode(path string, data []byte) (*file, map[models.Platform][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML(data)
	case ".yaml", ".yml":
		return decodeYAML(data)
	}
	return nil, nil, fmt.Errorf("%w: unsupported accounts file extension %q", shared.ErrInvalidConfig, filepath.Ext(path))
}

func decodeTOML(data []byte) (*file, map[models.Platform][]string, error) {
	var f file
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse accounts file: %v", shared.ErrInvalidConfig, err)
	}

	order := make(map[models.Platform][]string)
	for _, key := range md.Keys() {
		p, err := models.ParsePlatform(key[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: unknown platform section %q", shared.ErrInvalidConfig, key[0])
		}
		if len(key) == 2 {
			order[p] = append(order[p], key[1])
		}
	}
	return &f, order, nil
}

func decodeYAML(data []byte) (*file, map[models.Platform][]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse accounts file: %v", shared.ErrInvalidConfig, err)
	}

	var f file
	order := make(map[models.Platform][]string)
	if len(doc.Content) == 0 {
		return &f, order, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("%w: accounts file must be a mapping", shared.ErrInvalidConfig)
	}
	if err := root.Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode accounts file: %v", shared.ErrInvalidConfig, err)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		name, accounts := root.Content[i].Value, root.Content[i+1]
		p, err := models.ParsePlatform(name)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: unknown platform section %q", shared.ErrInvalidConfig, name)
		}
		if accounts.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(accounts.Content); j += 2 {
			order[p] = append(order[p], accounts.Content[j].Value)
		}
	}
	return &f, order, nil
}

// Package config loads the optional parkan.yaml options file that
// tunes the archive, library, and scene loaders' quirk-compatibility
// toggles and the on-disk query cache.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NresOptions tunes nres.Archive opening.
type NresOptions struct {
	RawMode bool `yaml:"raw_mode"`
}

// RsliOptions tunes rsli.Library opening.
type RsliOptions struct {
	AllowAOTrailer         bool `yaml:"allow_ao_trailer"`
	AllowDeflateEOFPlusOne bool `yaml:"allow_deflate_eof_plus_one"`
}

// SceneOptions tunes scene.LoadSceneWithOptions.
type SceneOptions struct {
	LoadModelTextures  bool `yaml:"load_model_textures"`
	LoadTerrainTexture bool `yaml:"load_terrain_texture"`
}

// CacheOptions tunes the on-disk query cache. An empty Path disables
// the cache.
type CacheOptions struct {
	Path string `yaml:"path"`
}

// Options is the full set of tunables loaded from parkan.yaml.
type Options struct {
	Nres  NresOptions  `yaml:"nres"`
	Rsli  RsliOptions  `yaml:"rsli"`
	Scene SceneOptions `yaml:"scene"`
	Cache CacheOptions `yaml:"cache"`
}

// Default returns the options a consumer gets without authoring a
// config file: permissive quirk handling, full texture resolution,
// no cache.
func Default() Options {
	return Options{
		Nres: NresOptions{RawMode: false},
		Rsli: RsliOptions{AllowAOTrailer: true, AllowDeflateEOFPlusOne: true},
		Scene: SceneOptions{
			LoadModelTextures:  true,
			LoadTerrainTexture: true,
		},
		Cache: CacheOptions{Path: ""},
	}
}

// Load reads and strictly decodes a YAML options file at path. A
// missing file is not an error: Load returns Default() verbatim so
// every caller gets usable options without authoring a file. Unknown
// keys are a hard error, since a typo'd quirk toggle silently falling
// back to its default could hide a real compatibility problem.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	opts := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return opts, nil
}

// Package config holds the graph-wide configuration record and per-node
// parameter schema validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/speechflow/speechflow/errs"
)

// CacheBackend selects where node/worker artefact-metadata caching lands.
type CacheBackend string

const (
	// CacheBackendLocal uses an atomic-rename disk cache under Graph.CacheDir.
	CacheBackendLocal CacheBackend = "local"
	// CacheBackendRedis uses a shared Redis-backed cache (see the cache package).
	CacheBackendRedis CacheBackend = "redis"
)

// Graph holds the defaults every node in a graph run shares: audio framing,
// text encoding, and cache location/backend.
type Graph struct {
	SampleRate   int          `yaml:"audio_sample_rate"`
	Channels     int          `yaml:"audio_channels"`
	BitDepth     int          `yaml:"audio_bit_depth"`
	LittleEndian bool         `yaml:"audio_little_endian"`
	TextEncoding string       `yaml:"text_encoding"`
	CacheDir     string       `yaml:"cache_dir"`
	CacheBackend CacheBackend `yaml:"cache_backend"`
	RedisAddr    string       `yaml:"redis_addr"`
}

// DefaultGraph returns the conventional 48kHz mono 16-bit little-endian
// configuration.
func DefaultGraph() *Graph {
	return &Graph{
		SampleRate:   48000,
		Channels:     1,
		BitDepth:     16,
		LittleEndian: true,
		TextEncoding: "utf-8",
		CacheDir:     os.TempDir(),
		CacheBackend: CacheBackendLocal,
	}
}

// WithSampleRate sets the sample rate and returns the receiver.
func (g *Graph) WithSampleRate(hz int) *Graph { g.SampleRate = hz; return g }

// WithChannels sets the channel count and returns the receiver.
func (g *Graph) WithChannels(n int) *Graph { g.Channels = n; return g }

// WithBitDepth sets the bit depth and returns the receiver.
func (g *Graph) WithBitDepth(bits int) *Graph { g.BitDepth = bits; return g }

// WithCacheDir sets the disk cache directory and returns the receiver.
func (g *Graph) WithCacheDir(dir string) *Graph { g.CacheDir = dir; return g }

// WithRedisCache switches to the Redis cache backend at addr.
func (g *Graph) WithRedisCache(addr string) *Graph {
	g.CacheBackend = CacheBackendRedis
	g.RedisAddr = addr
	return g
}

// BytesPerSample derives from the configured bit depth (16-bit PCM only).
func (g *Graph) BytesPerSample() int { return g.BitDepth / 8 }

// BytesPerFrame is bytesPerSample * channels, the filler's frame unit.
func (g *Graph) BytesPerFrame() int { return g.BytesPerSample() * g.Channels }

// Validate rejects nonsensical configuration with a Configuration error.
func (g *Graph) Validate() error {
	switch {
	case g.SampleRate <= 0:
		return errs.New("config", "validate", errs.Configuration, fmt.Errorf("audio_sample_rate must be positive, got %d", g.SampleRate))
	case g.Channels <= 0:
		return errs.New("config", "validate", errs.Configuration, fmt.Errorf("audio_channels must be positive, got %d", g.Channels))
	case g.BitDepth != 16:
		return errs.New("config", "validate", errs.Configuration, fmt.Errorf("audio_bit_depth: only 16-bit PCM is supported, got %d", g.BitDepth))
	case g.TextEncoding == "":
		return errs.New("config", "validate", errs.Configuration, fmt.Errorf("text_encoding must be set"))
	case g.CacheBackend == CacheBackendRedis && g.RedisAddr == "":
		return errs.New("config", "validate", errs.Configuration, fmt.Errorf("redis_addr required when cache_backend is redis"))
	}
	return nil
}

// LoadYAML reads a Graph configuration from a YAML file, applying defaults
// for any field left unset.
func LoadYAML(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New("config", "load-yaml", errs.Configuration, err)
	}
	return LoadYAMLBytes(data)
}

// LoadYAMLBytes parses YAML bytes into a Graph, starting from DefaultGraph.
func LoadYAMLBytes(data []byte) (*Graph, error) {
	g := DefaultGraph()
	if err := yaml.Unmarshal(data, g); err != nil {
		return nil, errs.New("config", "parse-yaml", errs.Configuration, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Package catalog resolves command names to packed payloads. Commands come
// from a built-in table and an optional YAML file; a file entry either holds
// literal hex or points at a capture that is encoded on first use.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
	"github.com/banshee-data/pulse.replay/internal/capture"
	"github.com/banshee-data/pulse.replay/internal/fsutil"
	"github.com/banshee-data/pulse.replay/internal/monitoring"
	"github.com/banshee-data/pulse.replay/internal/retry"
)

// ErrUnknownCommand is returned for a name that is neither a command nor an
// alias.
var ErrUnknownCommand = errors.New("unknown command")

// maxCatalogBytes bounds the catalog file.
const maxCatalogBytes = 1 << 20

// Entry describes one command. Exactly one of Hex and Capture is set.
type Entry struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Aliases     []string      `yaml:"aliases,omitempty"`
	Hex         string        `yaml:"hex,omitempty"`
	Capture     string        `yaml:"capture,omitempty"`
	Repeat      int           `yaml:"repeat,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty"`
}

// Source reports where the payload comes from.
func (e Entry) Source() string {
	if e.Capture != "" {
		return "capture:" + e.Capture
	}
	return "hex"
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("command without name")
	}
	if (e.Hex == "") == (e.Capture == "") {
		return fmt.Errorf("command %q: exactly one of hex and capture must be set", e.Name)
	}
	if e.Repeat < 0 || e.Interval < 0 {
		return fmt.Errorf("command %q: negative repeat or interval", e.Name)
	}
	return nil
}

// file is the on-disk layout.
type file struct {
	// TimeUnitUS overrides the encoder time unit for capture entries.
	TimeUnitUS int     `yaml:"time_unit_us,omitempty"`
	Commands   []Entry `yaml:"commands"`
}

// Catalog maps names to commands and caches packed payloads per command.
type Catalog struct {
	fs   fsutil.FileSystem
	dir  string
	opts bitstream.Options

	entries map[string]Entry  // canonical lower-case name -> entry
	aliases map[string]string // lower-case alias -> canonical name

	mu    sync.Mutex
	cache map[string][]byte
}

// New returns a catalog holding only the built-in commands. opts is used to
// encode capture-backed entries added later by Load.
func New(fs fsutil.FileSystem, opts bitstream.Options) *Catalog {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	c := &Catalog{
		fs:      fs,
		opts:    opts,
		entries: make(map[string]Entry),
		aliases: make(map[string]string),
		cache:   make(map[string][]byte),
	}
	for _, e := range builtinEntries {
		c.add(e)
	}
	return c
}

// Load returns the built-in commands overlaid with the commands in the YAML
// file at path. Capture paths are resolved relative to the file.
func Load(fs fsutil.FileSystem, path string, opts bitstream.Options) (*Catalog, error) {
	c := New(fs, opts)
	if path == "" {
		return c, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("catalog file must have .yaml or .yml extension, got %q", path)
	}
	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat catalog file: %w", err)
	}
	if info.Size() > maxCatalogBytes {
		return nil, fmt.Errorf("catalog file too large: %d bytes (max %d)", info.Size(), maxCatalogBytes)
	}
	data, err := c.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	c.dir = filepath.Dir(path)
	if f.TimeUnitUS > 0 {
		c.opts.TimeUnitUS = f.TimeUnitUS
	}
	for _, e := range f.Commands {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, exists := c.lookup(e.Name); exists {
			monitoring.Logf("catalog %s: %q overrides a built-in command", path, e.Name)
		}
		c.add(e)
	}
	return c, nil
}

func (c *Catalog) add(e Entry) {
	key := strings.ToLower(e.Name)
	c.entries[key] = e
	delete(c.aliases, key)
	for _, a := range e.Aliases {
		c.aliases[strings.ToLower(a)] = key
	}
}

func (c *Catalog) lookup(name string) (Entry, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if e, ok := c.entries[key]; ok {
		return e, true
	}
	if canon, ok := c.aliases[key]; ok {
		e, ok := c.entries[canon]
		return e, ok
	}
	return Entry{}, false
}

// Lookup finds a command by name or alias, ignoring case.
func (c *Catalog) Lookup(name string) (Entry, error) {
	e, ok := c.lookup(name)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return e, nil
}

// Names lists canonical command names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

// Payload returns the packed payload for name. Capture-backed payloads are
// encoded once and cached; callers get their own copy.
func (c *Catalog) Payload(name string) ([]byte, error) {
	e, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(e.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache[key]; ok {
		return bytes.Clone(p), nil
	}

	p, err := c.resolve(e)
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", e.Name, err)
	}
	c.cache[key] = p
	return bytes.Clone(p), nil
}

func (c *Catalog) resolve(e Entry) ([]byte, error) {
	if e.Hex != "" {
		return bitstream.ParseHex(e.Hex)
	}

	path := e.Capture
	if !filepath.IsAbs(path) && c.dir != "" {
		path = filepath.Join(c.dir, path)
	}
	r, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer r.Close()

	capt, err := capture.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bitstream.Encode(capt.Durations, c.opts)
}

// Command resolves name to a schedulable command.
func (c *Catalog) Command(name string) (retry.Command, error) {
	e, err := c.Lookup(name)
	if err != nil {
		return retry.Command{}, err
	}
	p, err := c.Payload(e.Name)
	if err != nil {
		return retry.Command{}, err
	}
	return retry.Command{Name: e.Name, Payload: p, Repeat: e.Repeat, Interval: e.Interval}, nil
}

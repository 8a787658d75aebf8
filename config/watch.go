package config

import (
	"os"
	"path/filepath"
	"strings"

	"livereload/fingerprint"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
	"gopkg.in/yaml.v3"
)

var (
	defaultCSSDirs = []string{"css", "build"}
	defaultJSDirs  = []string{"js", "build"}
)

// Component is one theme or plugin directory the server watches
type Component struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"` // theme | plugin, informational
	Dir      string   `yaml:"dir"`  // relative to the registry file
	URL      string   `yaml:"url"`  // public URL of Dir
	CSS      []string `yaml:"css"`  // stylesheet dirs inside Dir
	JS       []string `yaml:"js"`   // script dirs inside Dir
	Markup   *bool    `yaml:"markup"`
	Disabled bool     `yaml:"disabled"`
}

// Registry is the parsed watch file
type Registry struct {
	Components []Component `yaml:"components"`
	baseDir    string
}

// Watch is what the fingerprinter needs: roots to walk and the mounts that
// turn real paths into URIs
type Watch struct {
	Roots  []fingerprint.WatchRoot
	Mounts []fingerprint.Mount
	Names  []string
}

// LoadRegistry reads a YAML watch file. Component dirs are taken relative to it.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serr.Wrap(err, "failed to read watch file", "path", path)
	}
	return ParseRegistry(data, filepath.Dir(path))
}

// ParseRegistry decodes a registry whose relative dirs resolve against baseDir
func ParseRegistry(data []byte, baseDir string) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, serr.Wrap(err, "failed to parse watch file")
	}
	reg.baseDir = baseDir

	for i, c := range reg.Components {
		if c.Dir == "" {
			return nil, serr.F("component %d (%s) has no dir", i, c.Name)
		}
		if c.URL == "" {
			return nil, serr.F("component %d (%s) has no url", i, c.Name)
		}
	}
	return &reg, nil
}

// Watch expands the registry into walk roots and URL mounts.
// Disabled components are left out.
func (r *Registry) Watch() Watch {
	var w Watch
	for _, c := range r.Components {
		if c.Disabled {
			logger.Debug("Skipping disabled component", "name", c.Name)
			continue
		}
		dir := c.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(r.baseDir, dir)
		}

		w.Names = append(w.Names, c.Name)
		w.Mounts = append(w.Mounts, fingerprint.Mount{Dir: dir, BaseURL: strings.TrimRight(c.URL, "/")})

		for _, sub := range orDefault(c.CSS, defaultCSSDirs) {
			w.Roots = append(w.Roots, fingerprint.WatchRoot{Path: filepath.Join(dir, sub), Class: fingerprint.CSS})
		}
		for _, sub := range orDefault(c.JS, defaultJSDirs) {
			w.Roots = append(w.Roots, fingerprint.WatchRoot{Path: filepath.Join(dir, sub), Class: fingerprint.JS})
		}
		if c.Markup == nil || *c.Markup {
			w.Roots = append(w.Roots, fingerprint.WatchRoot{Path: dir, Class: fingerprint.Markup})
		}
	}
	return w
}

func orDefault(dirs, def []string) []string {
	if len(dirs) == 0 {
		return def
	}
	return dirs
}

// LoadWatch returns the registry's watch set when the watch file exists, or a
// single component made of Dir/URL otherwise
func (c *Config) LoadWatch() (Watch, error) {
	if c.WatchFile != "" {
		if _, err := os.Stat(c.WatchFile); err == nil {
			reg, err := LoadRegistry(c.WatchFile)
			if err != nil {
				return Watch{}, err
			}
			return reg.Watch(), nil
		}
	}

	if c.Dir == "" {
		return Watch{}, serr.F("no watch file at %q and no directory configured", c.WatchFile)
	}
	reg := Registry{Components: []Component{{Name: filepath.Base(c.Dir), Dir: c.Dir, URL: c.URL}}}
	return reg.Watch(), nil
}

// HostAllowed reports whether host matches one of AllowedHosts. An empty list allows every host.
func (c *Config) HostAllowed(host string) bool {
	if len(c.AllowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, pattern := range c.AllowedHosts {
		if ok, err := doublestar.Match(strings.ToLower(pattern), host); err == nil && ok {
			return true
		}
	}
	return false
}

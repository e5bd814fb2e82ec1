// Package policyloader reads declarative policy profiles from YAML, JSON
// and JSON-with-comments documents.
//
// Every document is checked against a JSON Schema, its schema_version is
// gated by a semver range, and rule conditions are compile-checked as CEL
// boolean expressions. Conditions are carried on the loaded rules but are
// not evaluated by the policy engine.
package policyloader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/policy"
)

// LoadFile loads a single profile. A document without a name takes the
// file's base name.
func LoadFile(path string) (contracts.PolicyProfile, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return contracts.PolicyProfile{}, &LoadError{Path: path, Problems: []string{"unsupported file extension"}}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return contracts.PolicyProfile{}, fmt.Errorf("policyloader: read file: %w", err)
	}
	doc, err := parseDocument(data, format, path)
	if err != nil {
		return contracts.PolicyProfile{}, err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return policy.BuildProfile(doc.ProfileSpec), nil
}

// LoadDir loads every recognised document in dir, keyed by profile name.
// Errors from individual files are joined; two files declaring the same
// name is an error.
func LoadDir(dir string) (map[string]contracts.PolicyProfile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("policyloader: read dir %s: %w", dir, err)
	}

	profiles := make(map[string]contracts.PolicyProfile)
	sources := make(map[string]string)
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatFromPath(entry.Name()); !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := sources[p.Name]; dup {
			errs = append(errs, &LoadError{Path: path, Problems: []string{
				fmt.Sprintf("profile %q already defined in %s", p.Name, prev),
			}})
			continue
		}
		sources[p.Name] = path
		profiles[p.Name] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return profiles, nil
}

// Loader holds the profiles loaded from one directory and notifies a
// callback when they change.
type Loader struct {
	mu       sync.RWMutex
	dir      string
	profiles map[string]contracts.PolicyProfile
	onReload func(contracts.PolicyProfile)
}

// NewLoader creates a loader for dir. Nothing is read until LoadAll.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		profiles: make(map[string]contracts.PolicyProfile),
	}
}

// OnReload registers a callback invoked for each profile loaded or reloaded.
func (l *Loader) OnReload(fn func(contracts.PolicyProfile)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll (re)loads the directory. On error the previous set is kept.
func (l *Loader) LoadAll() error {
	profiles, err := LoadDir(l.dir)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.profiles = profiles
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		for _, name := range sortedNames(profiles) {
			callback(profiles[name])
		}
	}
	return nil
}

// LoadFile loads or replaces a single profile.
func (l *Loader) LoadFile(path string) error {
	p, err := LoadFile(path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.profiles[p.Name] = p
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(p)
	}
	return nil
}

// Profile returns a loaded profile by name.
func (l *Loader) Profile(name string) (contracts.PolicyProfile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[name]
	if !ok {
		return contracts.PolicyProfile{}, false
	}
	return p.Clone(), true
}

// Names returns the loaded profile names in sorted order.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedNames(l.profiles)
}

func sortedNames(m map[string]contracts.PolicyProfile) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package profile

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

var ErrUnknownProfile = errors.New("unknown cpu profile")

//go:embed catalog/*.yaml
var catalogFS embed.FS

// Catalog lists the names of the built-in profiles.
func Catalog() []string {
	entries, err := fs.ReadDir(catalogFS, "catalog")
	if err != nil {
		panic(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Builtin returns the built-in profile called name.
func Builtin(name string) (*Profile, error) {
	data, err := catalogFS.ReadFile(path.Join("catalog", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("builtin profile %s: %w", name, err)
	}
	return p, nil
}

// Resolve returns the built-in profile called ref, or loads ref as a YAML
// file when no built-in has that name.
func Resolve(ref string) (*Profile, error) {
	p, err := Builtin(ref)
	if err == nil {
		return p, nil
	}
	if _, statErr := os.Stat(ref); statErr == nil {
		return LoadFile(ref)
	}
	return nil, err
}

// Package asmdef enumerates modules from assembly definition files.
//
// Each *.asmdef file declares one module. Every source file belongs to the
// module whose definition sits in its nearest ancestor directory; sources
// outside any definition fall into a default module.
package asmdef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GUIDPrefix marks a reference by asset GUID instead of by name.
const GUIDPrefix = "GUID:"

// Definition is the subset of an assembly definition file slnsync reads.
type Definition struct {
	Name                  string          `json:"name"`
	RootNamespace         string          `json:"rootNamespace,omitempty"`
	References            []string        `json:"references,omitempty"`
	IncludePlatforms      []string        `json:"includePlatforms,omitempty"`
	ExcludePlatforms      []string        `json:"excludePlatforms,omitempty"`
	AllowUnsafeCode       bool            `json:"allowUnsafeCode,omitempty"`
	OverrideReferences    bool            `json:"overrideReferences,omitempty"`
	PrecompiledReferences []string        `json:"precompiledReferences,omitempty"`
	AutoReferenced        *bool           `json:"autoReferenced,omitempty"`
	DefineConstraints     []string        `json:"defineConstraints,omitempty"`
	VersionDefines        []VersionDefine `json:"versionDefines,omitempty"`
	NoEngineReferences    bool            `json:"noEngineReferences,omitempty"`
}

// VersionDefine adds Define when a package matches Expression. Package
// versions are not resolved, so every listed define is applied.
type VersionDefine struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Define     string `json:"define"`
}

// IsAutoReferenced reports whether the default module references this one.
func (d *Definition) IsAutoReferenced() bool {
	return d.AutoReferenced == nil || *d.AutoReferenced
}

// Defines returns the symbols contributed by version defines.
func (d *Definition) Defines() []string {
	var out []string
	for _, vd := range d.VersionDefines {
		if s := strings.TrimSpace(vd.Define); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Parse decodes a definition. A missing name falls back to the file stem.
func Parse(path string, data []byte) (*Definition, error) {
	// Tolerate a UTF-8 byte order mark, which editors commonly write.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &def, nil
}

// ParseFile reads and decodes a definition file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(path, data)
}

// meta is the part of an asset .meta file holding the asset GUID.
type meta struct {
	GUID string `yaml:"guid"`
}

// ReadGUID returns the asset GUID from the .meta file next to path.
// A missing or malformed .meta yields an empty GUID and no error.
func ReadGUID(path string) string {
	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return ""
	}
	var m meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(m.GUID))
}

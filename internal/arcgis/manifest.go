// Package arcgis downloads per-region ArcGIS REST query exports listed in a
// YAML manifest.
package arcgis

import (
	"net/url"
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Region is one ArcGIS layer export, usually a `.../query?where=1=1&outFields=*&f=json` URL.
type Region struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Manifest lists the regions to fetch.
type Manifest struct {
	Regions []Region `yaml:"regions"`
}

// LoadManifest reads and validates a region manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "arcgis: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "arcgis: parse manifest")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every region has a usable name and an http(s) URL.
// Names must stay unique once turned into file names.
func (m *Manifest) Validate() error {
	seen := make(map[string]string, len(m.Regions))
	for i, r := range m.Regions {
		if strings.TrimSpace(r.Name) == "" {
			return eris.Errorf("arcgis: region %d has no name", i)
		}
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return eris.Errorf("arcgis: region %q has invalid url %q", r.Name, r.URL)
		}
		file := FileName(r.Name)
		if prev, ok := seen[file]; ok {
			return eris.Errorf("arcgis: regions %q and %q map to the same file %s", prev, r.Name, file)
		}
		seen[file] = r.Name
	}
	return nil
}

// FileName returns the raw-directory file name for a region. Letters and
// digits of any script are kept; anything else becomes an underscore.
func FileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + ".json"
}

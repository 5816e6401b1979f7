package catalog

import (
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

var ErrBadManifest = errors.New("invalid manifest")

// Manifest describes the tables of a database:
//
//	tables:
//	  - name: users
//	    file: users.dat
//	    pk: id
//	    fields:
//	      - {name: id, type: int}
//	      - {name: name, type: string}
type Manifest struct {
	Tables []TableDef `yaml:"tables"`
}

type TableDef struct {
	Name       string     `yaml:"name"`
	File       string     `yaml:"file"`
	PrimaryKey string     `yaml:"pk,omitempty"`
	Fields     []FieldDef `yaml:"fields"`
}

type FieldDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// LoadManifest reads the manifest at path. Relative table files are resolved
// against the manifest's directory.
func LoadManifest(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read manifest %s", path)
	}

	m, err := ParseManifest(data, filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", path)
	}
	return m, nil
}

func ParseManifest(data []byte, baseDir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Errorf("parse: %w: %w", ErrBadManifest, err)
	}

	seen := make(map[string]struct{}, len(m.Tables))
	for i := range m.Tables {
		def := &m.Tables[i]

		if err := def.validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[def.Name]; ok {
			return nil, errors.Wrapf(ErrBadManifest, "table %q declared twice", def.Name)
		}
		seen[def.Name] = struct{}{}

		if !filepath.IsAbs(def.File) {
			def.File = filepath.Join(baseDir, def.File)
		}
	}

	return &m, nil
}

// Table returns the definition of the named table.
func (m *Manifest) Table(name string) (TableDef, bool) {
	for _, def := range m.Tables {
		if def.Name == name {
			return def, true
		}
	}
	return TableDef{}, false
}

func (d TableDef) validate() error {
	if d.Name == "" {
		return errors.Wrap(ErrBadManifest, "table without a name")
	}
	if d.File == "" {
		return errors.Wrapf(ErrBadManifest, "table %q: no file", d.Name)
	}
	if len(d.Fields) == 0 {
		return errors.Wrapf(ErrBadManifest, "table %q: no fields", d.Name)
	}

	if _, err := d.Schema(); err != nil {
		return err
	}

	if d.PrimaryKey != "" {
		found := false
		for _, f := range d.Fields {
			if f.Name == d.PrimaryKey {
				found = true
				break
			}
		}
		if !found {
			return errors.Wrapf(ErrBadManifest, "table %q: primary key %q is not a field", d.Name, d.PrimaryKey)
		}
	}

	return nil
}

func (d TableDef) Schema() (*tuple.Schema, error) {
	types := make([]tuple.Type, len(d.Fields))
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		t, err := tuple.ParseType(f.Type)
		if err != nil {
			return nil, errors.Errorf("table %q field %q: %w: %w", d.Name, f.Name, ErrBadManifest, err)
		}
		types[i] = t
		names[i] = f.Name
	}

	return tuple.NewSchema(types, names), nil
}

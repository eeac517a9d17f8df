package refdata

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/ivscan/internal/domain/model"
)

//go:embed reference.yaml
var embeddedReference []byte

// document is the on-disk shape of a reference file.
type document struct {
	Species     []speciesRow `koanf:"species"`
	Multipliers []float64    `koanf:"multipliers"`
}

type speciesRow struct {
	ID      int    `koanf:"id"`
	Name    string `koanf:"name"`
	NameFR  string `koanf:"name_fr"`
	Attack  int    `koanf:"attack"`
	Defense int    `koanf:"defense"`
	Stamina int    `koanf:"stamina"`
}

// bytesProvider feeds an in-memory document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("bytes provider does not support Read()")
}

// Load decodes reference data from a YAML file, or from the embedded
// default tables when path is empty.
func Load(_ context.Context, path string) (*Store, error) {
	k := koanf.New(".")

	var provider koanf.Provider = bytesProvider(embeddedReference)
	if path != "" {
		provider = file.Provider(path)
	}
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}

	var doc document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode reference data: %w", err)
	}

	entries := make([]Entry, len(doc.Species))
	for i, row := range doc.Species {
		entries[i] = Entry{
			Species: model.Species{
				ID:          row.ID,
				Name:        row.Name,
				BaseAttack:  row.Attack,
				BaseDefense: row.Defense,
				BaseHealth:  row.Stamina,
			},
			Names: map[string]string{LocaleFR: row.NameFR},
		}
	}
	return New(entries, doc.Multipliers)
}

// Default returns the Store built from the embedded tables.
func Default() (*Store, error) {
	return Load(context.Background(), "")
}

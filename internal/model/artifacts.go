package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Skufu/proactivecare/internal/textvec"
	"github.com/Skufu/proactivecare/internal/vitals"
)

const (
	ModelFile      = "model.json"
	VectorizerFile = "vectorizer.json"
	MetadataFile   = "metadata.json"
)

type modelFile struct {
	Classifier      *Classifier `json:"classifier"`
	NumericFeatures []string    `json:"numeric_features"`
	Scaler          Scaler      `json:"scaler"`
}

// Store reads and writes artifacts in one directory.
type Store struct {
	Dir string
}

// Exists reports whether both the model and the vectorizer are present.
func (s Store) Exists() bool {
	for _, name := range []string{ModelFile, VectorizerFile} {
		if _, err := os.Stat(filepath.Join(s.Dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Save writes every file through a temp file and rename, so a reader never
// sees a partial artifact. The model file is written last.
func (s Store) Save(a *Artifacts, meta Metadata) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(s.Dir, VectorizerFile), a.Features.Text); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(s.Dir, MetadataFile), meta); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.Dir, ModelFile), modelFile{
		Classifier:      a.Classifier,
		NumericFeatures: vitals.Names,
		Scaler:          a.Features.Numeric,
	})
}

func (s Store) Load() (*Artifacts, error) {
	var vec textvec.Vectorizer
	if err := readJSON(filepath.Join(s.Dir, VectorizerFile), &vec); err != nil {
		return nil, err
	}
	var mf modelFile
	if err := readJSON(filepath.Join(s.Dir, ModelFile), &mf); err != nil {
		return nil, err
	}

	a := &Artifacts{
		Features:   &Featurizer{Text: &vec, Numeric: mf.Scaler},
		Classifier: mf.Classifier,
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	return a, nil
}

func (s Store) LoadMetadata() (Metadata, error) {
	var meta Metadata
	err := readJSON(filepath.Join(s.Dir, MetadataFile), &meta)
	return meta, err
}

func (a *Artifacts) validate() error {
	c := a.Classifier
	switch {
	case c == nil || len(c.Classes) == 0:
		return errors.New("classifier has no classes")
	case len(c.Weights) != len(c.Classes) || len(c.Bias) != len(c.Classes):
		return errors.New("classifier shape does not match its classes")
	case len(a.Features.Numeric.Mean) != len(vitals.Names) || len(a.Features.Numeric.Std) != len(vitals.Names):
		return errors.New("scaler does not match numeric features")
	case len(a.Features.Text.IDF) != len(a.Features.Text.Vocabulary):
		return errors.New("vectorizer vocabulary and idf differ in size")
	}
	size := a.Features.Text.Size()
	seen := make([]bool, size)
	for term, idx := range a.Features.Text.Vocabulary {
		if idx < 0 || idx >= size || seen[idx] {
			return fmt.Errorf("vocabulary term %q has bad index %d", term, idx)
		}
		seen[idx] = true
	}
	dim := a.Features.Dim()
	for _, w := range c.Weights {
		if len(w) != dim {
			return fmt.Errorf("weight row has %d columns, want %d", len(w), dim)
		}
	}
	for _, std := range a.Features.Numeric.Std {
		if std == 0 {
			return errors.New("scaler has zero deviation")
		}
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s missing", ErrArtifactUnavailable, filepath.Base(path))
		}
		return fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrArtifactUnavailable, filepath.Base(path), err)
	}
	return nil
}

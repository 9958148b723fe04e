package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/UnknownOlympus/pinpoint/internal/fsutil"
	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/spf13/afero"
)

const (
	regionEntitiesKey = "trails"
	citiesKey         = "cities"
	backupTimeLayout  = "20060102_150405"
)

// ErrUnknownLayout is returned for documents that match no known layout.
var ErrUnknownLayout = errors.New("unrecognized dataset layout")

// Load reads and decodes a dataset file.
func (r *FileRepository) Load(ctx context.Context, spec DatasetSpec) (*Dataset, error) {
	path := r.Path(spec)
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", spec.Name(), err)
	}

	layout := spec.Layout
	if layout == "" || layout == LayoutAuto {
		if layout, err = detectLayout(data); err != nil {
			return nil, fmt.Errorf("dataset %s: %w", spec.Name(), err)
		}
	}

	ds := &Dataset{Spec: spec, Path: path, Layout: layout}
	if err = ds.decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", spec.Name(), err)
	}

	r.log.DebugContext(ctx, "Dataset loaded", "dataset", spec.Name(), "layout", layout, "entities", len(ds.Entities))
	return ds, nil
}

// Save writes the dataset back to its file.
func (r *FileRepository) Save(ctx context.Context, ds *Dataset) error {
	doc, err := ds.encode()
	if err != nil {
		return fmt.Errorf("failed to encode dataset %s: %w", ds.Name(), err)
	}
	data, err := fsutil.MarshalIndent(doc)
	if err != nil {
		return fmt.Errorf("failed to encode dataset %s: %w", ds.Name(), err)
	}
	if err = fsutil.WriteFileAtomic(r.fs, ds.Path, data); err != nil {
		return fmt.Errorf("failed to save dataset %s: %w", ds.Name(), err)
	}

	r.log.DebugContext(ctx, "Dataset saved", "dataset", ds.Name(), "path", ds.Path)
	return nil
}

// Backup copies the file of a dataset, as it is on disk, into the backup directory
// and returns the path of the copy.
func (r *FileRepository) Backup(ctx context.Context, ds *Dataset) (string, error) {
	data, err := afero.ReadFile(r.fs, ds.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read dataset %s for backup: %w", ds.Name(), err)
	}

	dir := r.backupDir
	if dir == "" {
		dir = filepath.Dir(ds.Path)
	}
	target := filepath.Join(dir, filepath.Base(ds.Path)+".backup_"+r.now().Format(backupTimeLayout))
	if err = fsutil.WriteFileAtomic(r.fs, target, data); err != nil {
		return "", fmt.Errorf("failed to back up dataset %s: %w", ds.Name(), err)
	}

	r.log.InfoContext(ctx, "Dataset backed up", "dataset", ds.Name(), "backup", target)
	return target, nil
}

func detectLayout(data []byte) (Layout, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", ErrUnknownLayout
	}

	switch trimmed[0] {
	case '{':
		var doc models.Object
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return "", err
		}
		if doc.Has(citiesKey) {
			return LayoutCities, nil
		}
		return "", ErrUnknownLayout
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", err
		}
		if len(items) > 0 {
			var first models.Object
			if err := json.Unmarshal(items[0], &first); err == nil && first.Has(regionEntitiesKey) {
				return LayoutRegions, nil
			}
		}
		return LayoutList, nil
	default:
		return "", ErrUnknownLayout
	}
}

func (d *Dataset) decode(data []byte) error {
	switch d.Layout {
	case LayoutList:
		return json.Unmarshal(data, &d.Entities)
	case LayoutCities:
		if err := json.Unmarshal(data, &d.doc); err != nil {
			return err
		}
		raw, _ := d.doc.Get(citiesKey)
		if err := json.Unmarshal(raw, &d.Entities); err != nil {
			return fmt.Errorf("field %q: %w", citiesKey, err)
		}
		return nil
	case LayoutRegions:
		var groups []models.Object
		if err := json.Unmarshal(data, &groups); err != nil {
			return err
		}
		for i, obj := range groups {
			group := regionGroup{obj: obj}
			if raw, ok := obj.Get(regionEntitiesKey); ok {
				if err := json.Unmarshal(raw, &group.entities); err != nil {
					return fmt.Errorf("region %d: %w", i, err)
				}
			}
			d.groups = append(d.groups, group)
			d.Entities = append(d.Entities, group.entities...)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLayout, d.Layout)
	}
}

func (d *Dataset) encode() (any, error) {
	switch d.Layout {
	case LayoutCities:
		doc := d.doc.Clone()
		if err := doc.SetValue(citiesKey, d.Entities); err != nil {
			return nil, err
		}
		return doc, nil
	case LayoutRegions:
		groups := make([]models.Object, 0, len(d.groups))
		for _, g := range d.groups {
			obj := g.obj.Clone()
			if g.entities != nil || obj.Has(regionEntitiesKey) {
				if err := obj.SetValue(regionEntitiesKey, g.entities); err != nil {
					return nil, err
				}
			}
			groups = append(groups, obj)
		}
		return groups, nil
	default:
		if d.Entities == nil {
			return []*models.Entity{}, nil
		}
		return d.Entities, nil
	}
}

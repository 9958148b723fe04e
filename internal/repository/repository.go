package repository

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/UnknownOlympus/pinpoint/internal/models"
	"github.com/UnknownOlympus/pinpoint/internal/resolver"
	"github.com/spf13/afero"
)

// Layout is the shape of a dataset file.
type Layout string

const (
	// LayoutAuto detects the layout from the document.
	LayoutAuto Layout = "auto"
	// LayoutList is a flat array of entities.
	LayoutList Layout = "list"
	// LayoutRegions is an array of {"region": ..., "trails": [...]} groups.
	LayoutRegions Layout = "regions"
	// LayoutCities is an object holding the entities under "cities".
	LayoutCities Layout = "cities"
)

// DatasetSpec names a dataset file and how its entities are searched.
type DatasetSpec struct {
	File    string         `mapstructure:"file"    json:"file"`
	Context string         `mapstructure:"context" json:"context"` // Qualifier appended to search queries, e.g. "waterfall".
	Class   resolver.Class `mapstructure:"class"   json:"class"`
	Layout  Layout         `mapstructure:"layout"  json:"layout"`
}

// Name returns the file name used to label the dataset in logs and reports.
func (s DatasetSpec) Name() string {
	return filepath.Base(s.File)
}

// Dataset is a loaded dataset file. Entities lists every entity in document order;
// for grouped layouts the groups keep pointers to the same entities.
type Dataset struct {
	Spec     DatasetSpec
	Path     string
	Layout   Layout
	Entities []*models.Entity

	groups []regionGroup
	doc    models.Object
}

type regionGroup struct {
	obj      models.Object
	entities []*models.Entity
}

// Name returns the dataset label.
func (d *Dataset) Name() string {
	return d.Spec.Name()
}

// Interface is the dataset storage used by the services.
type Interface interface {
	Load(ctx context.Context, spec DatasetSpec) (*Dataset, error)
	Save(ctx context.Context, ds *Dataset) error
	Backup(ctx context.Context, ds *Dataset) (string, error)
}

// FileRepository stores datasets as JSON files under a data directory.
type FileRepository struct {
	fs        afero.Fs
	dataDir   string
	backupDir string
	log       *slog.Logger
	now       func() time.Time
}

// Option tweaks a FileRepository.
type Option func(*FileRepository)

// WithFs replaces the filesystem.
func WithFs(fs afero.Fs) Option {
	return func(r *FileRepository) { r.fs = fs }
}

// WithClock replaces time.Now, which names backup files.
func WithClock(now func() time.Time) Option {
	return func(r *FileRepository) { r.now = now }
}

// NewFileRepository creates a repository for the files under dataDir. Backups go
// to backupDir; relative backup directories are taken relative to dataDir.
func NewFileRepository(dataDir, backupDir string, log *slog.Logger, opts ...Option) *FileRepository {
	if backupDir != "" && !filepath.IsAbs(backupDir) {
		backupDir = filepath.Join(dataDir, backupDir)
	}
	repo := &FileRepository{
		fs:        afero.NewOsFs(),
		dataDir:   dataDir,
		backupDir: backupDir,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Path returns where the file of a dataset lives.
func (r *FileRepository) Path(spec DatasetSpec) string {
	if filepath.IsAbs(spec.File) {
		return spec.File
	}
	return filepath.Join(r.dataDir, spec.File)
}

// Matches reports whether a dataset is selected by a list of file names. An empty
// list selects everything.
func Matches(spec DatasetSpec, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		f = strings.TrimSpace(f)
		if f == spec.File || f == spec.Name() || f+".json" == spec.Name() {
			return true
		}
	}
	return false
}

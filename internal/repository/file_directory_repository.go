package repository

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// directoryFile is the on-disk shape of a file-backed directory.
type directoryFile struct {
	Resources []models.Resource `yaml:"resources"`
	Services  []models.Service  `yaml:"services"`
}

// FileDirectoryRepository serves resources and services from a YAML file. The file
// is re-read on every call so a pull refresh picks up edits.
type FileDirectoryRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileDirectoryRepository constructs the repository.
func NewFileDirectoryRepository(path string) *FileDirectoryRepository {
	return &FileDirectoryRepository{path: path}
}

func (r *FileDirectoryRepository) load() (*directoryFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read directory file %s: %w", r.path, err)
	}
	var file directoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", r.path, err)
	}
	return &file, nil
}

// ListResources returns the resources in the file.
func (r *FileDirectoryRepository) ListResources(_ context.Context) ([]models.Resource, error) {
	file, err := r.load()
	if err != nil {
		return nil, err
	}
	return file.Resources, nil
}

// ListServices returns the services in the file.
func (r *FileDirectoryRepository) ListServices(_ context.Context) ([]models.Service, error) {
	file, err := r.load()
	if err != nil {
		return nil, err
	}
	return file.Services, nil
}

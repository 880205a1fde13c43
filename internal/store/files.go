// Package store persists workflow and template blueprints as flat files.
//
// Layout under the root directory:
//
//	<root>/workflows/<name>.json
//	<root>/templates/<name>.json
//
// Files are written as indented JSON. Loading also accepts .yaml and .yml
// files so blueprints can be authored by hand.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/renwick/stepflow/internal/validation"
	"github.com/renwick/stepflow/pkg/schema"
)

const (
	workflowsDir = "workflows"
	templatesDir = "templates"
)

// FileStore reads and writes blueprint files under a root directory.
// Safe for concurrent use; writes are serialized per store.
type FileStore struct {
	root      string
	validator *validation.BlueprintValidator

	mu sync.Mutex
}

// NewFileStore creates the workflows/ and templates/ directories under root
// if they do not exist.
func NewFileStore(root string) (*FileStore, error) {
	validator, err := validation.NewBlueprintValidator()
	if err != nil {
		return nil, fmt.Errorf("init blueprint validator: %w", err)
	}

	for _, dir := range []string{workflowsDir, templatesDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"failed to create %s directory", dir).WithCause(err)
		}
	}

	return &FileStore{root: root, validator: validator}, nil
}

// Root returns the store's root directory.
func (s *FileStore) Root() string {
	return s.root
}

// SaveWorkflow writes a workflow blueprint to workflows/<name>.json.
// An existing file with the same name is overwritten.
func (s *FileStore) SaveWorkflow(file *schema.WorkflowFile) error {
	return s.save(workflowsDir, file)
}

// LoadWorkflow reads and validates the named workflow blueprint.
func (s *FileStore) LoadWorkflow(name string) (*schema.WorkflowFile, error) {
	return s.load(workflowsDir, name)
}

// DeleteWorkflow removes the named workflow blueprint.
func (s *FileStore) DeleteWorkflow(name string) error {
	return s.delete(workflowsDir, name)
}

// ListWorkflows returns the names of all stored workflow blueprints, sorted.
func (s *FileStore) ListWorkflows() ([]string, error) {
	return s.list(workflowsDir)
}

// SaveTemplate writes a template blueprint to templates/<name>.json.
func (s *FileStore) SaveTemplate(file *schema.WorkflowFile) error {
	return s.save(templatesDir, file)
}

// LoadTemplate reads and validates the named template blueprint.
func (s *FileStore) LoadTemplate(name string) (*schema.WorkflowFile, error) {
	return s.load(templatesDir, name)
}

// DeleteTemplate removes the named template blueprint.
func (s *FileStore) DeleteTemplate(name string) error {
	return s.delete(templatesDir, name)
}

// ListTemplates returns the names of all stored template blueprints, sorted.
func (s *FileStore) ListTemplates() ([]string, error) {
	return s.list(templatesDir)
}

func (s *FileStore) save(dir string, file *schema.WorkflowFile) error {
	if err := s.validator.Validate(file); err != nil {
		return err
	}
	if err := checkName(file.Name); err != nil {
		return err
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"failed to encode blueprint %q", file.Name).WithCause(err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, dir, file.Name+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"failed to write blueprint %q", file.Name).WithCause(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return schema.NewErrorf(schema.ErrCodeStore,
			"failed to write blueprint %q", file.Name).WithCause(err)
	}
	return nil
}

func (s *FileStore) load(dir, name string) (*schema.WorkflowFile, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	path, err := s.find(dir, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"failed to read blueprint %q", name).WithCause(err)
	}

	var file schema.WorkflowFile
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"failed to decode blueprint %q", name).WithCause(err)
	}

	if err := s.validator.Validate(&file); err != nil {
		return nil, err
	}
	return &file, nil
}

// find locates the file for a name, preferring .json over YAML variants.
func (s *FileStore) find(dir, name string) (string, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(s.root, dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeNotFound,
		"blueprint %q not found", name)
}

func (s *FileStore) delete(dir, name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	path, err := s.find(dir, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"failed to delete blueprint %q", name).WithCause(err)
	}
	return nil
}

func (s *FileStore) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"failed to list %s", dir).WithCause(err)
	}

	seen := make(map[string]struct{})
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		switch ext {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

// checkName rejects names that would escape the store directory or produce
// awkward filenames.
func checkName(name string) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "blueprint name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"blueprint name %q contains path separators", name)
	}
	return nil
}

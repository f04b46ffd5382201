package repository

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// Dataset is the YAML layout of an offline timetable dataset.
type Dataset struct {
	models.Catalog `yaml:",inline"`
	Enrollments    []models.Enrollment `yaml:"enrollments"`
}

// ParseDataset decodes a YAML dataset. Unknown keys are rejected.
func ParseDataset(r io.Reader) (*Dataset, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var dataset Dataset
	if err := decoder.Decode(&dataset); err != nil {
		if err == io.EOF {
			return &dataset, nil
		}
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &dataset, nil
}

// FileCatalog serves catalog and enrollment data from a YAML file loaded once.
type FileCatalog struct {
	path    string
	dataset *Dataset
}

// NewFileCatalog reads and parses the dataset at path.
func NewFileCatalog(path string) (*FileCatalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck

	dataset, err := ParseDataset(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileCatalog{path: path, dataset: dataset}, nil
}

// NewFileCatalogFromDataset wraps an already parsed dataset.
func NewFileCatalogFromDataset(dataset *Dataset) *FileCatalog {
	return &FileCatalog{path: "<memory>", dataset: dataset}
}

// LoadCatalog returns a copy of the dataset catalog, narrowing courses to the filter.
func (f *FileCatalog) LoadCatalog(_ context.Context, filter models.CatalogFilter) (models.Catalog, error) {
	catalog := f.dataset.Catalog
	catalog.Courses = make([]models.Course, 0, len(f.dataset.Courses))
	for _, course := range f.dataset.Courses {
		if filter.Includes(course.DepartmentID) {
			catalog.Courses = append(catalog.Courses, course)
		}
	}
	return catalog, nil
}

// StudentsByCourse groups the dataset enrollments for the requested courses.
func (f *FileCatalog) StudentsByCourse(_ context.Context, courseIDs []string) (models.EnrollmentSets, error) {
	wanted := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		wanted[id] = true
	}
	rows := make([]models.Enrollment, 0, len(f.dataset.Enrollments))
	for _, row := range f.dataset.Enrollments {
		if wanted[row.CourseID] {
			rows = append(rows, row)
		}
	}
	return models.GroupEnrollments(rows), nil
}

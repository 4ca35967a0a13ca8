// Package seed loads vendor mappings from a YAML file into the database.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
)

// File is the layout of a vendor mapping seed file
type File struct {
	VendorMappings []invoiceapp.CreateVendorMappingRequest `yaml:"vendor_mappings"`
}

// MappingUpserter creates or updates a vendor mapping by name
type MappingUpserter interface {
	Upsert(ctx context.Context, req invoiceapp.CreateVendorMappingRequest) (*invoiceapp.VendorMappingResponse, bool, error)
}

// Result summarizes a seed run
type Result struct {
	Created int
	Updated int
}

// Parse decodes and checks a seed file. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	seen := make(map[string]int, len(f.VendorMappings))
	for i, m := range f.VendorMappings {
		name := strings.TrimSpace(m.VendorName)
		if name == "" {
			return nil, fmt.Errorf("vendor_mappings[%d]: vendor_name is required", i)
		}
		if prev, ok := seen[strings.ToLower(name)]; ok {
			return nil, fmt.Errorf("vendor_mappings[%d]: duplicate vendor_name %q (first at %d)", i, name, prev)
		}
		seen[strings.ToLower(name)] = i
		f.VendorMappings[i].VendorName = name
	}
	return &f, nil
}

// LoadFile reads and parses a seed file from disk
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Seeder upserts the mappings of a seed file
type Seeder struct {
	mappings MappingUpserter
	logger   *zap.Logger
}

// NewSeeder creates a seeder
func NewSeeder(mappings MappingUpserter, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{mappings: mappings, logger: logger}
}

// Apply upserts every mapping in the file, stopping at the first failure
func (s *Seeder) Apply(ctx context.Context, f *File) (Result, error) {
	var res Result
	for _, req := range f.VendorMappings {
		_, created, err := s.mappings.Upsert(ctx, req)
		if err != nil {
			return res, fmt.Errorf("seed vendor mapping %q: %w", req.VendorName, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		s.logger.Debug("vendor mapping seeded",
			zap.String("vendor_name", req.VendorName),
			zap.Bool("created", created),
		)
	}

	s.logger.Info("vendor mappings seeded",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
	)
	return res, nil
}

// ApplyFile loads the seed file at path and applies it
func (s *Seeder) ApplyFile(ctx context.Context, path string) (Result, error) {
	f, err := LoadFile(path)
	if err != nil {
		return Result{}, err
	}
	return s.Apply(ctx, f)
}

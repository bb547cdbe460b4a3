// Package cache persists the collisions dataset and its metadata record on local disk and
// decides whether a persisted copy is fresh enough to serve.
package cache

import (
	"errors"
	"path/filepath"
)

var (
	// ErrDirRequired is returned when no cache directory is configured
	ErrDirRequired = errors.New("cache directory is required")
	// ErrFileNamesRequired is returned when either cache file name is empty
	ErrFileNamesRequired = errors.New("cache data and metadata file names are required")
	// ErrFileNamesClash is returned when the data and metadata files share a name
	ErrFileNamesClash = errors.New("cache data and metadata files must differ")
)

// Config locates the cache file pair
type Config struct {
	Dir      string `yaml:"dir" default:"data"`
	DataFile string `yaml:"dataFile" default:"nyc_crashes_cached.csv"`
	MetaFile string `yaml:"metaFile" default:"nyc_crashes_meta.json"`
	// Parser selects the payload parser: arrow or csv
	Parser string `yaml:"parser" default:"arrow" validate:"oneof=arrow csv"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Dir == "" {
		return ErrDirRequired
	}

	if c.DataFile == "" || c.MetaFile == "" {
		return ErrFileNamesRequired
	}

	if c.DataFile == c.MetaFile {
		return ErrFileNamesClash
	}

	return nil
}

// DataPath returns the full path of the record file
func (c *Config) DataPath() string {
	return filepath.Join(c.Dir, c.DataFile)
}

// MetaPath returns the full path of the metadata file
func (c *Config) MetaPath() string {
	return filepath.Join(c.Dir, c.MetaFile)
}

package cache

import "errors"

var (
	// ErrCacheMiss is returned when no persisted cache pair exists
	ErrCacheMiss = errors.New("no cached dataset")
	// ErrCacheCorrupt is returned when the persisted pair exists but cannot be used
	ErrCacheCorrupt = errors.New("cached dataset is corrupt")
	// ErrInvalidSource is returned when metadata names an unknown source
	ErrInvalidSource = errors.New("invalid metadata source")
)

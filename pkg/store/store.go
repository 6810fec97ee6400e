// Package store provides the persistent key/value configuration of the
// board.
package store

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Store looks up configuration values.
type Store interface {
	Lookup(key string) (string, bool)
}

// MapStore is an in-memory Store.
type MapStore map[string]string

// Lookup implements Store.
func (s MapStore) Lookup(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// FileStore is a Store backed by a configuration file. The format is
// derived from the file extension (yaml, json, toml, env, ...).
type FileStore struct {
	v *viper.Viper
}

// Open loads the configuration file at path.
func Open(path string) (*FileStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return &FileStore{v: v}, nil
}

// OpenOrEmpty is Open, except a missing file yields an empty store.
func OpenOrEmpty(path string) (Store, error) {
	if path == "" {
		return MapStore{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return MapStore{}, nil
	}
	return Open(path)
}

// Lookup implements Store.
func (s *FileStore) Lookup(key string) (string, bool) {
	if !s.v.IsSet(key) {
		return "", false
	}
	return s.v.GetString(key), true
}

// Set updates a value in memory; Save persists it.
func (s *FileStore) Set(key, value string) {
	s.v.Set(key, value)
}

// Save writes the configuration back to its file.
func (s *FileStore) Save() error {
	return s.v.WriteConfig()
}

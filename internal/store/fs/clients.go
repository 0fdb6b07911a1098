// Package fs implementa core.ClientRepository sobre un archivo YAML.
// Pensado para desarrollo y despliegues sin base de datos.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	"github.com/dropDatabas3/tokenauthority/internal/util/atomicwrite"
	"gopkg.in/yaml.v3"
)

type document struct {
	Clients []core.ClientConfig `yaml:"clients"`
}

// Store mantiene el archivo en memoria; las escrituras se persisten de forma atómica.
type Store struct {
	path string

	mu      sync.RWMutex
	clients map[string]core.ClientConfig
}

// Open lee el archivo. Si no existe, arranca vacío (se crea en el primer Upsert).
func Open(path string) (*Store, error) {
	s := &Store{path: path, clients: map[string]core.ClientConfig{}}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fs: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("fs: parse %s: %w", path, err)
	}
	for i := range doc.Clients {
		c := doc.Clients[i]
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("fs: %s: %w", path, err)
		}
		if _, dup := s.clients[c.ID]; dup {
			return nil, fmt.Errorf("fs: %s: duplicate client %q", path, c.ID)
		}
		s.clients[c.ID] = c
	}
	return s, nil
}

// Load implementa core.ClientRepository.
func (s *Store) Load(ctx context.Context, id string) (*core.ClientConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	c, ok := s.clients[id]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrNotFound
	}
	return &c, nil
}

// Upsert implementa core.ClientWriter.
func (s *Store) Upsert(ctx context.Context, c *core.ClientConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.clients[c.ID]
	s.clients[c.ID] = *c
	if err := s.flushLocked(); err != nil {
		if had {
			s.clients[c.ID] = prev
		} else {
			delete(s.clients, c.ID)
		}
		return err
	}
	return nil
}

// Delete implementa core.ClientWriter.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.clients[id]
	if !ok {
		return core.ErrNotFound
	}
	delete(s.clients, id)
	if err := s.flushLocked(); err != nil {
		s.clients[id] = prev
		return err
	}
	return nil
}

func (s *Store) flushLocked() error {
	doc := document{Clients: make([]core.ClientConfig, 0, len(s.clients))}
	for _, c := range s.clients {
		doc.Clients = append(doc.Clients, c)
	}
	sort.Slice(doc.Clients, func(i, j int) bool { return doc.Clients[i].ID < doc.Clients[j].ID })
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(s.path, b, 0o600, atomicwrite.WithBackup())
}

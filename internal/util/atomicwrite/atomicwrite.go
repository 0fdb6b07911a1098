// Package atomicwrite reemplaza archivos sin estados intermedios visibles
// (tmp en el mismo dir + fsync + rename).
package atomicwrite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type options struct {
	backup bool
}

// Option ajusta WriteFile.
type Option func(*options)

// WithBackup conserva la versión previa en path+".bak" antes de reemplazarla.
func WithBackup() Option { return func(o *options) { o.backup = true } }

// WriteFile escribe data en path. Un lector concurrente ve el contenido viejo o
// el nuevo, nunca uno parcial.
func WriteFile(path string, data []byte, perm fs.FileMode, opts ...Option) error {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicwrite: mkdir %s: %w", dir, err)
	}
	tmpPath, err := writeTemp(dir, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath) // no-op tras un rename exitoso

	if o.backup {
		if err := copyFile(path, path+".bak", perm); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("atomicwrite: backup: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// Windows no pisa un destino abierto
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return fmt.Errorf("atomicwrite: rename: %v (after remove: %v)", err, err2)
		}
	}
	return nil
}

func writeTemp(dir string, data []byte, perm fs.FileMode) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("atomicwrite: create temp: %w", err)
	}
	name := tmp.Name()
	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("atomicwrite: write temp: %w", err)
	}
	if err := os.Chmod(name, perm); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("atomicwrite: chmod temp: %w", err)
	}
	return name, nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, perm)
}

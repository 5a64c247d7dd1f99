package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// BlobStore writes and reads final artifacts on named disks
type BlobStore interface {
	Create(disk, name string) (io.WriteCloser, error)
	Open(disk, name string) (io.ReadCloser, error)
	Remove(disk, name string) error
	Resolve(disk, name string) (string, error)
}

type disk struct {
	fs   afero.Fs
	root string
}

// DiskBlobStore maps disk names onto afero filesystems
type DiskBlobStore struct {
	disks map[string]disk
}

// NewOsBlobStore roots every disk at a directory on the local filesystem
func NewOsBlobStore(roots map[string]string) (*DiskBlobStore, error) {
	store := &DiskBlobStore{disks: make(map[string]disk, len(roots))}
	for name, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve disk '%s': %w", name, err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create disk '%s' root: %w", name, err)
		}
		store.disks[name] = disk{
			fs:   afero.NewBasePathFs(afero.NewOsFs(), abs),
			root: abs,
		}
	}
	return store, nil
}

// NewBlobStore wraps already prepared filesystems, resolving names relative to each fs
func NewBlobStore(filesystems map[string]afero.Fs) *DiskBlobStore {
	store := &DiskBlobStore{disks: make(map[string]disk, len(filesystems))}
	for name, fs := range filesystems {
		store.disks[name] = disk{fs: fs, root: "/"}
	}
	return store
}

// Disks returns the configured disk names, sorted
func (s *DiskBlobStore) Disks() []string {
	names := make([]string, 0, len(s.disks))
	for name := range s.disks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *DiskBlobStore) disk(name string) (disk, error) {
	d, ok := s.disks[name]
	if !ok {
		return disk{}, fmt.Errorf("storage disk '%s' is not configured", name)
	}
	return d, nil
}

func (s *DiskBlobStore) Create(diskName, name string) (io.WriteCloser, error) {
	d, err := s.disk(diskName)
	if err != nil {
		return nil, err
	}
	if err := d.fs.MkdirAll(path.Dir(name), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for '%s': %w", name, err)
	}
	return d.fs.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
}

func (s *DiskBlobStore) Open(diskName, name string) (io.ReadCloser, error) {
	d, err := s.disk(diskName)
	if err != nil {
		return nil, err
	}
	return d.fs.Open(name)
}

// Remove deletes name, treating a missing file as success
func (s *DiskBlobStore) Remove(diskName, name string) error {
	d, err := s.disk(diskName)
	if err != nil {
		return err
	}
	if err := d.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *DiskBlobStore) Resolve(diskName, name string) (string, error) {
	d, err := s.disk(diskName)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(name)), nil
}

var _ BlobStore = (*DiskBlobStore)(nil)

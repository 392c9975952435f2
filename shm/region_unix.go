//go:build unix

package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

var mmap = unix.Mmap

type mappedRegion struct {
	mem   []byte
	path  string
	owner bool
}

// Create creates the backing file of the region described by cfg, maps it
// and publishes its header. Any stale file at the same path is replaced.
func Create(cfg Config, l Layout) (Region, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path := cfg.Path()
	size := l.Size()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating shared region %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("sizing shared region %s: %w", path, err)
	}

	mem, err := mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("mapping shared region %s: %w", path, err)
	}

	initHeader(mem, l)

	return &mappedRegion{mem: mem, path: path, owner: true}, nil
}

// Attach waits until the creator has published the region described by cfg
// and maps it. It gives up when ctx ends.
func Attach(ctx context.Context, cfg Config, l Layout) (Region, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path := cfg.Path()
	size := l.Size()

	var f *os.File
	err := wait(ctx, func() (bool, error) {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if info.Size() < int64(size) {
			return false, nil
		}

		f, err = os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return false, err
		}

		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("attaching shared region %s: %w", path, err)
	}
	defer f.Close()

	mem, err := mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping shared region %s: %w", path, err)
	}

	err = wait(ctx, func() (bool, error) { return headerReady(mem), nil })
	if err == nil {
		err = checkHeader(mem, l)
	}
	if err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("attaching shared region %s: %w", path, err)
	}

	return &mappedRegion{mem: mem, path: path}, nil
}

func (r *mappedRegion) Bytes() []byte {
	return r.mem
}

func (r *mappedRegion) Close() error {
	if r.mem == nil {
		return nil
	}

	err := unix.Munmap(r.mem)
	r.mem = nil

	if r.owner {
		if rmErr := os.Remove(r.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}

	return err
}

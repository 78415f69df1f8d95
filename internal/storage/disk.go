package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/sys/unix"
)

// DefaultChunkSize is the buffer size used for streaming copies. Memory use
// per in-flight transfer is bounded by this regardless of object size.
const DefaultChunkSize = 4 << 20 // 4 MiB

// DiskStore implements the Store interface on the local filesystem. Objects
// are written to "<id>.part" and renamed into place once complete, so a
// half-written object is never visible under its identifier.
type DiskStore struct {
	basePath  string
	maxSize   int64
	chunkSize int
	compress  bool
}

// NewDiskStore creates a DiskStore rooted at basePath. maxSize caps the
// logical size of a single object; chunkSize <= 0 selects DefaultChunkSize.
// With compress set, objects are stored as lz4 frames and decompressed
// transparently on read.
func NewDiskStore(basePath string, maxSize int64, chunkSize int, compress bool) (*DiskStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &DiskStore{
		basePath:  basePath,
		maxSize:   maxSize,
		chunkSize: chunkSize,
		compress:  compress,
	}, nil
}

// Put streams src into a new object file. The size limit is enforced while
// copying, so an oversized slow stream is aborted as soon as it crosses the
// cap. Any failure removes the partial file before the error propagates.
func (s *DiskStore) Put(id string, src io.Reader) (int64, error) {
	finalPath := filepath.Join(s.basePath, id)
	if _, err := os.Lstat(finalPath); err == nil {
		return 0, fmt.Errorf("object %s already exists", id)
	}

	partPath := filepath.Join(s.basePath, id+".part")
	file, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create object file: %w", err)
	}

	written, err := s.copyCapped(file, src)
	if err != nil {
		file.Close()
		os.Remove(partPath)
		return 0, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(partPath)
		return 0, fmt.Errorf("failed to sync object file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("failed to close object file: %w", err)
	}
	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("failed to publish object file: %w", err)
	}
	return written, nil
}

// copyCapped copies src into file in chunkSize pieces, returning the logical
// byte count. Returns ErrTooLarge once the count passes maxSize.
func (s *DiskStore) copyCapped(file *os.File, src io.Reader) (int64, error) {
	var dst io.Writer = file
	var lzw *lz4.Writer
	if s.compress {
		lzw = lz4.NewWriter(file)
		dst = lzw
	}

	buf := make([]byte, s.chunkSize)
	var written int64
	for {
		n, err := io.ReadFull(src, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return written, fmt.Errorf("failed to read source stream: %w", err)
		}
		if n > 0 {
			written += int64(n)
			if s.maxSize > 0 && written > s.maxSize {
				return written, ErrTooLarge
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("failed to write object data: %w", werr)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF || n == 0 {
			break
		}
	}

	if lzw != nil {
		if err := lzw.Close(); err != nil {
			return written, fmt.Errorf("failed to flush compressed data: %w", err)
		}
	}
	return written, nil
}

// Get opens an object for streaming read.
func (s *DiskStore) Get(id string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(s.basePath, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open object file: %w", err)
	}
	if s.compress {
		return &lz4ReadCloser{reader: lz4.NewReader(file), file: file}, nil
	}
	return file, nil
}

// Delete removes the object file, reporting whether it existed. A missing
// file is not an error so deletes stay idempotent.
func (s *DiskStore) Delete(id string) (bool, error) {
	err := os.Remove(filepath.Join(s.basePath, id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to remove object file: %w", err)
}

// AvailableSpace reports free bytes on the filesystem backing the store.
func (s *DiskStore) AvailableSpace() (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.basePath, &stat); err != nil {
		return 0, fmt.Errorf("failed to stat storage filesystem: %w", err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// lz4ReadCloser decompresses on read and closes the underlying file.
type lz4ReadCloser struct {
	reader *lz4.Reader
	file   *os.File
}

func (rc *lz4ReadCloser) Read(p []byte) (int, error) {
	return rc.reader.Read(p)
}

func (rc *lz4ReadCloser) Close() error {
	return rc.file.Close()
}

// Package pager manages a file of fixed-size 4 KiB pages through a single
// read/write memory mapping, giving callers direct byte-addressable access
// to every page.
package pager

import (
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

const (
	// PageSize is the fixed size of every page, chosen to fit one node per page.
	PageSize = 4096

	// InvalidPage is the sentinel page index meaning "no page".
	InvalidPage = PageID(-1)
)

// PageID identifies a page by its index within the file.
type PageID int64

// Pager owns the backing file and its memory mapping. It guarantees that
// every valid page index p yields a PageSize-byte window at offset
// p * PageSize. It is not internally synchronized: callers sharing a
// Pager across goroutines must serialize access themselves (spec §5).
type Pager struct {
	file      *os.File
	data      []byte // the live mmap view over the whole file
	pageCount int64
}

// Open opens or creates the file at path. If the file is new or shorter
// than one page, it is extended to exactly one page. The full file is
// then mapped read/write.
func Open(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "pager: open %q", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "pager: stat %q", path)
	}

	size := info.Size()
	if size < PageSize {
		if err := f.Truncate(PageSize); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "pager: extend %q to one page", path)
		}
		size = PageSize
	}

	data, err := mmapFile(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Pager{
		file:      f,
		data:      data,
		pageCount: size / PageSize,
	}, nil
}

// PageCount returns the total number of allocated pages, including page 0.
func (p *Pager) PageCount() int64 {
	return p.pageCount
}

// Page returns the PageSize-byte window for page id. The returned slice
// aliases the live mapping: it is only valid until the next call to
// Allocate or EnsureCapacity, either of which may remap the file and
// invalidate every previously returned window.
func (p *Pager) Page(id PageID) ([]byte, error) {
	if id < 0 || int64(id) >= p.pageCount {
		return nil, errors.Newf("pager: page %d out of range (count %d)", id, p.pageCount)
	}
	off := int64(id) * PageSize
	return p.data[off : off+PageSize : off+PageSize], nil
}

// EnsureCapacity grows the file and remaps it so that page ids up to
// pages-1 are addressable. A no-op if the file already holds at least
// pages pages. Any byte written through the previous mapping is flushed
// to disk before the mapping is dropped: the old mapping cannot be read
// back once replaced, so this ordering is required, not incidental.
func (p *Pager) EnsureCapacity(pages int64) error {
	if pages <= p.pageCount {
		return nil
	}

	if err := p.Flush(); err != nil {
		return err
	}
	if err := unix.Munmap(p.data); err != nil {
		return errors.Wrap(err, "pager: munmap before grow")
	}
	p.data = nil

	newSize := pages * PageSize
	if err := p.file.Truncate(newSize); err != nil {
		return errors.Wrapf(err, "pager: extend file to %d bytes", newSize)
	}

	data, err := mmapFile(p.file, newSize)
	if err != nil {
		return err
	}
	p.data = data
	p.pageCount = pages
	return nil
}

// Allocate reserves and returns the next page index, growing the file if
// necessary, and zeroes the new page. Allocation is monotonic: pages are
// never reused, even after a merge or root collapse vacates one.
func (p *Pager) Allocate() (PageID, error) {
	id := PageID(p.pageCount)
	if err := p.EnsureCapacity(p.pageCount + 1); err != nil {
		return InvalidPage, err
	}
	page, err := p.Page(id)
	if err != nil {
		return InvalidPage, err
	}
	for i := range page {
		page[i] = 0
	}
	return id, nil
}

// Flush synchronously flushes the mapping to the underlying file.
func (p *Pager) Flush() error {
	if p.data == nil {
		return nil
	}
	if err := unix.Msync(p.data, unix.MS_SYNC); err != nil {
		return errors.Wrap(err, "pager: msync")
	}
	return nil
}

// Close flushes the mapping, unmaps it, and closes the file.
func (p *Pager) Close() error {
	flushErr := p.Flush()

	var unmapErr error
	if p.data != nil {
		unmapErr = unix.Munmap(p.data)
		p.data = nil
	}
	closeErr := p.file.Close()

	switch {
	case flushErr != nil:
		return flushErr
	case unmapErr != nil:
		return errors.Wrap(unmapErr, "pager: munmap on close")
	case closeErr != nil:
		return errors.Wrap(closeErr, "pager: close file")
	default:
		return nil
	}
}

func mmapFile(f *os.File, size int64) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "pager: mmap")
	}
	return data, nil
}

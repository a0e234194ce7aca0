// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build unix

package directory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/gogpu/texshare"
)

// mapping is one sender record mapped into memory.
type mapping struct {
	f   *os.File
	mem []byte
}

func (m *mapping) record() record { return record(m.mem) }

func (m *mapping) close() error {
	err := unix.Munmap(m.mem)
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Directory is the producer side of the sender directory. It implements
// texshare.Announcer and texshare.Locator.
//
// Directory is safe for concurrent use.
type Directory struct {
	root  string
	pid   int
	alive func(int) bool

	mu     sync.Mutex
	owned  map[texshare.SenderName]*mapping
	closed bool
}

var (
	_ texshare.Announcer = (*Directory)(nil)
	_ texshare.Locator   = (*Directory)(nil)
)

// New opens the directory at root, creating it if needed. An empty root
// selects DefaultRoot.
func New(root string, opts ...Option) (*Directory, error) {
	o := options{pid: os.Getpid(), alive: processAlive}
	for _, opt := range opts {
		opt(&o)
	}
	if root == "" {
		root = DefaultRoot()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("directory: create root: %w", err)
	}
	return &Directory{
		root:  root,
		pid:   o.pid,
		alive: o.alive,
		owned: make(map[texshare.SenderName]*mapping),
	}, nil
}

// Root returns the directory path.
func (d *Directory) Root() string { return d.root }

// Announce creates or rewrites the record of info.Name. It fails with
// texshare.ErrNameCollision when a live process other than this Directory
// holds the name; records of dead processes are reclaimed.
func (d *Directory) Announce(info texshare.SenderInfo) error {
	if err := info.Name.Validate(); err != nil {
		return err
	}
	info.PID = d.pid

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return texshare.ErrServiceClosed
	}
	if m, ok := d.owned[info.Name]; ok {
		m.record().write(info)
		return nil
	}

	m, err := d.claim(info)
	if err != nil {
		return err
	}
	d.owned[info.Name] = m

	texshare.Logger().Debug("directory: sender announced", "sender", string(info.Name), "root", d.root)
	return nil
}

// claim creates or reclaims the record file of info.Name, maps it and
// writes info, all under the file lock, so a concurrent claimant never sees
// an empty record.
func (d *Directory) claim(info texshare.SenderInfo) (*mapping, error) {
	name := info.Name
	path := senderPath(d.root, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("directory: open %s: %w", path, err)
	}
	// Closing the file drops the lock, so failures only close.
	fail := func(err error) (*mapping, error) {
		f.Close()
		return nil, err
	}

	fd := int(f.Fd()) //nolint:gosec // file descriptors fit in int
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fail(fmt.Errorf("directory: lock %s: %w", path, err))
	}

	existing := make([]byte, recordSize)
	if n, _ := f.ReadAt(existing, 0); n == recordSize {
		if held, _, ok := record(existing).read(name); ok && held.PID != 0 && d.alive(held.PID) {
			return fail(fmt.Errorf("%w: held by pid %d", texshare.ErrNameCollision, held.PID))
		} else if ok {
			texshare.Logger().Info("directory: reclaiming stale sender record",
				"sender", string(name), "pid", held.PID)
		}
	}

	if err := f.Truncate(recordSize); err != nil {
		return fail(fmt.Errorf("directory: size %s: %w", path, err))
	}
	mem, err := unix.Mmap(fd, 0, recordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fail(fmt.Errorf("directory: map %s: %w", path, err))
	}
	clear(mem)
	m := &mapping{f: f, mem: mem}
	m.record().write(info)

	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		return nil, errors.Join(fmt.Errorf("directory: unlock %s: %w", path, err), m.close())
	}
	return m, nil
}

// Stamp publishes a new freshness counter for name.
func (d *Directory) Stamp(name texshare.SenderName, frame uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.owned[name]
	if !ok {
		return fmt.Errorf("%w: %q not announced here", texshare.ErrUnknownSender, string(name))
	}
	m.record().stamp(frame)
	return nil
}

// Withdraw removes the record of name.
func (d *Directory) Withdraw(name texshare.SenderName) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withdrawLocked(name)
}

func (d *Directory) withdrawLocked(name texshare.SenderName) error {
	m, ok := d.owned[name]
	if !ok {
		return nil
	}
	delete(d.owned, name)
	err := os.Remove(senderPath(d.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	return errors.Join(err, m.close())
}

// Locate implements texshare.Locator for senders of any process.
func (d *Directory) Locate(name texshare.SenderName) (texshare.SenderInfo, bool) {
	d.mu.Lock()
	if m, ok := d.owned[name]; ok {
		info, _, ok := m.record().read(name)
		d.mu.Unlock()
		return info, ok
	}
	d.mu.Unlock()

	r, err := Open(d.root, name)
	if err != nil {
		return texshare.SenderInfo{}, false
	}
	defer r.Close()
	info, err := r.Snapshot()
	if err != nil || !d.alive(info.PID) {
		return texshare.SenderInfo{}, false
	}
	return info, true
}

// Close withdraws every sender announced through d.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	var errs []error
	for name := range d.owned {
		errs = append(errs, d.withdrawLocked(name))
	}
	return errors.Join(errs...)
}

// Reader is a consumer's read-only view of one sender record.
type Reader struct {
	name texshare.SenderName
	m    *mapping
}

// Open maps the record of name under root for reading.
func Open(root string, name texshare.SenderName) (*Reader, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}
	path := senderPath(root, name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", texshare.ErrUnknownSender, string(name))
	}
	if err != nil {
		return nil, fmt.Errorf("directory: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("directory: stat %s: %w", path, err)
	}
	if st.Size() != recordSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrInvalidRecord, path, st.Size())
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, recordSize, unix.PROT_READ, unix.MAP_SHARED) //nolint:gosec // fd fits in int
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("directory: map %s: %w", path, err)
	}
	return &Reader{name: name, m: &mapping{f: f, mem: mem}}, nil
}

// Name returns the sender name.
func (r *Reader) Name() texshare.SenderName { return r.name }

// Snapshot returns a consistent copy of the record.
func (r *Reader) Snapshot() (texshare.SenderInfo, error) {
	e, err := r.entry()
	return e.SenderInfo, err
}

// Frame returns the freshness counter. It is cheap enough to poll every
// frame.
func (r *Reader) Frame() uint64 { return r.m.record().frame() }

// Close unmaps the record.
func (r *Reader) Close() error { return r.m.close() }

func (r *Reader) entry() (Entry, error) {
	rec := r.m.record()
	if !rec.valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidRecord, string(r.name))
	}
	info, stamped, ok := rec.read(r.name)
	if !ok {
		return Entry{}, ErrTorn
	}
	return Entry{SenderInfo: info, Stamped: stamped, Alive: processAlive(info.PID)}, nil
}

// List returns every readable sender record under root, sorted by name.
// Records of dead producers are included with Alive false.
func List(root string) ([]Entry, error) {
	dirents, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: list %s: %w", root, err)
	}

	var out []Entry
	for _, de := range dirents {
		if !de.Type().IsRegular() {
			continue
		}
		r, err := Open(root, texshare.SenderName(de.Name()))
		if err != nil {
			continue
		}
		e, err := r.entry()
		r.Close()
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// processAlive reports whether pid exists. EPERM means it exists but
// belongs to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

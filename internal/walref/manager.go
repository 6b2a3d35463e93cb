// Package walref is the buffer pool manager's log-manager collaborator.
// The pool holds a reference to it for future write-ahead-logging hooks
// but does not invoke it from any BPM operation yet — eviction and
// flush are not required to log a page image before writing it back.
//
// The type is a real, working page-image log (not a stub) so that the
// day the BPM grows WAL coordination, there is something concrete to
// call rather than an interface{} placeholder.
package walref

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/pagecache/internal/pagecore"
)

var (
	ErrBadMagic  = errors.New("walref: bad magic")
	ErrBadRecord = errors.New("walref: bad record")
	ErrShortRead = errors.New("walref: short read")
)

const (
	magic   uint32 = 0x50414758 // "PAGX"
	version uint16 = 1

	// fixed header: magic(4) version(2) totalLen(4) crc(4) lsn(8) pageID(4)
	headerLen = 4 + 2 + 4 + 4 + 8 + 4
)

// Manager appends page-image records to a single append-only file and
// can replay them later. The buffer pool never calls AppendPageImage
// itself today; it only holds a *Manager so higher layers that do
// choose to log have one ready.
type Manager struct {
	mu  sync.Mutex
	f   *os.File
	lsn uint64
}

// Open opens (creating if necessary) the WAL file at dir/wal.log.
func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "wal.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Manager{f: f}, nil
}

// Close closes the underlying file. Safe to call on a nil *Manager.
func (m *Manager) Close() error {
	if m == nil || m.f == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.f.Close()
	m.f = nil
	return err
}

// AppendPageImage writes a full-page image record and returns its LSN.
// Not called by the buffer pool manager; exposed for callers that need
// durability ahead of the BPM gaining WAL coordination.
func (m *Manager) AppendPageImage(id pagecore.PageID, data []byte) (uint64, error) {
	if len(data) != pagecore.PageSize {
		return 0, ErrBadRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, errors.New("walref: manager closed")
	}

	m.lsn++
	lsn := m.lsn

	total := headerLen + pagecore.PageSize
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], version)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(total))
	// crc placeholder at buf[10:14]
	binary.LittleEndian.PutUint64(buf[14:22], lsn)
	binary.LittleEndian.PutUint32(buf[22:26], uint32(id))
	copy(buf[headerLen:], data)

	crc := crc32.ChecksumIEEE(buf[14:])
	binary.LittleEndian.PutUint32(buf[10:14], crc)

	if _, err := m.f.Write(buf); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Flush fsyncs the WAL file.
func (m *Manager) Flush() error {
	if m == nil || m.f == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f.Sync()
}

// Record is one decoded page-image log entry.
type Record struct {
	LSN    uint64
	PageID pagecore.PageID
	Data   []byte
}

// Replay reads every record from the WAL file at dir/wal.log in order.
func Replay(dir string) ([]Record, error) {
	f, err := os.Open(filepath.Join(dir, "wal.log"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	var out []Record
	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortRead) {
				return out, nil
			}
			return out, err
		}
		out = append(out, *rec)
	}
}

func readOne(r *bufio.Reader) (*Record, error) {
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}

	gotMagic := binary.LittleEndian.Uint32(hdr[0:4])
	if gotMagic != magic {
		return nil, ErrBadMagic
	}
	gotVersion := binary.LittleEndian.Uint16(hdr[4:6])
	if gotVersion != version {
		return nil, ErrBadRecord
	}
	total := binary.LittleEndian.Uint32(hdr[6:10])
	wantCRC := binary.LittleEndian.Uint32(hdr[10:14])
	lsn := binary.LittleEndian.Uint64(hdr[14:22])
	pageID := binary.LittleEndian.Uint32(hdr[22:26])

	dataLen := int(total) - headerLen
	if dataLen != pagecore.PageSize {
		return nil, ErrBadRecord
	}

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}

	gotCRC := crc32.ChecksumIEEE(append(hdr[14:26:26], data...))
	if gotCRC != wantCRC {
		return nil, ErrBadRecord
	}

	return &Record{LSN: lsn, PageID: pagecore.PageID(pageID), Data: data}, nil
}

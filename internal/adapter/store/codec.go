package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"txtvec/internal/adapter/vectorindex"
	"txtvec/internal/domain"
)

// FormatVersion is the version tag written to and required in index files.
// Increment this when making breaking changes to the layout.
const FormatVersion uint16 = 1

var indexMagic = [4]byte{'T', 'X', 'V', 'I'}

const (
	maxSourceLen  = 1 << 16
	maxDimension  = 1 << 16
	maxPreallocN  = 1 << 16
	headerSize    = 4 + 2 + 2 + 16 + 4 + 8
	entryFixedLen = 8 + 4 + 4
)

// Save writes idx to w:
//
//	magic "TXVI" | version u16 | flags u16 | index id [16] | dimension u32 | count u64
//	count × { id u64 | chunk_index u32 | source_len u32 | source | dimension × f32 }
//	crc32 (IEEE) over everything before it
//
// All integers are little-endian.
func Save(w io.Writer, idx *vectorindex.Flat) error {
	entries := idx.Entries()
	dim := idx.Dimension()
	if dim > maxDimension {
		return fmt.Errorf("dimension %d exceeds %d", dim, maxDimension)
	}

	crc := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, crc))

	header := make([]byte, headerSize)
	copy(header[0:4], indexMagic[:])
	binary.LittleEndian.PutUint16(header[4:6], FormatVersion)
	binary.LittleEndian.PutUint16(header[6:8], 0)
	id := idx.ID()
	copy(header[8:24], id[:])
	binary.LittleEndian.PutUint32(header[24:28], uint32(dim))
	binary.LittleEndian.PutUint64(header[28:36], uint64(len(entries)))
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	fixed := make([]byte, entryFixedLen)
	vec := make([]byte, 4*dim)
	for _, e := range entries {
		if e.Metadata.ChunkIndex < 0 || uint64(e.Metadata.ChunkIndex) > math.MaxUint32 {
			return fmt.Errorf("entry %d: chunk index %d out of range", e.ID, e.Metadata.ChunkIndex)
		}
		if len(e.Metadata.Source) > maxSourceLen {
			return fmt.Errorf("entry %d: source name longer than %d bytes", e.ID, maxSourceLen)
		}

		binary.LittleEndian.PutUint64(fixed[0:8], uint64(e.ID))
		binary.LittleEndian.PutUint32(fixed[8:12], uint32(e.Metadata.ChunkIndex))
		binary.LittleEndian.PutUint32(fixed[12:16], uint32(len(e.Metadata.Source)))
		if _, err := bw.Write(fixed); err != nil {
			return fmt.Errorf("write entry %d: %w", e.ID, err)
		}
		if _, err := bw.WriteString(e.Metadata.Source); err != nil {
			return fmt.Errorf("write entry %d: %w", e.ID, err)
		}
		for i, x := range e.Vector {
			binary.LittleEndian.PutUint32(vec[i*4:], math.Float32bits(x))
		}
		if _, err := bw.Write(vec); err != nil {
			return fmt.Errorf("write entry %d: %w", e.ID, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], crc.Sum32())
	if _, err := w.Write(trailer[:]); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return nil
}

// Load reads an index written by Save. A stream with another magic or
// version fails with domain.ErrIncompatibleFormat; a truncated or damaged
// stream fails with domain.ErrCorruptIndex.
func Load(r io.Reader) (*vectorindex.Flat, error) {
	crc := crc32.NewIEEE()
	cr := &checksumReader{r: bufio.NewReader(r), h: crc}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(cr, header[:8]); err != nil {
		return nil, corrupt("header", err)
	}
	if [4]byte(header[0:4]) != indexMagic {
		return nil, &domain.FormatError{Reason: fmt.Sprintf("bad magic %q", header[0:4])}
	}
	version := binary.LittleEndian.Uint16(header[4:6])
	if version != FormatVersion {
		return nil, &domain.FormatError{Version: version, Reason: fmt.Sprintf("unsupported version, expected %d", FormatVersion)}
	}
	if _, err := io.ReadFull(cr, header[8:]); err != nil {
		return nil, corrupt("header", err)
	}

	id, err := uuid.FromBytes(header[8:24])
	if err != nil {
		return nil, corrupt("index id", err)
	}
	rawDim := binary.LittleEndian.Uint32(header[24:28])
	if rawDim > maxDimension {
		return nil, corrupt("header", fmt.Errorf("dimension %d exceeds %d", rawDim, maxDimension))
	}
	dim := int(rawDim)
	count := binary.LittleEndian.Uint64(header[28:36])
	if dim == 0 && count > 0 {
		return nil, corrupt("header", errors.New("entries without dimension"))
	}

	entries := make([]domain.IndexEntry, 0, min(count, maxPreallocN))
	fixed := make([]byte, entryFixedLen)
	var vec []byte
	if count > 0 {
		vec = make([]byte, 4*dim)
	}
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(cr, fixed); err != nil {
			return nil, corrupt(fmt.Sprintf("entry %d", i), err)
		}
		entryID := binary.LittleEndian.Uint64(fixed[0:8])
		if entryID != i {
			return nil, corrupt(fmt.Sprintf("entry %d", i), fmt.Errorf("id %d out of sequence", entryID))
		}
		sourceLen := binary.LittleEndian.Uint32(fixed[12:16])
		if sourceLen > maxSourceLen {
			return nil, corrupt(fmt.Sprintf("entry %d", i), fmt.Errorf("source length %d", sourceLen))
		}
		source := make([]byte, sourceLen)
		if _, err := io.ReadFull(cr, source); err != nil {
			return nil, corrupt(fmt.Sprintf("entry %d", i), err)
		}
		if _, err := io.ReadFull(cr, vec); err != nil {
			return nil, corrupt(fmt.Sprintf("entry %d", i), err)
		}
		vector := make([]float32, dim)
		for j := range vector {
			vector[j] = math.Float32frombits(binary.LittleEndian.Uint32(vec[j*4:]))
		}

		entries = append(entries, domain.IndexEntry{
			ID:     int(entryID),
			Vector: vector,
			Metadata: domain.Metadata{
				Source:     string(source),
				ChunkIndex: int(binary.LittleEndian.Uint32(fixed[8:12])),
			},
		})
	}

	want := crc.Sum32()
	var trailer [4]byte
	if _, err := io.ReadFull(cr.r, trailer[:]); err != nil {
		return nil, corrupt("checksum", err)
	}
	if got := binary.LittleEndian.Uint32(trailer[:]); got != want {
		return nil, corrupt("checksum", fmt.Errorf("stored %08x, computed %08x", got, want))
	}

	return vectorindex.Restore(id, dim, entries)
}

// SaveFile writes idx to path through a temporary file and a rename, so an
// interrupted save leaves any previous index intact.
func SaveFile(path string, idx *vectorindex.Flat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := Save(f, idx); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

// LoadFile reads an index file written by SaveFile.
func LoadFile(path string) (*vectorindex.Flat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return idx, nil
}

func corrupt(what string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%s: %w: %w", what, domain.ErrCorruptIndex, err)
}

// checksumReader feeds everything it reads into h.
type checksumReader struct {
	r io.Reader
	h hash.Hash32
}

func (c *checksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.h.Write(p[:n])
	return n, err
}

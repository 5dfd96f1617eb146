// Package packfile writes and reads Git packfile v2 streams without delta
// encoding (spec.md §4.B). The writer is what the SSH front-end streams to
// clients; the reader exists only to support packfile round-trip tests
// (spec.md §8 property 2) without shelling out to a real git binary.
package packfile

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"github.com/chartered-rs/chartered-git-index/internal/gitobject"
	"github.com/klauspost/compress/zlib"
)

// Object type codes as encoded in packfile object headers (spec.md §4.B).
const (
	typeCommit = 1
	typeTree   = 2
	typeBlob   = 3
)

func kindToType(k gitobject.Kind) (int, error) {
	switch k {
	case gitobject.KindCommit:
		return typeCommit, nil
	case gitobject.KindTree:
		return typeTree, nil
	case gitobject.KindBlob:
		return typeBlob, nil
	default:
		return 0, fmt.Errorf("packfile: unknown object kind %q", k)
	}
}

func typeToKind(t int) (gitobject.Kind, error) {
	switch t {
	case typeCommit:
		return gitobject.KindCommit, nil
	case typeTree:
		return gitobject.KindTree, nil
	case typeBlob:
		return gitobject.KindBlob, nil
	default:
		return "", fmt.Errorf("packfile: unknown object type %d", t)
	}
}

// Entry is one object to emit: its Git object kind and canonical
// (uncompressed) payload bytes, i.e. gitobject.Object.Encode()'s output.
type Entry struct {
	Kind    gitobject.Kind
	Payload []byte
}

// Writer streams a packfile incrementally, updating a running SHA-1 so the
// trailing checksum never requires buffering the whole pack (spec.md §4.B).
type Writer struct {
	w     io.Writer
	sum   hash.Hash
	tee   io.Writer
	count uint32
}

// NewWriter returns a Writer that will emit count objects. Header() must be
// called before any Object() call.
func NewWriter(w io.Writer, count uint32) *Writer {
	sum := sha1.New()
	return &Writer{w: w, sum: sum, tee: io.MultiWriter(w, sum), count: count}
}

// Header writes the "PACK", version, and object-count fields.
func (pw *Writer) Header() error {
	if _, err := pw.tee.Write([]byte("PACK")); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 2)
	if _, err := pw.tee.Write(lenBuf[:]); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(lenBuf[:], pw.count)
	_, err := pw.tee.Write(lenBuf[:])
	return err
}

// Object writes one object's variable-length header and zlib-deflated
// payload.
func (pw *Writer) Object(e Entry) error {
	typ, err := kindToType(e.Kind)
	if err != nil {
		return err
	}
	if err := writeObjHeader(pw.tee, typ, len(e.Payload)); err != nil {
		return err
	}
	zw := zlib.NewWriter(pw.tee)
	if _, err := zw.Write(e.Payload); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Trailer appends the 20-byte SHA-1 of every byte emitted so far.
func (pw *Writer) Trailer() error {
	_, err := pw.w.Write(pw.sum.Sum(nil))
	return err
}

// Build encodes entries into a complete packfile in one call: header, every
// object, trailing checksum. Object ordering is whatever order entries are
// given in — spec.md §4.B leaves pack-internal order unspecified.
func Build(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	pw := NewWriter(&buf, uint32(len(entries)))
	if err := pw.Header(); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := pw.Object(e); err != nil {
			return nil, err
		}
	}
	if err := pw.Trailer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeObjHeader(w io.Writer, objType int, size int) error {
	b := byte((objType & 0x07) << 4)
	b |= byte(size & 0x0f)
	remaining := size >> 4
	if remaining > 0 {
		b |= 0x80
	}
	buf := []byte{b}
	for remaining > 0 {
		b = byte(remaining & 0x7f)
		remaining >>= 7
		if remaining > 0 {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	_, err := w.Write(buf)
	return err
}

func readObjHeader(r io.ByteReader) (objType int, size int64, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	objType = int((b >> 4) & 0x07)
	size = int64(b & 0x0f)
	shift := uint(4)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= int64(b&0x7f) << shift
		shift += 7
	}
	return objType, size, nil
}

// Object is a decoded packfile entry: its Git kind and canonical payload.
type Object struct {
	Kind    gitobject.Kind
	Payload []byte
}

// Parse reads a whole-object (no delta) packfile, validating the magic,
// version, and trailing SHA-1 checksum. This is the reader half used only
// by round-trip tests (spec.md §8 property 2); the synthesizer never emits
// deltas, so this reader does not resolve OFS_DELTA/REF_DELTA.
func Parse(r io.Reader) ([]Object, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read packfile: %w", err)
	}
	if len(all) < 12+20 {
		return nil, fmt.Errorf("packfile too short")
	}
	body, trailer := all[:len(all)-20], all[len(all)-20:]

	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("packfile trailer mismatch")
	}

	buf := bytes.NewReader(body)
	var magic [4]byte
	if _, err := io.ReadFull(buf, magic[:]); err != nil {
		return nil, err
	}
	if string(magic[:]) != "PACK" {
		return nil, fmt.Errorf("invalid packfile magic: %q", magic)
	}
	var version, count uint32
	if err := binary.Read(buf, binary.BigEndian, &version); err != nil {
		return nil, err
	}
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("unsupported packfile version: %d", version)
	}
	if err := binary.Read(buf, binary.BigEndian, &count); err != nil {
		return nil, err
	}

	objects := make([]Object, 0, count)
	for i := uint32(0); i < count; i++ {
		typ, size, err := readObjHeader(buf)
		if err != nil {
			return nil, fmt.Errorf("object %d header: %w", i, err)
		}
		kind, err := typeToKind(typ)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		zr, err := zlib.NewReader(buf)
		if err != nil {
			return nil, fmt.Errorf("object %d zlib: %w", i, err)
		}
		payload, err := io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("object %d payload: %w", i, err)
		}
		if int64(len(payload)) != size {
			return nil, fmt.Errorf("object %d: size mismatch, header said %d, got %d", i, size, len(payload))
		}
		objects = append(objects, Object{Kind: kind, Payload: payload})
	}

	return objects, nil
}

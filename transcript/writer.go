package transcript

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/relay/log"
)

// Record framing constants.
const (
	// MaxRecordSize is the maximum encoded record size, including the
	// length prefix.
	MaxRecordSize = 16 * 1024 * 1024
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxPayloadSize is the maximum encoded record payload size.
	MaxPayloadSize = MaxRecordSize - LengthPrefixSize
)

// Writer appends transcript records to a file.
//
// The first write failure logs, disables the writer, and is counted by
// the caller; subsequent appends become no-ops. Thread-safe.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	disabled bool
	logger   *log.Logger
}

// NewWriter opens (or creates) the transcript file for appending.
// Parent directories are created as needed.
func NewWriter(path string, logger *log.Logger) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript file %q: %w", path, err)
	}
	return &Writer{file: file, logger: logger}, nil
}

// Append encodes the record and writes it as one length-prefixed frame.
// Returns false when the record was not persisted (writer disabled, or
// this write failed and disabled it).
func (w *Writer) Append(rec *Record) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.disabled {
		return false
	}

	payload, err := msgpack.Marshal(rec)
	if err != nil {
		w.disable("encode transcript record", err)
		return false
	}
	if len(payload) > MaxPayloadSize {
		w.disable("transcript record too large", fmt.Errorf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize))
		return false
	}

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := w.file.Write(prefix[:]); err != nil {
		w.disable("write transcript record", err)
		return false
	}
	if _, err := w.file.Write(payload); err != nil {
		w.disable("write transcript record", err)
		return false
	}
	return true
}

// disable turns the writer off for the rest of the session.
func (w *Writer) disable(msg string, err error) {
	w.disabled = true
	w.logger.Error(msg, map[string]any{
		"error": err.Error(),
	})
}

// Disabled reports whether the writer has shut itself off.
func (w *Writer) Disabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disabled
}

// Close syncs and closes the transcript file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	file := w.file
	w.file = nil
	w.disabled = true
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Reader decodes length-prefixed transcript records from a stream.
type Reader struct {
	reader io.Reader
}

// NewReader creates a transcript reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: r}
}

// Next reads a single record from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more records)
//   - anything else: truncated frame, oversized frame, or decode failure
func (r *Reader) Next() (*Record, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r.reader, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}

	payloadSize := binary.BigEndian.Uint32(prefix[:])
	if payloadSize > MaxPayloadSize {
		return nil, fmt.Errorf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize)
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r.reader, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	var rec Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

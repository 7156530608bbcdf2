package adsb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/yegors/planereports/internal/report"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ArchiveStats counts what an archive reader has consumed
type ArchiveStats struct {
	Documents int `json:"documents"`
	Reports   int `json:"reports"`
	Skipped   int `json:"skipped"`
}

// ArchiveReader replays recorded feed documents. The stream holds one JSON
// document after another, usually one per line, in any supported format, and
// may be zstd compressed.
type ArchiveReader struct {
	dec   *json.Decoder
	zr    *zstd.Decoder
	file  *os.File
	opts  Options
	stats ArchiveStats
}

// NewArchiveReader wraps r, decompressing it when it starts with a zstd frame
func NewArchiveReader(r io.Reader, opts Options) (*ArchiveReader, error) {
	br := bufio.NewReader(r)
	a := &ArchiveReader{opts: opts}

	magic, err := br.Peek(len(zstdMagic))
	if err == nil && bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		a.zr = zr
		a.dec = json.NewDecoder(zr)
	} else {
		a.dec = json.NewDecoder(br)
	}
	return a, nil
}

// OpenArchive opens an archive file
func OpenArchive(path string, opts Options) (*ArchiveReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	a, err := NewArchiveReader(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.file = f
	return a, nil
}

// Next decodes the next document. It returns io.EOF when the archive is
// exhausted.
func (a *ArchiveReader) Next() (Batch, error) {
	var raw json.RawMessage
	if err := a.dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Batch{}, io.EOF
		}
		return Batch{}, fmt.Errorf("document %d: %w", a.stats.Documents+1, err)
	}
	a.stats.Documents++

	batch, err := Decode(raw, a.opts)
	if err != nil {
		return Batch{}, fmt.Errorf("document %d: %w", a.stats.Documents, err)
	}
	a.stats.Reports += len(batch.Reports)
	a.stats.Skipped += batch.Skipped
	return batch, nil
}

// Stats returns the counters so far
func (a *ArchiveReader) Stats() ArchiveStats {
	return a.stats
}

// Close releases the decompressor and the file, if any
func (a *ArchiveReader) Close() error {
	if a.zr != nil {
		a.zr.Close()
	}
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// ArchiveWriter records canonical reports as JSON lines that ArchiveReader can
// replay
type ArchiveWriter struct {
	enc  *json.Encoder
	zw   *zstd.Encoder
	file *os.File
}

// NewArchiveWriter writes to w, zstd compressed when compress is set
func NewArchiveWriter(w io.Writer, compress bool) (*ArchiveWriter, error) {
	a := &ArchiveWriter{}
	if compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd stream: %w", err)
		}
		a.zw = zw
		w = zw
	}
	a.enc = json.NewEncoder(w)
	return a, nil
}

// CreateArchive creates an archive file, compressed when the name ends in .zst
func CreateArchive(path string) (*ArchiveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	a, err := NewArchiveWriter(f, strings.HasSuffix(path, ".zst"))
	if err != nil {
		f.Close()
		return nil, err
	}
	a.file = f
	return a, nil
}

// Write appends reports, one per line
func (a *ArchiveWriter) Write(reports []report.PositionReport) error {
	for i := range reports {
		if err := a.enc.Encode(&reports[i]); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

// Close flushes the compressor and closes the file, if any
func (a *ArchiveWriter) Close() error {
	var err error
	if a.zw != nil {
		err = a.zw.Close()
	}
	if a.file != nil {
		if cerr := a.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Package segment reads and writes immutable .gzx gazetteer index segments.
//
// Layout: a 64-byte header, the postings region (one JSON posting list per
// field/term), the stored-documents region (one JSON document each), the
// JSON dictionary, and a 32-byte footer carrying the dictionary CRC.
package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index/memindex"
)

const (
	MagicBytes    uint32 = 0x475A5831 // "GZX1"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".gzx"
)

// Header is the fixed-size segment header.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	PostOffset int64
	PostSize   int64
	DocsOffset int64
	DocsSize   int64
	DictOffset int64
	DictSize   int64
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DocsOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.DocsSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DictSize))
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		PostOffset: int64(binary.LittleEndian.Uint64(b[16:24])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[24:32])),
		DocsOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		DocsSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		DictOffset: int64(binary.LittleEndian.Uint64(b[48:56])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

// TermEntry locates one field/term posting list. Offsets are relative to the
// postings region.
type TermEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// DocEntry locates one stored document relative to the documents region.
type DocEntry struct {
	ID      string         `json:"id"`
	Offset  int64          `json:"o"`
	Len     int            `json:"l"`
	Lengths map[string]int `json:"n"`
}

// Dictionary is the segment's lookup structure. Terms are sorted by field
// then term; Docs keep insertion order.
type Dictionary struct {
	Fields    []string    `json:"fields"`
	Terms     []TermEntry `json:"terms"`
	Docs      []DocEntry  `json:"docs"`
	CreatedAt int64       `json:"created_at"`
}

type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// countingWriter tracks the write offset through a bufio.Writer.
type countingWriter struct {
	w   *bufio.Writer
	off int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.off += int64(n)
	return n, err
}

// Write creates a new segment from a memory-index snapshot. The file is
// written under a temporary name and renamed once synced.
func (w *Writer) Write(entries []memindex.TermEntry, docs []memindex.StoredDoc, fields []string) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	name := fmt.Sprintf("seg_%d%s", time.Now().UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	cw := &countingWriter{w: bufio.NewWriter(f)}
	if _, err := cw.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	dict := Dictionary{
		Fields:    fields,
		Terms:     make([]TermEntry, 0, len(entries)),
		Docs:      make([]DocEntry, 0, len(docs)),
		CreatedAt: time.Now().Unix(),
	}
	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(entries)),
		DocCount:   uint32(len(docs)),
		PostOffset: cw.off,
	}
	for _, e := range entries {
		data, err := json.Marshal(e.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for %s:%q: %w", e.Field, e.Term, err)
		}
		dict.Terms = append(dict.Terms, TermEntry{
			Field:      e.Field,
			Term:       e.Term,
			PostOffset: cw.off - header.PostOffset,
			PostLen:    len(data),
			DocFreq:    len(e.Postings),
		})
		if _, err := cw.Write(data); err != nil {
			return "", fmt.Errorf("writing postings: %w", err)
		}
	}
	header.PostSize = cw.off - header.PostOffset

	header.DocsOffset = cw.off
	for _, d := range docs {
		data, err := json.Marshal(d.Fields)
		if err != nil {
			return "", fmt.Errorf("marshaling document %q: %w", d.ID, err)
		}
		dict.Docs = append(dict.Docs, DocEntry{
			ID:      d.ID,
			Offset:  cw.off - header.DocsOffset,
			Len:     len(data),
			Lengths: d.Lengths,
		})
		if _, err := cw.Write(data); err != nil {
			return "", fmt.Errorf("writing document: %w", err)
		}
	}
	header.DocsSize = cw.off - header.DocsOffset

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	header.DictOffset = cw.off
	header.DictSize = int64(len(dictData))
	if _, err := cw.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	if _, err := cw.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if err := cw.w.Flush(); err != nil {
		return "", fmt.Errorf("flushing segment: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return name, nil
}

package tile

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// diskEntry records where a spilled record lives in the temp file.
type diskEntry struct {
	offset   int64
	bands    int
	width    int
	height   int
	ancestor Address
}

func (e diskEntry) length() int64 {
	return int64(e.bands*e.width*e.height) * 8
}

// Store holds the reduced records of one pyramid level. It is safe for
// concurrent use.
//
// Records live in an in-memory map until the estimated resident size
// crosses the memory limit; then every resident record is appended to a
// temporary file as little-endian float64 samples and only a small index
// entry stays in memory. Reads check memory first, then the file. Records
// are Put in Hilbert order by the builder, so the file has good locality
// for the parent pass that reads them back.
type Store struct {
	mu      sync.RWMutex
	records map[Address]Record
	index   map[Address]diskEntry

	file    *os.File
	fileOff int64
	dir     string

	memBytes       atomic.Int64
	memLimit       int64
	flushCount     int
	totalFlushed   int64
	checkInterval  int64
	putsSinceCheck atomic.Int64

	verbose bool
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// InitialCapacity is the expected number of records.
	InitialCapacity int
	// TempDir is where the spill file is created. Defaults to the OS temp dir.
	TempDir string
	// MemoryLimitBytes is the resident size that triggers a flush. Zero
	// keeps everything in memory.
	MemoryLimitBytes int64
	// CheckInterval is the number of Puts between memory checks. Defaults to 1024.
	CheckInterval int
	// Verbose logs flush events.
	Verbose bool
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	capacity := max(cfg.InitialCapacity, 64)
	dir := cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	interval := int64(cfg.CheckInterval)
	if interval <= 0 {
		interval = 1024
	}
	return &Store{
		records:       make(map[Address]Record, capacity),
		index:         make(map[Address]diskEntry),
		dir:           dir,
		memLimit:      cfg.MemoryLimitBytes,
		checkInterval: interval,
		verbose:       cfg.Verbose,
	}
}

func recordBytes(r Record) int64 {
	if r.Data == nil {
		return 0
	}
	return int64(len(r.Data.Data)) * 8
}

// Put stores rec, replacing any record at the same address. It may flush
// resident records to disk.
func (s *Store) Put(rec Record) error {
	if rec.Data == nil {
		return fmt.Errorf("store %s: record has no data", rec.Addr)
	}
	s.mu.Lock()
	if old, ok := s.records[rec.Addr]; ok {
		s.memBytes.Add(-recordBytes(old))
	}
	delete(s.index, rec.Addr)
	s.records[rec.Addr] = rec
	s.memBytes.Add(recordBytes(rec))
	s.mu.Unlock()

	if s.memLimit > 0 {
		n := s.putsSinceCheck.Add(1)
		if n >= s.checkInterval {
			s.putsSinceCheck.Store(0)
			if s.memBytes.Load() > s.memLimit {
				return s.Flush()
			}
		}
	}
	return nil
}

// Get returns the record at a. ok is false when the store has none.
func (s *Store) Get(a Address) (rec Record, ok bool, err error) {
	s.mu.RLock()
	rec, ok = s.records[a]
	de, onDisk := s.index[a]
	f := s.file
	s.mu.RUnlock()
	if ok {
		return rec, true, nil
	}
	if !onDisk || f == nil {
		return Record{}, false, nil
	}

	buf := make([]byte, de.length())
	if _, err := f.ReadAt(buf, de.offset); err != nil {
		return Record{}, false, fmt.Errorf("store %s: reading spill file: %w", a, err)
	}
	data := raster.NewBuffer(de.bands, de.width, de.height)
	for i := range data.Data {
		data.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return Record{Addr: a, Data: data, Ancestor: de.ancestor}, true, nil
}

// Len returns the number of stored records, resident and spilled.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records) + len(s.index)
}

// Addresses returns every stored address in no particular order.
func (s *Store) Addresses() []Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Address, 0, len(s.records)+len(s.index))
	for a := range s.records {
		out = append(out, a)
	}
	for a := range s.index {
		out = append(out, a)
	}
	return out
}

// MemoryBytes returns the estimated resident sample bytes.
func (s *Store) MemoryBytes() int64 {
	return s.memBytes.Load()
}

// Flush writes every resident record to the spill file.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return nil
	}
	if s.file == nil {
		f, err := os.CreateTemp(s.dir, "rasterpyramid-store-*.tmp")
		if err != nil {
			return fmt.Errorf("store: creating spill file: %w", err)
		}
		s.file = f
	}

	count := len(s.records)
	var flushed int64
	var writeBuf []byte
	for a, rec := range s.records {
		n := len(rec.Data.Data) * 8
		if cap(writeBuf) < n {
			writeBuf = make([]byte, n)
		}
		writeBuf = writeBuf[:n]
		for i, v := range rec.Data.Data {
			binary.LittleEndian.PutUint64(writeBuf[i*8:], math.Float64bits(v))
		}
		if _, err := s.file.WriteAt(writeBuf, s.fileOff); err != nil {
			return fmt.Errorf("store: writing spill file: %w", err)
		}
		s.index[a] = diskEntry{
			offset:   s.fileOff,
			bands:    rec.Data.Bands,
			width:    rec.Data.Width,
			height:   rec.Data.Height,
			ancestor: rec.Ancestor,
		}
		s.fileOff += int64(n)
		flushed += int64(n)
	}

	s.records = make(map[Address]Record, 1024)
	s.memBytes.Store(0)
	s.flushCount++
	s.totalFlushed += int64(count)

	if s.verbose {
		log.Printf("Record store: flushed %d records (%.1f MB) to disk (total on disk: %d records, %.1f MB file)",
			count, float64(flushed)/(1024*1024),
			len(s.index), float64(s.fileOff)/(1024*1024))
	}
	return nil
}

// Close removes the spill file. The store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	s.file = nil
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}

// spillPath returns the spill file path, or "" before the first flush.
func (s *Store) spillPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file != nil {
		return s.file.Name()
	}
	return ""
}

// Stats returns a human-readable summary of the store's usage.
func (s *Store) Stats() string {
	mem := s.MemoryBytes()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("in-memory: %d records (%.1f MB), on-disk: %d records (%.1f MB file), flushes: %d",
		len(s.records), float64(mem)/(1024*1024),
		len(s.index), float64(s.fileOff)/(1024*1024),
		s.flushCount)
}

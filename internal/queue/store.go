// Package queue holds items waiting for recipients who were offline when
// their order was delivered.
//
// The in-memory map is the source of truth while the process runs; the
// backend only mirrors it and is read once, by Load.
package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/buildtall-systems/storebridge/internal/materials"
)

// ErrFlush indicates the queue could not be written to its backend.
// The in-memory mutation that triggered the flush is kept.
var ErrFlush = errors.New("flushing pending queue")

// ErrMalformed indicates the persisted queue could not be decoded at all.
var ErrMalformed = errors.New("malformed pending queue")

// Item is one pending grant. Items are values and never change after creation.
type Item struct {
	Material materials.Material
	Amount   int
	Note     string
}

func (i Item) String() string {
	s := fmt.Sprintf("%dx %s", i.Amount, i.Material.Name())
	if i.Note != "" {
		s += " (" + i.Note + ")"
	}
	return s
}

// Backend reads and writes the serialized queue. Read returns an error
// satisfying errors.Is(err, fs.ErrNotExist) when nothing was persisted yet.
type Backend interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// MaterialMatcher resolves persisted material keys.
type MaterialMatcher interface {
	Match(name string) (materials.Material, bool)
}

// Store is the pending-item queue keyed by case-insensitive recipient.
type Store struct {
	backend   Backend
	materials MaterialMatcher
	log       *slog.Logger

	mu      sync.Mutex
	pending map[string][]Item
}

// NewStore creates an empty store. Call Load to read persisted state.
func NewStore(backend Backend, m MaterialMatcher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:   backend,
		materials: m,
		log:       logger,
		pending:   make(map[string][]Item),
	}
}

// NormalizeRecipient returns the queue key for a recipient name.
func NormalizeRecipient(recipient string) string {
	return strings.ToLower(strings.TrimSpace(recipient))
}

// Load replaces the in-memory queue with the persisted one. A missing file
// yields an empty queue and no error. Undecodable entries are skipped with a
// warning. If the document itself is unreadable the queue is reset to empty
// and the error is returned for the caller to report.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string][]Item)

	data, err := s.backend.Read()
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("no pending queue file found, starting with empty queue")
		return nil
	}
	if err != nil {
		s.log.Error("failed to read pending queue", "error", err)
		return fmt.Errorf("reading pending queue: %w", err)
	}

	loaded, err := decode(data, s.materials, s.log)
	if err != nil {
		s.log.Error("failed to load pending queue file, starting empty", "error", err)
		return err
	}
	s.pending = loaded

	s.log.Info("loaded pending queue", "recipients", len(s.pending), "items", s.totalLocked())
	return nil
}

// Add appends item to the recipient's queue and flushes. A flush error is
// returned wrapped in ErrFlush but the item stays queued in memory.
func (s *Store) Add(recipient string, item Item) error {
	key := NormalizeRecipient(recipient)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[key] = append(s.pending[key], item)

	s.log.Info("added to queue", "recipient", recipient, "item", item.String())

	return s.flushLocked()
}

// Drain removes and returns the recipient's items, oldest first. It does
// not flush: the caller flushes once the drained items were delivered, so a
// crash in between leaves them on disk.
func (s *Store) Drain(recipient string) []Item {
	key := NormalizeRecipient(recipient)

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.pending[key]
	if !ok {
		return nil
	}
	delete(s.pending, key)
	return items
}

// Requeue puts items back at the end of the recipient's queue without
// flushing. Used for items that could not be delivered after a Drain.
func (s *Store) Requeue(recipient string, items []Item) {
	if len(items) == 0 {
		return
	}
	key := NormalizeRecipient(recipient)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[key] = append(s.pending[key], items...)
}

// Flush writes the whole queue to the backend.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	data, err := encode(s.pending)
	if err != nil {
		s.log.Error("failed to encode pending queue", "error", err)
		return fmt.Errorf("%w: %v", ErrFlush, err)
	}
	if err := s.backend.Write(data); err != nil {
		s.log.Error("failed to save pending queue file", "error", err)
		return fmt.Errorf("%w: %v", ErrFlush, err)
	}
	return nil
}

// Items returns a copy of the recipient's queue without removing it.
func (s *Store) Items(recipient string) []Item {
	key := NormalizeRecipient(recipient)

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.pending[key]
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Has reports whether the recipient has anything queued.
func (s *Store) Has(recipient string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[NormalizeRecipient(recipient)]) > 0
}

// TotalItems returns the number of queued items across all recipients.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

func (s *Store) totalLocked() int {
	total := 0
	for _, items := range s.pending {
		total += len(items)
	}
	return total
}

// Recipients returns the number of recipients with queued items.
func (s *Store) Recipients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RecipientNames returns the normalized recipient keys in sorted order.
func (s *Store) RecipientNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.pending))
	for name := range s.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

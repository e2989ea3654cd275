package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/V4T54L/faultline/internal/domain"
)

const (
	itemPrefix = "Item"
	itemSuffix = ".json"
	tempPrefix = "."
	filePerm   = 0644

	// DefaultCapacity is the number of slots kept when none is configured.
	DefaultCapacity = 10
)

// ErrEmptyPayload is returned when Write is given nothing to store.
var ErrEmptyPayload = errors.New("spool: empty payload")

// SpoolRepository is a bounded FIFO of serialized reports, one file per slot.
// Slots are numbered 1..n in arrival order and kept contiguous.
type SpoolRepository struct {
	dir      string
	capacity int
	logger   *slog.Logger

	mu sync.Mutex
}

// NewSpoolRepository opens (creating if needed) the spool folder dir.
// Leftovers of interrupted writes are removed.
func NewSpoolRepository(dir string, capacity int, logger *slog.Logger) (*SpoolRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	s := &SpoolRepository{
		dir:      dir,
		capacity: capacity,
		logger:   logger.With("component", "spool_repository"),
	}
	s.removeTempFiles()
	return s, nil
}

// Dir returns the spool folder.
func (s *SpoolRepository) Dir() string { return s.dir }

// Write stores payload in the next slot. When the spool is full the oldest
// item is evicted and the others move down one slot first.
func (s *SpoolRepository) Write(ctx context.Context, payload []byte) (int, error) {
	if len(payload) == 0 {
		return 0, ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.sortedSlots()
	if err != nil {
		return 0, err
	}
	if slots, err = s.compact(slots); err != nil {
		return 0, err
	}

	if len(slots) >= s.capacity {
		if slots, err = s.evictOldest(slots, len(slots)-s.capacity+1); err != nil {
			return 0, err
		}
	}

	slot := len(slots) + 1
	if err := s.writeAtomic(slot, payload); err != nil {
		return 0, err
	}
	s.logger.Debug("Spilled report", "slot", slot, "size", len(payload))
	return slot, nil
}

// Replay hands every item to handler in slot order and deletes it after the
// call whatever the outcome. The spool stays locked for the whole pass, so
// handler must not Write to the same spool. It returns the number of items
// handed out. A cancelled ctx stops the pass and leaves the rest in place.
func (s *SpoolRepository) Replay(ctx context.Context, handler func(item domain.SpillItem) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.sortedSlots()
	if err != nil {
		return 0, err
	}
	if len(slots) == 0 {
		return 0, nil
	}
	s.logger.Info("Starting spool replay", "item_count", len(slots))

	replayed := 0
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		path := s.slotPath(slot)
		payload, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("Failed to read spooled item, discarding", "slot", slot, "error", err)
			s.remove(path)
			continue
		}

		if err := handler(domain.SpillItem{Slot: slot, Payload: payload}); err != nil {
			s.logger.Warn("Replay of spooled item failed, item is lost", "slot", slot, "error", err)
		}
		s.remove(path)
		replayed++
	}

	s.logger.Info("Spool replay completed", "replayed", replayed)
	return replayed, nil
}

// Len returns the number of stored items.
func (s *SpoolRepository) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, err := s.sortedSlots()
	if err != nil {
		return 0, err
	}
	return len(slots), nil
}

// compact renames slots down so they run 1..n without holes.
func (s *SpoolRepository) compact(slots []int) ([]int, error) {
	for i, slot := range slots {
		want := i + 1
		if slot == want {
			continue
		}
		if err := os.Rename(s.slotPath(slot), s.slotPath(want)); err != nil {
			return nil, fmt.Errorf("failed to compact spool slot %d to %d: %w", slot, want, err)
		}
		s.logger.Debug("Compacted spool slot", "from", slot, "to", want)
		slots[i] = want
	}
	return slots, nil
}

// evictOldest drops the first n items of a contiguous sequence and shifts
// the rest down.
func (s *SpoolRepository) evictOldest(slots []int, n int) ([]int, error) {
	for _, slot := range slots[:n] {
		if err := os.Remove(s.slotPath(slot)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to evict spool slot %d: %w", slot, err)
		}
		s.logger.Warn("Spool full, evicted oldest report", "slot", slot)
	}
	return s.compact(slots[n:])
}

func (s *SpoolRepository) writeAtomic(slot int, payload []byte) error {
	final := s.slotPath(slot)
	tmp := filepath.Join(s.dir, tempPrefix+filepath.Base(final))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create spool temp file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write spool item %d: %w", slot, err)
	}
	if err := f.Sync(); err != nil {
		s.logger.Error("Failed to sync spool item", "slot", slot, "error", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close spool item %d: %w", slot, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit spool item %d: %w", slot, err)
	}
	return nil
}

func (s *SpoolRepository) slotPath(slot int) string {
	return filepath.Join(s.dir, itemPrefix+strconv.Itoa(slot)+itemSuffix)
}

// sortedSlots lists stored slot numbers in numeric order.
func (s *SpoolRepository) sortedSlots() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var slots []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if slot, ok := parseSlot(entry.Name()); ok {
			slots = append(slots, slot)
		}
	}
	sort.Ints(slots)
	return slots, nil
}

func parseSlot(name string) (int, bool) {
	if !strings.HasPrefix(name, itemPrefix) || !strings.HasSuffix(name, itemSuffix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, itemPrefix), itemSuffix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (s *SpoolRepository) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete spooled item", "path", path, "error", err)
	}
}

func (s *SpoolRepository) removeTempFiles() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if name := entry.Name(); strings.HasPrefix(name, tempPrefix+itemPrefix) {
			s.remove(filepath.Join(s.dir, name))
		}
	}
}

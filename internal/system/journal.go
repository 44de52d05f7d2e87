package system

import (
	"context"
	"time"

	"github.com/l1jgo/scenecore/internal/core/object"
	coresys "github.com/l1jgo/scenecore/internal/core/system"
	"github.com/l1jgo/scenecore/internal/persist"
	"github.com/l1jgo/scenecore/internal/scene"
	"go.uber.org/zap"
)

// maxPendingJournal bounds the entries kept while the database is unreachable.
const maxPendingJournal = 10000

// JournalWriter stores journal batches; persist.JournalRepo in production.
type JournalWriter interface {
	WriteJournal(ctx context.Context, entries []persist.JournalEntry) error
}

// JournalSystem records component activations and deactivations as a scene
// processor and flushes them every interval ticks. Phase 4 (Persist).
type JournalSystem struct {
	writer    JournalWriter
	log       *zap.Logger
	ticks     func() uint64
	pending   []persist.JournalEntry
	tickCount int
	interval  int // flush every N ticks
}

func NewJournalSystem(writer JournalWriter, ticks func() uint64, log *zap.Logger, intervalTicks int) *JournalSystem {
	return &JournalSystem{
		writer:   writer,
		log:      log,
		ticks:    ticks,
		interval: max(intervalTicks, 1),
	}
}

func (s *JournalSystem) Name() string { return "journal" }

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *JournalSystem) ActivateComponents(world object.Uid, comps []scene.Component) error {
	tick := s.ticks()
	for _, c := range comps {
		e := persist.JournalEntry{
			Tick:         tick,
			Kind:         persist.JournalActivated,
			WorldUid:     world,
			ComponentUid: c.Uid(),
			Component:    typeName(c),
		}
		if obj := c.Object(); obj != nil {
			e.ObjectUid = obj.Uid()
			if sc := obj.Scene(); sc != nil {
				e.SceneUid = sc.Uid()
			}
		}
		s.record(e)
	}
	return nil
}

func (s *JournalSystem) DeactivateComponents(world object.Uid, comps []scene.DeactivatedComponent) {
	tick := s.ticks()
	for _, d := range comps {
		s.record(persist.JournalEntry{
			Tick:         tick,
			Kind:         persist.JournalDeactivated,
			WorldUid:     world,
			SceneUid:     d.SceneUid,
			ObjectUid:    d.ObjectUid,
			ComponentUid: d.ComponentUid,
			Component:    typeName(d.Component),
		})
	}
}

func typeName(c scene.Component) string {
	if n, ok := c.(interface{ TypeName() string }); ok {
		return n.TypeName()
	}
	return ""
}

func (s *JournalSystem) record(e persist.JournalEntry) {
	if len(s.pending) >= maxPendingJournal {
		s.log.Warn("生命週期紀錄已滿，捨棄最舊紀錄", zap.Int("pending", len(s.pending)))
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, e)
}

// Pending reports entries not yet written.
func (s *JournalSystem) Pending() int { return len(s.pending) }

func (s *JournalSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.log.Error("寫入生命週期紀錄失敗", zap.Int("pending", len(s.pending)), zap.Error(err))
	}
}

// Flush writes every pending entry. Entries are kept when the write fails.
// Called for graceful shutdown as well.
func (s *JournalSystem) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.writer.WriteJournal(ctx, s.pending); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

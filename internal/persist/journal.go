package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/l1jgo/scenecore/internal/core/object"
)

// JournalKind names a lifecycle transition.
type JournalKind string

const (
	JournalActivated   JournalKind = "activated"
	JournalDeactivated JournalKind = "deactivated"
)

// JournalEntry records one component lifecycle transition.
type JournalEntry struct {
	Tick         uint64
	Kind         JournalKind
	WorldUid     object.Uid
	SceneUid     object.Uid // NullUid when unknown
	ObjectUid    object.Uid // NullUid when unknown
	ComponentUid object.Uid
	Component    string // registered type name
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteJournal atomically writes a batch of entries in a single transaction.
func (r *JournalRepo) WriteJournal(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO lifecycle_journal (tick, kind, world_uid, scene_uid, object_uid, component_uid, component)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			int64(e.Tick), string(e.Kind), pgUid(e.WorldUid), pgUid(e.SceneUid), pgUid(e.ObjectUid), pgUid(e.ComponentUid), e.Component,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// History returns the transitions recorded for one component, oldest first.
func (r *JournalRepo) History(ctx context.Context, component object.Uid) ([]JournalEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT tick, kind, world_uid, scene_uid, object_uid, component_uid, component
		 FROM lifecycle_journal WHERE component_uid = $1 ORDER BY id`,
		pgUid(component),
	)
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e                    JournalEntry
			tick                 int64
			kind                 string
			world, sc, obj, comp pgtype.UUID
		)
		if err := rows.Scan(&tick, &kind, &world, &sc, &obj, &comp, &e.Component); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Tick = uint64(tick)
		e.Kind = JournalKind(kind)
		e.WorldUid, e.SceneUid, e.ObjectUid, e.ComponentUid = fromPg(world), fromPg(sc), fromPg(obj), fromPg(comp)
		out = append(out, e)
	}
	return out, rows.Err()
}

func pgUid(u object.Uid) pgtype.UUID {
	return pgtype.UUID{Bytes: [16]byte(u), Valid: !u.IsNull()}
}

func fromPg(u pgtype.UUID) object.Uid {
	if !u.Valid {
		return object.NullUid
	}
	return object.Uid(u.Bytes)
}

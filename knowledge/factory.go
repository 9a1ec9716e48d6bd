package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agrisense/agriquery/common/httpx"
	"github.com/agrisense/agriquery/config"
)

// NewFromConfig builds the full-text and vector accessors named by
// cfg.Knowledge. db backs the sqlite options and may be nil when neither
// is selected.
func NewFromConfig(ctx context.Context, cfg *config.Config, db *sql.DB) (*Store, error) {
	kc := cfg.Knowledge
	store := &Store{}

	var sqliteIdx *SQLiteIndex
	sqliteIndex := func() (*SQLiteIndex, error) {
		if sqliteIdx != nil {
			return sqliteIdx, nil
		}
		if db == nil {
			return nil, fmt.Errorf("knowledge: sqlite backend selected but no database opened")
		}
		idx, err := NewSQLiteIndex(db)
		sqliteIdx = idx
		return idx, err
	}
	var mem *MemoryIndex
	memory := func() *MemoryIndex {
		if mem == nil {
			mem = NewMemoryIndex()
		}
		return mem
	}

	switch kc.FTS {
	case "", "sqlite":
		idx, err := sqliteIndex()
		if err != nil {
			return nil, err
		}
		store.FullText = idx
	case "elasticsearch":
		store.FullText = &ElasticIndex{
			Endpoint: kc.Elastic.URL,
			Index:    kc.Elastic.Index,
			Username: kc.Elastic.Username,
			Password: kc.Elastic.Password,
			Client:   httpx.NewFromConfig(&cfg.HTTP, config.Millis(cfg.Pipeline.StageTimeouts.ExactMatchMs, 5*time.Second)),
		}
	case "memory":
		store.FullText = memory()
	default:
		return nil, fmt.Errorf("knowledge: unknown fts backend %q", kc.FTS)
	}

	switch kc.Vector {
	case "", "sqlite":
		idx, err := sqliteIndex()
		if err != nil {
			return nil, err
		}
		store.Vector = idx
	case "milvus":
		idx, err := NewMilvusIndex(ctx, kc.Milvus)
		if err != nil {
			return nil, err
		}
		store.Vector = idx
		store.closers = append(store.closers, idx.Close)
	case "memory":
		store.Vector = memory()
	default:
		return nil, fmt.Errorf("knowledge: unknown vector backend %q", kc.Vector)
	}
	return store, nil
}

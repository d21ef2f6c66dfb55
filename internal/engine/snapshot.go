package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/talgya/tilecity/internal/city"
)

// Keys of the persisted flat document.
const (
	KeyGrid        = "grid"
	KeyStats       = "stats"
	KeyAIEnabled   = "aiEnabled"
	KeyGameStarted = "gameStarted"
	KeyGoal        = "currentGoal"
	KeyNews        = "newsFeed"
	KeyVolume      = "volume"
)

// Document is the flat key/value form of the persisted city.
// Readers must tolerate missing and unknown keys.
type Document map[string]json.RawMessage

// Snapshot is a deep, read-only copy of the store handed to observers.
type Snapshot struct {
	Grid        city.Grid         `json:"grid"`
	Stats       city.CityStats    `json:"stats"`
	Goal        *city.Goal        `json:"currentGoal"`
	News        []city.NewsItem   `json:"newsFeed"`
	AIEnabled   bool              `json:"aiEnabled"`
	GameStarted bool              `json:"gameStarted"`
	Volume      float64           `json:"volume"`
	Paused      bool              `json:"paused"`
	Tool        city.BuildingType `json:"tool"`
	Epoch       uint64            `json:"epoch"`
	Version     uint64            `json:"version"`
}

// Running reports whether ticks should be advancing.
func (s Snapshot) Running() bool {
	return s.GameStarted && !s.Paused
}

// Document encodes the persisted subset of the snapshot.
func (s Snapshot) Document() (Document, error) {
	fields := map[string]any{
		KeyGrid:        s.Grid,
		KeyStats:       s.Stats,
		KeyAIEnabled:   s.AIEnabled,
		KeyGameStarted: s.GameStarted,
		KeyGoal:        s.Goal,
		KeyNews:        s.News,
		KeyVolume:      s.Volume,
	}
	doc := make(Document, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		doc[k] = raw
	}
	return doc, nil
}

// decodeDocument overlays doc onto st field by field. A key that fails to
// decode or validate leaves st's value for that key untouched.
func decodeDocument(doc Document, st *state, opts Options) []error {
	var errs []error
	fail := func(key string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", key, err))
	}

	for key := range doc {
		switch key {
		case KeyGrid, KeyStats, KeyAIEnabled, KeyGameStarted, KeyGoal, KeyNews, KeyVolume:
		default:
			slog.Debug("ignoring unknown snapshot key", "key", key)
		}
	}

	if raw, ok := doc[KeyGrid]; ok {
		var g city.Grid
		if err := json.Unmarshal(raw, &g); err != nil {
			fail(KeyGrid, err)
		} else if err := g.Validate(opts.GridSize); err != nil {
			fail(KeyGrid, err)
		} else {
			st.grid = g
		}
	}

	if raw, ok := doc[KeyStats]; ok {
		stats := st.stats
		if err := json.Unmarshal(raw, &stats); err != nil {
			fail(KeyStats, err)
		} else {
			if stats.Population < 0 {
				stats.Population = 0
			}
			if stats.Day < 1 {
				stats.Day = 1
			}
			st.stats = stats
		}
	}

	if raw, ok := doc[KeyAIEnabled]; ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			fail(KeyAIEnabled, err)
		} else {
			st.aiEnabled = v
		}
	}

	if raw, ok := doc[KeyGameStarted]; ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			fail(KeyGameStarted, err)
		} else {
			st.gameStarted = v
		}
	}

	if raw, ok := doc[KeyGoal]; ok {
		var g *city.Goal
		if err := json.Unmarshal(raw, &g); err != nil {
			fail(KeyGoal, err)
		} else if g != nil {
			if err := g.Check(); err != nil {
				fail(KeyGoal, err)
			} else {
				st.goal = g
			}
		}
	}

	if raw, ok := doc[KeyNews]; ok {
		var items []city.NewsItem
		if err := json.Unmarshal(raw, &items); err != nil {
			fail(KeyNews, err)
		} else {
			kept := items[:0]
			for _, it := range items {
				if it.ID != "" && it.Type.Valid() {
					kept = append(kept, it)
				}
			}
			if len(kept) > opts.NewsLimit {
				kept = kept[len(kept)-opts.NewsLimit:]
			}
			st.news = append([]city.NewsItem(nil), kept...)
		}
	}

	if raw, ok := doc[KeyVolume]; ok {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			fail(KeyVolume, err)
		} else {
			st.volume = clampVolume(v)
		}
	}

	// A city without housing keeps its population so it decays over ticks.
	if homes := st.grid.Count(city.Residential); homes > 0 {
		if limit := homes * opts.Catalog.MaxPopPerUnit(); st.stats.Population > limit {
			st.stats.Population = limit
		}
	}

	return errs
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
)

// MemoryStore keeps stats for the life of the process
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), now: time.Now}
}

func (s *MemoryStore) record(connector string) *Record {
	rec, ok := s.records[connector]
	if !ok {
		now := s.now()
		rec = &Record{
			Connector: connector,
			Counters:  make(map[Metric]int64),
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.records[connector] = rec
	}
	return rec
}

// Increment adds n to a counter
func (s *MemoryStore) Increment(_ context.Context, connector string, metric Metric, n int64) error {
	if !metric.Valid() {
		return unknownMetric(metric)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(connector)
	rec.Counters[metric] += n
	rec.UpdatedAt = s.now()
	return nil
}

// Get returns a counter value
func (s *MemoryStore) Get(connector string, metric Metric) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[connector]; ok {
		return rec.Counters[metric]
	}
	return 0
}

// GetMetadata returns a copy of the connector's metadata
func (s *MemoryStore) GetMetadata(_ context.Context, connector string) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[connector]
	if !ok || rec.Metadata == nil {
		return nil, nil
	}
	return copyMeta(rec.Metadata)
}

// SetMetadata replaces the connector's metadata
func (s *MemoryStore) SetMetadata(_ context.Context, connector string, meta map[string]interface{}) error {
	cp, err := copyMeta(meta)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(connector)
	rec.Metadata = cp
	rec.UpdatedAt = s.now()
	return nil
}

// IncrementMetadata adds n to the integer at key under the store lock
func (s *MemoryStore) IncrementMetadata(_ context.Context, connector, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(connector)
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]interface{})
	}
	v := MetaInt(rec.Metadata, key) + n
	rec.Metadata[key] = v
	rec.UpdatedAt = s.now()
	return v, nil
}

// List returns every record sorted by connector
func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		cp := *rec
		cp.Counters = make(map[Metric]int64, len(rec.Counters))
		for k, v := range rec.Counters {
			cp.Counters[k] = v
		}
		meta, err := copyMeta(rec.Metadata)
		if err != nil {
			return nil, err
		}
		cp.Metadata = meta
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Connector < out[j].Connector })
	return out, nil
}

// copyMeta deep-copies metadata through JSON so stored values never alias
// the caller's
func copyMeta(meta map[string]interface{}) (map[string]interface{}, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := jsonpool.Marshal(meta)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := jsonpool.DecodeBytes(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

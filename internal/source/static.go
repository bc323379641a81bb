package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/omniview-labs/omniview/internal/model"
)

// StaticSource serves records from memory. Tests build one directly;
// the CLI's offline mode loads one from a fixture file.
type StaticSource struct {
	mu      sync.RWMutex
	records map[model.ComponentType][]RawRecord

	// listErr, when set, fails every listing call. Used to exercise the
	// fatal-listing-failure path.
	listErr error
}

// NewStaticSource builds a static source from a flat record list.
func NewStaticSource(records ...RawRecord) *StaticSource {
	s := &StaticSource{records: make(map[model.ComponentType][]RawRecord)}
	for _, rec := range records {
		s.records[rec.ComponentType] = append(s.records[rec.ComponentType], rec)
	}
	return s
}

// fixtureFile is the on-disk shape of a static source.
type fixtureFile struct {
	IntegrationProcedures []RawRecord `json:"integrationProcedures"`
	OmniScripts           []RawRecord `json:"omniscripts"`
	DataMappers           []RawRecord `json:"dataMappers"`
}

// LoadStaticSource reads a fixture file into a static source.
func LoadStaticSource(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var fixture fixtureFile
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}

	s := NewStaticSource()
	for _, rec := range fixture.IntegrationProcedures {
		rec.ComponentType = model.TypeIntegrationProcedure
		s.Add(rec)
	}
	for _, rec := range fixture.OmniScripts {
		rec.ComponentType = model.TypeOmniScript
		s.Add(rec)
	}
	for _, rec := range fixture.DataMappers {
		rec.ComponentType = model.TypeDataMapper
		s.Add(rec)
	}
	return s, nil
}

// Add appends one record.
func (s *StaticSource) Add(rec RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ComponentType] = append(s.records[rec.ComponentType], rec)
}

// FailListings makes every subsequent listing call return err.
func (s *StaticSource) FailListings(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// ListComponents returns all records of one component type.
func (s *StaticSource) ListComponents(_ context.Context, componentType model.ComponentType) ([]RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]RawRecord, len(s.records[componentType]))
	copy(out, s.records[componentType])
	return out, nil
}

// FetchComponentDefinition looks a record up by name, then by its
// type_subType key.
func (s *StaticSource) FetchComponentDefinition(_ context.Context, componentType model.ComponentType, name string) (RawRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records[componentType] {
		if rec.Name == name || model.BuildUniqueID(rec.Type, rec.SubType, rec.Name) == name {
			return rec, true, nil
		}
	}
	return RawRecord{}, false, nil
}

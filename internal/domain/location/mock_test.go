package location

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/restroomfinder/restroomfinder/internal/platform/fhir"
)

// mockRepo is a map-backed Repository for service and hydrator tests.
type mockRepo struct {
	mu        sync.Mutex
	locs      map[string]*Location
	insertErr error
	searchErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{locs: make(map[string]*Location)}
}

func (m *mockRepo) Insert(ctx context.Context, loc *Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.locs[loc.ID]; ok {
		return NewError(KindDuplicate, "already-exists")
	}
	for _, existing := range m.locs {
		if v := loc.ExternalID(); v != "" && existing.ExternalID() == v {
			return NewError(KindDuplicate, "already-exists")
		}
	}
	m.locs[loc.ID] = loc
	return nil
}

func (m *mockRepo) Update(ctx context.Context, loc *Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locs[loc.ID]; !ok {
		return NewError(KindNotFound, "location not found")
	}
	m.locs[loc.ID] = loc
	return nil
}

func (m *mockRepo) FindByID(ctx context.Context, id string) (*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locs[id]
	if !ok {
		return nil, NewError(KindNotFound, "location not found")
	}
	return loc, nil
}

func (m *mockRepo) ExistsByExternalID(ctx context.Context, system, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, loc := range m.locs {
		for _, id := range loc.Identifier {
			if id.System == system && id.Value == value {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockRepo) SearchByRadius(ctx context.Context, lat, lng, radiusMiles float64, limit, skip int) ([]*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []*Location
	for _, loc := range m.locs {
		if loc.Status != StatusActive {
			continue
		}
		d, ok := loc.DistanceFrom(lat, lng, false)
		if !ok || d > radiusMiles {
			continue
		}
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return pageOf(out, limit, skip), nil
}

func (m *mockRepo) SearchByText(ctx context.Context, query string, limit, skip int) ([]*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	q := strings.ToLower(query)
	var out []*Location
	for _, loc := range m.locs {
		if loc.Status != StatusActive {
			continue
		}
		hay := strings.ToLower(loc.Name)
		if loc.Address != nil {
			hay += " " + strings.ToLower(loc.Address.City) + " " + strings.ToLower(loc.Address.State)
		}
		if strings.Contains(hay, q) {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return pageOf(out, limit, skip), nil
}

func (m *mockRepo) ListFiltered(ctx context.Context, f Filters, limit, skip int) ([]*Location, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := f.Status
	if status == "" {
		status = StatusActive
	}
	var out []*Location
	for _, loc := range m.locs {
		if loc.Status != status {
			continue
		}
		feat := loc.AccessibilityFeatures()
		if f.Accessible && !feat.Accessible {
			continue
		}
		if f.Unisex && !feat.Unisex {
			continue
		}
		if f.ChangingTable && !feat.ChangingTable {
			continue
		}
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	return pageOf(out, limit, skip), total, nil
}

func (m *mockRepo) IncrementVote(ctx context.Context, id string, kind VoteKind) (*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locs[id]
	if !ok {
		return nil, NewError(KindNotFound, "location not found")
	}
	loc.AddVote(kind)
	loc.BumpVersion(loc.Meta.LastUpdated)
	return loc, nil
}

func (m *mockRepo) DeleteBySource(ctx context.Context, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, loc := range m.locs {
		if loc.Meta != nil && loc.Meta.Source == source {
			delete(m.locs, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) CountBySource(ctx context.Context, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, loc := range m.locs {
		if loc.Meta != nil && loc.Meta.Source == source {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locs), nil
}

func pageOf(locs []*Location, limit, skip int) []*Location {
	if skip >= len(locs) {
		return nil
	}
	locs = locs[skip:]
	if limit > 0 && len(locs) > limit {
		locs = locs[:limit]
	}
	return locs
}

// mockRemote serves canned records and counts calls so tests can assert
// the disabled toggle short-circuits before any fetch.
type mockRemote struct {
	mu      sync.Mutex
	records []*LegacyRecord
	err     error
	calls   int
}

func (m *mockRemote) serve() ([]*LegacyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

func (m *mockRemote) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockRemote) ByLocation(ctx context.Context, lat, lng float64, perPage int) ([]*LegacyRecord, error) {
	return m.serve()
}

func (m *mockRemote) Search(ctx context.Context, query string, perPage int) ([]*LegacyRecord, error) {
	return m.serve()
}

func (m *mockRemote) List(ctx context.Context, f RemoteFilters, perPage int) ([]*LegacyRecord, error) {
	return m.serve()
}

func (m *mockRemote) ByDate(ctx context.Context, day, month, year, perPage int) ([]*LegacyRecord, error) {
	return m.serve()
}

type stubGeocoder struct {
	pos   *fhir.Position
	err   error
	calls int
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (*fhir.Position, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.pos, nil
}

type stubCaptcha struct {
	ok  bool
	err error
}

func (c *stubCaptcha) Validate(ctx context.Context, token string) (bool, error) {
	return c.ok, c.err
}

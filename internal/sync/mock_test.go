package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/njoerd114/trailsync/internal/model"
	"github.com/njoerd114/trailsync/internal/store"
)

var errInjected = errors.New("injected failure")

// --- Mock Record Store -------------------------------------------------------

type mockStore struct {
	mu     sync.Mutex
	hikes  map[int64]*model.Hike
	obs    map[int64]*model.Observation
	nextID int64

	failSnapshot   error
	failMarkHike   map[int64]bool
	failInsertHike map[string]bool // by name
	failInsertObs  map[string]bool // by title
	panicOnLookup  bool
}

func newMockStore() *mockStore {
	return &mockStore{
		hikes:          make(map[int64]*model.Hike),
		obs:            make(map[int64]*model.Observation),
		failMarkHike:   make(map[int64]bool),
		failInsertHike: make(map[string]bool),
		failInsertObs:  make(map[string]bool),
	}
}

// addHike seeds a hike and returns its assigned id.
func (m *mockStore) addHike(h model.Hike) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	h.ID = m.nextID
	m.hikes[h.ID] = &h
	return h.ID
}

func (m *mockStore) addObservation(o model.Observation) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	m.obs[o.ID] = &o
	return o.ID
}

func (m *mockStore) hike(id int64) *model.Hike {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hikes[id]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

func (m *mockStore) observation(id int64) *model.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.obs[id]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (m *mockStore) hikeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hikes)
}

func (m *mockStore) observationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.obs)
}

// sortedHikes returns copies matching keep, newest (highest id) first.
// Callers must hold m.mu.
func (m *mockStore) sortedHikes(keep func(*model.Hike) bool) []*model.Hike {
	var out []*model.Hike
	for _, h := range m.hikes {
		if keep(h) {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *mockStore) HikesBySyncState(_ context.Context, state model.SyncState) ([]*model.Hike, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSnapshot != nil {
		return nil, m.failSnapshot
	}
	return m.sortedHikes(func(h *model.Hike) bool { return h.SyncState == state && !h.IsDeleted }), nil
}

func (m *mockStore) DeletedHikes(_ context.Context) ([]*model.Hike, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedHikes(func(h *model.Hike) bool { return h.IsDeleted }), nil
}

func (m *mockStore) HikeByID(_ context.Context, id int64) (*model.Hike, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hikes[id]
	if !ok || h.IsDeleted {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (m *mockStore) HikeByRemoteID(_ context.Context, remoteID string) (*model.Hike, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnLookup {
		panic("lookup exploded")
	}
	for _, h := range m.hikes {
		if remoteID != "" && h.RemoteID == remoteID {
			cp := *h
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) InsertHike(_ context.Context, h *model.Hike) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertHike[h.Name] {
		return errInjected
	}
	if h.RemoteID == "" {
		h.SyncState = model.SyncLocal
	}
	m.nextID++
	h.ID = m.nextID
	cp := *h
	m.hikes[h.ID] = &cp
	return nil
}

// MarkHikeSynced mirrors the store's guard: only an unchanged, live row
// becomes Synced.
func (m *mockStore) MarkHikeSynced(_ context.Context, id int64, remoteID string, seen time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMarkHike[id] {
		return false, errInjected
	}
	h, ok := m.hikes[id]
	if !ok {
		return false, fmt.Errorf("hike id=%d: %w", id, store.ErrNotFound)
	}
	h.RemoteID = remoteID
	if h.IsDeleted || !h.UpdatedAt.Equal(seen) {
		return false, nil
	}
	h.SyncState = model.SyncSynced
	return true, nil
}

func (m *mockStore) PurgeHike(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hikes, id)
	for oid, o := range m.obs {
		if o.HikeID == id {
			delete(m.obs, oid)
		}
	}
	return nil
}

func (m *mockStore) HikeCounts(_ context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, synced := 0, 0
	for _, h := range m.hikes {
		if h.IsDeleted {
			continue
		}
		total++
		if h.SyncState == model.SyncSynced {
			synced++
		}
	}
	return total, synced, nil
}

func (m *mockStore) ObservationsBySyncState(_ context.Context, state model.SyncState) ([]*model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Observation
	for _, o := range m.obs {
		parent, ok := m.hikes[o.HikeID]
		if o.SyncState != state || !ok || parent.IsDeleted {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mockStore) ObservationByRemoteID(_ context.Context, remoteID string) (*model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.obs {
		if remoteID != "" && o.RemoteID == remoteID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) InsertObservation(_ context.Context, o *model.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertObs[o.Title] {
		return errInjected
	}
	if _, ok := m.hikes[o.HikeID]; !ok {
		return fmt.Errorf("parent hike id=%d not found", o.HikeID)
	}
	if o.RemoteID == "" {
		o.SyncState = model.SyncLocal
	}
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.obs[o.ID] = &cp
	return nil
}

func (m *mockStore) MarkObservationSynced(_ context.Context, id int64, remoteID, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.obs[id]
	if !ok {
		return fmt.Errorf("observation id=%d: %w", id, store.ErrNotFound)
	}
	o.RemoteID = remoteID
	o.ImageURL = imageURL
	o.SyncState = model.SyncSynced
	return nil
}

// --- Mock Remote Gateway -----------------------------------------------------

type observationCall struct {
	parentRemoteID string
	imageURL       string
	title          string
}

type mockRemote struct {
	mu     sync.Mutex
	nextID int

	// listed is returned by ListMyHikes; observations by ListObservations.
	listed       []*model.Hike
	observations map[string][]*model.Observation

	created      []string // hike names
	updated      []string // remote ids
	deleted      []string // remote ids
	createdObs   []observationCall
	listObsCalls int

	failCreate    map[string]bool // by hike name
	failUpdate    map[string]bool // by remote id
	failDelete    map[string]bool // by remote id
	failCreateObs map[string]bool // by title
	failList      error
	failListObs   map[string]bool // by remote hike id

	// block, when set, is received from before CreateHike returns.
	block chan struct{}
	// cancelOnCreate, when set, is called after the first CreateHike.
	cancelOnCreate context.CancelFunc
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		observations:  make(map[string][]*model.Observation),
		failCreate:    make(map[string]bool),
		failUpdate:    make(map[string]bool),
		failDelete:    make(map[string]bool),
		failCreateObs: make(map[string]bool),
		failListObs:   make(map[string]bool),
	}
}

func (m *mockRemote) addListed(h model.Hike, obs ...model.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listed = append(m.listed, &h)
	for i := range obs {
		o := obs[i]
		m.observations[h.RemoteID] = append(m.observations[h.RemoteID], &o)
	}
}

func (m *mockRemote) CreateHike(_ context.Context, _ string, h *model.Hike) (string, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelOnCreate != nil {
		m.cancelOnCreate()
	}
	if m.failCreate[h.Name] {
		return "", errInjected
	}
	m.nextID++
	m.created = append(m.created, h.Name)
	return fmt.Sprintf("r%d", m.nextID), nil
}

func (m *mockRemote) UpdateHike(_ context.Context, _ string, remoteID string, _ *model.Hike) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate[remoteID] {
		return errInjected
	}
	m.updated = append(m.updated, remoteID)
	return nil
}

func (m *mockRemote) DeleteHike(_ context.Context, _ string, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete[remoteID] {
		return errInjected
	}
	m.deleted = append(m.deleted, remoteID)
	return nil
}

func (m *mockRemote) ListMyHikes(_ context.Context, _ string) ([]*model.Hike, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]*model.Hike, 0, len(m.listed))
	for _, h := range m.listed {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRemote) CreateObservation(_ context.Context, _ string, remoteHikeID, imageURL string, o *model.Observation) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateObs[o.Title] {
		return "", errInjected
	}
	m.nextID++
	m.createdObs = append(m.createdObs, observationCall{parentRemoteID: remoteHikeID, imageURL: imageURL, title: o.Title})
	return fmt.Sprintf("o%d", m.nextID), nil
}

func (m *mockRemote) ListObservations(_ context.Context, _ string, remoteHikeID string) ([]*model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listObsCalls++
	if m.failListObs[remoteHikeID] {
		return nil, errInjected
	}
	var out []*model.Observation
	for _, o := range m.observations[remoteHikeID] {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRemote) networkCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created) + len(m.updated) + len(m.deleted) + len(m.createdObs)
}

// --- Mock Asset Transfer -----------------------------------------------------

type mockAssets struct {
	mu           sync.Mutex
	failUpload   bool
	failDownload bool
	uploads      []string
	downloads    []string
	removed      []string
}

func (m *mockAssets) Upload(_ context.Context, localRef string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, localRef)
	if m.failUpload {
		return "", errInjected
	}
	return "https://cdn.test/" + localRef, nil
}

func (m *mockAssets) Download(_ context.Context, remoteURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads = append(m.downloads, remoteURL)
	if m.failDownload {
		return "", errInjected
	}
	return fmt.Sprintf("/images/observation_%d.jpg", len(m.downloads)), nil
}

func (m *mockAssets) Remove(localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, localPath)
	return nil
}

// --- Event recorder ----------------------------------------------------------

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink() Sink {
	return func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	}
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

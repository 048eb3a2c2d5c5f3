package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"killboard-gateway/esi/domain"
	"killboard-gateway/esi/infra"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// fakeClock tem dois modos: automático (Sleep avança o relógio e retorna na hora)
// e bloqueante (Sleep só retorna depois de Advance cobrir a espera).
type fakeClock struct {
	mu       sync.Mutex
	now      time.Time
	block    bool
	sleeps   []time.Duration
	sleepers []*sleeper
}

type sleeper struct {
	until time.Time
	done  chan struct{}
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func newBlockingClock() *fakeClock { return &fakeClock{now: epoch, block: true} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if !c.block {
		c.now = c.now.Add(d)
		c.mu.Unlock()
		return ctx.Err()
	}
	s := &sleeper{until: c.now.Add(d), done: make(chan struct{})}
	c.sleepers = append(c.sleepers, s)
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.sleepers[:0]
	for _, s := range c.sleepers {
		if !c.now.Before(s.until) {
			close(s.done)
			continue
		}
		kept = append(kept, s)
	}
	c.sleepers = kept
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleepers)
}

func waitSleepers(t *testing.T, c *fakeClock, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.pending() >= n }, 2*time.Second, time.Millisecond,
		"expected %d blocked sleepers", n)
}

// fakeUpstream responde a partir de mapas e conta chamadas por operação.
type fakeUpstream struct {
	mu     sync.Mutex
	calls  map[string]int
	failed map[string]int

	characters   map[int64]domain.CharacterPayload
	corporations map[int64]domain.CorporationPayload
	alliances    map[int64]domain.AlliancePayload
	factions     []domain.FactionPayload
	affiliations map[int64]domain.AffiliationPayload

	// errs força erro para "<op>:<id>".
	errs map[string]error
	// badIDs rejeitam o lote de afiliação inteiro.
	badIDs map[int64]bool
	// affErr, se setado, é devolvido por toda chamada de afiliação.
	affErr error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		calls:        map[string]int{},
		failed:       map[string]int{},
		characters:   map[int64]domain.CharacterPayload{},
		corporations: map[int64]domain.CorporationPayload{},
		alliances:    map[int64]domain.AlliancePayload{},
		affiliations: map[int64]domain.AffiliationPayload{},
		errs:         map[string]error{},
		badIDs:       map[int64]bool{},
	}
}

func (f *fakeUpstream) setErr(op string, id int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, fmt.Sprintf("%s:%d", op, id))
		return
	}
	f.errs[fmt.Sprintf("%s:%d", op, id)] = err
}

func (f *fakeUpstream) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeUpstream) Failed(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed[op]
}

func (f *fakeUpstream) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func fakeGet[T any](f *fakeUpstream, op string, id int64, m map[int64]T) (T, domain.ResponseMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var zero T
	f.calls[op]++
	if err := f.errs[fmt.Sprintf("%s:%d", op, id)]; err != nil {
		f.failed[op]++
		return zero, metaOf(err), err
	}
	v, ok := m[id]
	if !ok {
		f.failed[op]++
		return zero, domain.ResponseMeta{Status: domain.StatusNotFound},
			&domain.UpstreamError{Op: op, Status: domain.StatusNotFound, Message: "not found"}
	}
	return v, domain.ResponseMeta{Status: 200}, nil
}

func (f *fakeUpstream) GetCharacter(_ context.Context, id int64) (domain.CharacterPayload, domain.ResponseMeta, error) {
	return fakeGet(f, "characters", id, f.characters)
}

func (f *fakeUpstream) GetCorporation(_ context.Context, id int64) (domain.CorporationPayload, domain.ResponseMeta, error) {
	return fakeGet(f, "corporations", id, f.corporations)
}

func (f *fakeUpstream) GetAlliance(_ context.Context, id int64) (domain.AlliancePayload, domain.ResponseMeta, error) {
	return fakeGet(f, "alliances", id, f.alliances)
}

func (f *fakeUpstream) GetFactions(context.Context) ([]domain.FactionPayload, domain.ResponseMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["universe_factions"]++
	return append([]domain.FactionPayload(nil), f.factions...), domain.ResponseMeta{Status: 200}, nil
}

func (f *fakeUpstream) PostAffiliation(_ context.Context, ids []int64) ([]domain.AffiliationPayload, domain.ResponseMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const op = "characters_affiliation"
	f.calls[op]++
	if f.affErr != nil {
		f.failed[op]++
		return nil, metaOf(f.affErr), f.affErr
	}
	for _, id := range ids {
		if f.badIDs[id] {
			f.failed[op]++
			return nil, domain.ResponseMeta{Status: 400},
				&domain.UpstreamError{Op: op, Status: 400, Message: "Invalid character ID"}
		}
	}
	out := make([]domain.AffiliationPayload, 0, len(ids))
	for _, id := range ids {
		if a, ok := f.affiliations[id]; ok {
			out = append(out, a)
		}
	}
	return out, domain.ResponseMeta{Status: 200}, nil
}

// recordingStore guarda o último valor gravado por chave, mesmo depois de expirar.
type recordingStore struct {
	domain.SharedStore
	mu   sync.Mutex
	sets map[string]string
}

func newRecordingStore(inner domain.SharedStore) *recordingStore {
	return &recordingStore{SharedStore: inner, sets: map[string]string{}}
}

func (s *recordingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.sets[key] = value
	s.mu.Unlock()
	return s.SharedStore.Set(ctx, key, value, ttl)
}

func (s *recordingStore) lastSet(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sets[key]
	return v, ok
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// Ids do cenário padrão.
const (
	pilotID    int64 = 90000001
	corpID     int64 = 98000001
	allianceID int64 = 99000001
	caldariID  int64 = 500001
	gallenteID int64 = 500004
)

type harness struct {
	clock    *fakeClock
	store    *infra.MemoryStore
	entities *infra.MemoryEntityStore
	queue    *infra.MemoryJobQueue
	up       *fakeUpstream
	gw       *Gateway
	deps     Deps

	alliances *AllianceService
	corps     *CorporationService
	chars     *CharacterService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:    newFakeClock(),
		entities: infra.NewMemoryEntityStore(),
		queue:    infra.NewMemoryJobQueue(),
		up:       newFakeUpstream(),
	}
	h.store = infra.NewMemoryStore(infra.WithNow(h.clock.Now))
	h.gw = NewGateway(h.store, WithClock(h.clock), WithLogger(discardLogger()))

	h.up.characters[pilotID] = domain.CharacterPayload{
		Name:          "Pilot One",
		CorporationID: corpID,
		AllianceID:    allianceID,
		Birthday:      epoch.AddDate(-5, 0, 0),
	}
	h.up.corporations[corpID] = domain.CorporationPayload{
		Name:        "Ore Haulers",
		Ticker:      "HAUL",
		MemberCount: 42,
		AllianceID:  allianceID,
	}
	h.up.alliances[allianceID] = domain.AlliancePayload{
		Name:      "State Protectorate",
		Ticker:    "STATE",
		FactionID: caldariID,
	}
	h.up.factions = []domain.FactionPayload{
		{FactionID: caldariID, Name: "Caldari State"},
		{FactionID: gallenteID, Name: "Gallente Federation"},
	}

	h.deps = Deps{
		Gateway:  h.gw,
		Upstream: h.up,
		Store:    h.entities,
		Queue:    h.queue,
		Factions: NewFactionDirectory(h.gw, h.up, discardLogger()),
		Log:      discardLogger(),
	}
	h.alliances = NewAllianceService(h.deps)
	h.corps = NewCorporationService(h.deps, h.alliances)
	h.chars = NewCharacterService(h.deps, h.corps)
	return h
}

func (h *harness) seed(t *testing.T, kind domain.Kind, id int64, snap any, updatedAt time.Time) {
	t.Helper()
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, h.entities.Upsert(context.Background(), kind, id, domain.Record{Data: b, UpdatedAt: updatedAt}))
}

func (h *harness) stored(t *testing.T, kind domain.Kind, id int64) domain.Record {
	t.Helper()
	rec, ok, err := h.entities.FindOne(context.Background(), kind, id)
	require.NoError(t, err)
	require.True(t, ok, "%s %d not stored", kind, id)
	return rec
}

func metaOf(err error) domain.ResponseMeta {
	m, _ := domain.MetaFromError(err)
	return m
}

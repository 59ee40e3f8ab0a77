package assign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorio.org/internal/audit"
	"memorio.org/internal/auth"
	"memorio.org/internal/cases"
	"memorio.org/internal/ids"
	"memorio.org/internal/notify"
)

var epoch = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

type balancerFixture struct {
	balancer *Balancer
	cases    *cases.InMemory
	store    *InMemory
	notifier *notify.InMemory
	sink     *audit.InMemory
}

func newBalancerFixture(t *testing.T, opts ...BalancerOption) *balancerFixture {
	t.Helper()
	f := &balancerFixture{
		cases:    cases.NewInMemory(),
		notifier: notify.NewInMemory(),
		sink:     audit.NewInMemory(),
	}
	f.store = NewInMemory(f.cases)
	auditLog := audit.New(f.sink)

	var err error
	f.balancer, err = NewBalancer(f.store, f.notifier, auditLog, opts...)
	require.NoError(t, err)
	return f
}

func (f *balancerFixture) addEditor(id string, createdAt time.Time) {
	f.store.AddUser(&auth.User{
		ID:        id,
		Email:     id + "@memorio.example",
		Role:      auth.RoleEditor,
		Status:    auth.StatusActive,
		CreatedAt: createdAt,
	})
}

func (f *balancerFixture) addCase(t *testing.T, familyUserID string) *cases.Case {
	t.Helper()
	c := &cases.Case{
		ID:                   ids.New(),
		OrganizationID:       "org-1",
		DeceasedName:         "Jane Doe",
		CreatedBy:            "director-1",
		AssignedFamilyUserID: familyUserID,
		Status:               cases.StatusSubmitted,
		CreatedAt:            epoch,
		UpdatedAt:            epoch,
	}
	require.NoError(t, f.cases.Create(context.Background(), c))
	return c
}

func familyPrincipal(id string) auth.Principal {
	return auth.Principal{UserID: id, Role: auth.RoleFamily}
}

func (f *balancerFixture) preassign(t *testing.T, caseID, editorID string) {
	t.Helper()
	require.NoError(t, f.store.CreateAssignment(context.Background(), &Assignment{
		ID:           ids.New(),
		CaseID:       caseID,
		EditorUserID: editorID,
		AssignedBy:   "system",
		AssignedAt:   epoch,
	}))
}

func TestAssignPicksLeastLoadedEditor(t *testing.T) {
	f := newBalancerFixture(t)
	f.addEditor("editor-busy", epoch)
	f.addEditor("editor-idle", epoch.Add(time.Hour))

	// editor-busy carries two active cases.
	for i := 0; i < 2; i++ {
		other := f.addCase(t, "other-family")
		f.preassign(t, other.ID, "editor-busy")
	}

	c := f.addCase(t, "family-1")
	result, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	assert.True(t, result.Assigned)
	assert.False(t, result.AlreadyAssigned)
	assert.Equal(t, "editor-idle", result.EditorID)
	assert.Equal(t, 0, result.ActiveCount)
}

func TestAssignTieBreaksByEarliestCreated(t *testing.T) {
	f := newBalancerFixture(t)
	f.addEditor("editor-new", epoch.Add(48*time.Hour))
	f.addEditor("editor-old", epoch)

	c := f.addCase(t, "family-1")
	result, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	assert.Equal(t, "editor-old", result.EditorID)
}

func TestAssignIsIdempotent(t *testing.T) {
	f := newBalancerFixture(t)
	f.addEditor("editor-1", epoch)
	c := f.addCase(t, "family-1")

	first, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	require.True(t, first.Assigned)

	second, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	assert.True(t, second.Assigned)
	assert.True(t, second.AlreadyAssigned)
	assert.Equal(t, first.EditorID, second.EditorID)

	var active int
	for _, a := range f.store.Assignments() {
		if a.UnassignedAt == nil {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestAssignAdvancesCaseStatus(t *testing.T) {
	f := newBalancerFixture(t)
	f.addEditor("editor-1", epoch)
	c := f.addCase(t, "family-1")

	_, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)

	updated, err := f.cases.Find(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, cases.StatusInProduction, updated.Status)
}

func TestAssignForbiddenForStrangers(t *testing.T) {
	f := newBalancerFixture(t)
	f.addEditor("editor-1", epoch)
	c := f.addCase(t, "family-1")

	_, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-2"))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAssignUnknownCase(t *testing.T) {
	f := newBalancerFixture(t)
	_, err := f.balancer.Assign(context.Background(), "missing", familyPrincipal("family-1"))
	assert.ErrorIs(t, err, cases.ErrNotFound)
}

func TestAssignNoEditorsEscalates(t *testing.T) {
	f := newBalancerFixture(t)
	f.store.AddUser(&auth.User{
		ID:     "admin-1",
		Email:  "admin@memorio.example",
		Role:   auth.RoleAdmin,
		Status: auth.StatusActive,
	})
	c := f.addCase(t, "family-1")

	result, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	assert.False(t, result.Assigned)

	notifications := f.notifier.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, notify.EventNoEditorsAvailable, notifications[0].EventType)
	assert.Equal(t, []string{"admin@memorio.example"}, notifications[0].Recipients)
	assert.Equal(t, notify.StatusPending, notifications[0].Status)

	// Case status is untouched; the submission can be retried later.
	unchanged, err := f.cases.Find(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, cases.StatusSubmitted, unchanged.Status)

	var sawEscalation bool
	for _, evt := range f.sink.Events() {
		if evt.Action == "NO_EDITORS_AVAILABLE" {
			sawEscalation = true
			assert.Equal(t, "system", evt.ActorRole)
		}
	}
	assert.True(t, sawEscalation, "expected NO_EDITORS_AVAILABLE audit event")
}

func TestAssignNoEditorsNoAdminsStillUnassigned(t *testing.T) {
	f := newBalancerFixture(t)
	c := f.addCase(t, "family-1")

	result, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	assert.False(t, result.Assigned)
	assert.Empty(t, f.notifier.Notifications())
}

func TestAssignReassignmentAfterUnassign(t *testing.T) {
	f := newBalancerFixture(t)
	f.addEditor("editor-1", epoch)
	f.addEditor("editor-2", epoch.Add(time.Hour))
	c := f.addCase(t, "family-1")

	first, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	require.Equal(t, "editor-1", first.EditorID)

	// An explicit reassignment closes the active record; the next request
	// may create a new one without violating the invariant.
	f.store.Unassign(c.ID, epoch.Add(2*time.Hour))
	second, err := f.balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	assert.False(t, second.AlreadyAssigned)
}

// raceStore simulates a concurrent winner: the idempotency pre-check sees no
// assignment, but the insert hits the store's uniqueness guarantee.
type raceStore struct {
	*InMemory
	checked bool
}

func (s *raceStore) ActiveAssignment(ctx context.Context, caseID string) (*Assignment, error) {
	if !s.checked {
		s.checked = true
		return nil, cases.ErrNotFound
	}
	return s.InMemory.ActiveAssignment(ctx, caseID)
}

func TestAssignConcurrentConflictResolvesToWinner(t *testing.T) {
	caseStore := cases.NewInMemory()
	inner := NewInMemory(caseStore)
	store := &raceStore{InMemory: inner}

	c := &cases.Case{
		ID:                   ids.New(),
		AssignedFamilyUserID: "family-1",
		Status:               cases.StatusSubmitted,
	}
	require.NoError(t, caseStore.Create(context.Background(), c))

	inner.AddUser(&auth.User{ID: "editor-loser", Email: "l@x", Role: auth.RoleEditor, Status: auth.StatusActive, CreatedAt: epoch})
	require.NoError(t, inner.CreateAssignment(context.Background(), &Assignment{
		ID:           ids.New(),
		CaseID:       c.ID,
		EditorUserID: "editor-winner",
		AssignedBy:   "family-1",
		AssignedAt:   epoch,
	}))

	balancer, err := NewBalancer(store, notify.NewInMemory(), nil)
	require.NoError(t, err)

	result, err := balancer.Assign(context.Background(), c.ID, familyPrincipal("family-1"))
	require.NoError(t, err)
	assert.True(t, result.AlreadyAssigned)
	assert.Equal(t, "editor-winner", result.EditorID)
}

// rankedStore adds the store-native ranked query capability on top of the
// in-memory store.
type rankedStore struct {
	*InMemory
}

func (s *rankedStore) RankedEditors(ctx context.Context) ([]Candidate, error) {
	candidates, err := s.ListEditors(ctx)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		count, err := s.ActiveAssignmentCount(ctx, candidates[i].ID)
		if err != nil {
			return nil, err
		}
		candidates[i].ActiveCount = count
	}
	SortCandidates(candidates)
	return candidates, nil
}

func TestRankerStrategiesAgree(t *testing.T) {
	caseStore := cases.NewInMemory()
	inner := NewInMemory(caseStore)
	ranked := &rankedStore{InMemory: inner}

	inner.AddUser(&auth.User{ID: "e1", Email: "e1@x", Role: auth.RoleEditor, Status: auth.StatusActive, CreatedAt: epoch})
	inner.AddUser(&auth.User{ID: "e2", Email: "e2@x", Role: auth.RoleEditor, Status: auth.StatusInvited, CreatedAt: epoch.Add(time.Hour)})
	inner.AddUser(&auth.User{ID: "e3", Email: "e3@x", Role: auth.RoleEditor, Status: auth.StatusActive, CreatedAt: epoch.Add(2 * time.Hour)})
	inner.AddUser(&auth.User{ID: "suspended", Email: "s@x", Role: auth.RoleEditor, Status: auth.StatusSuspended, CreatedAt: epoch})
	for i, editor := range []string{"e1", "e1", "e3"} {
		require.NoError(t, inner.CreateAssignment(context.Background(), &Assignment{
			ID:           ids.New(),
			CaseID:       "case-" + string(rune('a'+i)),
			EditorUserID: editor,
			AssignedBy:   "system",
			AssignedAt:   epoch,
		}))
	}

	// Capability detection: the wrapped store gets the native strategy.
	nativeRanker := NewRanker(ranked)
	_, isStore := nativeRanker.(*storeRanker)
	assert.True(t, isStore)
	fallbackRanker := NewRanker(inner)
	_, isCount := fallbackRanker.(*countRanker)
	assert.True(t, isCount)

	native, err := nativeRanker.Rank(context.Background())
	require.NoError(t, err)
	fallback, err := fallbackRanker.Rank(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(native), len(fallback))
	for i := range native {
		assert.Equal(t, native[i].ID, fallback[i].ID)
		assert.Equal(t, native[i].ActiveCount, fallback[i].ActiveCount)
	}
	// e2 is idle and eligible while invited; e1 and e3 carry load.
	assert.Equal(t, "e2", native[0].ID)
}

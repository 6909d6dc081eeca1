package deployment

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/au2001/graph-node/internal/domain"
	"github.com/au2001/graph-node/internal/repository"
)

// fakeStore emulates the assignment store's transition semantics in memory.
type fakeStore struct {
	mu           sync.Mutex
	deployments  map[int64]domain.Deployment
	assignments  map[int64]*domain.Assignment
	resolveCalls int
	setCalls     int
}

func newFakeStore(deployments ...domain.Deployment) *fakeStore {
	s := &fakeStore{
		deployments: make(map[int64]domain.Deployment),
		assignments: make(map[int64]*domain.Assignment),
	}
	for _, d := range deployments {
		s.deployments[d.ID] = d
	}
	return s
}

func (s *fakeStore) assign(deploymentID int64, node string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[deploymentID] = &domain.Assignment{
		DeploymentID: deploymentID,
		NodeID:       node,
		Paused:       paused,
		AssignedAt:   time.Now().UTC(),
	}
}

func (s *fakeStore) ResolveDeployment(_ context.Context, selector domain.DeploymentSelector) (*domain.Deployment, error) {
	if err := selector.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveCalls++

	var matches []domain.Deployment
	for _, d := range s.deployments {
		switch {
		case selector.ID != nil && d.ID == *selector.ID:
			matches = append(matches, d)
		case selector.Hash != "" && d.Hash == selector.Hash:
			matches = append(matches, d)
		case selector.Name != "" && d.Name == selector.Name:
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return nil, repository.ErrNotFound
	case 1:
		d := matches[0]
		return &d, nil
	default:
		return nil, repository.ErrAmbiguous
	}
}

func (s *fakeStore) GetAssignment(_ context.Context, deploymentID int64) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[deploymentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *fakeStore) PauseAssignment(_ context.Context, deploymentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[deploymentID]
	if !ok {
		return repository.ErrNotAssigned
	}
	if a.Paused {
		return repository.ErrAlreadyPaused
	}
	a.Paused = true
	return nil
}

func (s *fakeStore) ResumeAssignment(_ context.Context, deploymentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[deploymentID]
	if !ok {
		return repository.ErrNotAssigned
	}
	if !a.Paused {
		return repository.ErrNotPaused
	}
	a.Paused = false
	return nil
}

func (s *fakeStore) RemoveAssignment(_ context.Context, deploymentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, deploymentID)
	return nil
}

func (s *fakeStore) SetAssignment(_ context.Context, deploymentID int64, node domain.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if a, ok := s.assignments[deploymentID]; ok {
		a.NodeID = node.String()
		return nil
	}
	s.assignments[deploymentID] = &domain.Assignment{
		DeploymentID: deploymentID,
		NodeID:       node.String(),
		AssignedAt:   time.Now().UTC(),
	}
	return nil
}

type fakeMirror struct {
	count int
	err   error
	calls int
}

func (m *fakeMirror) CountNodeAssignments(context.Context, domain.NodeID) (int, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.count, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func selectorByHash(hash string) domain.DeploymentSelector {
	return domain.DeploymentSelector{Hash: hash}
}

var testDeployment = domain.Deployment{ID: 1, Hash: "QmTestDeployment", Name: "my-subgraph"}

func TestPauseThenPauseAgainFails(t *testing.T) {
	store := newFakeStore(testDeployment)
	store.assign(1, "index-node-1", false)
	svc := New(store, &fakeMirror{}, testLogger())

	if _, err := svc.Pause(context.Background(), selectorByHash("QmTestDeployment")); err != nil {
		t.Fatalf("first pause failed: %v", err)
	}
	_, err := svc.Pause(context.Background(), selectorByHash("QmTestDeployment"))
	if !errors.Is(err, repository.ErrAlreadyPaused) {
		t.Fatalf("expected ErrAlreadyPaused, got %v", err)
	}
}

func TestResumeThenResumeAgainFails(t *testing.T) {
	store := newFakeStore(testDeployment)
	store.assign(1, "index-node-1", true)
	svc := New(store, &fakeMirror{}, testLogger())

	if _, err := svc.Resume(context.Background(), selectorByHash("QmTestDeployment")); err != nil {
		t.Fatalf("first resume failed: %v", err)
	}
	_, err := svc.Resume(context.Background(), selectorByHash("QmTestDeployment"))
	if !errors.Is(err, repository.ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
}

func TestPauseUnknownDeployment(t *testing.T) {
	svc := New(newFakeStore(), &fakeMirror{}, testLogger())
	_, err := svc.Pause(context.Background(), selectorByHash("QmMissing"))
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPauseUnassignedDeployment(t *testing.T) {
	svc := New(newFakeStore(testDeployment), &fakeMirror{}, testLogger())
	_, err := svc.Pause(context.Background(), selectorByHash("QmTestDeployment"))
	if !errors.Is(err, repository.ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned, got %v", err)
	}
}

func TestResolveAmbiguousName(t *testing.T) {
	store := newFakeStore(
		domain.Deployment{ID: 1, Hash: "QmOne", Name: "shared-name"},
		domain.Deployment{ID: 2, Hash: "QmTwo", Name: "shared-name"},
	)
	svc := New(store, &fakeMirror{}, testLogger())
	_, err := svc.Pause(context.Background(), domain.DeploymentSelector{Name: "shared-name"})
	if !errors.Is(err, repository.ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestUnassignIsIdempotent(t *testing.T) {
	store := newFakeStore(testDeployment)
	store.assign(1, "index-node-1", false)
	svc := New(store, &fakeMirror{}, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := svc.Unassign(context.Background(), selectorByHash("QmTestDeployment")); err != nil {
			t.Fatalf("unassign call %d failed: %v", i+1, err)
		}
	}
	if _, err := store.GetAssignment(context.Background(), 1); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected deployment to be unassigned, got %v", err)
	}
}

func TestReassignLastWriterWins(t *testing.T) {
	store := newFakeStore(testDeployment)
	mirror := &fakeMirror{count: 2}
	svc := New(store, mirror, testLogger())

	if _, err := svc.Reassign(context.Background(), selectorByHash("QmTestDeployment"), "index-node-1"); err != nil {
		t.Fatalf("first reassign failed: %v", err)
	}
	if _, err := svc.Reassign(context.Background(), selectorByHash("QmTestDeployment"), "index-node-2"); err != nil {
		t.Fatalf("second reassign failed: %v", err)
	}

	assignment, err := store.GetAssignment(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected assignment, got %v", err)
	}
	if assignment.NodeID != "index-node-2" {
		t.Fatalf("expected node index-node-2, got %q", assignment.NodeID)
	}
}

func TestReassignPreservesPausedFlag(t *testing.T) {
	store := newFakeStore(testDeployment)
	store.assign(1, "index-node-1", true)
	svc := New(store, &fakeMirror{count: 2}, testLogger())

	if _, err := svc.Reassign(context.Background(), selectorByHash("QmTestDeployment"), "index-node-2"); err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	assignment, err := store.GetAssignment(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected assignment, got %v", err)
	}
	if !assignment.Paused {
		t.Fatal("expected paused flag to survive the reassign")
	}
}

func TestReassignWarnsWhenNodeHasSingleAssignment(t *testing.T) {
	store := newFakeStore(testDeployment)
	svc := New(store, &fakeMirror{count: 1}, testLogger())

	ack, err := svc.Reassign(context.Background(), selectorByHash("QmTestDeployment"), "index-node-9")
	if err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	if !strings.Contains(ack.Warning, "index-node-9") {
		t.Fatalf("expected warning to mention the node, got %q", ack.Warning)
	}
}

func TestReassignNoWarningWhenNodeIsShared(t *testing.T) {
	store := newFakeStore(testDeployment)
	svc := New(store, &fakeMirror{count: 3}, testLogger())

	ack, err := svc.Reassign(context.Background(), selectorByHash("QmTestDeployment"), "index-node-1")
	if err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	if ack.Warning != "" {
		t.Fatalf("expected no warning, got %q", ack.Warning)
	}
}

func TestReassignMirrorErrorNeverFailsTheCall(t *testing.T) {
	store := newFakeStore(testDeployment)
	mirror := &fakeMirror{err: errors.New("replica unavailable")}
	svc := New(store, mirror, testLogger())

	ack, err := svc.Reassign(context.Background(), selectorByHash("QmTestDeployment"), "index-node-1")
	if err != nil {
		t.Fatalf("expected success despite mirror failure, got %v", err)
	}
	if ack.Warning != "" {
		t.Fatalf("expected no warning on mirror failure, got %q", ack.Warning)
	}

	assignment, err := store.GetAssignment(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected committed assignment, got %v", err)
	}
	if assignment.NodeID != "index-node-1" {
		t.Fatalf("expected assignment to commit before the advisory read, got %q", assignment.NodeID)
	}
}

func TestReassignInvalidNodeMutatesNothing(t *testing.T) {
	store := newFakeStore(testDeployment)
	svc := New(store, &fakeMirror{}, testLogger())

	for _, token := range []string{"", "bad node", "node/1"} {
		var invalid domain.InvalidNodeIDError
		_, err := svc.Reassign(context.Background(), selectorByHash("QmTestDeployment"), token)
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidNodeIDError for %q, got %v", token, err)
		}
		if invalid.Token != token {
			t.Fatalf("expected offending token %q, got %q", token, invalid.Token)
		}
	}
	if store.setCalls != 0 {
		t.Fatalf("expected no assignment writes, got %d", store.setCalls)
	}
}

func TestMutationsResolveSelectorExactlyOnce(t *testing.T) {
	store := newFakeStore(testDeployment)
	store.assign(1, "index-node-1", false)
	svc := New(store, &fakeMirror{count: 2}, testLogger())

	if _, err := svc.Pause(context.Background(), selectorByHash("QmTestDeployment")); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if store.resolveCalls != 1 {
		t.Fatalf("expected exactly one resolution, got %d", store.resolveCalls)
	}

	if _, err := svc.Reassign(context.Background(), selectorByHash("QmTestDeployment"), "index-node-2"); err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	if store.resolveCalls != 2 {
		t.Fatalf("expected exactly one resolution per call, got %d total", store.resolveCalls)
	}
}

package service

import (
	"sort"
	"sync"

	"github.com/bofstudio/pipeline-console/internal/model"
)

// DecisionStore is the reviewer's tri-state approve/reject map for the one
// open batch. A product absent from the map is undecided.
type DecisionStore struct {
	mu        sync.Mutex
	batchID   string
	decisions map[string]bool
}

func NewDecisionStore() *DecisionStore {
	return &DecisionStore{decisions: make(map[string]bool)}
}

// Reset scopes the store to batchID and drops every decision. An empty id
// means no batch is open.
func (s *DecisionStore) Reset(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchID = batchID
	s.decisions = make(map[string]bool)
}

// BatchID returns the batch the store is currently scoped to.
func (s *DecisionStore) BatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchID
}

// Toggle records approved for productID. Choosing the value already recorded
// clears it back to undecided.
func (s *DecisionStore) Toggle(batchID, productID string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkScope(batchID); err != nil {
		return err
	}
	if cur, ok := s.decisions[productID]; ok && cur == approved {
		delete(s.decisions, productID)
		return nil
	}
	s.decisions[productID] = approved
	return nil
}

// ApproveAll replaces the whole map with approvals for productIDs.
func (s *DecisionStore) ApproveAll(batchID string, productIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkScope(batchID); err != nil {
		return err
	}
	next := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		next[id] = true
	}
	s.decisions = next
	return nil
}

// ClearIf drops all decisions if the store is still scoped to batchID.
func (s *DecisionStore) ClearIf(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchID == batchID {
		s.decisions = make(map[string]bool)
	}
}

// Snapshot returns a copy of the map together with its batch scope.
func (s *DecisionStore) Snapshot() (string, map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.decisions))
	for k, v := range s.decisions {
		out[k] = v
	}
	return s.batchID, out
}

func (s *DecisionStore) checkScope(batchID string) error {
	if s.batchID == "" {
		return ErrNoOpenBatch
	}
	if s.batchID != batchID {
		return ErrBatchMismatch
	}
	return nil
}

// DecisionEntry is one row of the decision map for API responses.
type DecisionEntry struct {
	ProductID string              `json:"productId"`
	Verdict   model.ReviewVerdict `json:"verdict"`
}

// Entries renders a decision map in a stable order.
func Entries(decisions map[string]bool) []DecisionEntry {
	out := make([]DecisionEntry, 0, len(decisions))
	for id, approved := range decisions {
		out = append(out, DecisionEntry{ProductID: id, Verdict: verdictOf(approved)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func verdictOf(approved bool) model.ReviewVerdict {
	if approved {
		return model.VerdictApproved
	}
	return model.VerdictRejected
}

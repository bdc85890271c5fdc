package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/auth"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/notify"
	"github.com/sakif/ballot/internal/repository"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================
//
// memStore implements repository.Store with maps behind one mutex. It
// enforces the same unique rules as the SQL backends (email, external id,
// one vote per voter) so service tests exercise the real error paths.

type memStore struct {
	mu         sync.Mutex
	identities map[string]*model.Identity
	candidates []*model.Candidate
	votes      []model.Vote
	sessions   map[string]*model.Session
	nextID     int

	// set to simulate a backend failure on every call
	failWith error
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		identities: make(map[string]*model.Identity),
		sessions:   make(map[string]*model.Session),
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) Ping(context.Context) error { return m.failWith }
func (m *memStore) Close() error               { return nil }

func (m *memStore) CreateIdentity(_ context.Context, u *model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.identities {
		if existing.Email == u.Email {
			return apperror.EmailTaken()
		}
		if u.ExternalAuthID != "" && existing.ExternalAuthID == u.ExternalAuthID {
			return apperror.Conflict("external account is already linked")
		}
	}
	u.ID = m.id("user")
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	m.identities[u.ID] = &stored
	return nil
}

func (m *memStore) find(match func(*model.Identity) bool, key string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.identities {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (m *memStore) GetIdentityByID(_ context.Context, id string) (*model.Identity, error) {
	return m.find(func(u *model.Identity) bool { return u.ID == id }, id)
}

func (m *memStore) GetIdentityByEmail(_ context.Context, email string) (*model.Identity, error) {
	return m.find(func(u *model.Identity) bool { return u.Email == email }, email)
}

func (m *memStore) GetIdentityByExternalID(_ context.Context, externalID string) (*model.Identity, error) {
	return m.find(func(u *model.Identity) bool { return u.ExternalAuthID == externalID }, externalID)
}

func (m *memStore) LinkExternalID(_ context.Context, id, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.identities[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	if u.ExternalAuthID != "" {
		return apperror.Conflict("identity already has an external account")
	}
	u.ExternalAuthID = externalID
	return nil
}

func (m *memStore) UpdateExternalProfile(_ context.Context, id, profileURL string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.identities[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	u.ExternalProfileURL = profileURL
	out := *u
	return &out, nil
}

func (m *memStore) ListVoters(context.Context) ([]model.Voter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	voters := make([]model.Voter, 0, len(m.votes))
	for _, v := range m.votes {
		u := m.identities[v.VoterID]
		voters = append(voters, model.Voter{Name: u.Name, ExternalProfileURL: u.ExternalProfileURL})
	}
	return voters, nil
}

func (m *memStore) SetResetToken(_ context.Context, id, tokenHash string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.identities[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.ResetTokenHash = tokenHash
	u.ResetTokenExpiry = &expiry
	return nil
}

func (m *memStore) ConsumeResetToken(_ context.Context, tokenHash, credentialHash string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.identities {
		if u.ResetTokenHash == tokenHash && u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now) {
			u.CredentialHash = credentialHash
			u.ResetTokenHash = ""
			u.ResetTokenExpiry = nil
			return u.ID, nil
		}
	}
	return "", apperror.InvalidToken()
}

func (m *memStore) ListCandidates(context.Context) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.Candidate, 0, len(m.candidates))
	for _, c := range m.candidates {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) GetCandidateByID(_ context.Context, id string) (*model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, c := range m.candidates {
		if c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, apperror.NotFound("candidate", id)
}

func (m *memStore) ReplaceCandidates(_ context.Context, candidates []model.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.votes) > 0 {
		return apperror.Conflict("cannot replace candidates after voting has started")
	}
	m.candidates = m.candidates[:0]
	for i := range candidates {
		if candidates[i].ID == "" {
			candidates[i].ID = m.id("cand")
		}
		c := candidates[i]
		m.candidates = append(m.candidates, &c)
	}
	return nil
}

func (m *memStore) RecordVote(_ context.Context, v *model.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.votes {
		if existing.VoterID == v.VoterID {
			return apperror.DuplicateVote()
		}
	}
	var cand *model.Candidate
	for _, c := range m.candidates {
		if c.ID == v.CandidateID {
			cand = c
		}
	}
	if cand == nil {
		return apperror.NotFound("candidate", v.CandidateID)
	}
	v.ID = m.id("vote")
	v.CastAt = time.Now()
	m.votes = append(m.votes, *v)
	u := m.identities[v.VoterID]
	u.HasVoted = true
	u.VotedFor = v.CandidateID
	cand.VoteCount++
	return nil
}

func (m *memStore) Reconcile(context.Context) (repository.ReconcileReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var report repository.ReconcileReport
	votedFor := make(map[string]string)
	counts := make(map[string]int64)
	for _, v := range m.votes {
		votedFor[v.VoterID] = v.CandidateID
		counts[v.CandidateID]++
	}
	for _, u := range m.identities {
		want := votedFor[u.ID]
		if u.HasVoted != (want != "") || u.VotedFor != want {
			u.HasVoted = want != ""
			u.VotedFor = want
			report.Identities++
		}
	}
	for _, c := range m.candidates {
		if c.VoteCount != counts[c.ID] {
			c.VoteCount = counts[c.ID]
			report.Candidates++
		}
	}
	return report, nil
}

func (m *memStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	stored := *s
	m.sessions[s.ID] = &stored
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string, now time.Time) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	if s.Expired(now) {
		delete(m.sessions, id)
		return nil, apperror.NotFound("session", id)
	}
	out := *s
	return &out, nil
}

func (m *memStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStore) DeleteSessionsForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// =========================================================================
// RECORDING NOTIFIER
// =========================================================================

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.PasswordReset
	err  error
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, msg notify.PasswordReset) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) Close() error { return nil }

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPasswords() *auth.PasswordService {
	return auth.NewPasswordServiceForTest(4)
}

type testServices struct {
	store    *memStore
	auth     *AuthService
	sessions *SessionService
	reset    *ResetService
	ledger   *VoteLedger
	election *ElectionService
	notifier *recordingNotifier
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	store := newMemStore()
	logger := testLogger()
	passwords := testPasswords()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	notifier := &recordingNotifier{}
	sessions := NewSessionService(store, tokens, 24*time.Hour, logger)
	return &testServices{
		store:    store,
		auth:     NewAuthService(store, passwords, "linkedin.com", logger),
		sessions: sessions,
		reset:    NewResetService(store, sessions, passwords, notifier, "http://localhost:3000/", logger),
		ledger:   NewVoteLedger(store, store, store, logger),
		election: NewElectionService(store, store, store, logger),
		notifier: notifier,
	}
}

// seedBallot adds two candidates and returns them in order.
func (ts *testServices) seedBallot(t *testing.T) []model.Candidate {
	t.Helper()
	candidates := []model.Candidate{{Name: "Lee Paul Anto"}, {Name: "Raina Shaju"}}
	if err := ts.election.SeedCandidates(context.Background(), candidates); err != nil {
		t.Fatalf("SeedCandidates: %v", err)
	}
	return candidates
}

func (ts *testServices) register(t *testing.T, name, email string) *model.Identity {
	t.Helper()
	u, err := ts.auth.Register(context.Background(), name, email, "pw123456")
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return u
}

func sortedNames(voters []model.Voter) []string {
	names := make([]string, 0, len(voters))
	for _, v := range voters {
		names = append(names, v.Name)
	}
	sort.Strings(names)
	return names
}

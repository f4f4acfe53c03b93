package services

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/playverse/tournament-engine/brackets"
	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/repositories"
)

// fakeStore is an in-memory stand-in for postgres. The transactor's mutex
// plays the part of the tournament row lock: every WithinTx body runs
// serialized, exactly like transactions contending on FOR UPDATE.
type fakeStore struct {
	mu sync.Mutex

	tournaments  map[int]*models.Tournament
	participants map[int]*models.Participant
	teams        map[int]*models.Team
	matches      map[int]*models.Match

	nextTournamentID  int
	nextParticipantID int
	nextTeamID        int
	nextMatchID       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tournaments:       make(map[int]*models.Tournament),
		participants:      make(map[int]*models.Participant),
		teams:             make(map[int]*models.Team),
		matches:           make(map[int]*models.Match),
		nextTournamentID:  1,
		nextParticipantID: 1,
		nextTeamID:        1,
		nextMatchID:       1,
	}
}

type fakeTransactor struct {
	store *fakeStore
}

func (t *fakeTransactor) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return fn(nil)
}

// --- tournament repository ---

type fakeTournamentRepo struct {
	store *fakeStore
}

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	s := r.store
	for _, existing := range s.tournaments {
		if existing.CreatorID == t.CreatorID && existing.Name == t.Name {
			return repositories.ErrTournamentNameConflict
		}
	}
	t.ID = s.nextTournamentID
	s.nextTournamentID++
	t.CreatedAt = time.Now().UTC()
	stored := *t
	s.tournaments[t.ID] = &stored
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, ok := r.store.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	ids := make([]int, 0, len(r.store.tournaments))
	for id := range r.store.tournaments {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []models.Tournament
	for _, id := range ids {
		t := r.store.tournaments[id]
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Game != nil && t.Game != *filter.Game {
			continue
		}
		if filter.CreatorID != nil && t.CreatorID != *filter.CreatorID {
			continue
		}
		if filter.Search != nil {
			needle := strings.ToLower(*filter.Search)
			if !strings.Contains(strings.ToLower(t.Name), needle) &&
				!strings.Contains(strings.ToLower(t.Game), needle) {
				continue
			}
		}
		out = append(out, *t)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *fakeTournamentRepo) Update(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	if _, ok := r.store.tournaments[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	stored := *t
	r.store.tournaments[t.ID] = &stored
	return nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeTournamentRepo) UpdateStatusIf(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TournamentStatus) (bool, error) {
	t, ok := r.store.tournaments[id]
	if !ok {
		return false, repositories.ErrTournamentNotFound
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	return true, nil
}

func (r *fakeTournamentRepo) SetWinner(ctx context.Context, exec repositories.SQLExecutor, id int, winnerParticipantID int, endDate time.Time) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.WinnerParticipantID = &winnerParticipantID
	t.EndDate = &endDate
	return nil
}

func (r *fakeTournamentRepo) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.BannerKey = bannerKey
	return nil
}

// --- participant repository ---

type fakeParticipantRepo struct {
	store *fakeStore
}

func (r *fakeParticipantRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Participant) error {
	s := r.store
	for _, existing := range s.participants {
		if existing.TournamentID != p.TournamentID {
			continue
		}
		if p.UserID != nil && existing.UserID != nil && *existing.UserID == *p.UserID {
			return repositories.ErrParticipantConflict
		}
		if p.TeamID != nil && existing.TeamID != nil && *existing.TeamID == *p.TeamID {
			return repositories.ErrParticipantConflict
		}
		if p.ClanID != nil && existing.ClanID != nil && *existing.ClanID == *p.ClanID {
			return repositories.ErrParticipantConflict
		}
	}
	p.ID = s.nextParticipantID
	s.nextParticipantID++
	p.CreatedAt = time.Now().UTC()
	stored := *p
	s.participants[p.ID] = &stored
	return nil
}

func (r *fakeParticipantRepo) FindByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Participant, error) {
	p, ok := r.store.participants[id]
	if !ok {
		return nil, repositories.ErrParticipantNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakeParticipantRepo) FindByUserAndTournament(ctx context.Context, exec repositories.SQLExecutor, userID, tournamentID int) (*models.Participant, error) {
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID && p.UserID != nil && *p.UserID == userID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (r *fakeParticipantRepo) FindByTeamAndTournament(ctx context.Context, exec repositories.SQLExecutor, teamID, tournamentID int) (*models.Participant, error) {
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID && p.TeamID != nil && *p.TeamID == teamID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (r *fakeParticipantRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, statusFilter *models.ParticipantStatus) ([]*models.Participant, error) {
	ids := make([]int, 0, len(r.store.participants))
	for id, p := range r.store.participants {
		if p.TournamentID != tournamentID {
			continue
		}
		if statusFilter != nil && p.Status != *statusFilter {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]*models.Participant, 0, len(ids))
	for _, id := range ids {
		copied := *r.store.participants[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeParticipantRepo) CountByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	count := 0
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID {
			count++
		}
	}
	return count, nil
}

func (r *fakeParticipantRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.ParticipantStatus) error {
	p, ok := r.store.participants[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	p.Status = status
	return nil
}

func (r *fakeParticipantRepo) UpdateSeed(ctx context.Context, exec repositories.SQLExecutor, id int, seed int) error {
	p, ok := r.store.participants[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	p.Seed = &seed
	return nil
}

func (r *fakeParticipantRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	if _, ok := r.store.participants[id]; !ok {
		return repositories.ErrParticipantNotFound
	}
	delete(r.store.participants, id)
	return nil
}

// --- team repository ---

type fakeTeamRepo struct {
	store *fakeStore
}

func (r *fakeTeamRepo) Create(ctx context.Context, exec repositories.SQLExecutor, team *models.Team) error {
	s := r.store
	for _, existing := range s.teams {
		if existing.TournamentID == team.TournamentID && existing.Name == team.Name {
			return repositories.ErrTeamNameConflict
		}
	}
	team.ID = s.nextTeamID
	s.nextTeamID++
	team.CreatedAt = time.Now().UTC()
	stored := *team
	stored.Members = nil
	s.teams[team.ID] = &stored
	return nil
}

func (r *fakeTeamRepo) AddMember(ctx context.Context, exec repositories.SQLExecutor, member *models.TeamMember) error {
	team, ok := r.store.teams[member.TeamID]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	for _, other := range r.store.teams {
		if other.TournamentID == team.TournamentID && other.HasMember(member.UserID) {
			return repositories.ErrTeamMembershipConflict
		}
	}
	member.JoinedAt = time.Now().UTC()
	team.Members = append(team.Members, *member)
	return nil
}

func (r *fakeTeamRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Team, error) {
	team, ok := r.store.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	copied := *team
	copied.Members = append([]models.TeamMember(nil), team.Members...)
	return &copied, nil
}

func (r *fakeTeamRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Team, error) {
	ids := make([]int, 0, len(r.store.teams))
	for id, team := range r.store.teams {
		if team.TournamentID == tournamentID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	out := make([]*models.Team, 0, len(ids))
	for _, id := range ids {
		team, _ := r.GetByID(ctx, exec, id)
		out = append(out, team)
	}
	return out, nil
}

func (r *fakeTeamRepo) FindMemberTeam(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) (*models.Team, error) {
	for id, team := range r.store.teams {
		if team.TournamentID == tournamentID && team.HasMember(userID) {
			return r.GetByID(ctx, exec, id)
		}
	}
	return nil, repositories.ErrTeamNotFound
}

// --- match repository ---

type fakeMatchRepo struct {
	store *fakeStore
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	s := r.store
	m.ID = s.nextMatchID
	s.nextMatchID++
	m.CreatedAt = time.Now().UTC()
	stored := *m
	s.matches[m.ID] = &stored
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	m, ok := r.store.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMatchRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	ids := make([]int, 0, len(r.store.matches))
	for id, m := range r.store.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		if round != nil && m.Round != *round {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.store.matches[ids[i]], r.store.matches[ids[j]]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.ID < b.ID
	})

	out := make([]*models.Match, 0, len(ids))
	for _, id := range ids {
		copied := *r.store.matches[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeMatchRepo) CountRemaining(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	count := 0
	for _, m := range r.store.matches {
		if m.TournamentID == tournamentID && m.Status != models.MatchCompleted {
			count++
		}
	}
	return count, nil
}

func (r *fakeMatchRepo) Complete(ctx context.Context, exec repositories.SQLExecutor, id int, winnerParticipantID int, score *string, completedAt time.Time) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = models.MatchCompleted
	m.WinnerParticipantID = &winnerParticipantID
	m.Score = score
	m.CompletedAt = &completedAt
	return nil
}

// --- collaborators ---

type xpAward struct {
	UserID int
	Amount int
	Reason string
}

type fakeProgression struct {
	mu     sync.Mutex
	awards []xpAward
	stats  map[int]GameStatsDelta
}

func newFakeProgression() *fakeProgression {
	return &fakeProgression{stats: make(map[int]GameStatsDelta)}
}

func (f *fakeProgression) AwardXP(ctx context.Context, userID, amount int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awards = append(f.awards, xpAward{UserID: userID, Amount: amount, Reason: reason})
	return nil
}

func (f *fakeProgression) IncrementGameStats(ctx context.Context, userID int, delta GameStatsDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := f.stats[userID]
	current.Wins += delta.Wins
	current.GamesPlayed += delta.GamesPlayed
	f.stats[userID] = current
	return nil
}

func (f *fakeProgression) awardsFor(userID int) []xpAward {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []xpAward
	for _, a := range f.awards {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

type clanAward struct {
	ClanID int
	Amount int
	Reason string
}

type fakeClanProgression struct {
	mu     sync.Mutex
	awards []clanAward
}

func (f *fakeClanProgression) AwardClanXP(ctx context.Context, clanID, amount int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awards = append(f.awards, clanAward{ClanID: clanID, Amount: amount, Reason: reason})
	return nil
}

type notification struct {
	UserID  int
	Title   string
	Message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int, title, message string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{UserID: userID, Title: title, Message: message})
	return nil
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []brackets.Message
}

func (f *fakeBroadcaster) BroadcastToRoom(roomID string, message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := message.(brackets.Message); ok {
		f.messages = append(f.messages, m)
	}
}

func (f *fakeBroadcaster) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		types = append(types, m.Type)
	}
	return types
}

// --- fixture ---

type fixture struct {
	store           *fakeStore
	transactor      *fakeTransactor
	tournamentRepo  *fakeTournamentRepo
	participantRepo *fakeParticipantRepo
	teamRepo        *fakeTeamRepo
	matchRepo       *fakeMatchRepo
	progression     *fakeProgression
	clanProgression *fakeClanProgression
	notifier        *fakeNotifier
	broadcaster     *fakeBroadcaster
	logger          *slog.Logger

	tournaments  TournamentService
	participants ParticipantService
	teams        TeamService
	matches      MatchService
	bracket      BracketService
}

func newFixture() *fixture {
	store := newFakeStore()
	f := &fixture{
		store:           store,
		transactor:      &fakeTransactor{store: store},
		tournamentRepo:  &fakeTournamentRepo{store: store},
		participantRepo: &fakeParticipantRepo{store: store},
		teamRepo:        &fakeTeamRepo{store: store},
		matchRepo:       &fakeMatchRepo{store: store},
		progression:     newFakeProgression(),
		clanProgression: &fakeClanProgression{},
		notifier:        &fakeNotifier{},
		broadcaster:     &fakeBroadcaster{},
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Fixed source keeps seeding deterministic across test runs.
	newRand := func() *rand.Rand { return rand.New(rand.NewSource(1)) }

	f.bracket = NewBracketService(f.tournamentRepo, f.participantRepo, f.matchRepo, newRand, f.logger)
	f.tournaments = NewTournamentService(
		f.transactor, f.tournamentRepo, f.participantRepo, f.teamRepo, f.matchRepo,
		f.bracket, nil, f.notifier, f.broadcaster, f.logger,
	)
	f.participants = NewParticipantService(
		f.transactor, f.tournamentRepo, f.participantRepo, f.teamRepo,
		f.progression, f.notifier, f.logger,
	)
	f.teams = NewTeamService(f.transactor, f.tournamentRepo, f.teamRepo, f.logger)
	f.matches = NewMatchService(
		f.transactor, f.tournamentRepo, f.participantRepo, f.matchRepo, f.teamRepo,
		func(t *models.Tournament) (brackets.Generator, error) {
			return brackets.NewGenerator(t.BracketType, newRand())
		},
		f.progression, f.clanProgression, f.notifier, f.broadcaster, f.logger,
	)
	return f
}

// seedTournament puts a tournament directly into the store.
func (f *fixture) seedTournament(t models.Tournament) *models.Tournament {
	if t.Name == "" {
		t.Name = "Test Cup"
	}
	if t.Game == "" {
		t.Game = "chess"
	}
	if t.Format == "" {
		t.Format = models.FormatSolo
	}
	if t.BracketType == "" {
		t.BracketType = models.BracketSingleElimination
	}
	if t.MaxParticipants == 0 {
		t.MaxParticipants = 16
	}
	if t.Status == "" {
		t.Status = models.TournamentUpcoming
	}
	if t.StartDate.IsZero() {
		t.StartDate = time.Now().Add(24 * time.Hour)
	}
	if t.CreatorID == 0 {
		t.CreatorID = 100
	}
	t.ID = f.store.nextTournamentID
	f.store.nextTournamentID++
	stored := t
	f.store.tournaments[t.ID] = &stored
	return &stored
}

// seedSoloParticipant puts a registered solo participant into the store.
func (f *fixture) seedSoloParticipant(tournamentID, userID int) *models.Participant {
	id := f.store.nextParticipantID
	f.store.nextParticipantID++
	uid := userID
	p := &models.Participant{
		ID:           id,
		TournamentID: tournamentID,
		UserID:       &uid,
		Status:       models.ParticipantRegistered,
		CreatedAt:    time.Now().UTC(),
	}
	f.store.participants[id] = p
	return p
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playverse/tournament-engine/brackets"
	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/repositories"
	"github.com/playverse/tournament-engine/storage"
)

const (
	minTournamentCapacity = 2
	maxTournamentCapacity = 256
)

type CreateTournamentInput struct {
	Name            string
	Game            string
	Format          models.TournamentFormat
	BracketType     models.BracketType
	MaxParticipants int
	EntryFee        int
	PrizePool       int
	StartDate       time.Time
	CreatorID       int
}

type UpdateTournamentInput struct {
	Name            *string
	Game            *string
	MaxParticipants *int
	EntryFee        *int
	PrizePool       *int
	StartDate       *time.Time
}

type TournamentService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	// Get returns the tournament with its participants and matches loaded.
	Get(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, id, actorUserID int, input UpdateTournamentInput) (*models.Tournament, error)

	// Start moves the tournament UPCOMING→ACTIVE and generates the bracket,
	// atomically. Only the creator may call it.
	Start(ctx context.Context, id, actorUserID int) (*models.Tournament, error)

	// Cancel moves any non-terminal tournament to CANCELLED.
	Cancel(ctx context.Context, id, actorUserID int) error

	UploadBanner(ctx context.Context, id, actorUserID int, contentType string, reader io.Reader) (*models.Tournament, error)
}

type tournamentService struct {
	transactor      repositories.Transactor
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	teamRepo        repositories.TeamRepository
	matchRepo       repositories.MatchRepository
	bracketService  BracketService
	uploader        storage.FileUploader
	notifier        Notifier
	broadcaster     Broadcaster
	logger          *slog.Logger
}

func NewTournamentService(
	transactor repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	teamRepo repositories.TeamRepository,
	matchRepo repositories.MatchRepository,
	bracketService BracketService,
	uploader storage.FileUploader,
	notifier Notifier,
	broadcaster Broadcaster,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		transactor:      transactor,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		teamRepo:        teamRepo,
		matchRepo:       matchRepo,
		bracketService:  bracketService,
		uploader:        uploader,
		notifier:        notifier,
		broadcaster:     broadcaster,
		logger:          logger,
	}
}

// roomID matches the room the WebSocket handler assigns to a tournament.
func roomID(tournamentID int) string {
	return "tournament_" + strconv.Itoa(tournamentID)
}

func validateCreateInput(input CreateTournamentInput) error {
	if input.Name == "" {
		return ErrTournamentNameRequired
	}
	if input.Game == "" {
		return ErrTournamentGameRequired
	}
	if !input.Format.Valid() {
		return ErrTournamentInvalidFormat
	}
	if !input.BracketType.Valid() {
		return ErrTournamentInvalidBracket
	}
	if input.MaxParticipants < minTournamentCapacity || input.MaxParticipants > maxTournamentCapacity {
		return ErrTournamentInvalidCapacity
	}
	if input.StartDate.IsZero() {
		return ErrTournamentDateRequired
	}
	return nil
}

func (s *tournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	t := &models.Tournament{
		Name:            input.Name,
		Game:            input.Game,
		Format:          input.Format,
		BracketType:     input.BracketType,
		MaxParticipants: input.MaxParticipants,
		EntryFee:        input.EntryFee,
		PrizePool:       input.PrizePool,
		Status:          models.TournamentUpcoming,
		StartDate:       input.StartDate,
		CreatorID:       input.CreatorID,
	}

	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrTournamentNameConflict) {
			return nil, ErrTournamentNameTaken
		}
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", t.ID),
		slog.Int("creator_id", t.CreatorID),
		slog.String("game", t.Game),
	)
	s.resolveBannerURL(t)
	return t, nil
}

func (s *tournamentService) Get(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.getTournament(ctx, id)
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		participants, err := s.participantRepo.ListByTournament(gCtx, nil, id, nil)
		if err != nil {
			return fmt.Errorf("failed to load participants for tournament %d: %w", id, err)
		}
		t.Participants = make([]models.Participant, 0, len(participants))
		for _, p := range participants {
			t.Participants = append(t.Participants, *p)
		}
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, nil, id, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to load matches for tournament %d: %w", id, err)
		}
		t.Matches = make([]models.Match, 0, len(matches))
		for _, m := range matches {
			t.Matches = append(t.Matches, *m)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.resolveBannerURL(t)
	return t, nil
}

func (s *tournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	for i := range tournaments {
		s.resolveBannerURL(&tournaments[i])
	}
	return tournaments, nil
}

func (s *tournamentService) Update(ctx context.Context, id, actorUserID int, input UpdateTournamentInput) (*models.Tournament, error) {
	var updated *models.Tournament

	// The row lock keeps Update from racing Start: the status check below
	// holds until the write commits.
	err := s.transactor.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if t.CreatorID != actorUserID {
			return ErrForbiddenOperation
		}
		if t.Status != models.TournamentUpcoming {
			return ErrTournamentStarted
		}

		if input.Name != nil {
			if *input.Name == "" {
				return ErrTournamentNameRequired
			}
			t.Name = *input.Name
		}
		if input.Game != nil {
			if *input.Game == "" {
				return ErrTournamentGameRequired
			}
			t.Game = *input.Game
		}
		if input.MaxParticipants != nil {
			if *input.MaxParticipants < minTournamentCapacity || *input.MaxParticipants > maxTournamentCapacity {
				return ErrTournamentInvalidCapacity
			}
			registered, err := s.participantRepo.CountByTournament(ctx, exec, id)
			if err != nil {
				return err
			}
			if *input.MaxParticipants < registered {
				return ErrTournamentInvalidCapacity
			}
			t.MaxParticipants = *input.MaxParticipants
		}
		if input.EntryFee != nil {
			t.EntryFee = *input.EntryFee
		}
		if input.PrizePool != nil {
			t.PrizePool = *input.PrizePool
		}
		if input.StartDate != nil {
			if input.StartDate.IsZero() {
				return ErrTournamentDateRequired
			}
			t.StartDate = *input.StartDate
		}

		if err := s.tournamentRepo.Update(ctx, exec, t); err != nil {
			if errors.Is(err, repositories.ErrTournamentNameConflict) {
				return ErrTournamentNameTaken
			}
			return fmt.Errorf("failed to update tournament %d: %w", id, err)
		}

		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.resolveBannerURL(updated)
	return updated, nil
}

func (s *tournamentService) Start(ctx context.Context, id, actorUserID int) (*models.Tournament, error) {
	var (
		started      *models.Tournament
		participants []*models.Participant
	)

	err := s.transactor.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if t.CreatorID != actorUserID {
			return ErrForbiddenOperation
		}

		// The compare-and-set below is what makes a concurrent second Start
		// lose; everything after it runs at most once.
		swapped, err := s.tournamentRepo.UpdateStatusIf(ctx, exec, id, models.TournamentUpcoming, models.TournamentActive)
		if err != nil {
			return err
		}
		if !swapped {
			return ErrTournamentInvalidStatusTransition
		}
		t.Status = models.TournamentActive

		if _, err := s.bracketService.GenerateBracket(ctx, exec, t); err != nil {
			return err
		}

		active := models.ParticipantActive
		participants, err = s.participantRepo.ListByTournament(ctx, exec, id, &active)
		if err != nil {
			return err
		}

		started = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament started", slog.Int("tournament_id", id), slog.Int("participants", len(participants)))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(roomID(id), brackets.Message{
			Type:    brackets.EventTournamentStarted,
			Payload: started,
			RoomID:  roomID(id),
		})
	}
	notifyUsers(ctx, s.notifier, s.logger, resolveEntrantUsers(ctx, s.teamRepo, s.logger, participants),
		"Tournament started",
		fmt.Sprintf("%q has started. Check the bracket for your first match.", started.Name),
		map[string]interface{}{"tournament_id": id},
	)

	s.resolveBannerURL(started)
	return started, nil
}

func (s *tournamentService) Cancel(ctx context.Context, id, actorUserID int) error {
	var (
		cancelled    *models.Tournament
		participants []*models.Participant
	)

	err := s.transactor.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if t.CreatorID != actorUserID {
			return ErrForbiddenOperation
		}
		if t.Status.Terminal() {
			return ErrTournamentInvalidStatusTransition
		}

		if err := s.tournamentRepo.UpdateStatus(ctx, exec, id, models.TournamentCancelled); err != nil {
			return err
		}

		participants, err = s.participantRepo.ListByTournament(ctx, exec, id, nil)
		if err != nil {
			return err
		}

		cancelled = t
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("tournament cancelled", slog.Int("tournament_id", id))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(roomID(id), brackets.Message{
			Type:    brackets.EventTournamentCancelled,
			Payload: map[string]interface{}{"tournament_id": id},
			RoomID:  roomID(id),
		})
	}
	notifyUsers(ctx, s.notifier, s.logger, resolveEntrantUsers(ctx, s.teamRepo, s.logger, participants),
		"Tournament cancelled",
		fmt.Sprintf("%q has been cancelled.", cancelled.Name),
		map[string]interface{}{"tournament_id": id},
	)
	return nil
}

func (s *tournamentService) UploadBanner(ctx context.Context, id, actorUserID int, contentType string, reader io.Reader) (*models.Tournament, error) {
	t, err := s.getTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CreatorID != actorUserID {
		return nil, ErrForbiddenOperation
	}

	ext, err := GetExtensionFromContentType(contentType)
	if err != nil {
		return nil, ErrValidationFailed
	}

	key := fmt.Sprintf("tournaments/%d/banner_%d%s", id, time.Now().UnixNano(), ext)
	result, err := s.uploader.Upload(ctx, key, contentType, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to upload banner for tournament %d: %w", id, err)
	}

	oldKey := t.BannerKey
	if err := s.tournamentRepo.UpdateBannerKey(ctx, id, &result.Key); err != nil {
		logSideEffectError(s.logger, "delete orphaned banner", s.uploader.Delete(ctx, result.Key))
		return nil, err
	}
	if oldKey != nil && *oldKey != result.Key {
		logSideEffectError(s.logger, "delete previous banner", s.uploader.Delete(ctx, *oldKey))
	}

	t.BannerKey = &result.Key
	s.resolveBannerURL(t)
	return t, nil
}

func (s *tournamentService) getTournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

func (s *tournamentService) resolveBannerURL(t *models.Tournament) {
	if s.uploader == nil || t == nil || t.BannerKey == nil {
		return
	}
	if u := s.uploader.GetPublicURL(*t.BannerKey); u != "" {
		t.BannerURL = &u
	}
}

// participantUserIDs collects the notifiable users behind a participant set:
// the user itself for solo and clan entries, every member for team entries.
func participantUserIDs(participants []*models.Participant) []int {
	seen := make(map[int]bool)
	ids := make([]int, 0, len(participants))
	add := func(userID int) {
		if !seen[userID] {
			seen[userID] = true
			ids = append(ids, userID)
		}
	}
	for _, p := range participants {
		if p.UserID != nil {
			add(*p.UserID)
		}
		if p.Team != nil {
			for _, m := range p.Team.Members {
				add(m.UserID)
			}
		}
	}
	return ids
}

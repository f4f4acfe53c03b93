package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playverse/tournament-engine/brackets"
	"github.com/playverse/tournament-engine/models"
)

// startSoloTournament seeds n solo participants and starts the bracket.
func startSoloTournament(t *testing.T, f *fixture, n int) *models.Tournament {
	t.Helper()
	tournament := f.seedTournament(models.Tournament{Format: models.FormatSolo, MaxParticipants: 64})
	for userID := 1; userID <= n; userID++ {
		f.seedSoloParticipant(tournament.ID, userID)
	}
	started, err := f.tournaments.Start(context.Background(), tournament.ID, tournament.CreatorID)
	require.NoError(t, err)
	return started
}

// openMatches returns the scheduled matches of a round.
func openMatches(t *testing.T, f *fixture, tournamentID, round int) []*models.Match {
	t.Helper()
	scheduled := models.MatchScheduled
	matches, err := f.matchRepo.ListByTournament(context.Background(), nil, tournamentID, &round, &scheduled)
	require.NoError(t, err)
	return matches
}

// playRound submits P1 as the winner of every open match in the round,
// acting as the tournament creator.
func playRound(t *testing.T, f *fixture, tournament *models.Tournament, round int) *SubmitResultOutcome {
	t.Helper()
	var last *SubmitResultOutcome
	for _, m := range openMatches(t, f, tournament.ID, round) {
		outcome, err := f.matches.SubmitResult(context.Background(), SubmitResultInput{
			MatchID:             m.ID,
			WinnerParticipantID: m.P1ParticipantID,
			ActorUserID:         tournament.CreatorID,
		})
		require.NoError(t, err)
		last = outcome
	}
	return last
}

func TestSubmitResultCompletesMatchAndEliminatesLoser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 8)

	m := openMatches(t, f, tournament.ID, 1)[0]
	score := "2-1"
	outcome, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             m.ID,
		WinnerParticipantID: m.P1ParticipantID,
		Score:               &score,
		ActorUserID:         tournament.CreatorID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.MatchCompleted, outcome.Match.Status)
	require.NotNil(t, outcome.Match.WinnerParticipantID)
	assert.Equal(t, m.P1ParticipantID, *outcome.Match.WinnerParticipantID)
	require.NotNil(t, outcome.Match.Score)
	assert.Equal(t, "2-1", *outcome.Match.Score)
	assert.Empty(t, outcome.NextRound, "round not finished yet")
	assert.False(t, outcome.Completed)

	winner, err := f.participantRepo.FindByID(ctx, nil, m.P1ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantActive, winner.Status)

	loser, err := f.participantRepo.FindByID(ctx, nil, *m.P2ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantEliminated, loser.Status)

	assert.Contains(t, f.broadcaster.eventTypes(), brackets.EventMatchResult)
}

func TestRoundCompletionCreatesNextRoundInMatchOrder(t *testing.T) {
	f := newFixture()
	tournament := startSoloTournament(t, f, 8)

	round1 := openMatches(t, f, tournament.ID, 1)
	require.Len(t, round1, 4)
	outcome := playRound(t, f, tournament, 1)

	require.Len(t, outcome.NextRound, 2)
	// Winners pair in ascending round-1 match order: (w1,w2), (w3,w4).
	assert.Equal(t, round1[0].P1ParticipantID, outcome.NextRound[0].P1ParticipantID)
	require.NotNil(t, outcome.NextRound[0].P2ParticipantID)
	assert.Equal(t, round1[1].P1ParticipantID, *outcome.NextRound[0].P2ParticipantID)
	assert.Equal(t, round1[2].P1ParticipantID, outcome.NextRound[1].P1ParticipantID)
	require.NotNil(t, outcome.NextRound[1].P2ParticipantID)
	assert.Equal(t, round1[3].P1ParticipantID, *outcome.NextRound[1].P2ParticipantID)

	assert.Contains(t, f.broadcaster.eventTypes(), brackets.EventRoundAdvanced)
}

func TestFullBracketRunsToChampion(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 8)

	playRound(t, f, tournament, 1)
	playRound(t, f, tournament, 2)
	final := playRound(t, f, tournament, 3)

	require.True(t, final.Completed)
	require.NotNil(t, final.Champion)

	stored, err := f.tournamentRepo.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentCompleted, stored.Status)
	require.NotNil(t, stored.WinnerParticipantID)
	assert.Equal(t, final.Champion.ID, *stored.WinnerParticipantID)
	assert.NotNil(t, stored.EndDate)

	champion, err := f.participantRepo.FindByID(ctx, nil, final.Champion.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantWinner, champion.Status)

	// Everyone else is eliminated.
	all, err := f.participantRepo.ListByTournament(ctx, nil, tournament.ID, nil)
	require.NoError(t, err)
	for _, p := range all {
		if p.ID == final.Champion.ID {
			continue
		}
		assert.Equal(t, models.ParticipantEliminated, p.Status)
	}

	require.NotNil(t, champion.UserID)
	var championXP []xpAward
	for _, a := range f.progression.awardsFor(*champion.UserID) {
		if a.Reason == reasonChampion {
			championXP = append(championXP, a)
		}
	}
	require.Len(t, championXP, 1)
	assert.Equal(t, xpChampionReward, championXP[0].Amount)
	assert.Equal(t, GameStatsDelta{Wins: 1, GamesPlayed: 1}, f.progression.stats[*champion.UserID])

	// The runner-up gets a game played but no win.
	require.NotNil(t, final.RunnerUp)
	require.NotNil(t, final.RunnerUp.UserID)
	assert.Equal(t, GameStatsDelta{GamesPlayed: 1}, f.progression.stats[*final.RunnerUp.UserID])

	assert.Contains(t, f.broadcaster.eventTypes(), brackets.EventTournamentCompleted)
}

func TestOddFieldConvergesThroughByes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 3)

	// Round 1: one real match, one bye already completed.
	round1Open := openMatches(t, f, tournament.ID, 1)
	require.Len(t, round1Open, 1)

	outcome, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             round1Open[0].ID,
		WinnerParticipantID: round1Open[0].P1ParticipantID,
		ActorUserID:         tournament.CreatorID,
	})
	require.NoError(t, err)

	// Both round-1 winners meet in the final.
	require.Len(t, outcome.NextRound, 1)
	final := outcome.NextRound[0]
	assert.Equal(t, 2, final.Round)
	assert.False(t, final.IsBye())

	finalOutcome, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             final.ID,
		WinnerParticipantID: final.P1ParticipantID,
		ActorUserID:         tournament.CreatorID,
	})
	require.NoError(t, err)
	assert.True(t, finalOutcome.Completed)
}

func TestSubmitResultAuthorization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 4)

	m := openMatches(t, f, tournament.ID, 1)[0]

	// A stranger cannot report.
	_, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             m.ID,
		WinnerParticipantID: m.P1ParticipantID,
		ActorUserID:         9999,
	})
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	// A match entrant can.
	p1, err := f.participantRepo.FindByID(ctx, nil, m.P1ParticipantID)
	require.NoError(t, err)
	require.NotNil(t, p1.UserID)
	_, err = f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             m.ID,
		WinnerParticipantID: m.P1ParticipantID,
		ActorUserID:         *p1.UserID,
	})
	assert.NoError(t, err)
}

func TestSubmitResultWinnerMustBeInMatch(t *testing.T) {
	f := newFixture()
	tournament := startSoloTournament(t, f, 4)

	matches := openMatches(t, f, tournament.ID, 1)
	outsider := matches[1].P1ParticipantID

	_, err := f.matches.SubmitResult(context.Background(), SubmitResultInput{
		MatchID:             matches[0].ID,
		WinnerParticipantID: outsider,
		ActorUserID:         tournament.CreatorID,
	})
	assert.ErrorIs(t, err, ErrInvalidWinner)
}

func TestSubmitResultTwiceRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 4)

	m := openMatches(t, f, tournament.ID, 1)[0]
	input := SubmitResultInput{
		MatchID:             m.ID,
		WinnerParticipantID: m.P1ParticipantID,
		ActorUserID:         tournament.CreatorID,
	}

	_, err := f.matches.SubmitResult(ctx, input)
	require.NoError(t, err)

	_, err = f.matches.SubmitResult(ctx, input)
	assert.ErrorIs(t, err, ErrMatchNotActive)
}

func TestSubmitResultOnCancelledTournamentRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 4)
	m := openMatches(t, f, tournament.ID, 1)[0]

	require.NoError(t, f.tournaments.Cancel(ctx, tournament.ID, tournament.CreatorID))

	_, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             m.ID,
		WinnerParticipantID: m.P1ParticipantID,
		ActorUserID:         tournament.CreatorID,
	})
	assert.ErrorIs(t, err, ErrMatchNotActive)
}

func TestConcurrentFinalSubmissionsRewardOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 4)

	playRound(t, f, tournament, 1)
	final := openMatches(t, f, tournament.ID, 2)
	require.Len(t, final, 1)

	// Both finalists report simultaneously, each claiming a different
	// winner. The row-lock serialization admits exactly one.
	candidates := []int{final[0].P1ParticipantID, *final[0].P2ParticipantID}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, winnerID := range candidates {
		wg.Add(1)
		go func(i, winnerID int) {
			defer wg.Done()
			_, errs[i] = f.matches.SubmitResult(ctx, SubmitResultInput{
				MatchID:             final[0].ID,
				WinnerParticipantID: winnerID,
				ActorUserID:         tournament.CreatorID,
			})
		}(i, winnerID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrMatchNotActive)
		}
	}
	assert.Equal(t, 1, succeeded)

	stored, err := f.tournamentRepo.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentCompleted, stored.Status)

	championAwards := 0
	f.progression.mu.Lock()
	for _, a := range f.progression.awards {
		if a.Reason == reasonChampion {
			championAwards++
		}
	}
	f.progression.mu.Unlock()
	assert.Equal(t, 1, championAwards, "champion rewards must be handed out exactly once")
}

func TestTeamChampionRewardsEveryMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := f.seedTournament(models.Tournament{Format: models.FormatTeam, MaxParticipants: 8})

	var teamIDs []int
	rosters := [][]int{{10, 11}, {20, 21}}
	for i, roster := range rosters {
		team, err := f.teams.CreateTeam(ctx, CreateTeamInput{
			TournamentID: tournament.ID,
			CaptainID:    roster[0],
			Name:         []string{"Rooks", "Knights"}[i],
			MemberIDs:    roster[1:],
		})
		require.NoError(t, err)
		teamIDs = append(teamIDs, team.ID)
		_, err = f.participants.Register(ctx, RegisterInput{TournamentID: tournament.ID, UserID: roster[0], TeamID: &team.ID})
		require.NoError(t, err)
	}

	_, err := f.tournaments.Start(ctx, tournament.ID, tournament.CreatorID)
	require.NoError(t, err)

	m := openMatches(t, f, tournament.ID, 1)[0]
	outcome, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             m.ID,
		WinnerParticipantID: m.P1ParticipantID,
		ActorUserID:         tournament.CreatorID,
	})
	require.NoError(t, err)
	require.True(t, outcome.Completed)

	require.NotNil(t, outcome.Champion.TeamID)
	winningTeam, err := f.teamRepo.GetByID(ctx, nil, *outcome.Champion.TeamID)
	require.NoError(t, err)

	for _, member := range winningTeam.Members {
		var championAwards []xpAward
		for _, a := range f.progression.awardsFor(member.UserID) {
			if a.Reason == reasonChampion {
				championAwards = append(championAwards, a)
			}
		}
		require.Len(t, championAwards, 1, "member %d", member.UserID)
		assert.Equal(t, xpChampionReward, championAwards[0].Amount)
	}
}

func TestClanChampionAwardsClanXP(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := f.seedTournament(models.Tournament{Format: models.FormatClan, MaxParticipants: 8})

	clanA, clanB := 70, 71
	_, err := f.participants.Register(ctx, RegisterInput{TournamentID: tournament.ID, UserID: 1, ClanID: &clanA})
	require.NoError(t, err)
	_, err = f.participants.Register(ctx, RegisterInput{TournamentID: tournament.ID, UserID: 2, ClanID: &clanB})
	require.NoError(t, err)

	_, err = f.tournaments.Start(ctx, tournament.ID, tournament.CreatorID)
	require.NoError(t, err)

	m := openMatches(t, f, tournament.ID, 1)[0]
	outcome, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             m.ID,
		WinnerParticipantID: m.P1ParticipantID,
		ActorUserID:         tournament.CreatorID,
	})
	require.NoError(t, err)
	require.True(t, outcome.Completed)

	require.NotNil(t, outcome.Champion.ClanID)
	require.Len(t, f.clanProgression.awards, 1)
	assert.Equal(t, *outcome.Champion.ClanID, f.clanProgression.awards[0].ClanID)
	assert.Equal(t, xpClanChampionReward, f.clanProgression.awards[0].Amount)
}

func TestRound2PairingSameForReversedSubmissionOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 8)

	round1 := openMatches(t, f, tournament.ID, 1)
	require.Len(t, round1, 4)

	// Submit in reverse order; the last submission completes the round.
	var last *SubmitResultOutcome
	for i := len(round1) - 1; i >= 0; i-- {
		outcome, err := f.matches.SubmitResult(ctx, SubmitResultInput{
			MatchID:             round1[i].ID,
			WinnerParticipantID: round1[i].P1ParticipantID,
			ActorUserID:         tournament.CreatorID,
		})
		require.NoError(t, err)
		last = outcome
	}

	// Winners still pair by round-1 match order, not by submission order.
	require.Len(t, last.NextRound, 2)
	assert.Equal(t, round1[0].P1ParticipantID, last.NextRound[0].P1ParticipantID)
	require.NotNil(t, last.NextRound[0].P2ParticipantID)
	assert.Equal(t, round1[1].P1ParticipantID, *last.NextRound[0].P2ParticipantID)
	assert.Equal(t, round1[2].P1ParticipantID, last.NextRound[1].P1ParticipantID)
	require.NotNil(t, last.NextRound[1].P2ParticipantID)
	assert.Equal(t, round1[3].P1ParticipantID, *last.NextRound[1].P2ParticipantID)
}

func TestSubmitResultNotifiesEntrants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tournament := startSoloTournament(t, f, 4)

	round1 := openMatches(t, f, tournament.ID, 1)
	require.Len(t, round1, 2)

	entrantUser := func(participantID int) int {
		p, err := f.participantRepo.FindByID(ctx, nil, participantID)
		require.NoError(t, err)
		require.NotNil(t, p.UserID)
		return *p.UserID
	}

	sentTitles := func(userID int) []string {
		var titles []string
		for _, n := range f.notifier.sent {
			if n.UserID == userID {
				titles = append(titles, n.Title)
			}
		}
		return titles
	}

	first := round1[0]
	_, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             first.ID,
		WinnerParticipantID: first.P1ParticipantID,
		ActorUserID:         tournament.CreatorID,
	})
	require.NoError(t, err)

	// Both sides hear about the result; no pairing exists yet.
	assert.Contains(t, sentTitles(entrantUser(first.P1ParticipantID)), "Match result recorded")
	assert.Contains(t, sentTitles(entrantUser(*first.P2ParticipantID)), "Match result recorded")
	for _, n := range f.notifier.sent {
		assert.NotEqual(t, "Match scheduled", n.Title)
	}

	second := round1[1]
	outcome, err := f.matches.SubmitResult(ctx, SubmitResultInput{
		MatchID:             second.ID,
		WinnerParticipantID: second.P1ParticipantID,
		ActorUserID:         tournament.CreatorID,
	})
	require.NoError(t, err)
	require.Len(t, outcome.NextRound, 1)

	final := outcome.NextRound[0]
	assert.Contains(t, sentTitles(entrantUser(final.P1ParticipantID)), "Match scheduled")
	require.NotNil(t, final.P2ParticipantID)
	assert.Contains(t, sentTitles(entrantUser(*final.P2ParticipantID)), "Match scheduled")
}

func TestGetMatchNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.matches.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

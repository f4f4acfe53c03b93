package services

import "context"

// XP and reward figures are policy constants of the platform, not
// correctness requirements of the engine.
const (
	xpRegistrationReward = 50
	xpChampionReward     = 500
	xpClanChampionReward = 250

	reasonRegistration = "tournament_registration"
	reasonChampion     = "tournament_champion"
)

// GameStatsDelta adjusts a user's win/games-played counters.
type GameStatsDelta struct {
	Wins        int
	GamesPlayed int
}

// UserProgression is the external user XP/stats collaborator. Calls are
// best-effort side effects: a failure is logged, never propagated into the
// engine's state transitions.
type UserProgression interface {
	AwardXP(ctx context.Context, userID, amount int, reason string) error
	IncrementGameStats(ctx context.Context, userID int, delta GameStatsDelta) error
}

// ClanProgression is the external clan XP collaborator.
type ClanProgression interface {
	AwardClanXP(ctx context.Context, clanID, amount int, reason string) error
}

// Notifier delivers fire-and-forget user notifications.
type Notifier interface {
	Notify(ctx context.Context, userID int, title, message string, data map[string]interface{}) error
}

// Broadcaster pushes real-time events to a tournament's WebSocket room.
// Satisfied by *brackets.Hub.
type Broadcaster interface {
	BroadcastToRoom(roomID string, message interface{})
}

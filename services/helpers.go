package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/repositories"
)

// logSideEffectError records a failed best-effort collaborator call. The
// state transition that triggered it has already committed.
func logSideEffectError(logger *slog.Logger, op string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Error("side effect failed", slog.String("op", op), slog.Any("error", err))
}

// notifyUsers fans a notification out to a set of users, logging failures.
func notifyUsers(ctx context.Context, notifier Notifier, logger *slog.Logger, userIDs []int, title, message string, data map[string]interface{}) {
	if notifier == nil {
		return
	}
	for _, userID := range userIDs {
		logSideEffectError(logger, fmt.Sprintf("notify user %d", userID),
			notifier.Notify(ctx, userID, title, message, data))
	}
}

// resolveEntrantUsers expands participants into the user IDs behind them,
// loading team rosters that were not fetched with the participant rows. An
// entrant whose roster cannot be loaded is dropped from the fan-out.
func resolveEntrantUsers(ctx context.Context, teamRepo repositories.TeamRepository, logger *slog.Logger, participants []*models.Participant) []int {
	for _, p := range participants {
		if p.TeamID == nil || p.Team != nil {
			continue
		}
		team, err := teamRepo.GetByID(ctx, nil, *p.TeamID)
		if err != nil {
			logSideEffectError(logger, fmt.Sprintf("load roster of team %d", *p.TeamID), err)
			continue
		}
		p.Team = team
	}
	return participantUserIDs(participants)
}

// GetExtensionFromContentType maps an image content type to a file extension
// for uploaded banners.
func GetExtensionFromContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		parts := strings.Split(contentType, "/")
		if len(parts) == 2 && strings.HasPrefix(parts[0], "image") && parts[1] != "" {
			return "." + strings.Split(parts[1], "+")[0], nil
		}
		return "", fmt.Errorf("could not determine file extension from content type: %q", contentType)
	}
}

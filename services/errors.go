package services

import "errors"

// Sentinel errors shared across services and the HTTP mapping layer.
var (
	// Not found
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrParticipantNotFound = errors.New("participant registration not found")
	ErrTeamNotFound        = errors.New("team not found")
	ErrMatchNotFound       = errors.New("match not found")

	// Validation and business rules
	ErrValidationFailed          = errors.New("validation failed")
	ErrTournamentNameRequired    = errors.New("tournament name is required")
	ErrTournamentGameRequired    = errors.New("tournament game is required")
	ErrTournamentInvalidFormat   = errors.New("invalid tournament format")
	ErrTournamentInvalidBracket  = errors.New("invalid bracket type")
	ErrTournamentInvalidCapacity = errors.New("tournament max participants must be between 2 and 256")
	ErrTournamentDateRequired    = errors.New("tournament start date is required")
	ErrTeamNameRequired          = errors.New("team name is required")
	ErrNotEnoughParticipants     = errors.New("at least 2 participants are required to start")
	ErrInvalidWinner             = errors.New("winner is not a participant of this match")
	ErrEntrantFormatMismatch     = errors.New("entrant reference does not match the tournament format")
	ErrTeamMismatch              = errors.New("team does not belong to this tournament or user is not a member")

	// Invalid state
	ErrRegistrationClosed                = errors.New("tournament registration is not open")
	ErrTournamentStarted                 = errors.New("tournament has already started")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrMatchNotActive                    = errors.New("match result has already been recorded")

	// Conflicts
	ErrTournamentFull      = errors.New("tournament registration is full")
	ErrAlreadyRegistered   = errors.New("entrant is already registered for this tournament")
	ErrDuplicateMembership = errors.New("user already belongs to a team in this tournament")
	ErrTeamNameConflict    = errors.New("team name is already taken in this tournament")
	ErrTournamentNameTaken = errors.New("tournament name already exists for this creator")
	ErrNotTeamFormat       = errors.New("tournament is not a team-format tournament")

	// Authorization
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
)

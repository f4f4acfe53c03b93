package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/playverse/tournament-engine/handlers"
	"github.com/playverse/tournament-engine/middleware"
)

type Handlers struct {
	Tournament  *handlers.TournamentHandler
	Participant *handlers.ParticipantHandler
	Team        *handlers.TeamHandler
	Match       *handlers.MatchHandler
	WebSocket   *handlers.WebSocketHandler
}

func InitRoutes(h Handlers, auth *middleware.Authenticator) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/tournaments", func(r chi.Router) {
		// Public read endpoints.
		r.Get("/", h.Tournament.ListHandler)
		r.Get("/{tournamentID}", h.Tournament.GetByIDHandler)
		r.Get("/{tournamentID}/bracket", h.Tournament.GetBracketHandler)
		r.Get("/{tournamentID}/participants", h.Participant.ListHandler)
		r.Get("/{tournamentID}/teams", h.Team.ListHandler)
		r.Get("/{tournamentID}/matches", h.Match.ListByTournamentHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/", h.Tournament.CreateHandler)
			r.Put("/{tournamentID}", h.Tournament.UpdateHandler)
			r.Post("/{tournamentID}/start", h.Tournament.StartHandler)
			r.Post("/{tournamentID}/cancel", h.Tournament.CancelHandler)
			r.Put("/{tournamentID}/banner", h.Tournament.UploadBannerHandler)

			r.Post("/{tournamentID}/participants", h.Participant.RegisterHandler)
			r.Delete("/{tournamentID}/participants/me", h.Participant.WithdrawHandler)

			r.Post("/{tournamentID}/teams", h.Team.CreateHandler)
		})
	})

	router.Get("/participants/{participantID}", h.Participant.GetByIDHandler)
	router.Get("/teams/{teamID}", h.Team.GetByIDHandler)

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", h.Match.GetByIDHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/{matchID}/result", h.Match.SubmitResultHandler)
		})
	})

	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	return router
}

package routes

import (
	"net/http"
	"time"

	"github.com/Dosada05/esports-betting/docs"
	"github.com/Dosada05/esports-betting/handlers"
	"github.com/Dosada05/esports-betting/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

const requestTimeout = 30 * time.Second

type Handlers struct {
	Auth      *handlers.AuthHandler
	Bets      *handlers.BetHandler
	Catalog   *handlers.CatalogHandler
	Reports   *handlers.ReportHandler
	WebSocket *handlers.WebSocketHandler
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// websocket живёт дольше любого таймаута запроса
	router.Get("/ws/game/{tournamentID}/{gameID}", h.WebSocket.ServeWs)

	router.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(docs.SwaggerJSON)
	})
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	router.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.Auth.Signup)
			r.Post("/login", h.Auth.Login)
			r.With(middleware.Authenticate(opts.JWTSecret)).Get("/me", h.Auth.Me)
		})

		r.Get("/stats", h.Catalog.Stats)
		r.Get("/past-results", h.Catalog.PastResults)
		r.Get("/tournaments", h.Catalog.ListTournaments)
		r.Get("/tournament/{tournamentID}/games", h.Catalog.TournamentGames)
		r.Get("/games", h.Catalog.ListGames)
		r.Get("/players", h.Catalog.ListPlayers)
		r.Get("/game/totals", h.Catalog.GameTotals)
		r.Get("/game/{tournamentID}/{gameID}/players", h.Catalog.GamePlayers)
		r.With(middleware.Authenticate(opts.JWTSecret)).Post("/game/{tournamentID}/{gameID}/report", h.Reports.Export)

		r.Route("/bets", func(r chi.Router) {
			r.Use(middleware.OptionalAuthenticate(opts.JWTSecret))
			r.Get("/", h.Bets.ListBets)
			r.Post("/", h.Bets.PlaceBet)
			r.Delete("/", h.Bets.DeleteBets)
			r.Post("/outcome", h.Bets.SetOutcome)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"the requested resource could not be found"}` + "\n"))
	})
}

package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"github.com/RemyAde/kopa-backend/internal/config"
	"github.com/RemyAde/kopa-backend/internal/database"
	"github.com/RemyAde/kopa-backend/internal/eligibility"
	"github.com/RemyAde/kopa-backend/internal/membership"
	"github.com/RemyAde/kopa-backend/internal/platoon"
	"github.com/RemyAde/kopa-backend/internal/server"
)

// Bare "NY" style codes and full call-up numbers ("NY/23A/1234") are both
// accepted; the two letter prefix identifies the state either way.
var stateCodePattern = regexp.MustCompile(`^[A-Z]{2}(/\d{2}[A-Z]/\d{4})?$`)

type KopaApp struct {
	log            *log.Logger
	db             database.KopaRepository
	mux            *http.Server
	hub            *server.Hub
	router         *server.Router
	assigner       *platoon.Assigner
	memberships    *membership.Store
	checker        eligibility.Checker
	validate       *validator.Validate
	signingKey     []byte
	allowedOrigins []string
	historyLimit   int

	// overridable in tests
	generateShortId func() (string, error)
}

func NewKopaApp(mux *http.ServeMux, logger *log.Logger, hub *server.Hub, router *server.Router, assigner *platoon.Assigner,
	memberships *membership.Store, checker eligibility.Checker, db database.KopaRepository, cfg *config.Config) *KopaApp {
	validate := validator.New()
	_ = validate.RegisterValidation("statecode", func(fl validator.FieldLevel) bool {
		return stateCodePattern.MatchString(fl.Field().String())
	})

	s := &KopaApp{
		log:             logger,
		db:              db,
		hub:             hub,
		router:          router,
		assigner:        assigner,
		memberships:     memberships,
		checker:         checker,
		validate:        validate,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		historyLimit:    cfg.HistoryLimit,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.health)
	mux.Handle("POST /api/platoon/join", s.authMiddleware(s.joinPlatoon))
	mux.Handle("GET /api/chatrooms", s.authMiddleware(s.listChatrooms))
	mux.Handle("GET /api/chatrooms/mine", s.authMiddleware(s.myChatrooms))
	mux.Handle("POST /api/chatrooms", s.authMiddleware(s.createChatroom))
	mux.Handle("POST /api/chatrooms/join", s.authMiddleware(s.joinChatroom))
	mux.Handle("DELETE /api/chatrooms/leave", s.authMiddleware(s.leaveChatroom))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *KopaApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *KopaApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/RemyAde/kopa-backend/internal/api"
	"github.com/RemyAde/kopa-backend/internal/config"
	"github.com/RemyAde/kopa-backend/internal/database"
	"github.com/RemyAde/kopa-backend/internal/eligibility"
	"github.com/RemyAde/kopa-backend/internal/membership"
	"github.com/RemyAde/kopa-backend/internal/platoon"
	"github.com/RemyAde/kopa-backend/internal/server"
	"github.com/RemyAde/kopa-backend/internal/statecode"
	"github.com/RemyAde/kopa-backend/internal/stats"
	"github.com/RemyAde/kopa-backend/internal/types"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingSecret  string
	allowedOrigins stringSliceFlag
	platoonRooms   stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "", "server address")
	flag.StringVar(&dsn, "dsn", "", "database connection string")
	flag.StringVar(&signingSecret, "signing-secret", "", "base64 encoded token signing secret")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Var(&platoonRooms, "platoon-rooms", "comma-separated CODE=room-id state code mappings")
	flag.Parse()

	logger := log.New(os.Stderr, "[kopa] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config:", err)
	}
	if addr != "" {
		cfg.ServerAddr = addr
	}
	if dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if signingSecret != "" {
		cfg.SigningSecret = signingSecret
	}
	if len(allowedOrigins) > 0 {
		cfg.AllowedOrigins = allowedOrigins
	}
	if len(platoonRooms) > 0 {
		cfg.PlatoonRooms = platoonRooms
	}
	if err := cfg.Finalize(); err != nil {
		logger.Fatal("config:", err)
	}

	mappings, err := statecode.ParseMappings(cfg.PlatoonRooms)
	if err != nil {
		logger.Fatal("platoon rooms:", err)
	}

	registry, err := statecode.NewRegistry(mappings)
	if err != nil {
		logger.Fatal("state code registry:", err)
	}

	dbConn, err := database.NewPgKopaRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.EnsureSchema(); err != nil {
		logger.Fatal("ensure schema:", err)
	}

	// platoon rooms exist ahead of any join
	for _, m := range registry.Mappings() {
		if _, err := dbConn.EnsureRoom(database.CreateRoomParams{
			Id:        m.RoomId,
			Name:      "Platoon " + m.Code,
			Kind:      types.RoomKindPlatoon,
			StateCode: m.Code,
		}); err != nil {
			logger.Fatalf("ensure room %q: %v", m.RoomId, err)
		}
	}

	memberships := membership.NewStore(logger, dbConn)
	if err := warmMemberships(memberships, dbConn); err != nil {
		logger.Fatal("load memberships:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	hub := server.NewHub(logger, memberships, statsUpdater)
	router := server.NewRouter(logger, memberships, hub, dbConn)
	if err := warmSequences(router, dbConn); err != nil {
		logger.Fatal("load sequences:", err)
	}

	checker := eligibility.NewPolicyChecker(cfg.RoomCapacity, memberships.MemberCount)
	assigner := platoon.NewAssigner(logger, registry, checker, memberships)

	srv := api.NewKopaApp(mux, logger, hub, router, assigner, memberships, checker, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down hub...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("hub shutdown:", err)
	}

	logger.Println("shutdown complete")
}

// warmMemberships replays persisted memberships into the in-memory store.
func warmMemberships(store *membership.Store, db database.KopaRepository) error {
	records, err := db.ListMemberships()
	if err != nil {
		return err
	}

	for _, m := range records {
		restored := types.Membership{
			UserId:   m.UserId,
			RoomId:   m.RoomId,
			JoinedAt: m.JoinedAt,
		}
		if err := store.Restore(restored); err != nil {
			return err
		}
	}

	return nil
}

// warmSequences advances each room's counter past its stored messages so
// numbering stays monotonic across restarts.
func warmSequences(router *server.Router, db database.KopaRepository) error {
	rooms, err := db.ListRooms()
	if err != nil {
		return err
	}

	for _, room := range rooms {
		msgs, err := db.GetMessages(room.Id, 1)
		if err != nil {
			return err
		}
		if len(msgs) > 0 {
			router.Advance(room.Id, msgs[len(msgs)-1].SeqId)
		}
	}

	return nil
}

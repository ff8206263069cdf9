package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/op/go-logging"
	"github.com/redis/go-redis/v9"

	"mensajeria/internal/chat"
	"mensajeria/internal/config"
	"mensajeria/internal/db"
	myMiddleware "mensajeria/internal/middleware"
	"mensajeria/internal/participant"
)

var log = logging.MustGetLogger("main")

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", "", "http service address (overrides MENSAJERIA_ADDR)")
	flag.Parse()

	conf, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	if *addr != "" {
		conf.Addr = *addr
	}
	setupLogging(conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	var (
		store chat.Store
		dir   participant.Directory
	)
	switch conf.Store {
	case config.StorePostgres:
		database, err := db.NewDatabase(conf.DatabaseDSN)
		if err != nil {
			log.Fatalf("❌ Failed to connect to DB: %v", err)
		}
		defer database.Close()
		log.Info("✅ Connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		log.Info("✅ Database Schema Initialized")

		store = chat.NewRepository(database.Conn)
		dir = participant.NewRepository(database.Conn)
	default:
		log.Warning("⚠️ Using the in-memory store; messages are lost on restart")
		store = chat.NewMemoryStore()
		dir = participant.NewMemoryDirectory(true)
	}

	// 3. Push fan-out. Without Redis, events only reach sockets on this instance.
	var redisClient *redis.Client
	if conf.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: conf.RedisAddr})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Info("✅ Connected to Redis")
	}

	hub := chat.NewHub(redisClient)
	var events chat.Publisher = hub
	if redisClient != nil {
		events = chat.NewRedisPublisher(redisClient)
		go hub.SubscribeToRedis(ctx)
	}
	go hub.Run(ctx)

	// 4. Features
	participantService := participant.NewService(dir, conf.JWTSecret)
	participantHandler := participant.NewHandler(participantService)

	chatService := chat.NewService(store, dir, events)
	chatHandler := chat.NewHandler(chatService, hub, conf.DigestLimit, conf.CheckOrigin)

	authMiddleware := myMiddleware.NewAuthMiddleware(participantService)

	// 5. Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return conf.OriginAllowed(origin) },
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/mensajeria", func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// Websockets are long lived; everything else gets the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(conf.RequestTimeout))
			r.Get("/participantes/{tipo}/{id}", participantHandler.GetParticipant)
		})
		chatHandler.Routes(r, middleware.Timeout(conf.RequestTimeout))
	})

	srv := &http.Server{
		Addr:              conf.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatalf("❌ Failed to listen on %s: %v", srv.Addr, err)
	}
	log.Infof("🚀 Server starting on %s (store=%s)", ln.Addr(), conf.Store)
	if err := serve(ctx, srv, ln); err != nil {
		log.Fatal(err)
	}
	log.Info("👋 Server stopped")
}

// serve runs srv until ctx ends, then waits for in-flight requests before
// returning so deferred store and Redis closes run after the last handler.
func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	<-shutdownDone
	return nil
}

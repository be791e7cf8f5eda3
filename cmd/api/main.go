package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Markizx/neural-chat-sub000/internal/config"
	"github.com/Markizx/neural-chat-sub000/internal/database"
	"github.com/Markizx/neural-chat-sub000/internal/handler"
	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/ai"
	brainstormService "github.com/Markizx/neural-chat-sub000/internal/service/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/broadcast"
	"github.com/Markizx/neural-chat-sub000/internal/service/summary"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize session store: %v", err)
	}
	defer closeStore()

	registry := buildRegistry(ctx, cfg)
	if len(registry.Kinds()) == 0 {
		log.Println("warning: no ai backend configured, sessions cannot be started")
	}

	summarySvc := summary.NewService(summaryBackend(cfg, registry), summary.Config{
		Enabled:      cfg.Summary.Enabled,
		HistoryLimit: cfg.Summary.HistoryLimit,
	})
	if summarySvc.Enabled() {
		log.Println("LLM summary enabled")
	} else {
		log.Println("LLM summary unavailable, falling back to heuristics")
	}

	hub := broadcast.NewHub()
	brainstormSvc := brainstormService.NewService(store, registry, hub, summarySvc, brainstormService.Config{
		DefaultMaxTurns:     cfg.Brainstorm.DefaultMaxTurns,
		MaxTurnsLimit:       cfg.Brainstorm.MaxTurnsLimit,
		DefaultTurnDuration: cfg.Brainstorm.DefaultTurnDuration,
		ContinuationDelay:   cfg.Brainstorm.ContinuationDelay,
		TurnTimeout:         cfg.Brainstorm.TurnTimeout,
		ChunkWords:          cfg.Brainstorm.ChunkWords,
		ChunkDelay:          cfg.Brainstorm.ChunkDelay,
		MaxTokens:           cfg.Brainstorm.MaxTokens,
		DefaultKindA:        cfg.Brainstorm.DefaultKindA,
		DefaultKindB:        cfg.Brainstorm.DefaultKindB,
	})

	router := handler.NewRouter(brainstormSvc, hub, cfg.Server.AllowedOrigins)

	startServer(ctx, cfg.Server, router)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := brainstormSvc.Close(closeCtx); err != nil {
		log.Printf("warning: brainstorm chains did not stop in time: %v", err)
	}
}

// openStore 选择会话存储：配置了 DATABASE_URL 时使用 Postgres，否则使用内存。
func openStore(ctx context.Context, cfg config.DatabaseConfig) (brainstorm.Store, func(), error) {
	if !cfg.Enabled() {
		log.Println("DATABASE_URL 未配置，使用内存会话存储")
		return brainstorm.NewMemoryStore(), func() {}, nil
	}

	if cfg.AutoMigrate {
		migrations, err := database.Migrations()
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunMigrations(cfg.URL, migrations); err != nil {
			return nil, nil, err
		}
	}

	pool, err := database.NewPool(ctx, cfg.URL, database.PoolConfig{
		MaxConns: cfg.MaxConns,
		MinConns: cfg.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Println("Postgres session store initialized successfully")
	return database.NewSessionRepository(pool), pool.Close, nil
}

// buildRegistry 注册所有已配置凭证的模型后端。
func buildRegistry(ctx context.Context, cfg *config.Config) *ai.Registry {
	registry := ai.NewRegistry()

	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize Ark backend: %v", err)
		} else {
			registry.Register(ai.KindArk, ai.NewChatModelBackend(chatModel, cfg.AI.StreamResponse))
			log.Println("Ark backend initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 ark 后端")
	}

	if cfg.OpenAI.Enabled() {
		backend, err := ai.NewOpenAIBackend(ai.OpenAIOptions{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		})
		if err != nil {
			log.Printf("warning: failed to initialize OpenAI backend: %v", err)
		} else {
			registry.Register(ai.KindOpenAI, backend)
			log.Println("OpenAI backend initialized successfully")
		}
	} else {
		log.Println("OPENAI_API_KEY 未配置，跳过 openai 后端")
	}

	if cfg.Gemini.Enabled() {
		backend, err := ai.NewGeminiBackend(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Printf("warning: failed to initialize Gemini backend: %v", err)
		} else {
			registry.Register(ai.KindGemini, backend)
			log.Println("Gemini backend initialized successfully")
		}
	} else {
		log.Println("GEMINI_API_KEY 未配置，跳过 gemini 后端")
	}

	return registry
}

// summaryBackend 返回总结使用的后端，未配置时返回 nil。
func summaryBackend(cfg *config.Config, registry *ai.Registry) ai.Backend {
	kind := cfg.Summary.Backend
	if kind == "" {
		kind = cfg.Brainstorm.DefaultKindA
	}
	backend, err := registry.Get(kind)
	if err != nil {
		log.Printf("warning: summary backend unavailable: %v", err)
		return nil
	}
	return backend
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Brainstorm backend listening on %s", addr)
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

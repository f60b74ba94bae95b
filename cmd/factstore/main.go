package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/factstore/internal/ai"
	"github.com/xxxsen/factstore/internal/config"
	"github.com/xxxsen/factstore/internal/db"
	"github.com/xxxsen/factstore/internal/embedder"
	"github.com/xxxsen/factstore/internal/handler"
	"github.com/xxxsen/factstore/internal/middleware"
	"github.com/xxxsen/factstore/internal/repo"
	"github.com/xxxsen/factstore/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "factstore",
		Short: "semantic document store server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run factstore server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimension", cfg.Embedding.Dimension),
	)

	provider, err := ai.NewEmbedProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init embed provider: %w", err)
	}
	emb, err := embedder.New(provider, embedder.Config{
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		BatchSize:  cfg.Embedding.BatchSize,
		CacheSize:  cfg.Embedding.CacheSize,
		MaxRetries: cfg.Embedding.MaxRetries,
		RetryDelay: time.Duration(cfg.Embedding.RetryDelaySeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	docRepo := repo.NewDocumentRepo(conn)
	documentService := service.NewDocumentService(docRepo, emb, cfg.Embedding.BatchSize)
	searchService := service.NewSearchService(docRepo, emb, cfg.Search.TopK)

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(documentService),
		Search:    handler.NewSearchHandler(searchService),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

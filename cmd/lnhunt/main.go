package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	lnhunt "github.com/lnhunt/lnhunt"
	lnhttp "github.com/lnhunt/lnhunt/http"
	"github.com/lnhunt/lnhunt/lnbits"
	"github.com/lnhunt/lnhunt/progress"
	"github.com/lnhunt/lnhunt/ratelimit"
	"github.com/lnhunt/lnhunt/session"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime)

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := lnhunt.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	catalog, err := lnhunt.LoadCatalog(cfg.QuestionsPath)
	if err != nil {
		log.Fatalf("Failed to load questions: %v", err)
	}
	log.Printf("Loaded %d questions from %s", catalog.Len(), cfg.QuestionsPath)

	var provider lnhunt.InvoiceProvider
	if cfg.UseFakeProvider {
		log.Println("WARNING: using the fake invoice provider, no real payments will happen")
		provider = lnbits.NewFakeProvider()
	} else {
		provider, err = lnbits.NewClient(&lnbits.Config{
			URL:      cfg.LNbitsURL,
			APIKey:   cfg.LNbitsAPIKey,
			WalletID: cfg.LNbitsWalletID,
		})
		if err != nil {
			log.Fatalf("Failed to create LNbits client: %v", err)
		}
	}

	store, err := progress.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open progress database: %v", err)
	}
	defer store.Close()

	aggregator := progress.NewAggregator(catalog, store)
	reward := progress.NewRewardDispatcher(aggregator, store, cfg.RewardClaimRef)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := session.NewPoller(provider)
	manager := session.NewManager(ctx, catalog, provider, poller, aggregator, cfg.AmountSats)
	defer manager.Close()

	clientLimiter := ratelimit.NewLimiter(ratelimit.DefaultWindow, ratelimit.DefaultClientLimit)
	hashLimiter := ratelimit.NewLimiter(ratelimit.DefaultWindow, ratelimit.HashLimit(ratelimit.DefaultClientLimit))
	defer clientLimiter.Stop()
	defer hashLimiter.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := lnhttp.NewServer(lnhttp.Config{
		Catalog:       catalog,
		Provider:      provider,
		Sessions:      manager,
		Progress:      aggregator,
		Reward:        reward,
		Store:         store,
		AmountSats:    cfg.AmountSats,
		ClientLimiter: clientLimiter,
		HashLimiter:   hashLimiter,
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Received shutdown signal, exiting...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("LNHunt listening on %s", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

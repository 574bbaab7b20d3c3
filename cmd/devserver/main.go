package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"cartsync/internal/catalog"
	"cartsync/internal/devserver"
	"cartsync/pkg/logger"
	"cartsync/pkg/shutdown"
)

func main() {
	port := getEnv("DEVSERVER_PORT", "8080")
	jwtSecret := getEnv("JWT_SECRET", "dev-secret")
	mongoURI := os.Getenv("MONGO_URI")
	mongoDBName := getEnv("MONGO_DB_NAME", "cartdb")

	log := logger.New("cart-devserver", getEnv("ENV", "dev"), getEnv("LOG_LEVEL", "info"))

	ctx := context.Background()

	var store devserver.RowStore
	if mongoURI != "" {
		db, err := devserver.ConnectMongoDB(ctx, mongoURI, mongoDBName)
		if err != nil {
			log.Error("failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		mongoStore := devserver.NewMongoStore(db)
		if err := mongoStore.CreateIndexes(ctx); err != nil {
			log.Error("failed to create indexes", "error", err)
			os.Exit(1)
		}
		defer db.Client().Disconnect(ctx)
		store = mongoStore
		log.Info("using MongoDB row store", "uri", mongoURI)
	} else {
		store = devserver.NewMemoryStore()
		log.Info("using in-memory row store")
	}

	srv := devserver.NewServer(store, fixtureProducts(), []byte(jwtSecret), log)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("devserver listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to serve", "error", err)
			os.Exit(1)
		}
	}()

	runCtx, stop := shutdown.WithSignals(ctx)
	defer stop()
	<-runCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	log.Info("devserver stopped")
}

func fixtureProducts() map[string]catalog.Product {
	return map[string]catalog.Product{
		"tee-classic": {
			ID:              "tee-classic",
			Title:           "Classic Tee",
			Price:           25,
			DiscountedPrice: 19.99,
			Images:          []string{"https://cdn.example.com/tee-classic.jpg"},
			Variants: []catalog.Variant{
				{ID: "tee-classic-s", Price: 25, DiscountedPrice: 19.99},
				{ID: "tee-classic-m", Price: 25, DiscountedPrice: 19.99},
				{ID: "tee-classic-l", Price: 27},
			},
		},
		"mug-enamel": {
			ID:     "mug-enamel",
			Title:  "Enamel Mug",
			Price:  12.5,
			Images: []string{"https://cdn.example.com/mug-enamel.jpg"},
		},
		"hoodie-zip": {
			ID:              "hoodie-zip",
			Title:           "Zip Hoodie",
			Price:           60,
			DiscountedPrice: 45,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/pixelproof/pixelproof/internal/api/http"
	"github.com/pixelproof/pixelproof/internal/auth"
	"github.com/pixelproof/pixelproof/internal/config"
	"github.com/pixelproof/pixelproof/internal/db"
	"github.com/pixelproof/pixelproof/internal/quiz"
	"github.com/pixelproof/pixelproof/internal/rbac"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- Store ---
	var store quiz.Store
	if cfg.DBDriver == "memory" {
		store = quiz.NewInMemoryStore()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		store = quiz.NewSQLStore(dbh, cfg.DBDriver)
	}
	svc := quiz.NewService(store)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)
	adminCreds := auth.AdminCreds{
		User:     cfg.AdminUser,
		PassHash: cfg.AdminPassHash,
		SeedSettings: quiz.Settings{
			NumQuestions: cfg.DefaultNumQuestions,
			NumOptions:   cfg.DefaultNumOptions,
			PassingScore: cfg.DefaultPassingScore,
		},
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, store))
	r.Post("/auth/admin/login", auth.AdminLoginHandler(authSvc, store, adminCreds))

	// Protected API (JWT → subject/role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Taker flow
		pr.With(rbac.Require("quiz:take")).
			Get("/quiz", api.RequestQuizHandler(svc))
		pr.With(rbac.Require("quiz:submit")).
			Post("/quiz/submit", api.SubmitQuizHandler(svc))

		// Admin surface
		pr.With(rbac.Require("settings:read")).
			Get("/admin/settings", api.GetSettingsHandler(store))
		pr.With(rbac.Require("settings:write")).
			Post("/admin/settings", api.UpdateSettingsHandler(store))
		pr.With(rbac.Require("images:upload")).
			Post("/admin/images", api.UploadImagesHandler(store))
		pr.With(rbac.Require("images:list")).
			Get("/admin/images", api.ListImagesHandler(store))
		pr.With(rbac.Require("images:reset")).
			Post("/admin/images/reset", api.ResetImagesHandler(store))
		pr.With(rbac.Require("results:list")).
			Get("/admin/results", api.ListResultsHandler(store))
		pr.With(rbac.Require("results:export")).
			Get("/admin/results/csv", api.ExportResultsCSVHandler(store))
		pr.With(rbac.Require("retest:grant")).
			Post("/admin/retest", api.ApproveRetestHandler(store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

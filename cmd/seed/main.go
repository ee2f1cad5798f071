package main

import (
	"fmt"

	"github.com/oggyb/venue-match/internal/auth"
	"github.com/oggyb/venue-match/internal/config"
	"github.com/oggyb/venue-match/internal/db"
	"github.com/oggyb/venue-match/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init db")
	}

	users, err := db.SeedTestData(database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed")
	}

	// dev tokens for websocket and gRPC clients
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	for _, u := range users {
		token, _, err := tokens.Issue(u.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to issue token")
		}
		name := ""
		if u.Profile != nil {
			name = u.Profile.Name
		}
		fmt.Printf("%s\t%s\t%s\n", u.ID, name, token)
	}

	log.Info().Int("users", len(users)).Msg("seeding completed")
}

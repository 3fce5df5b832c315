// Package config centralizes deployment configuration for the CarsNPoke
// client. Values come from environment variables, optionally seeded from a
// .env file in the working directory so local development does not require
// exporting anything by hand.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Default endpoints for a local development deployment. The hosted
// deployment overrides these through the environment.
const (
	DefaultGenerateURL = "http://localhost:8000"
	DefaultCatalogURL  = "https://raw.githubusercontent.com/fanzeyi/pokemon.json/master/pokedex.json"
)

// Config holds all deployment-level settings. The base URLs are
// configuration, not part of any component contract: the same binary talks
// to a local or a hosted deployment depending on these values.
type Config struct {
	// GenerateURL is the base URL of the image generation service.
	GenerateURL string
	// CatalogURL points at the static catalog JSON document.
	CatalogURL string
	// IdentityURL is the base URL of the identity provider.
	IdentityURL string
	// MediaBucket is the object storage bucket uploads go to.
	MediaBucket string
	// Region is the storage region used to build public object URLs.
	Region string
}

// Load reads configuration from the environment. A .env file, when present,
// is loaded first; real environment variables win over file values.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded configuration from .env file")
	}

	cfg := Config{
		GenerateURL: envOr("CARSNPOKE_GENERATE_URL", DefaultGenerateURL),
		CatalogURL:  envOr("CARSNPOKE_CATALOG_URL", DefaultCatalogURL),
		IdentityURL: os.Getenv("CARSNPOKE_IDENTITY_URL"),
		MediaBucket: os.Getenv("CARSNPOKE_MEDIA_BUCKET"),
		Region:      envOr("AWS_REGION", "us-east-1"),
	}

	log.Debug().
		Str("generateUrl", cfg.GenerateURL).
		Str("catalogUrl", cfg.CatalogURL).
		Str("bucket", cfg.MediaBucket).
		Msg("Configuration loaded")

	return cfg
}

// RequireUpload validates the settings the upload path cannot run without.
func (c Config) RequireUpload() error {
	if c.MediaBucket == "" {
		return fmt.Errorf("CARSNPOKE_MEDIA_BUCKET is required")
	}
	return nil
}

// RequireIdentity validates the settings the sign-in path cannot run without.
func (c Config) RequireIdentity() error {
	if c.IdentityURL == "" {
		return fmt.Errorf("CARSNPOKE_IDENTITY_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/chatform/chatform/internal/audit"
	"github.com/chatform/chatform/internal/cache"
	"github.com/chatform/chatform/internal/config"
	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/geo"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/resolution"
	"github.com/chatform/chatform/internal/rules"
	"github.com/chatform/chatform/internal/sheets"
	"github.com/chatform/chatform/internal/tools"
	"github.com/chatform/chatform/internal/verification"
)

// services are the runtime dependencies shared by the commands
type services struct {
	store    cache.Store
	verifier *verification.Service
	rules    *rules.Engine
	tools    *tools.Registry
	model    llm.ChatModel
	audit    audit.Sink
}

// buildServices wires everything cfg enables. The chat model is only
// built when withModel is set; the audit store only when withAudit is set.
func buildServices(ctx context.Context, cfg *config.Config, withModel, withAudit bool) (*services, error) {
	s := &services{store: cache.New(ctx, cfg.Cache.RedisURL)}

	allowlist := verification.NewAllowlist(
		sheets.NewSource("allowlist", cfg.Verification.AllowlistURL, cfg.Verification.AllowlistTTL, s.store))
	var search verification.Searcher
	if cfg.Verification.SearchKey != "" {
		p, err := verification.NewPerplexitySearch(verification.SearchConfig{
			APIKey:           cfg.Verification.SearchKey,
			Model:            cfg.Verification.SearchModel,
			BaseURL:          cfg.Verification.SearchBaseURL,
			Jurisdiction:     cfg.Verification.Jurisdiction,
			ExcludedIndustry: cfg.Verification.ExcludedIndustry,
			Timeout:          cfg.Verification.Timeout,
		})
		if err != nil {
			return nil, err
		}
		search = p
	}
	if cfg.Verification.AllowlistURL != "" || search != nil {
		s.verifier = verification.NewService(allowlist, search)
	}

	var geocoder geo.Geocoder
	if cfg.Geocoding.APIKey != "" {
		g, err := geo.NewGoogleGeocoder(geo.GoogleConfig{
			APIKey:    cfg.Geocoding.APIKey,
			URL:       cfg.Geocoding.URL,
			RateLimit: cfg.Geocoding.RateLimit,
		})
		if err != nil {
			return nil, err
		}
		geocoder = g
	}

	deps := rules.Deps{
		Blacklist: sheets.NewSource("blacklist", cfg.Blacklist.URL, cfg.Blacklist.TTL, s.store),
		Geocoder:  geocoder,
		LimitKm:   cfg.Geocoding.LimitKm,
	}
	s.tools = tools.NewRegistry()
	if s.verifier != nil {
		deps.Verifier = s.verifier
		if err := s.tools.Register(tools.NewEmployerHandler(s.verifier)); err != nil {
			return nil, err
		}
	}
	s.rules = rules.NewDefaultEngine(deps)

	if withModel {
		model, err := llm.NewChatModel(ctx, cfg, redisClient(s.store))
		if err != nil {
			return nil, err
		}
		s.model = model
	}

	s.audit = audit.Nop{}
	if withAudit {
		sink, err := audit.Open(cfg.Audit.Format, cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		s.audit = sink
	}
	return s, nil
}

func (s *services) resolutionOptions(cfg *config.Config) resolution.Options {
	return resolution.Options{
		MaxToolRounds: cfg.Resolution.MaxToolRounds,
		MaxTurns:      cfg.Resolution.MaxTurns,
		Timeout:       cfg.LLM.Timeout,
	}
}

// Close releases the audit store and the shared cache connection
func (s *services) Close() error {
	err := s.audit.Close()
	if rs, ok := s.store.(*cache.RedisStore); ok {
		if cerr := rs.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func redisClient(store cache.Store) *redis.Client {
	if rs, ok := store.(*cache.RedisStore); ok {
		return rs.Client()
	}
	return nil
}

// loadApplication reads an application snapshot from a JSON file
func loadApplication(path string) (*models.ApplicationSnapshot, error) {
	if path == "" {
		return nil, errors.ValidationError("--file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read application: %w", err)
	}
	var app models.ApplicationSnapshot
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, errors.ValidationErrorf("invalid application %s: %v", path, err)
	}
	if len(app.Fields) == 0 {
		return nil, errors.ValidationErrorf("application %s has no fields", path)
	}
	return &app, nil
}

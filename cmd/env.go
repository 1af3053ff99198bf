package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/linkpellow/brainscraper.io-sub002/internal/enrich"
	"github.com/linkpellow/brainscraper.io-sub002/internal/govern"
	"github.com/linkpellow/brainscraper.io-sub002/internal/resolve"
	"github.com/linkpellow/brainscraper.io-sub002/internal/store"
	"github.com/linkpellow/brainscraper.io-sub002/internal/validate"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/dnc"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/peoplesearch"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/phoneintel"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/suggest"
)

// scrapeEnv holds the initialized store, clients, resolver, and orchestrator
// shared by the run/batch/serve commands.
type scrapeEnv struct {
	Store        store.Store
	Resolver     *resolve.Resolver
	People       peoplesearch.Client
	Orchestrator *enrich.Orchestrator
}

// Close releases resources held by the environment.
func (e *scrapeEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "brainscraper.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, API clients, resolver, and orchestrator.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*scrapeEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// Discovery sources, in trust order: suggest first, autocomplete fallback.
	var sources []resolve.Source
	if cfg.Suggest.SuggestURL != "" {
		sources = append(sources, suggest.NewSuggestSource(cfg.Suggest.SuggestURL,
			suggest.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Suggest.TimeoutSecs) * time.Second})))
	}
	if cfg.Suggest.AutocompleteURL != "" {
		sources = append(sources, suggest.NewAutocompleteSource(cfg.Suggest.AutocompleteURL,
			suggest.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Suggest.TimeoutSecs) * time.Second})))
	}
	if len(sources) == 0 {
		zap.L().Debug("no discovery sources configured, resolver limited to static and extracted entries")
	}

	resolver := resolve.New(st, sources...)
	if err := resolver.SeedStatic(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "seed static locations")
	}
	if cfg.Geo.SeedFile != "" {
		if err := resolver.SeedFile(ctx, cfg.Geo.SeedFile); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	people := peoplesearch.NewClient(
		peoplesearch.WithBaseURL(cfg.PeopleSearch.BaseURL),
		peoplesearch.WithTokens(cfg.PeopleSearch.Token, cfg.PeopleSearch.TokenFile, cfg.PeopleSearch.RefreshToken),
		peoplesearch.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.PeopleSearch.TimeoutSecs) * time.Second}),
	)
	phones := phoneintel.NewClient(cfg.PhoneIntel.Key,
		phoneintel.WithBaseURL(cfg.PhoneIntel.BaseURL),
		phoneintel.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.PhoneIntel.TimeoutSecs) * time.Second}),
	)
	dncClient := dnc.NewClient(cfg.DNC.Key,
		dnc.WithBaseURL(cfg.DNC.BaseURL),
		dnc.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.DNC.TimeoutSecs) * time.Second}),
	)

	governor := govern.New(st, cfg.Governor)
	validator := validate.New(validate.Policy{
		AllowSubstring: cfg.Validator.AllowSubstring,
		MinTokenLen:    cfg.Validator.MinTokenLen,
	})

	orchestrator := enrich.New(st, governor, validator, people, phones, dncClient, enrich.Options{
		Workers:      cfg.Batch.MaxConcurrentLeads,
		DNCAccountID: cfg.DNC.AccountID,
	})

	return &scrapeEnv{
		Store:        st,
		Resolver:     resolver,
		People:       people,
		Orchestrator: orchestrator,
	}, nil
}

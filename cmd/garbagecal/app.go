package main

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/garbagecal/internal/adapter/calendar"
	"github.com/couchcryptid/garbagecal/internal/adapter/geocode"
	"github.com/couchcryptid/garbagecal/internal/cache"
	"github.com/couchcryptid/garbagecal/internal/config"
	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
	"github.com/couchcryptid/garbagecal/internal/pipeline"
	"github.com/couchcryptid/garbagecal/internal/prefs"
	"github.com/couchcryptid/garbagecal/internal/resolver"
	"github.com/couchcryptid/garbagecal/internal/store"
	"github.com/jonboulle/clockwork"
)

const streetsKind = "streets"

// app holds the components shared by every subcommand.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	prefs       *prefs.Store
	user        *store.UserData
	collections *store.CollectionsData
	streets     *cache.Keyed[[]domain.Street]
	scraper     *calendar.Scraper
	refresher   *pipeline.Refresher
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	p, err := prefs.Open(cfg.PrefsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
		prefs:   p,
	}
	a.user = store.NewUserData(cfg.CacheDir, p, logger, metrics)
	a.collections = store.NewCollectionsData(cfg.CacheDir, p, clock, logger, metrics)
	a.streets = cache.New[[]domain.Street](cfg.CacheDir, streetsKind, logger, metrics)
	a.scraper = calendar.NewScraper(cfg.CalendarURL, cfg.CalendarConnectTimeout, domain.NewHolidayCalendar(), logger, metrics)
	a.refresher = pipeline.New(a.scraper, a.user, a.collections, a.streets, clock, logger, metrics, cfg.RefreshInterval)
	return a, nil
}

func (a *app) resolver() *resolver.Resolver {
	client := geocode.NewClient(a.cfg.GeocodeURL, a.cfg.GeocodeAPIKey, a.cfg.GeocodeConnectTimeout, a.logger, a.metrics)
	geocoder := geocode.NewCachedGeocoder(client, a.cfg.GeocodeCacheSize, a.metrics)
	return resolver.New(geocoder, a.cfg.Locality, a.user, a.logger, a.metrics)
}

// clear drops every cached record and resets the preferences so the next
// refresh starts from scratch.
func (a *app) clear() error {
	if err := a.collections.Clear(); err != nil {
		return err
	}
	if err := a.user.Clear(); err != nil {
		return err
	}
	return a.streets.Clear()
}

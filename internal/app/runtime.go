// Package app assembles the bot's components and supervises their
// lifecycles.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weeklyops/reportbot/internal/config"
	"github.com/weeklyops/reportbot/internal/connectors"
	"github.com/weeklyops/reportbot/internal/connectors/larkws"
	"github.com/weeklyops/reportbot/internal/dedupe"
	"github.com/weeklyops/reportbot/internal/gateway"
	"github.com/weeklyops/reportbot/internal/httpapi"
	"github.com/weeklyops/reportbot/internal/intent"
	"github.com/weeklyops/reportbot/internal/lark"
	"github.com/weeklyops/reportbot/internal/llm/ark"
	"github.com/weeklyops/reportbot/internal/refresh"
	"github.com/weeklyops/reportbot/internal/report"
	"github.com/weeklyops/reportbot/internal/scheduler"
	"github.com/weeklyops/reportbot/internal/store"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	store      *store.Store
	refresher  *refresh.Engine
	sched      *scheduler.Service
	httpServer *http.Server
	connectors []connectors.Connector
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.AutoMigrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	larkClient := lark.New(lark.Config{
		AppID:           cfg.LarkAppID,
		AppSecret:       cfg.LarkAppSecret,
		BaseURL:         cfg.LarkAPIBase,
		DocBaseURL:      cfg.LarkDocBase,
		BitableAppToken: cfg.BitableAppToken,
		BitableTableID:  cfg.BitableTableID,
		Timeout:         time.Duration(cfg.ExternalTimeoutSec) * time.Second,
	}, logger)

	arkClient := ark.New(ark.Config{
		APIKey:  cfg.ArkAPIKey,
		BaseURL: cfg.ArkBaseURL,
		Model:   cfg.ArkModel,
		Timeout: time.Duration(cfg.ArkTimeoutSec) * time.Second,
	}, logger)
	classifier := intent.NewClassifier(arkClient, logger)

	reports := report.NewService(report.Config{
		TemplateDocToken: cfg.TemplateDocToken,
		TitlePrefix:      cfg.ReportTitlePrefix,
		Weekday:          time.Weekday(cfg.ReportWeekday % 7),
		TargetChatID:     cfg.TargetChatID,
		DocOwnerOpenID:   cfg.DocOwnerOpenID,
		DocOwnerPerm:     cfg.DocOwnerPerm,
	}, st, larkClient, larkClient, larkClient, logger)

	refresher := refresh.NewEngine(
		reports,
		cfg.RefreshWorkers,
		time.Duration(cfg.RefreshJobTimeoutSec)*time.Second,
		logger,
	)

	gw := gateway.NewService(
		gateway.Config{
			BotMentionKey: cfg.BotMentionKey,
			SyncRefresh:   cfg.SyncRefresh,
		},
		st,
		reports,
		refresher,
		classifier,
		larkClient,
		dedupe.NewEventCache(cfg.EventCacheSize),
		dedupe.NewContentCache(time.Duration(cfg.ContentDedupSeconds)*time.Second),
		logger,
	)

	sched := scheduler.New(scheduler.Config{
		Spec:       cfg.ScheduleSpec,
		Timezone:   cfg.ScheduleTimezone,
		RunTimeout: time.Duration(cfg.RefreshJobTimeoutSec) * time.Second,
	}, reports, logger)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Store:         st,
		Reports:       reports,
		Gateway:       gw,
		BotMentionKey: cfg.BotMentionKey,
		Logger:        logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	wsConnector := larkws.New(larkws.Config{URL: cfg.LarkWSURL}, gw, larkClient, logger)

	return &Runtime{
		cfg:        cfg,
		logger:     logger.With("component", "app"),
		store:      st,
		refresher:  refresher,
		sched:      sched,
		httpServer: httpServer,
		connectors: []connectors.Connector{wsConnector},
	}, nil
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (r *Runtime) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return r.refresher.Start(groupCtx)
	})
	group.Go(func() error {
		return r.sched.Start(groupCtx)
	})
	for _, connector := range r.connectors {
		group.Go(func() error {
			r.logger.Info("connector starting", "connector", connector.Name())
			return connector.Start(groupCtx)
		})
	}
	group.Go(func() error {
		r.logger.Info("http server listening", "addr", r.cfg.HTTPAddr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runtime) Close() error {
	return r.store.Close()
}

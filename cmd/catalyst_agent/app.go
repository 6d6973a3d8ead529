package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog"

	"github.com/jonathan/catalyst/internal/agents"
	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/db"
	"github.com/jonathan/catalyst/internal/fetch"
	"github.com/jonathan/catalyst/internal/llm"
	"github.com/jonathan/catalyst/internal/media"
	"github.com/jonathan/catalyst/internal/observability"
	"github.com/jonathan/catalyst/internal/pipeline"
	"github.com/jonathan/catalyst/internal/pipeline/steps"
	"github.com/jonathan/catalyst/internal/publishing"
	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/research"
	"github.com/jonathan/catalyst/internal/social"
	"github.com/jonathan/catalyst/internal/types"
)

// settings is the merged file configuration plus environment credentials
type settings struct {
	cfg   config.Config
	creds config.Credentials
}

// loadSettings reads the optional config file and the credential environment
func loadSettings(path string) (*settings, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	cfg = cfg.MergeWithDefaults(config.Config{
		MediaDir:         config.DefaultMediaDir,
		WorkerPoolSize:   config.DefaultWorkerPoolSize,
		MaxSearchQueries: config.DefaultMaxSearchQueries,
	})
	if verbose {
		cfg.Verbose = true
	}

	creds := config.CredentialsFromEnv()
	creds.ApplyFile(&cfg)
	return &settings{cfg: cfg, creds: creds}, nil
}

// app holds everything a subcommand needs to drive runs
type app struct {
	settings *settings
	logger   zerolog.Logger
	store    pipeline.Store
	orch     *pipeline.Orchestrator
	executor *pipeline.Executor
	closers  []func()
}

// newApp wires the store, collaborators, and orchestrator. With requireDB the
// command refuses to fall back to the in-memory store, since its state would
// not outlive the process.
func newApp(ctx context.Context, s *settings, logger zerolog.Logger, requireDB bool) (*app, error) {
	a := &app{settings: s, logger: logger}

	store, closeStore, err := openStore(ctx, s.creds.DatabaseURL, requireDB, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	pipe := steps.Default()
	if len(s.cfg.FatalSteps) > 0 {
		policy, err := steps.PolicyFromNames(s.cfg.FatalSteps)
		if err != nil {
			a.Close()
			return nil, err
		}
		if pipe, err = steps.New(steps.StepRegistry, policy); err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid pipeline: %w", err)
		}
	}

	set, closeSet := buildCollaborators(ctx, s, logger)
	a.closers = append(a.closers, closeSet)

	executor, err := pipeline.NewExecutor(set.Collaborators(),
		pipeline.WithTimeouts(s.cfg.StepTimeouts()),
		pipeline.WithPoolSize(s.cfg.PoolSize()),
		pipeline.WithExecutorLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.executor = executor
	a.closers = append(a.closers, executor.Release)

	a.orch = pipeline.New(store, executor, pipeline.WithPipeline(pipe), pipeline.WithLogger(logger))
	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openStore(ctx context.Context, databaseURL string, requireDB bool, logger zerolog.Logger) (pipeline.Store, func(), error) {
	if databaseURL == "" {
		if requireDB {
			return nil, nil, fmt.Errorf("%s environment variable or database_url config is required", config.EnvDatabaseURL)
		}
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return db.NewMemory(), func() {}, nil
	}

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, database.Close, nil
}

// buildCollaborators creates every collaborator the credentials allow. A
// collaborator that cannot be created leaves its steps failing with the
// configuration error instead of aborting startup.
func buildCollaborators(ctx context.Context, s *settings, logger zerolog.Logger) (agents.Set, func()) {
	set := agents.Set{Unconfigured: map[types.StepType]error{}}
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	gate := ratelimit.NewGate(s.cfg.SearchGateInterval())
	opener := media.NewOpener(fetch.DefaultOptions())

	var client llm.Client
	if c, err := llm.NewClient(ctx, llm.DefaultConfig(), s.creds.GeminiAPIKey); err != nil {
		logger.Warn().Err(err).Msg("language model unavailable")
		for _, st := range []types.StepType{
			types.StepCategoryDetection, types.StepVisionAnalysis, types.StepCompetitorAnalysis,
			types.StepEmotionalAnalysis, types.StepHookGeneration, types.StepContentGeneration,
			types.StepPerformancePrediction,
		} {
			set.Unconfigured[st] = err
		}
	} else {
		client = c
		closers = append(closers, func() { _ = c.Close() })
		set.Analyst = agents.NewAnalyst(client, opener, logger)
	}

	researchCfg := research.Config{
		APIKey:   s.creds.SearchAPIKey,
		EngineID: s.creds.SearchEngineID,
		Gate:     gate,
		Budget:   research.NewBudget(s.cfg.SearchBudget()),
		Logger:   logger,
	}
	if client != nil {
		researchCfg.Summarizer = client
	}
	if r, err := research.NewResearcher(ctx, researchCfg); err != nil {
		logger.Warn().Err(err).Msg("market research unavailable")
		set.Unconfigured[types.StepMarketResearch] = err
	} else {
		set.Researcher = r
	}

	store, err := newMediaStore(s, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("media storage unavailable")
		for _, st := range []types.StepType{types.StepVideoGeneration, types.StepPosterGeneration, types.StepImageGeneration} {
			set.Unconfigured[st] = err
		}
	} else {
		interval, attempts := s.cfg.PollSettings()
		var video agents.VideoGenerator
		if v, err := media.NewVideoClient(media.VideoConfig{
			BaseURL:      s.creds.VideoAPIURL,
			APIKey:       s.creds.VideoAPIKey,
			Model:        s.creds.VideoModel,
			PollInterval: interval,
			PollAttempts: attempts,
			Gate:         gate,
			Logger:       logger,
		}, store); err != nil {
			logger.Warn().Err(err).Msg("video generation unavailable")
			set.Unconfigured[types.StepVideoGeneration] = err
		} else {
			video = v
		}

		var images agents.ImageGenerator
		if img, err := media.NewImageClient(media.ImageConfig{
			BaseURL: s.creds.ImageAPIURL,
			APIKey:  s.creds.ImageAPIKey,
			Model:   s.creds.ImageModel,
			Gate:    gate,
			Logger:  logger,
		}, store); err != nil {
			logger.Warn().Err(err).Msg("image generation unavailable")
			set.Unconfigured[types.StepPosterGeneration] = err
			set.Unconfigured[types.StepImageGeneration] = err
		} else {
			images = img
		}

		if video != nil || images != nil {
			set.Studio = agents.NewStudio(client, video, images, opener, logger)
		}
	}

	set.Reconciler = publishing.NewReconciler(newPublishers(s, opener, gate, logger), logger)
	return set, closeAll
}

// newMediaStore uploads to S3 when a bucket is configured, else writes to the media directory
func newMediaStore(s *settings, logger zerolog.Logger) (media.Store, error) {
	if s.creds.S3Bucket == "" {
		return media.NewLocalStore(s.cfg.MediaDirectory()), nil
	}
	awsCfg := aws.NewConfig()
	if s.creds.AWSRegion != "" {
		awsCfg = awsCfg.WithRegion(s.creds.AWSRegion)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return media.NewS3Store(s3.New(sess), s.creds.S3Bucket, "campaigns", logger), nil
}

// newPublishers returns a publisher for each platform with credentials
func newPublishers(s *settings, opener social.MediaOpener, gate *ratelimit.Gate, logger zerolog.Logger) map[types.Platform]publishing.Publisher {
	publishers := map[types.Platform]publishing.Publisher{}

	if li, err := social.NewLinkedIn(social.LinkedInConfig{
		AccessToken: s.creds.LinkedInToken,
		AuthorURN:   s.creds.LinkedInAuthorURN,
		Gate:        gate,
	}, opener); err != nil {
		logger.Debug().Err(err).Msg("LinkedIn publishing disabled")
	} else {
		publishers[types.PlatformLinkedIn] = li
	}

	if fb, err := social.NewMeta(social.MetaConfig{
		PageToken: s.creds.MetaPageToken,
		PageID:    s.creds.MetaPageID,
		Gate:      gate,
	}, opener); err != nil {
		logger.Debug().Err(err).Msg("Meta publishing disabled")
	} else {
		publishers[types.PlatformMeta] = fb
	}

	interval, attempts := s.cfg.PollSettings()
	if ig, err := social.NewInstagram(social.InstagramConfig{
		AccessToken:  s.creds.MetaPageToken,
		AccountID:    s.creds.InstagramAccountID,
		PollInterval: interval,
		PollAttempts: attempts,
		Gate:         gate,
	}, opener); err != nil {
		logger.Debug().Err(err).Msg("Instagram publishing disabled")
	} else {
		publishers[types.PlatformInstagram] = ig
	}

	return publishers
}

// newLogger builds the CLI logger; pretty output only when stderr is a terminal
func newLogger(s *settings) zerolog.Logger {
	fi, err := os.Stderr.Stat()
	pretty := err == nil && fi.Mode()&os.ModeCharDevice != 0
	return observability.NewLogger(os.Stderr, s.cfg.Verbose, pretty)
}

func newServerLogger(s *settings) zerolog.Logger {
	return observability.NewLogger(os.Stderr, s.cfg.Verbose, false)
}

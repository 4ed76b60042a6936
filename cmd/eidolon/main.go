package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/eidolon/internal/api"
	"github.com/nidhogg/eidolon/internal/archive"
	"github.com/nidhogg/eidolon/internal/bus"
	"github.com/nidhogg/eidolon/internal/chat"
	"github.com/nidhogg/eidolon/internal/command"
	"github.com/nidhogg/eidolon/internal/composer"
	"github.com/nidhogg/eidolon/internal/config"
	"github.com/nidhogg/eidolon/internal/experience"
	"github.com/nidhogg/eidolon/internal/gateway"
	"github.com/nidhogg/eidolon/internal/imagegen"
	"github.com/nidhogg/eidolon/internal/memory"
	"github.com/nidhogg/eidolon/internal/profile"
	"github.com/nidhogg/eidolon/internal/provider"
	"github.com/nidhogg/eidolon/internal/psyche"
	"github.com/nidhogg/eidolon/internal/recall"
	"github.com/nidhogg/eidolon/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/eidolon.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("starting eidolon",
		zap.String("config", cfgPath),
		zap.String("persona", cfg.Persona.Name))

	loc := cfg.Location()

	// Embedded memory store is the one required backend.
	store, err := memory.Open(cfg.Database.SQLite.Path, logger)
	if err != nil {
		logger.Fatal("open memory store", zap.String("path", cfg.Database.SQLite.Path), zap.Error(err))
	}

	// Provider router with purpose bindings from config.
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		p, err := provider.FromConfig(provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
		}, logger)
		if err != nil {
			logger.Warn("skipping provider", zap.String("id", pc.ID), zap.Error(err))
			continue
		}
		router.Register(p)
		if purposes := pc.Extra["purposes"]; purposes != "" {
			for _, purpose := range strings.Split(purposes, ",") {
				router.Bind(strings.TrimSpace(purpose), pc.ID)
			}
		}
	}

	// Optional backends; the persona runs degraded without them.
	var conversationLog *archive.Archive
	if cfg.Database.Postgres.DSN != "" {
		pg, err := archive.New(cfg.Database.Postgres.DSN, logger)
		if err != nil {
			logger.Warn("PostgreSQL unavailable, running without archive", zap.Error(err))
		} else {
			conversationLog = pg
		}
	}

	var feedBus *bus.Bus
	if cfg.Database.Redis.URL != "" {
		b, err := bus.New(cfg.Database.Redis.URL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without feed bus", zap.Error(err))
		} else {
			feedBus = b
		}
	}

	var relations *experience.RelationGraph
	var neoDriver neo4j.DriverWithContext
	if cfg.Database.Neo4j.URI != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Database.Neo4j.URI,
			neo4j.BasicAuth(cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, ""))
		if err != nil {
			logger.Warn("Neo4j unavailable, running without relationship graph", zap.Error(err))
		} else {
			neoDriver = driver
			relations = experience.NewRelationGraph(driver, cfg.Persona.Name, logger)
		}
	}

	var recaller *recall.Recaller
	if cfg.Database.Qdrant.Host != "" && cfg.Embedding.Endpoint != "" {
		index, err := recall.NewQdrantIndex(cfg.Database.Qdrant.Host, cfg.Database.Qdrant.Port, "eidolon_memories")
		if err != nil {
			logger.Warn("Qdrant unavailable, running without semantic recall", zap.Error(err))
		} else {
			embedder := recall.NewAPIEmbedder(recall.EmbedConfig{
				Endpoint:  cfg.Embedding.Endpoint,
				Model:     cfg.Embedding.Model,
				APIKey:    cfg.Embedding.APIKey,
				Dimension: cfg.Embedding.Dimension,
			})
			recaller = recall.New(embedder, index, store, logger)
			if err := recaller.Init(context.Background()); err != nil {
				logger.Warn("recall init failed, running without semantic recall", zap.Error(err))
				recaller = nil
			}
		}
	}

	var images *imagegen.Client
	if cfg.ImageGen.Endpoint != "" {
		images = imagegen.New(cfg.ImageGen.Endpoint, cfg.ImageGen.APIKey, cfg.ImageGen.Model, logger)
	}

	// Psyche and growth persist through the memory store's state table.
	drives, err := psyche.NewEngine(store, logger)
	if err != nil {
		logger.Fatal("init psyche", zap.Error(err))
	}
	growth, err := experience.NewTracker(store, logger)
	if err != nil {
		logger.Fatal("init growth tracker", zap.Error(err))
	}
	evolution, err := psyche.NewEvolution(store, logger)
	if err != nil {
		logger.Fatal("init personality evolution", zap.Error(err))
	}
	timeline := experience.NewVerifier(store, logger)

	// Gateway and adapters.
	gw := gateway.New(logger)
	restAdapter := gateway.NewRESTAdapter(logger)

	var updater *profile.Updater
	if cfg.Gateway.Discord.Enabled || cfg.Gateway.Slack.Enabled {
		updater, err = profile.New(profile.Config{
			PersonaName:     cfg.Persona.Name,
			EnableNickname:  true,
			EnableSignature: true,
			EnableAvatar:    images != nil,
			Cooldown:        time.Duration(cfg.Profile.CooldownMinutes) * time.Minute,
			Threshold:       cfg.Profile.IntensityThreshold,
		}, gw, images, store, logger)
		if err != nil {
			logger.Fatal("init profile updater", zap.Error(err))
		}
	}

	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, drives, growth, gw)
	command.RegisterMemoryCommands(commands, store)

	pipeline := chat.New(
		chat.Persona{Name: cfg.Persona.Name, Description: cfg.Persona.Description},
		router, store, drives, gw,
		chat.Options{
			Updater:   updater,
			Recaller:  recaller,
			Relations: relations,
			Archive:   conversationLog,
			Images:    images,
			Commands:  commands,
			Evolution: evolution,
		}, logger)

	// Handler must be set before Register captures it.
	gw.SetHandler(pipeline.Handle)
	gw.Register(restAdapter)
	if cfg.Gateway.Slack.Enabled {
		gw.Register(gateway.NewSlackAdapter(
			cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken,
			cfg.Gateway.Slack.HomeChannel, cfg.Persona.Name, logger))
	}
	if cfg.Gateway.Discord.Enabled {
		gw.Register(gateway.NewDiscordAdapter(
			cfg.Gateway.Discord.BotToken, cfg.Gateway.Discord.HomeChannel, logger))
	}
	if err := gw.ConnectAll(context.Background()); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	feed := gateway.NewFeed(gw, logger)

	// Diary composer with optional weather color.
	var weather *composer.WeatherClient
	if cfg.Weather.Enabled {
		weather = composer.NewWeatherClient(cfg.Weather.City, logger)
	}
	diarist := composer.New(router, weather, cfg.Persona.Description, "", logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Daily publishing: diary posts at random instants inside the
	// configured windows, plus the late-night insomnia check.
	var counter scheduler.Counter
	if feedBus != nil {
		counter = feedBus
	}
	publisher, err := scheduler.NewDailyPublisher(scheduler.PublishConfig{
		TimesPerDay:         cfg.Scheduler.PublishTimesPerDay,
		Windows:             cfg.Scheduler.PublishWindows,
		InsomniaProbability: cfg.Scheduler.InsomniaProbability,
		Location:            loc,
	}, makePublishFunc(diarist, images, feed, conversationLog, feedBus, logger),
		counter, logger)
	if err != nil {
		logger.Fatal("init publisher", zap.Error(err))
	}
	if err := publisher.Start(rootCtx); err != nil {
		logger.Fatal("start publisher", zap.Error(err))
	}

	// Background thinking: idle thoughts, activity notes, the evening
	// review that reinforces what mattered and lets the rest fade.
	thoughtEvery, _ := time.ParseDuration(cfg.Scheduler.ThoughtInterval)
	activityEvery, _ := time.ParseDuration(cfg.Scheduler.ActivityInterval)
	thinker := scheduler.NewThinkingScheduler(scheduler.ThinkingConfig{
		ThoughtInterval:  thoughtEvery,
		ActivityInterval: activityEvery,
		ReviewSpec:       cfg.Scheduler.ReviewCron,
		Location:         loc,
	}, scheduler.ThinkingHooks{
		Thought:  makeThoughtHook(router, drives, store, weather, logger),
		Activity: makeActivityHook(drives, growth, store),
		Review:   makeReviewHook(store, relations, evolution, timeline, logger),
	}, logger)
	if err := thinker.Start(rootCtx); err != nil {
		logger.Fatal("start thinking scheduler", zap.Error(err))
	}

	// Nightly decay sweep over working memory.
	sweepEvery, _ := time.ParseDuration(cfg.Memory.SweepInterval)
	store.StartSweeper(rootCtx, sweepEvery, cfg.Memory.DecayThresholdDays)

	handler := api.NewHandler(store, drives, evolution, growth, updaterOrNil(updater),
		publisher, feed, restAdapter, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}
	go func() {
		logger.Info("eidolon listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down eidolon")
	rootCancel()
	publisher.Stop()
	thinker.Stop()
	srv.Shutdown(context.Background())
	gw.Close()
	if feedBus != nil {
		feedBus.Close()
	}
	if conversationLog != nil {
		conversationLog.Close()
	}
	if neoDriver != nil {
		neoDriver.Close(context.Background())
	}
	store.Close()
}

// updaterOrNil keeps a typed-nil *profile.Updater from reaching the
// handler's interface field.
func updaterOrNil(u *profile.Updater) interface {
	Snapshot() (string, string, []psyche.Emotion)
} {
	if u == nil {
		return nil
	}
	return u
}

// makePublishFunc composes one diary post, optionally illustrates it,
// and fans it out: gateway feed, archive, and the feed event stream.
func makePublishFunc(diarist *composer.Composer, images *imagegen.Client,
	feed *gateway.Feed, conversationLog *archive.Archive, feedBus *bus.Bus,
	logger *zap.Logger) scheduler.PublishFunc {

	return func(ctx context.Context, insomnia bool) error {
		topic := ""
		kind := gateway.PostDiary
		if insomnia {
			topic = "It's deep in the night and you can't sleep. Write what's keeping you up."
			kind = gateway.PostInsomnia
		}

		var history []provider.Message
		if conversationLog != nil {
			entries, err := conversationLog.RecentDiaries(ctx, 5)
			if err != nil {
				logger.Warn("load diary history failed", zap.Error(err))
			} else {
				for _, e := range entries {
					history = append(history, provider.Message{Role: "assistant", Content: e.Content})
				}
			}
		}

		content, err := diarist.Diary(ctx, history, topic)
		if err != nil {
			return fmt.Errorf("compose diary: %w", err)
		}

		var imageURLs []string
		if images != nil {
			prompt, err := diarist.ImagePrompt(ctx, content)
			if err != nil {
				logger.Warn("image prompt failed", zap.Error(err))
			} else if url, err := images.Generate(ctx, prompt); err != nil {
				logger.Warn("diary image failed", zap.Error(err))
			} else {
				imageURLs = append(imageURLs, url)
			}
		}

		if err := feed.Publish(ctx, &gateway.FeedPost{
			Kind:      kind,
			Content:   content,
			ImageURLs: imageURLs,
		}); err != nil {
			return err
		}

		if conversationLog != nil {
			if _, err := conversationLog.SaveDiary(ctx, string(kind), content, imageURLs); err != nil {
				logger.Warn("archive diary failed", zap.Error(err))
			}
		}
		if feedBus != nil {
			if err := feedBus.Publish(ctx, &bus.FeedEvent{
				Kind:      string(kind),
				Content:   content,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				logger.Warn("feed event failed", zap.Error(err))
			}
		}
		return nil
	}
}

// makeThoughtHook generates a short idle thought and satisfies the
// curiosity drive.
func makeThoughtHook(router *provider.Router, drives *psyche.Engine,
	store *memory.Store, weather *composer.WeatherClient, logger *zap.Logger) scheduler.TaskFunc {

	return func(ctx context.Context) error {
		system := "Write one short idle thought, a single sentence, first person."
		if weather != nil {
			if desc := weather.Describe(ctx); desc != "" {
				system += " Outside right now: " + desc
			}
		}
		resp, err := router.Route(ctx, "thought", &provider.ChatRequest{
			Messages: []provider.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: "What's on your mind right now?"},
			},
		})
		if err != nil {
			return err
		}
		thought := strings.TrimSpace(resp.Content)
		if err := drives.Explore("idle thought", "shallow"); err != nil {
			logger.Warn("drive update failed", zap.Error(err))
		}
		_, err = store.RecordEvent("thought", thought, "", nil)
		return err
	}
}

// makeActivityHook notes the ongoing activity and nudges expression.
func makeActivityHook(drives *psyche.Engine, growth *experience.Tracker,
	store *memory.Store) scheduler.TaskFunc {

	return func(ctx context.Context) error {
		if err := drives.Express("daily activity"); err != nil {
			return err
		}
		summary := growth.Summary()
		_, err := store.RecordEvent("activity",
			fmt.Sprintf("went about the day; %d interests, %d skills", summary.InterestCount, summary.SkillCount),
			"", nil)
		return err
	}
}

// makeReviewHook is the evening pass: passively reinforce what still
// matters and let relationship strengths settle.
func makeReviewHook(store *memory.Store, relations *experience.RelationGraph,
	evolution *psyche.Evolution, timeline *experience.Verifier, logger *zap.Logger) scheduler.TaskFunc {

	return func(ctx context.Context) error {
		records, err := store.ImportantMemories(memory.QueryOptions{
			Threshold: memory.ImportantThreshold,
			Limit:     5,
		})
		if err != nil {
			return err
		}
		for _, rec := range records {
			if _, err := store.Reinforce(rec.ID, memory.ReinforcePassiveRecall); err != nil {
				logger.Warn("review reinforcement failed", zap.String("memory", rec.ID), zap.Error(err))
			}
		}
		if relations != nil {
			if err := relations.Decay(ctx, 0.01); err != nil {
				logger.Warn("relationship decay failed", zap.Error(err))
			}
		}
		if err := evolution.DailyCheck(); err != nil {
			logger.Warn("personality daily check failed", zap.Error(err))
		}
		report, err := timeline.Coherence(time.Time{})
		if err != nil {
			logger.Warn("timeline coherence check failed", zap.Error(err))
		} else if report.HasIssues() {
			logger.Warn("timeline has unresolved conflicts",
				zap.Int("conflicts", report.ConflictCount),
				zap.Float64("score", report.Score))
		} else {
			logger.Info("timeline coherent",
				zap.Float64("score", report.Score),
				zap.String("assessment", report.Assessment))
		}
		return nil
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

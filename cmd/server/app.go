package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/config"
	"github.com/AnshRaj112/sparklink-backend/internal/database"
	"github.com/AnshRaj112/sparklink-backend/internal/jobs"
	"github.com/AnshRaj112/sparklink-backend/internal/mail"
	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/realtime"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
	"github.com/AnshRaj112/sparklink-backend/internal/services"
	"github.com/AnshRaj112/sparklink-backend/internal/workflow"
)

// app holds every long-lived dependency shared by the serve and worker commands.
type app struct {
	cfg *config.Config
	log *zap.SugaredLogger

	mongoClient *mongo.Client
	db          *mongo.Database
	pg          *sqlx.DB
	redis       *redis.Client

	users       *repository.MongoUserRepository
	connections *repository.MongoConnectionRepository
	posts       *repository.MongoPostRepository
	stories     *repository.MongoStoryRepository
	messages    *repository.MongoMessageRepository

	jobStore jobs.Store
	queue    *jobs.Queue
	emitter  *workflow.Emitter
	relay    *media.Relay
	mailer   mail.Mailer
	registry *realtime.Registry
	live     realtime.Publisher

	identity       *services.IdentityService
	userService    *services.UserService
	postService    *services.PostService
	storyService   *services.StoryService
	messageService *services.MessageService
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var err error
	a.mongoClient, a.db, err = database.ConnectMongo(ctx, cfg.MongoURI, log)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if cfg.PostgresURI != "" {
		if a.pg, err = database.ConnectPostgres(ctx, cfg.PostgresURI, log); err != nil {
			a.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.jobStore = jobs.NewPostgresStore(a.pg)
	} else {
		log.Warn("POSTGRES_URI not set, background jobs are kept in memory")
		a.jobStore = jobs.NewMemoryStore()
	}

	if a.redis, err = database.ConnectRedis(ctx, cfg.RedisURI, log); err != nil {
		a.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	a.users = repository.NewUserRepository(a.db)
	a.connections = repository.NewConnectionRepository(a.db)
	a.posts = repository.NewPostRepository(a.db)
	a.stories = repository.NewStoryRepository(a.db)
	a.messages = repository.NewMessageRepository(a.db)

	a.queue = jobs.NewQueue(a.jobStore)
	a.emitter = workflow.NewEmitter(a.queue)

	var cdn media.CDN = media.UnavailableCDN{}
	if cfg.CloudinaryConfigured() {
		c, err := media.NewCloudinaryCDN(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Warnw("cloudinary init failed, uploads are unavailable", "error", err)
		} else {
			cdn = c
			log.Info("cloudinary configured")
		}
	} else {
		log.Warn("cloudinary credentials not found, uploads are unavailable")
	}
	if a.relay, err = media.NewRelay(cdn, "", log); err != nil {
		a.close()
		return nil, fmt.Errorf("init upload relay: %w", err)
	}

	if cfg.SMTPConfigured() {
		smtp, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SenderEmail,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init mailer: %w", err)
		}
		a.mailer = smtp
	} else {
		log.Warn("SMTP not configured, notification emails are only logged")
		a.mailer = mail.NewLogMailer(log)
	}

	policy := realtime.ReplaceExisting
	if cfg.StreamReconnectPolicy == config.ReconnectReject {
		policy = realtime.RejectNew
	}
	a.registry = realtime.NewRegistry(policy, log)
	if a.redis != nil {
		broker := realtime.NewRedisBroker(a.redis, a.registry, log)
		broker.Start(ctx)
		a.live = broker
	} else {
		a.live = realtime.NewLocalBroker(a.registry)
	}

	clerk := services.NewClerkClient(cfg.ClerkAPIURL, cfg.ClerkSecretKey)
	a.identity = services.NewIdentityService(a.users, clerk, log)
	a.userService = services.NewUserService(a.users, a.connections, a.relay, a.emitter, log)
	a.postService = services.NewPostService(a.posts, a.users, a.relay, log)
	a.storyService = services.NewStoryService(a.stories, a.users, a.relay, a.emitter, log)
	a.messageService = services.NewMessageService(a.messages, a.users, a.relay, a.live, log)
	return a, nil
}

func (a *app) newWorker() *jobs.Worker {
	w := jobs.NewWorker(a.jobStore, a.cfg.WorkerPollInterval, a.log.Named("worker"))
	workflow.NewHandlers(workflow.Deps{
		Identity:    a.identity,
		Stories:     a.storyService,
		Users:       a.users,
		Connections: a.connections,
		Mailer:      a.mailer,
		FrontendURL: a.cfg.FrontendURL,
		Log:         a.log.Named("workflow"),
	}).Register(w)
	return w
}

func (a *app) close() {
	if a.registry != nil {
		a.registry.CloseAll()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if err := database.DisconnectMongo(a.mongoClient); err != nil {
		a.log.Warnw("mongo disconnect failed", "error", err)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"veritrail/internal/audittrail"
	auditmetrics "veritrail/internal/audittrail/metrics"
	"veritrail/internal/audittrail/publisher"
	auditmemory "veritrail/internal/audittrail/store/memory"
	auditpostgres "veritrail/internal/audittrail/store/postgres"
	"veritrail/internal/authz"
	authzmetrics "veritrail/internal/authz/metrics"
	"veritrail/internal/authz/resource"
	identitymodels "veritrail/internal/identity/models"
	"veritrail/internal/identity/resolver"
	"veritrail/internal/identity/roles"
	"veritrail/internal/identity/service"
	identitystore "veritrail/internal/identity/store"
	"veritrail/internal/identity/tokens"
	obsservice "veritrail/internal/observations/service"
	obsstore "veritrail/internal/observations/store"
	"veritrail/internal/platform/config"
	"veritrail/internal/platform/httpserver"
	"veritrail/internal/platform/logger"
	"veritrail/internal/platform/postgres"
	platformredis "veritrail/internal/platform/redis"
	httptransport "veritrail/internal/transport/http"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.close()

	tokenSvc := tokens.NewService(cfg.JWTSigningKey, cfg.JWTIssuer)
	ident := resolver.New(tokenSvc, stores.users, stores.sessions, stores.assignments, log,
		resolver.WithIdleWindow(cfg.SessionIdleWindow))

	registry := resource.NewRegistry(resource.Loaders{
		Observation: obsservice.RegistryLoader(stores.observations),
		Evidence:    obsservice.EvidenceRegistryLoader(stores.evidence),
		User:        userLoader(stores.users),
		Role:        roleLoader(stores.roles),
	})
	engine, err := authz.New(registry, log, authz.WithMetrics(authzmetrics.New()))
	if err != nil {
		return err
	}

	recorderOpts := []audittrail.Option{
		audittrail.WithBuffer(cfg.AuditBufferSize),
		audittrail.WithMetrics(auditmetrics.New()),
		// Status changes, evidence uploads, and exports are recorded by
		// their services with richer language; the generic middleware
		// entry would be a duplicate.
		audittrail.WithExemptPaths(
			`/observations/[^/]+/(status|evidence)$`,
			`/observations/export$`,
		),
	}
	if cfg.AuditDelivery == config.AuditDeliverySync {
		recorderOpts = append(recorderOpts, audittrail.WithSyncDelivery())
	}
	var outbox *publisher.Outbox
	if len(cfg.KafkaBrokers) > 0 {
		sink, kafkaClient, err := publisher.Connect(ctx, cfg.KafkaBrokers, cfg.AuditTopic, log)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()
		if outboxStore, ok := stores.audit.(publisher.OutboxStore); ok {
			// Durable store: publish through the outbox so entries survive a
			// broker outage instead of being dropped by the inline sink.
			outbox = publisher.NewOutbox(outboxStore, sink, log)
			log.Info("audit outbox publisher enabled", "topic", cfg.AuditTopic)
		} else {
			recorderOpts = append(recorderOpts, audittrail.WithSink(sink))
			log.Info("audit kafka sink enabled", "topic", cfg.AuditTopic)
		}
	}
	recorder, err := audittrail.NewRecorder(stores.audit, registry, log, recorderOpts...)
	if err != nil {
		return err
	}
	defer recorder.Close()

	authSvc, err := service.New(stores.users, stores.sessions, tokenSvc, log,
		service.WithSessionTTL(cfg.SessionTTL), service.WithAuditor(recorder))
	if err != nil {
		return err
	}
	rolesSvc, err := roles.New(stores.roles, stores.assignments, stores.users, log,
		roles.WithAuditor(recorder))
	if err != nil {
		return err
	}
	obsSvc, err := obsservice.New(stores.observations, stores.evidence, engine, log,
		obsservice.WithAuditor(recorder))
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Auth:         authSvc,
		Roles:        rolesSvc,
		Observations: obsSvc,
		Audit:        stores.audit,
		Resolver:     ident,
		Engine:       engine,
		Recorder:     recorder,
		Logger:       log,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("veritrail listening", "addr", cfg.Addr, "audit_delivery", string(cfg.AuditDelivery))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if outbox != nil {
		g.Go(func() error {
			if err := outbox.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// storeSet bundles every persistence dependency with its cleanup.
type storeSet struct {
	users        identitystore.UserStore
	sessions     identitystore.SessionStore
	roles        identitystore.RoleStore
	assignments  identitystore.AssignmentStore
	observations obsstore.ObservationStore
	evidence     obsstore.EvidenceStore
	audit        audittrail.Store

	close func()
}

// buildStores selects postgres-backed stores when a DSN is configured and
// falls back to in-memory stores for development. Sessions move to Redis
// when a URL is set, independent of the primary store.
func buildStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*storeSet, error) {
	stores := &storeSet{close: func() {}}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		stores.users = identitystore.NewPostgresUserStore(db)
		stores.sessions = identitystore.NewPostgresSessionStore(db)
		stores.roles = identitystore.NewPostgresRoleStore(db)
		stores.assignments = identitystore.NewPostgresAssignmentStore(db)
		stores.observations = obsstore.NewPostgresObservationStore(db)
		stores.evidence = obsstore.NewPostgresEvidenceStore(db)
		stores.audit = auditpostgres.New(db)
		stores.close = func() { _ = db.Close() }
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		roleStore := identitystore.NewInMemoryRoleStore()
		userStore := identitystore.NewInMemoryUserStore()
		stores.users = userStore
		stores.sessions = identitystore.NewInMemorySessionStore()
		stores.roles = roleStore
		stores.assignments = identitystore.NewInMemoryAssignmentStore(roleStore)
		stores.observations = obsstore.NewInMemoryObservationStore()
		stores.evidence = obsstore.NewInMemoryEvidenceStore()
		stores.audit = auditmemory.New()

		if err := seedBootstrapAdmin(ctx, userStore, roleStore, stores.assignments, log); err != nil {
			return nil, err
		}
	}

	if cfg.RedisURL != "" {
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			stores.close()
			return nil, err
		}
		stores.sessions = identitystore.NewRedisSessionStore(client.Client)
		prev := stores.close
		stores.close = func() {
			_ = client.Close()
			prev()
		}
	}

	return stores, nil
}

// seedBootstrapAdmin creates a system administrator for in-memory runs so
// a fresh process is usable. Skipped unless a password is provided.
func seedBootstrapAdmin(ctx context.Context, users identitystore.UserStore, roleStore identitystore.RoleStore, assignments identitystore.AssignmentStore, log *slog.Logger) error {
	password := os.Getenv("VERITRAIL_BOOTSTRAP_PASSWORD")
	if password == "" {
		log.Warn("VERITRAIL_BOOTSTRAP_PASSWORD not set, no admin user seeded")
		return nil
	}
	email := os.Getenv("VERITRAIL_BOOTSTRAP_EMAIL")
	if email == "" {
		email = "admin@veritrail.local"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	admin := identitymodels.User{
		ID:           id.NewUserID(),
		Email:        email,
		FirstName:    "System",
		LastName:     "Administrator",
		Status:       identitymodels.UserStatusActive,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Save(ctx, admin); err != nil {
		return err
	}

	adminRole := identitymodels.Role{
		ID:           id.NewRoleID(),
		Name:         identitymodels.SystemAdminRole,
		DisplayName:  "System Administrator",
		IsSystemRole: true,
	}
	if err := roleStore.Save(ctx, adminRole); err != nil {
		return err
	}
	if err := assignments.Save(ctx, identitymodels.RoleAssignment{
		UserID:    admin.ID,
		RoleID:    adminRole.ID,
		CreatedAt: now,
		Role:      adminRole,
	}); err != nil {
		return err
	}

	log.Info("bootstrap admin seeded", "email", email)
	return nil
}

func userLoader(users identitystore.UserStore) resource.LoadFunc {
	return func(ctx context.Context, rawID string) (resource.Record, error) {
		userID, err := id.ParseUserID(rawID)
		if err != nil {
			return resource.Record{}, sentinel.ErrNotFound
		}
		user, err := users.FindByID(ctx, userID)
		if err != nil {
			return resource.Record{}, err
		}
		return resource.Record{
			ID: user.ID.String(),
			// Users own their own account records.
			OwnerID:     user.ID,
			DisplayName: user.DisplayName(),
		}, nil
	}
}

func roleLoader(roleStore identitystore.RoleStore) resource.LoadFunc {
	return func(ctx context.Context, rawID string) (resource.Record, error) {
		roleID, err := id.ParseRoleID(rawID)
		if err != nil {
			return resource.Record{}, sentinel.ErrNotFound
		}
		role, err := roleStore.FindByID(ctx, roleID)
		if err != nil {
			return resource.Record{}, err
		}
		return resource.Record{
			ID:          role.ID.String(),
			DisplayName: role.DisplayName,
		}, nil
	}
}

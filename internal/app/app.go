package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/adapters/events"
	"github.com/atvirokodosprendimai/dppportal/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/dppportal/internal/adapters/memory"
	"github.com/atvirokodosprendimai/dppportal/internal/adapters/notify"
	sqliteadapter "github.com/atvirokodosprendimai/dppportal/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/dppportal/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"github.com/atvirokodosprendimai/dppportal/internal/core/ports"
	"github.com/atvirokodosprendimai/dppportal/internal/core/usecase"
	"github.com/atvirokodosprendimai/dppportal/migrations"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	Addr  string
	Store string
	// DBPath is only used with StoreSQLite.
	DBPath      string
	Environment string
	// PublicBaseURL is where this server is reachable; the playground sends
	// its requests to PublicBaseURL + "/api/v1".
	PublicBaseURL     string
	SandboxBaseURL    string
	ProductionBaseURL string
	MockDelay         time.Duration
	// RandomSeed makes generated ids, keys and vote weights reproducible.
	// Zero seeds from the clock.
	RandomSeed      uint64
	SeedDemoData    bool
	BootstrapAPIKey string
	OutboxInterval  time.Duration
	WebhookTimeout  time.Duration
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type repositories struct {
	keys      ports.APIKeyRepository
	webhooks  ports.WebhookRepository
	proposals ports.ProposalRepository
	passports ports.PassportRepository
	outbox    ports.OutboxRepository
	closer    io.Closer
}

func openRepositories(ctx context.Context, cfg Config, logger zerolog.Logger) (repositories, error) {
	switch cfg.Store {
	case "", StoreMemory:
		return repositories{
			keys:      memory.NewAPIKeyRepository(),
			webhooks:  memory.NewWebhookRepository(),
			proposals: memory.NewProposalRepository(),
			passports: memory.NewPassportRepository(),
			outbox:    memory.NewOutboxRepository(),
		}, nil
	case StoreSQLite:
		db, err := gormsqlite.Open(cfg.DBPath, logger)
		if err != nil {
			return repositories{}, fmt.Errorf("open sqlite: %w", err)
		}
		writeSQLDB, err := db.WriteSQLDB()
		if err != nil {
			_ = db.Close()
			return repositories{}, fmt.Errorf("resolve writer sql db: %w", err)
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
			_ = db.Close()
			return repositories{}, err
		}
		return repositories{
			keys:      sqliteadapter.NewAPIKeyRepository(db),
			webhooks:  sqliteadapter.NewWebhookRepository(db),
			proposals: sqliteadapter.NewProposalRepository(db),
			passports: sqliteadapter.NewPassportRepository(db),
			outbox:    sqliteadapter.NewOutboxRepository(db),
			closer:    db,
		}, nil
	default:
		return repositories{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func NewServer(ctx context.Context, cfg Config, logger zerolog.Logger) (*http.Server, io.Closer, error) {
	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	entropy := usecase.NewTimeSeededEntropy()
	if cfg.RandomSeed != 0 {
		entropy = usecase.NewEntropy(cfg.RandomSeed, nil)
	}
	env := domain.ParseEnvironment(cfg.Environment)

	feed := notify.NewFeed(0, logger.With().Str("component", "notifications").Logger())
	recorder := usecase.NewEventRecorder(repos.outbox, entropy, env, logger)
	keys := usecase.NewAPIKeyService(repos.keys, entropy, logger)
	webhooks := usecase.NewWebhookService(repos.webhooks, events.NewWebhookPublisher(cfg.WebhookTimeout), entropy, logger)
	proposals := usecase.NewProposalService(repos.proposals, recorder, entropy)
	passports := usecase.NewPassportService(repos.passports, repos.outbox, recorder, entropy, usecase.Issuer{})
	schemas, err := usecase.NewSchemaService()
	if err != nil {
		_ = closeIfSet(repos.closer)
		return nil, nil, err
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if cfg.SeedDemoData {
		seeder := usecase.Seeder{
			Keys:      repos.keys,
			Webhooks:  repos.webhooks,
			Proposals: repos.proposals,
			Passports: repos.passports,
			Entropy:   entropy,
		}
		if err := seeder.Seed(setupCtx); err != nil {
			_ = closeIfSet(repos.closer)
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	if cfg.BootstrapAPIKey != "" {
		if _, err := keys.Import(setupCtx, cfg.BootstrapAPIKey, env.KeyType()); err != nil {
			_ = closeIfSet(repos.closer)
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
	}

	relayLogger := logger.With().Str("component", "event_relay").Logger()
	relay := usecase.NewEventRelay(
		repos.outbox,
		events.Fanout{events.NewLogPublisher(relayLogger), webhooks},
		feed,
		cfg.OutboxInterval,
		100,
		relayLogger,
	)
	relay.Start(context.Background())

	dispatcher := usecase.NewDispatcher(
		&http.Client{Timeout: 15 * time.Second},
		keys,
		feed,
		cfg.MockDelay,
		logger.With().Str("component", "dispatcher").Logger(),
	)
	snippets := usecase.NewSnippetGenerator(cfg.SandboxBaseURL, cfg.ProductionBaseURL)
	playground := usecase.NewPlayground(snippets, dispatcher, feed, publicBaseURL(cfg)+"/api/v1")

	handler := httpapi.NewHandler(httpapi.Services{
		Passports:  passports,
		Keys:       keys,
		Webhooks:   webhooks,
		Proposals:  proposals,
		Schemas:    schemas,
		Snippets:   snippets,
		Playground: playground,
		Dispatcher: dispatcher,
		Relay:      relay,
		Feed:       feed,
	}, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{relay, repos.closer}}, nil
}

// publicBaseURL defaults to the loopback address of the listen port.
func publicBaseURL(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	addr := cfg.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func closeIfSet(c io.Closer) error {
	if c == nil {
		return nil
	}
	return c.Close()
}

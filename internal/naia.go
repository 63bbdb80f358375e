package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/katvier/naia/internal/downloads"
	"github.com/katvier/naia/internal/engine"
	"github.com/katvier/naia/internal/event"
	"github.com/katvier/naia/internal/fetch"
	"github.com/katvier/naia/internal/media"
	"github.com/katvier/naia/internal/provider"
	"github.com/katvier/naia/internal/resolver"
	"github.com/katvier/naia/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// DownloadService is the queue capability the core exposes to
	// consumers (currently the CLI surface, eventually any gateway).
	DownloadService interface {
		RunnableService
		Add(...media.EpisodeReference) []downloads.JobID
		Cancel(downloads.JobID) error
		Snapshot() downloads.Status
		Job(downloads.JobID) (downloads.JobSnapshot, error)
	}

	// LinkResolver resolves an episode reference to a direct media link
	// without involving the queue. Exposed for dry-run style usage.
	LinkResolver interface {
		Resolve(ctx context.Context, ref media.EpisodeReference, preferred ...string) (*provider.DirectLink, error)
	}
)

// Naia is the top-level object wiring the provider registry, resolver,
// download engine and queue together around a shared event bus.
type Naia struct {
	eventBus event.EventCoordinator
	config   NaiaConfig

	linkResolver    LinkResolver
	downloadService DownloadService
}

// New constructs the full service graph from the given configuration.
func New(config NaiaConfig) (*Naia, error) {
	log.Emit(logger.DEBUG, "Bootstrapping Naia services using config: %#v\n", config)

	registry, err := provider.NewRegistry(config.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to construct provider registry: %w", err)
	}

	fetcher := fetch.NewFetcher(config.Resolver.RequestTimeout)
	linkResolver := resolver.New(fetcher, registry, config.Resolver.DefaultProvider)

	naia := &Naia{
		eventBus:     event.New(),
		config:       config,
		linkResolver: linkResolver,
	}

	naia.downloadService = downloads.New(downloads.Config{
		WorkerCount: config.Downloads.WorkerCount,
		MaxHistory:  config.Downloads.MaxHistory,
		OutputDir:   config.Downloads.OutputDir,
	}, linkResolver, engine.New(), naia.eventBus)

	return naia, nil
}

// Run brings up all services and blocks until the provided context is
// cancelled, or a service crashes beyond recovery.
func (naia *Naia) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	wg := &sync.WaitGroup{}
	naia.spawnAsyncService(ctx, wg, naia.downloadService, "download-service", crashHandler)
	log.Emit(logger.SUCCESS, "Naia services spawned!\n")

	wg.Wait()
	return nil
}

// Events exposes the event bus so consumers can subscribe to queue and
// download activity.
func (naia *Naia) Events() event.EventHandler {
	return naia.eventBus
}

// Downloads exposes the download queue.
func (naia *Naia) Downloads() DownloadService {
	return naia.downloadService
}

// Resolver exposes direct link resolution.
func (naia *Naia) Resolver() LinkResolver {
	return naia.linkResolver
}

// spawnAsyncService will run the provided service as its own goroutine,
// ensuring the service waitgroup is updated correctly and a panic or error
// is routed to the crash handler.
func (naia *Naia) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				crashHandler(serviceLabel, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crashHandler(serviceLabel, err)
		}
	}()
}

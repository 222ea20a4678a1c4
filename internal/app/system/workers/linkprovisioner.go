// internal/app/system/workers/linkprovisioner.go
package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle"
	"github.com/dalemusser/interviewhub/internal/app/system/meetlink"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// LinkTarget is the side of the engine the provisioner reads from and
// writes back to.
type LinkTarget interface {
	LinkRequest(ctx context.Context, pairID primitive.ObjectID) (meetlink.Request, error)
	AttachMeetingLink(ctx context.Context, pairID primitive.ObjectID, link, provider string) error
	RecordLinkFailure(ctx context.Context, pairID primitive.ObjectID, provider string, cause error) error
}

// LinkProvisionerConfig tunes the provisioner. Zero fields take defaults.
type LinkProvisionerConfig struct {
	Workers         int
	QueueSize       int
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

func (c LinkProvisionerConfig) normalized() LinkProvisionerConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxTries == 0 {
		c.MaxTries = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 20 * time.Second
	}
	return c
}

// LinkProvisioner creates meeting links for newly scheduled pairs off the
// request path. A pair whose link cannot be created keeps its schedule; the
// periodic retry job queues it again later.
type LinkProvisioner struct {
	provider meetlink.Provisioner
	log      *zap.Logger
	cfg      LinkProvisionerConfig

	target LinkTarget
	queue  chan primitive.ObjectID

	mu       sync.Mutex
	inFlight map[primitive.ObjectID]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLinkProvisioner creates a provisioner. Call Start before enqueueing.
func NewLinkProvisioner(provider meetlink.Provisioner, logger *zap.Logger, cfg LinkProvisionerConfig) *LinkProvisioner {
	cfg = cfg.normalized()
	return &LinkProvisioner{
		provider: provider,
		log:      logger,
		cfg:      cfg,
		queue:    make(chan primitive.ObjectID, cfg.QueueSize),
		inFlight: make(map[primitive.ObjectID]bool),
	}
}

// Start launches the worker goroutines against target.
func (w *LinkProvisioner) Start(target LinkTarget) {
	w.target = target
	w.ctx, w.cancel = context.WithCancel(context.Background())
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	w.log.Info("meeting link provisioner started",
		zap.String("provider", w.provider.Name()),
		zap.Int("workers", w.cfg.Workers))
}

// Stop signals the workers to stop and waits for them to finish. Queued
// pairs are left for the retry job.
func (w *LinkProvisioner) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.log.Info("meeting link provisioner stopped")
}

// Enqueue queues a pair without blocking. When the queue is full or the pair
// is already queued the call is a no-op.
func (w *LinkProvisioner) Enqueue(pairID primitive.ObjectID) {
	w.mu.Lock()
	if w.inFlight[pairID] {
		w.mu.Unlock()
		return
	}
	w.inFlight[pairID] = true
	w.mu.Unlock()

	select {
	case w.queue <- pairID:
	default:
		w.done(pairID)
		w.log.Warn("meeting link queue full; leaving pair for retry",
			zap.String("pair_id", pairID.Hex()))
	}
}

func (w *LinkProvisioner) done(pairID primitive.ObjectID) {
	w.mu.Lock()
	delete(w.inFlight, pairID)
	w.mu.Unlock()
}

func (w *LinkProvisioner) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.provision(w.ctx, id)
			w.done(id)
		}
	}
}

func (w *LinkProvisioner) provision(ctx context.Context, pairID primitive.ObjectID) {
	log := w.log.With(zap.String("pair_id", pairID.Hex()), zap.String("provider", w.provider.Name()))

	req, err := w.target.LinkRequest(ctx, pairID)
	if errors.Is(err, lifecycle.ErrLinkNotNeeded) {
		log.Debug("pair no longer needs a meeting link")
		return
	}
	if err != nil {
		log.Warn("load meeting request failed", zap.Error(err))
		return
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.cfg.InitialInterval
	eb.MaxInterval = w.cfg.MaxInterval

	link, err := backoff.Retry(ctx, func() (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
		defer cancel()
		link, err := w.provider.Provision(attemptCtx, req)
		if errors.Is(err, meetlink.ErrRejected) {
			return "", backoff.Permanent(err)
		}
		if err != nil {
			log.Debug("meeting link attempt failed", zap.Error(err))
		}
		return link, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(w.cfg.MaxTries))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("meeting link provisioning gave up", zap.Error(err))
		if recErr := w.target.RecordLinkFailure(context.WithoutCancel(ctx), pairID, w.provider.Name(), err); recErr != nil {
			log.Error("record link failure", zap.Error(recErr))
		}
		return
	}

	err = w.target.AttachMeetingLink(context.WithoutCancel(ctx), pairID, link, w.provider.Name())
	switch {
	case errors.Is(err, lifecycle.ErrLinkNotNeeded):
		log.Debug("pair changed while provisioning; link discarded")
	case err != nil:
		log.Error("store meeting link failed", zap.Error(err))
	default:
		log.Info("meeting link attached")
	}
}

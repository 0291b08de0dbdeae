package transfer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	limiter "github.com/sethvargo/go-limiter"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/memberlift/memberlift/auth/oauth"
	"github.com/memberlift/memberlift/auth/storage"
	"github.com/memberlift/memberlift/lib/logger"
)

const (
	defaultProgressInterval = time.Second
	rateLimitKey            = "provider-api"
)

// Provider is the subset of identity-provider capabilities the batch needs.
type Provider interface {
	oauth.Refresher
	oauth.IdentityFetcher
	oauth.MemberAdder
}

// Config stores the orchestrator dependencies and tunables.
type Config struct {
	Store    storage.Store
	Provider Provider
	Clock    clockwork.Clock

	// Concurrency bounds how many users are processed in parallel.
	Concurrency int
	// ProgressInterval is the cadence of progress observations.
	ProgressInterval time.Duration
	// RateLimiter, when set, gates every provider call.
	RateLimiter limiter.Store
	// OnProgress, when set, receives periodic progress observations
	// instead of the default log record.
	OnProgress func(transferred, failed, total int)
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Store == nil {
		return trace.BadParameter("missing Store")
	}
	if c.Provider == nil {
		return trace.BadParameter("missing Provider")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.Concurrency < 0 {
		return trace.BadParameter("concurrency must be positive")
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	return nil
}

// Report is the outcome of one batch run.
type Report struct {
	Transferred int
	Failed      int
	Total       int
}

// Orchestrator drives one "move everyone now" batch: it walks the whole
// credential store, refreshes stale credentials right before use and invokes
// the add-member capability once per user. A failing user never aborts the
// batch; a store that cannot be read or written always does.
type Orchestrator struct {
	conf Config

	transferred uint64
	failed      uint64
}

func NewOrchestrator(conf Config) (*Orchestrator, error) {
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Orchestrator{conf: conf}, nil
}

// Run processes every stored user once and returns the final counts. The
// returned error is non-nil only for fatal conditions (persistence failures
// or cancellation); per-user outcomes are visible in the report.
func (o *Orchestrator) Run(ctx context.Context, targetID string) (Report, error) {
	log := logger.Get(ctx)

	entries, err := o.conf.Store.All(ctx)
	if err != nil {
		return Report{}, trace.Wrap(err)
	}
	total := len(entries)

	if total == 0 {
		log.Info("Nothing to transfer: the credential store is empty")
		return Report{}, nil
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	progressDone := make(chan struct{})
	go o.reportProgress(progressCtx, total, progressDone)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.conf.Concurrency)
	for userID, creds := range entries {
		userID, creds := userID, creds
		group.Go(func() error {
			return o.transferUser(groupCtx, userID, creds, targetID)
		})
	}
	err = group.Wait()
	stopProgress()
	<-progressDone

	report := Report{
		Transferred: int(atomic.LoadUint64(&o.transferred)),
		Failed:      int(atomic.LoadUint64(&o.failed)),
		Total:       total,
	}
	if err != nil {
		return report, trace.Wrap(err)
	}

	log.Infof("Transferred %d users.", report.Transferred)
	log.Infof("Failed to transfer %d users.", report.Failed)
	return report, nil
}

// transferUser runs the per-user pipeline: refresh if stale, confirm the
// identity, add the member. It returns an error only when the run must stop.
func (o *Orchestrator) transferUser(ctx context.Context, userID string, creds storage.Credentials, targetID string) error {
	ctx, ulog := logger.WithField(ctx, "user_id", userID)

	if creds.Expired(o.conf.Clock.Now()) {
		refreshed, err := o.refresh(ctx, creds.RefreshToken)
		if err != nil {
			// The refresh token is stale or consumed. Attempting the
			// add-member call with the expired access token would be a
			// wasted request, so this user is done.
			o.fail(ulog, err, "Failed to refresh credentials")
			return nil
		}

		// Persist the rotated refresh token before using it. The provider
		// has already invalidated the old one: crashing here with only the
		// in-memory copy would orphan the user.
		if err := o.conf.Store.Upsert(ctx, userID, *refreshed); err != nil {
			return trace.Wrap(err)
		}
		creds = *refreshed
	}

	subject, err := o.fetchIdentity(ctx, creds.AccessToken)
	if err != nil {
		o.fail(ulog, err, "Failed to confirm the user identity")
		return nil
	}
	if subject != userID {
		o.fail(ulog, trace.BadParameter("token subject %q does not match the stored user id", subject),
			"Stored entry does not belong to the token holder")
		return nil
	}

	if err := o.addMember(ctx, creds.AccessToken, userID, targetID); err != nil {
		o.fail(ulog, err, "Failed to add the user to the target")
		return nil
	}

	atomic.AddUint64(&o.transferred, 1)
	ulog.Debug("User transferred")
	return nil
}

func (o *Orchestrator) refresh(ctx context.Context, refreshToken string) (*storage.Credentials, error) {
	if err := o.takeRateLimit(ctx); err != nil {
		return nil, trace.Wrap(err)
	}
	return o.conf.Provider.Refresh(ctx, refreshToken)
}

func (o *Orchestrator) fetchIdentity(ctx context.Context, accessToken string) (string, error) {
	if err := o.takeRateLimit(ctx); err != nil {
		return "", trace.Wrap(err)
	}
	return o.conf.Provider.FetchIdentity(ctx, accessToken)
}

func (o *Orchestrator) addMember(ctx context.Context, accessToken, userID, targetID string) error {
	if err := o.takeRateLimit(ctx); err != nil {
		return trace.Wrap(err)
	}
	return o.conf.Provider.AddMember(ctx, accessToken, userID, targetID)
}

// takeRateLimit blocks until the limiter grants a slot for one provider call.
func (o *Orchestrator) takeRateLimit(ctx context.Context) error {
	if o.conf.RateLimiter == nil {
		return nil
	}
	for {
		_, _, reset, ok, err := o.conf.RateLimiter.Take(ctx, rateLimitKey)
		if err != nil {
			return trace.Wrap(err)
		}
		if ok {
			return nil
		}
		wait := time.Unix(0, int64(reset)).Sub(o.conf.Clock.Now())
		if wait <= 0 {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return trace.Wrap(ctx.Err())
		case <-o.conf.Clock.After(wait):
		}
	}
}

// fail records one failed user. Transport failures land in the same counter
// as provider rejections but are logged apart.
func (o *Orchestrator) fail(ulog logrus.FieldLogger, err error, message string) {
	atomic.AddUint64(&o.failed, 1)
	if trace.IsConnectionProblem(err) {
		ulog.WithError(err).Warn(message + " (transport failure)")
	} else {
		ulog.WithError(err).Error(message)
	}
}

// reportProgress periodically emits a progress observation. It only reads
// the counters: completion is decided by the workers, never in here.
func (o *Orchestrator) reportProgress(ctx context.Context, total int, done chan struct{}) {
	defer close(done)

	ticker := o.conf.Clock.NewTicker(o.conf.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			transferred := int(atomic.LoadUint64(&o.transferred))
			failed := int(atomic.LoadUint64(&o.failed))
			if o.conf.OnProgress != nil {
				o.conf.OnProgress(transferred, failed, total)
			} else {
				logger.Get(ctx).Infof("%d users transferred, %d failed", transferred, failed)
			}
		}
	}
}

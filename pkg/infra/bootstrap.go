package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/guido-cesarano/taskhub/pkg/backend"
	"github.com/guido-cesarano/taskhub/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// bootstrapStep is 1 when the last run of a step succeeded, 0 otherwise.
	bootstrapStep = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskhub_bootstrap_step_success",
		Help: "Whether the last bootstrap run ensured the resource",
	}, []string{"kind"})

	bootstrapRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskhub_bootstrap_runs_total",
		Help: "The total number of bootstrap runs",
	})
)

// StepOutcome is the result of one ensure step.
type StepOutcome struct {
	Kind     Kind
	Name     string
	Action   Action
	Err      error
	Duration time.Duration
}

// OK reports whether the step succeeded.
func (o StepOutcome) OK() bool { return o.Err == nil }

// Report aggregates the outcome of a bootstrap run.
type Report struct {
	// Steps are in table, bucket, topic, queue order.
	Steps []StepOutcome

	// Handles hold the identifiers captured during the run, with fallbacks
	// substituted for anything a failed step did not produce.
	Handles Handles

	SubscriptionID string
	StartedAt      time.Time
	Duration       time.Duration
}

// OK reports whether every step succeeded.
func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Failed returns the errors of the steps that did not succeed.
func (r Report) Failed() []*BootstrapError {
	var out []*BootstrapError
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, &BootstrapError{Kind: s.Kind, Name: s.Name, Err: s.Err})
		}
	}
	return out
}

// Step returns the outcome for kind.
func (r Report) Step(kind Kind) (StepOutcome, bool) {
	for _, s := range r.Steps {
		if s.Kind == kind {
			return s, true
		}
	}
	return StepOutcome{}, false
}

// Summary maps each kind to its action, or to "failed: <reason>".
func (r Report) Summary() map[string]string {
	out := make(map[string]string, len(r.Steps))
	for _, s := range r.Steps {
		if s.Err != nil {
			out[string(s.Kind)] = fmt.Sprintf("%s: %v", ActionFailed, s.Err)
			continue
		}
		out[string(s.Kind)] = string(s.Action)
	}
	return out
}

// Status maps each kind to its action. Failed steps map to "failed" with no
// error detail, so the result is safe to serve publicly.
func (r Report) Status() map[string]string {
	out := make(map[string]string, len(r.Steps))
	for _, s := range r.Steps {
		if s.Err != nil {
			out[string(s.Kind)] = string(ActionFailed)
			continue
		}
		out[string(s.Kind)] = string(s.Action)
	}
	return out
}

// Bootstrapper runs the ensure steps.
type Bootstrapper struct {
	res    Resources
	table  Ensurer
	bucket Ensurer
	topic  Ensurer
	queue  Ensurer
	log    zerolog.Logger
}

// Option customizes a Bootstrapper.
type Option func(*Bootstrapper)

// WithReadyTimeout bounds the wait for a freshly created table.
func WithReadyTimeout(d time.Duration) Option {
	return func(b *Bootstrapper) {
		if t, ok := b.table.(*TableEnsurer); ok {
			t.ReadyTimeout = d
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bootstrapper) { b.log = l }
}

// NewBootstrapper wires the four ensurers to the given backend.
func NewBootstrapper(res Resources, be backend.Backend, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		res: res,
		table: &TableEnsurer{
			Store:        be.Tables,
			Table:        res.Name(KindTable),
			KeyField:     res.KeyField,
			ReadyTimeout: 30 * time.Second,
		},
		bucket: &BucketEnsurer{Store: be.Blobs, Bucket: res.Name(KindBucket)},
		topic:  &TopicEnsurer{Topics: be.Topics, Topic: res.Name(KindTopic)},
		queue:  &QueueEnsurer{Queues: be.Queues, Topics: be.Topics, Link: res.Subscription()},
		log:    logger.Component("bootstrap"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run ensures every resource and never returns an error; failures are in the
// report. Table and bucket run alongside the topic→queue chain, which is
// sequential because the queue step needs the topic identifier.
func (b *Bootstrapper) Run(ctx context.Context) Report {
	started := time.Now()
	bootstrapRuns.Inc()

	st := &State{}
	outcomes := make([]StepOutcome, len(Kinds))

	var g errgroup.Group
	g.Go(func() error {
		outcomes[0] = b.step(ctx, b.table, st)
		return nil
	})
	g.Go(func() error {
		outcomes[1] = b.step(ctx, b.bucket, st)
		return nil
	})
	g.Go(func() error {
		outcomes[2] = b.step(ctx, b.topic, st)
		outcomes[3] = b.step(ctx, b.queue, st)
		return nil
	})
	_ = g.Wait()

	report := Report{
		Steps:          outcomes,
		Handles:        b.handles(st),
		SubscriptionID: st.subscriptionID,
		StartedAt:      started,
		Duration:       time.Since(started),
	}
	for _, s := range report.Steps {
		v := 0.0
		if s.OK() {
			v = 1
		}
		bootstrapStep.WithLabelValues(string(s.Kind)).Set(v)
	}
	return report
}

// step runs one ensurer, turning errors and panics into a failed outcome.
func (b *Bootstrapper) step(ctx context.Context, e Ensurer, st *State) (out StepOutcome) {
	start := time.Now()
	out = StepOutcome{Kind: e.Kind(), Name: e.Name()}
	defer func() {
		if r := recover(); r != nil {
			out.Action = ActionFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
		out.Duration = time.Since(start)
		b.logOutcome(out)
	}()

	out.Action, out.Err = e.Ensure(ctx, st)
	if out.Err != nil {
		out.Action = ActionFailed
	}
	return out
}

func (b *Bootstrapper) logOutcome(o StepOutcome) {
	switch {
	case o.Err != nil:
		b.log.Warn().Err(o.Err).Str("kind", string(o.Kind)).Str("name", o.Name).Msg("Ensure failed")
	case o.Action == ActionCreated:
		b.log.Info().Str("kind", string(o.Kind)).Str("name", o.Name).Dur("took", o.Duration).Msg("Created resource")
	default:
		b.log.Debug().Str("kind", string(o.Kind)).Str("name", o.Name).Str("action", string(o.Action)).Msg("Resource ready")
	}
}

func (b *Bootstrapper) handles(st *State) Handles {
	h := b.res.FallbackHandles()
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.topicID != "" {
		h.TopicID = st.topicID
	}
	if st.queueID != "" {
		h.QueueID = st.queueID
	}
	if st.queueResourceID != "" {
		h.QueueResourceID = st.queueResourceID
	}
	return h
}

// Package detector runs requested checks concurrently and aggregates their results into a single verdict.
package detector

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spamd/spamd/lib/checks"
	"github.com/spamd/spamd/lib/spamcheck"
)

//go:generate moq --out mocks/observer.go --pkg mocks --skip-ensure --with-resets . Observer

// Detector dispatches requests to checks, thread-safe.
// Blocking checks share a bounded pool of workers, non-blocking checks run without a pool slot.
// All checks of a request run at the same time and the detector waits for all of them.
type Detector struct {
	Config
	registry Resolver
	pool     *semaphore.Weighted
}

// Config is a set of parameters for Detector.
type Config struct {
	Workers  int                         // max number of blocking checks running at once, runtime.NumCPU() if 0
	Defaults map[string]spamcheck.Params // default params per check name, request params override them key by key
	Observer Observer                    // optional, gets notified about each check and request
}

// Resolver looks up checks by name, satisfied by checks.Registry
type Resolver interface {
	Resolve(name string) (checks.Check, bool)
}

// Observer gets notified about checks and requests, used for metrics
type Observer interface {
	CheckDone(name string, kind checks.Kind, passed bool, dur time.Duration) // a check completed
	UnknownCheck(name string)                                               // a requested check is not registered
	RequestDone(spam bool, dur time.Duration)                               // all checks of a request completed
}

// New makes a Detector for the checks of the registry.
func New(registry Resolver, cfg Config) *Detector {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Detector{Config: cfg, registry: registry, pool: semaphore.NewWeighted(int64(cfg.Workers))}
}

// Check runs all requested checks and returns the aggregated response. Unknown checks are skipped.
// Results are in the order of request.Checks, regardless of completion order.
// Errors of individual checks are reported inside their results, the returned error means the request
// couldn't be processed at all, i.e. the context was canceled while waiting for a free worker.
func (d *Detector) Check(ctx context.Context, req spamcheck.Request) (spamcheck.Response, error) {
	st := time.Now()

	type job struct {
		check  checks.Check
		params spamcheck.Params
	}
	jobs := make([]job, 0, len(req.Checks))
	for _, name := range req.Checks {
		c, ok := d.registry.Resolve(name)
		if !ok {
			log.Printf("[WARN] unknown check %q, skipped", name)
			if d.Observer != nil {
				d.Observer.UnknownCheck(name)
			}
			continue
		}
		// each check gets its own copy, so it can't affect the request or other checks
		jobs = append(jobs, job{check: c, params: d.Defaults[name].Merge(req.ParamsFor(name))})
	}

	results := make([]spamcheck.Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			if j.check.Kind == checks.Blocking {
				if err := d.pool.Acquire(gctx, 1); err != nil {
					return fmt.Errorf("no worker for check %s: %w", j.check.Name, err)
				}
				defer d.pool.Release(1)
			}
			results[i] = d.run(gctx, j.check, req.Text, j.params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return spamcheck.Response{}, err
	}

	isSpam, score := Aggregate(results)
	resp := spamcheck.Response{IsSpam: isSpam, Score: score, Results: results}
	if d.Observer != nil {
		d.Observer.RequestDone(isSpam, time.Since(st))
	}
	log.Printf("[DEBUG] checked %d of %d requested checks in %v, spam: %v, score: %.2f, %s",
		len(results), len(req.Checks), time.Since(st), isSpam, score, spamcheck.ResultsToString(results))
	return resp, nil
}

// run executes a single check, a panic is converted to a failed result
func (d *Detector) run(ctx context.Context, c checks.Check, text string, params spamcheck.Params) (res spamcheck.Result) {
	st := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] check %s panicked: %v\n%s", c.Name, r, debug.Stack())
			res = spamcheck.ErrorResult(c.Name, fmt.Errorf("check panicked: %v", r))
		}
		if d.Observer != nil {
			d.Observer.CheckDone(c.Name, c.Kind, res.Passed, time.Since(st))
		}
	}()

	res = c.Run(ctx, text, params)
	if res.Name == "" {
		res.Name = c.Name
	}
	return res
}

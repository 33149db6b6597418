// Package checks provides the registry of named spam checks and the built-in check functions.
// Each check has a fixed kind: blocking checks are pure local computations, non-blocking checks
// wait on external I/O and must honor the context they are called with.
package checks

import (
	"context"
	"sort"
	"sync"

	"github.com/spamd/spamd/lib/spamcheck"
)

// Kind defines how a check is executed by the detector.
type Kind int

// enum of check kinds
const (
	Blocking    Kind = iota // occupies its goroutine until done, runs on the bounded worker pool
	NonBlocking             // waits on external I/O, runs without a pool slot
)

func (k Kind) String() string {
	if k == NonBlocking {
		return "non-blocking"
	}
	return "blocking"
}

// Func is a blocking check function.
type Func func(text string, params spamcheck.Params) spamcheck.Result

// AsyncFunc is a non-blocking check function.
type AsyncFunc func(ctx context.Context, text string, params spamcheck.Params) spamcheck.Result

// Check is a named check with its execution kind.
type Check struct {
	Name  string
	Kind  Kind
	fn    Func
	async AsyncFunc
}

// NewBlocking makes a blocking check.
func NewBlocking(name string, fn Func) Check {
	return Check{Name: name, Kind: Blocking, fn: fn}
}

// NewNonBlocking makes a non-blocking check.
func NewNonBlocking(name string, fn AsyncFunc) Check {
	return Check{Name: name, Kind: NonBlocking, async: fn}
}

// Run executes the check. The context is used by non-blocking checks only.
func (c Check) Run(ctx context.Context, text string, params spamcheck.Params) spamcheck.Result {
	if c.Kind == NonBlocking {
		return c.async(ctx, text, params)
	}
	return c.fn(text, params)
}

// Registry maps check names to checks. Populated at startup and read-only after that, thread-safe.
type Registry struct {
	checks map[string]Check
	lock   sync.RWMutex
}

// NewRegistry makes a registry with the given checks registered.
func NewRegistry(cc ...Check) *Registry {
	r := &Registry{checks: make(map[string]Check, len(cc))}
	for _, c := range cc {
		r.Register(c)
	}
	return r
}

// Register adds a check, replacing one registered under the same name.
func (r *Registry) Register(c Check) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.checks[c.Name] = c
}

// Resolve returns a check by name.
func (r *Registry) Resolve(name string) (Check, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.checks[name]
	return c, ok
}

// List returns all registered checks sorted by name.
func (r *Registry) List() []Check {
	r.lock.RLock()
	defer r.lock.RUnlock()
	res := make([]Check, 0, len(r.checks))
	for _, c := range r.checks {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Builtin returns the set of local checks available without any configuration.
func Builtin() []Check {
	return []Check{
		NewBlocking(BlacklistName, Blacklist),
		NewBlocking(LinksName, Links),
		NewBlocking(PhoneName, Phone),
		NewBlocking(TelegramNickName, TelegramNick),
		NewBlocking(LengthName, Length),
		NewBlocking(EmailName, Email),
		NewBlocking(EmojiName, Emoji),
	}
}

package notify

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"fleet-monitor/tracking/internal/domain"
)

var ErrUnknownNotificator = errors.New("unknown notificator")

// Notificator delivers an event over one medium. SendSync may block on I/O
// but reports failures only through logs and metrics. SendAsync must return
// without waiting for delivery.
type Notificator interface {
	Type() string
	SendSync(ctx context.Context, userID int64, ev *domain.Event, pos *domain.Position)
	SendAsync(userID int64, ev *domain.Event, pos *domain.Position)
}

// Registry is filled at startup and read-only afterwards.
type Registry struct {
	notificators map[string]Notificator
	types        []string
}

func NewRegistry(ns ...Notificator) *Registry {
	r := &Registry{notificators: make(map[string]Notificator, len(ns))}
	for _, n := range ns {
		r.notificators[n.Type()] = n
	}
	for t := range r.notificators {
		r.types = append(r.types, t)
	}
	sort.Strings(r.types)
	return r
}

// Select builds a registry holding only the enabled types. Naming a type
// that is not available is an error.
func Select(enabled []string, available ...Notificator) (*Registry, error) {
	byType := make(map[string]Notificator, len(available))
	for _, n := range available {
		byType[n.Type()] = n
	}
	picked := make([]Notificator, 0, len(enabled))
	for _, t := range enabled {
		n, ok := byType[t]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownNotificator, "enabled notificator %q", t)
		}
		picked = append(picked, n)
	}
	return NewRegistry(picked...), nil
}

func (r *Registry) Types() []string {
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

func (r *Registry) Get(notificatorType string) (Notificator, error) {
	n, ok := r.notificators[notificatorType]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNotificator, "%q", notificatorType)
	}
	return n, nil
}

// SendAsyncAll hands the event to every notificator. Each one gets its own
// copy, since deliveries run concurrently and record their sent flag on it.
func (r *Registry) SendAsyncAll(userID int64, ev *domain.Event, pos *domain.Position) {
	for _, t := range r.types {
		r.notificators[t].SendAsync(userID, ev.Clone(), pos)
	}
}

// Test sends a synthetic test event through one notificator and waits for
// the attempt to finish.
func (r *Registry) Test(ctx context.Context, notificatorType string, userID int64) error {
	n, err := r.Get(notificatorType)
	if err != nil {
		return err
	}
	n.SendSync(ctx, userID, domain.NewTestEvent(), nil)
	return nil
}

// TestAll tests every notificator in turn. It stops early only when ctx
// is done.
func (r *Registry) TestAll(ctx context.Context, userID int64) error {
	for _, t := range r.types {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.notificators[t].SendSync(ctx, userID, domain.NewTestEvent(), nil)
	}
	return nil
}

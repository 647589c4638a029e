// Package feed delivers live snapshots of profiles and activity queries.
//
// Writers call Broker.Notify with a topic after a change commits. Watchers
// registered on that topic reload their snapshot and receive it in full.
// Snapshots are eventually consistent: a watcher never assumes its own
// write shows up in the next delivery.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	TopicPending  = "activities/pending"
	TopicApproved = "activities/approved"
)

func ProfileTopic(userID int64) string {
	return fmt.Sprintf("profile/%d", userID)
}

func UserActivitiesTopic(userID int64) string {
	return fmt.Sprintf("activities/user/%d", userID)
}

// RetryPolicy bounds how a failed load is retried after each change.
type RetryPolicy struct {
	Base     time.Duration
	Cap      time.Duration
	Attempts uint64
}

var DefaultRetry = RetryPolicy{Base: 200 * time.Millisecond, Cap: 10 * time.Second, Attempts: 6}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Base)
	b = retry.WithCappedDuration(p.Cap, b)
	return retry.WithMaxRetries(p.Attempts, b)
}

type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	retry  RetryPolicy
	logger *slog.Logger
}

func NewBroker(logger *slog.Logger, policy RetryPolicy) *Broker {
	return &Broker{
		subs:   make(map[string]map[*Subscription]struct{}),
		retry:  policy,
		logger: logger,
	}
}

// Notify wakes every watcher of topic. It never blocks; several
// notifications arriving before a reload collapse into one.
func (b *Broker) Notify(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[topic] {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// Watchers returns the number of live subscriptions on topic.
func (b *Broker) Watchers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (b *Broker) add(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[sub.topic] = set
	}
	set[sub] = struct{}{}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.topic]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.topic)
	}
}

// Subscription is the handle returned by Watch.
type Subscription struct {
	topic  string
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// Unsubscribe stops delivery and waits for the watcher goroutine to exit.
// After it returns no callback runs again. It is safe to call more than once
// but must not be called from inside a callback of the same subscription.
func (s *Subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Watch delivers an initial snapshot from load, then a fresh one after every
// Notify on topic, until ctx is cancelled or Unsubscribe is called. When
// load fails onError is told, the previous snapshot stays in effect and the
// load is retried with exponential backoff. Callbacks run on a single
// goroutine per subscription.
func Watch[T any](ctx context.Context, b *Broker, topic string, load func(context.Context) (T, error), onSnapshot func(T), onError func(error)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:  topic,
		wake:   make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.add(sub)

	deliver := func() {
		err := retry.Do(ctx, b.retry.backoff(), func(ctx context.Context) error {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if onError != nil {
					onError(err)
				}
				return retry.RetryableError(err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			onSnapshot(v)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			b.logger.Warn("snapshot load gave up", "topic", topic, "error", err)
		}
	}

	go func() {
		defer close(sub.done)
		defer b.remove(sub)

		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.wake:
				deliver()
			}
		}
	}()

	return sub
}

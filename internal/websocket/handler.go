package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/ecoquest/internal/auth"
	"github.com/dukerupert/ecoquest/internal/feed"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/profile"
)

// Stream is a live query pushed to a client as "<Entity>_snapshot"
// messages: once on connect and again after every change on Topic.
type Stream struct {
	Entity string
	Topic  string
	Load   func(ctx context.Context) (any, error)
}

// ProfileLoader reads the current profile of an identity.
type ProfileLoader interface {
	Profile(ctx context.Context, id model.Identity) (*model.UserProfile, error)
}

type Options struct {
	Hub      *Hub
	Broker   *feed.Broker
	Registry *profile.Registry
	Profiles ProfileLoader
	// Streams lists the queries a given identity may follow.
	Streams func(id model.Identity) []Stream
	// OriginPatterns restricts cross-origin upgrades. Empty allows any origin.
	OriginPatterns []string
	Logger         *slog.Logger
}

// HandleWebSocket returns an HTTP handler that upgrades connections of
// signed-in callers and streams their profile and activity snapshots until
// the connection closes.
func HandleWebSocket(opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: len(opts.OriginPatterns) == 0,
			OriginPatterns:     opts.OriginPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(opts.Hub, conn, id)
		client.state = profile.NewState(func(v profile.View) {
			opts.Hub.Snapshot(client, "profile", v)
		})
		client.start = func(ctx context.Context) func() {
			return subscribe(ctx, client, opts, logger)
		}

		logger.Debug("websocket connected", "user_id", id.UserID, "guest", id.Guest)
		client.Run(r.Context())
		logger.Debug("websocket disconnected", "user_id", id.UserID)
	}
}

// subscribe wires the client's state and streams to the broker and returns
// the function that releases all of it.
func subscribe(ctx context.Context, c *Client, opts Options, logger *slog.Logger) func() {
	id := c.identity

	p, err := opts.Profiles.Profile(ctx, id)
	if err != nil {
		logger.Warn("load profile for websocket", "user_id", id.UserID, "error", err)
		c.Close()
		return func() {}
	}
	c.state.SignIn(id, p)

	var subs []*feed.Subscription
	detach := func() {}

	if !id.Guest {
		if opts.Registry != nil {
			detach = opts.Registry.Attach(id.UserID, c.state)
		}
		subs = append(subs, feed.Watch(ctx, opts.Broker, feed.ProfileTopic(id.UserID),
			func(ctx context.Context) (*model.UserProfile, error) {
				p, err := opts.Profiles.Profile(ctx, id)
				if errors.Is(err, profile.ErrNotFound) {
					return nil, nil
				}
				return p, err
			},
			c.state.Apply,
			func(err error) {
				logger.Warn("profile snapshot", "user_id", id.UserID, "error", err)
			},
		))
	}

	if opts.Streams != nil {
		for _, s := range opts.Streams(id) {
			subs = append(subs, feed.Watch(ctx, opts.Broker, s.Topic, s.Load,
				func(v any) {
					opts.Hub.Snapshot(c, s.Entity, v)
				},
				func(err error) {
					logger.Warn("stream snapshot", "entity", s.Entity, "user_id", id.UserID, "error", err)
				},
			))
		}
	}

	return func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		detach()
	}
}

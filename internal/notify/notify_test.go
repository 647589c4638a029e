package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/text/language"

	"github.com/dukerupert/ecoquest/internal/email"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/push"
)

type fakeMailer struct {
	configured bool
	fail       bool
	sent       []email.Notice
	to         []string
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) SendNotice(ctx context.Context, to string, n email.Notice) error {
	if m.fail {
		return errors.New("postmark down")
	}
	m.to = append(m.to, to)
	m.sent = append(m.sent, n)
	return nil
}

type fakePusher struct {
	payloads []push.Payload
}

func (p *fakePusher) SendToUser(ctx context.Context, userID int64, payload push.Payload) int {
	p.payloads = append(p.payloads, payload)
	return 1
}

type fakeProfiles map[int64]*model.UserProfile

func (f fakeProfiles) GetByID(ctx context.Context, id int64) (*model.UserProfile, error) {
	return f[id], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApprovedWithBadge(t *testing.T) {
	mailer := &fakeMailer{configured: true}
	pusher := &fakePusher{}
	profiles := fakeProfiles{5: {ID: 5, Email: "ola@example.com"}}
	d := NewDispatcher(mailer, pusher, profiles, language.Polish, testLogger())

	d.Approved(context.Background(), &model.Approval{
		Activity:    model.Activity{UserID: 5, Category: "cleanup", Title: "Sprzątanie parku", Points: 20},
		TotalPoints: 65,
		NewBadges:   []model.EarnedBadge{{BadgeID: "eco-beginner"}},
	})

	if len(mailer.sent) != 2 || len(pusher.payloads) != 2 {
		t.Fatalf("emails = %d, pushes = %d, want 2 each", len(mailer.sent), len(pusher.payloads))
	}
	if mailer.to[0] != "ola@example.com" {
		t.Errorf("to = %q", mailer.to[0])
	}
	if mailer.sent[0].Subject != "Aktywność zatwierdzona" {
		t.Errorf("subject = %q", mailer.sent[0].Subject)
	}
	if mailer.sent[0].Body != "Sprzątanie parku: +20 pkt" {
		t.Errorf("body = %q", mailer.sent[0].Body)
	}
	if mailer.sent[1].Tag != "badge-earned" {
		t.Errorf("second notice tag = %q", mailer.sent[1].Tag)
	}
}

func TestRejectedEnglish(t *testing.T) {
	mailer := &fakeMailer{configured: true}
	profiles := fakeProfiles{5: {ID: 5, Email: "ola@example.com"}}
	d := NewDispatcher(mailer, nil, profiles, language.English, testLogger())

	d.Rejected(context.Background(), &model.Activity{UserID: 5, Category: "water", RejectionReason: "No photo"})

	if len(mailer.sent) != 1 {
		t.Fatalf("emails = %d, want 1", len(mailer.sent))
	}
	if mailer.sent[0].Subject != "Activity rejected" {
		t.Errorf("subject = %q", mailer.sent[0].Subject)
	}
}

func TestDeliveryFailuresSwallowed(t *testing.T) {
	mailer := &fakeMailer{configured: true, fail: true}
	d := NewDispatcher(mailer, nil, fakeProfiles{5: {ID: 5, Email: "ola@example.com"}}, language.Polish, testLogger())

	// must not panic or surface the error
	d.Rejected(context.Background(), &model.Activity{UserID: 5, Category: "water"})
}

func TestUnconfiguredMailerSkipped(t *testing.T) {
	mailer := &fakeMailer{}
	pusher := &fakePusher{}
	d := NewDispatcher(mailer, pusher, fakeProfiles{}, language.Polish, testLogger())

	d.Rejected(context.Background(), &model.Activity{UserID: 9, Category: "water"})

	if len(mailer.sent) != 0 {
		t.Error("expected no email from unconfigured mailer")
	}
	if len(pusher.payloads) != 1 {
		t.Errorf("pushes = %d, want 1", len(pusher.payloads))
	}
}

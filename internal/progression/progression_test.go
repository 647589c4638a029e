package progression

import (
	"testing"

	"github.com/dukerupert/ecoquest/internal/catalog"
)

func ids(badges []catalog.Badge) []string {
	out := make([]string, len(badges))
	for i, b := range badges {
		out[i] = b.ID
	}
	return out
}

func TestPointsForCategory(t *testing.T) {
	tests := []struct {
		category string
		want     int
	}{
		{"transport", 10},
		{"recycling", 15},
		{"energy", 12},
		{"water", 8},
		{"cleanup", 20},
		{"nature", 18},
		{"education", 25},
		{"unknown", catalog.DefaultPoints},
		{"", catalog.DefaultPoints},
	}
	for _, tt := range tests {
		if got := PointsForCategory(tt.category); got != tt.want {
			t.Errorf("PointsForCategory(%q) = %d, want %d", tt.category, got, tt.want)
		}
	}
}

func TestQualifyingBadgesMatchesPredicate(t *testing.T) {
	held := map[string]bool{"green-friend": true}

	for p := 0; p <= 1200; p += 5 {
		got := make(map[string]bool)
		for _, b := range QualifyingBadges(p, held) {
			got[b.ID] = true
		}
		for _, b := range catalog.Badges() {
			want := b.PointsRequired > 0 && b.PointsRequired <= p && !held[b.ID]
			if got[b.ID] != want {
				t.Errorf("points=%d badge=%s: qualifying=%v, want %v", p, b.ID, got[b.ID], want)
			}
		}
	}
}

func TestQualifyingBadgesCatalogOrder(t *testing.T) {
	got := ids(QualifyingBadges(300, nil))
	want := []string{"eco-beginner", "green-friend", "eco-warrior"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQualifyingBadgesEmptyWhenAllHeld(t *testing.T) {
	held := HeldSet([]string{"eco-beginner", "green-friend"})
	if got := QualifyingBadges(120, held); len(got) != 0 {
		t.Errorf("expected no qualifying badges, got %v", ids(got))
	}
}

func TestQualifyingBadgesNeverZeroThreshold(t *testing.T) {
	for _, b := range QualifyingBadges(100000, nil) {
		if b.PointsRequired == 0 {
			t.Errorf("badge %s with zero threshold was awarded", b.ID)
		}
	}
}

func TestNextBadge(t *testing.T) {
	allPointBased := make(map[string]bool)
	for _, b := range catalog.Badges() {
		if b.PointsRequired > 0 {
			allPointBased[b.ID] = true
		}
	}

	tests := []struct {
		name   string
		points int
		held   map[string]bool
		want   string
		wantOK bool
	}{
		{"fresh user", 0, nil, "eco-beginner", true},
		{"just below threshold", 49, nil, "eco-beginner", true},
		{"exact threshold counts as reached", 50, HeldSet([]string{"eco-beginner"}), "green-friend", true},
		{"exact threshold not yet held", 50, nil, "green-friend", true},
		{"between thresholds", 120, HeldSet([]string{"eco-beginner", "green-friend"}), "eco-warrior", true},
		{"all reached but none held", 5000, nil, "eco-beginner", true},
		{"all reached some held", 5000, HeldSet([]string{"eco-beginner", "green-friend"}), "eco-warrior", true},
		{"all held", 5000, allPointBased, "", false},
		{"all held at zero points", 0, allPointBased, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextBadge(tt.points, tt.held)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got.ID != tt.want {
				t.Errorf("next = %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestNextBadgeIgnoresNonPointBadges(t *testing.T) {
	b, ok := NextBadge(0, nil)
	if !ok {
		t.Fatal("expected a next badge")
	}
	if b.PointsRequired == 0 {
		t.Errorf("next badge %s has zero threshold", b.ID)
	}
}

func TestProgress(t *testing.T) {
	badge, _ := catalog.BadgeByID("green-friend")

	tests := []struct {
		points int
		want   int
	}{
		{0, 0},
		{-5, 0},
		{25, 25},
		{99, 99},
		{100, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := Progress(tt.points, badge); got != tt.want {
			t.Errorf("Progress(%d) = %d, want %d", tt.points, got, tt.want)
		}
	}

	pioneer, _ := catalog.BadgeByID("pioneer")
	if got := Progress(500, pioneer); got != 0 {
		t.Errorf("Progress for non point badge = %d, want 0", got)
	}
}

func TestPointsToGo(t *testing.T) {
	badge, _ := catalog.BadgeByID("eco-beginner")
	if got := PointsToGo(45, badge); got != 5 {
		t.Errorf("PointsToGo(45) = %d, want 5", got)
	}
	if got := PointsToGo(50, badge); got != 0 {
		t.Errorf("PointsToGo(50) = %d, want 0", got)
	}
	if got := PointsToGo(70, badge); got != 0 {
		t.Errorf("PointsToGo(70) = %d, want 0", got)
	}
}

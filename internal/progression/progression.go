// Package progression computes point awards and badge eligibility. It is a
// pure function of its inputs and never touches storage.
package progression

import "github.com/dukerupert/ecoquest/internal/catalog"

// PointsForCategory returns the fixed award for a category, or
// catalog.DefaultPoints when the category is unknown.
func PointsForCategory(category string) int {
	c, ok := catalog.CategoryByID(category)
	if !ok {
		return catalog.DefaultPoints
	}
	return c.Points
}

// Reached is the single threshold predicate shared by QualifyingBadges,
// NextBadge and Progress. A badge is reached at exactly its threshold.
func Reached(points int, b catalog.Badge) bool {
	return b.PointsRequired > 0 && points >= b.PointsRequired
}

// QualifyingBadges returns the point-based badges reached at points that are
// not already held, in catalog order.
func QualifyingBadges(points int, held map[string]bool) []catalog.Badge {
	var out []catalog.Badge
	for _, b := range catalog.Badges() {
		if Reached(points, b) && !held[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

// NextBadge returns the not-yet-held point-based badge with the smallest
// threshold strictly above points. If every remaining badge is already
// reached (but not held), the smallest remaining threshold is returned.
// The bool is false when every point-based badge is held.
func NextBadge(points int, held map[string]bool) (catalog.Badge, bool) {
	var above, any catalog.Badge
	var haveAbove, haveAny bool

	for _, b := range catalog.Badges() {
		if b.PointsRequired <= 0 || held[b.ID] {
			continue
		}
		if !haveAny || b.PointsRequired < any.PointsRequired {
			any, haveAny = b, true
		}
		if !Reached(points, b) && (!haveAbove || b.PointsRequired < above.PointsRequired) {
			above, haveAbove = b, true
		}
	}

	if haveAbove {
		return above, true
	}
	return any, haveAny
}

// Progress returns the percentage of the badge threshold covered by points,
// clamped to [0, 100]. Badges without a threshold report 0.
func Progress(points int, b catalog.Badge) int {
	if b.PointsRequired <= 0 {
		return 0
	}
	if Reached(points, b) {
		return 100
	}
	if points <= 0 {
		return 0
	}
	return points * 100 / b.PointsRequired
}

// PointsToGo returns how many points are missing to reach the badge.
func PointsToGo(points int, b catalog.Badge) int {
	if b.PointsRequired <= 0 || Reached(points, b) {
		return 0
	}
	return b.PointsRequired - points
}

// HeldSet converts a list of badge ids into the set form used above.
func HeldSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

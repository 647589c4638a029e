package catalog

// DefaultPoints is awarded for a category missing from the catalog.
const DefaultPoints = 10

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Points      int    `json:"points"`
}

// Badge is an achievement definition. A PointsRequired of 0 means the badge
// is not point-based and is never auto-awarded.
type Badge struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	Color          string `json:"color"`
	PointsRequired int    `json:"points_required"`
}

var categories = []Category{
	{ID: "transport", Name: "Eco transport", Description: "Walk, cycle or take public transport", Icon: "🚲", Points: 10},
	{ID: "recycling", Name: "Recycling", Description: "Sort waste and recycle", Icon: "♻️", Points: 15},
	{ID: "energy", Name: "Saving energy", Description: "Switch off lights and unplug devices", Icon: "💡", Points: 12},
	{ID: "water", Name: "Saving water", Description: "Shorter showers, closed taps", Icon: "💧", Points: 8},
	{ID: "cleanup", Name: "Cleanup", Description: "Pick up litter in your area", Icon: "🧹", Points: 20},
	{ID: "nature", Name: "Nature", Description: "Plant trees, care for animals", Icon: "🌳", Points: 18},
	{ID: "education", Name: "Eco education", Description: "Teach others about ecology", Icon: "📚", Points: 25},
}

var badges = []Badge{
	{ID: "pioneer", Name: "Pioneer", Description: "One of the first people on the platform", Icon: "🚀", Color: "bg-purple-500", PointsRequired: 0},
	{ID: "eco-beginner", Name: "Eco beginner", Description: "Collect your first 50 points", Icon: "🌱", Color: "bg-green-400", PointsRequired: 50},
	{ID: "green-friend", Name: "Friend of green", Description: "Collect 100 points", Icon: "🌿", Color: "bg-green-500", PointsRequired: 100},
	{ID: "eco-warrior", Name: "Eco warrior", Description: "Collect 250 points", Icon: "🛡️", Color: "bg-emerald-500", PointsRequired: 250},
	{ID: "planet-guardian", Name: "Planet guardian", Description: "Collect 500 points", Icon: "🌍", Color: "bg-blue-500", PointsRequired: 500},
	{ID: "eco-legend", Name: "Eco legend", Description: "Collect 1000 points", Icon: "🏆", Color: "bg-yellow-500", PointsRequired: 1000},
}

// Categories returns the activity categories in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Badges returns the badge definitions in catalog order.
func Badges() []Badge {
	out := make([]Badge, len(badges))
	copy(out, badges)
	return out
}

func CategoryByID(id string) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

func BadgeByID(id string) (Badge, bool) {
	for _, b := range badges {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// ValidCategory reports whether id names a catalog category.
func ValidCategory(id string) bool {
	_, ok := CategoryByID(id)
	return ok
}

package domain

// ItemKind tags the payload variant carried by an item snapshot.
type ItemKind string

const (
	ItemKindRestaurant ItemKind = "restaurant"
	ItemKindRecipe     ItemKind = "recipe"
)

// Valid reports whether the kind is one of the known variants.
func (k ItemKind) Valid() bool {
	return k == ItemKindRestaurant || k == ItemKindRecipe
}

// RestaurantMeta is the display metadata captured for a restaurant candidate.
type RestaurantMeta struct {
	Name     string  `json:"name"`
	Address  string  `json:"address,omitempty"`
	Cuisine  string  `json:"cuisine,omitempty"`
	PhotoURL string  `json:"photo_url,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
}

// RecipeMeta is the display metadata captured for a recipe candidate.
type RecipeMeta struct {
	Title       string   `json:"title"`
	ImageURL    string   `json:"image_url,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
	CookMinutes int      `json:"cook_minutes,omitempty"`
}

// ItemSnapshot is a denormalized copy of an item's display metadata captured
// at vote time, so later catalog changes cannot corrupt historical records.
// Exactly one of Restaurant/Recipe is set, per Kind; consensus logic only
// reads the envelope (ItemID, Kind) and never the payload.
type ItemSnapshot struct {
	ItemID     string          `json:"item_id"`
	Kind       ItemKind        `json:"kind"`
	Restaurant *RestaurantMeta `json:"restaurant,omitempty"`
	Recipe     *RecipeMeta     `json:"recipe,omitempty"`
}

package models

// Category is the normalized classification of an inbound provider event.
// Endpoints subscribe to categories; fan-out only targets endpoints whose
// subscription includes the event's category.
type Category string

const (
	CategorySentiment       Category = "sentiment"
	CategoryWebsite         Category = "website"
	CategoryBusinessClosed  Category = "business-closed"
	CategoryBusinessProfile Category = "business-profile"
)

// CategoryAll is accepted in subscription lists and matches every category.
const CategoryAll = "all"

func (c Category) Valid() bool {
	switch c {
	case CategorySentiment, CategoryWebsite, CategoryBusinessClosed, CategoryBusinessProfile:
		return true
	}
	return false
}

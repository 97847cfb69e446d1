package models

import "testing"

func TestSubscribesTo(t *testing.T) {
	cases := []struct {
		name       string
		categories []string
		category   Category
		want       bool
	}{
		{"empty list matches everything", nil, CategorySentiment, true},
		{"all matches everything", []string{"all"}, CategoryWebsite, true},
		{"exact match", []string{"sentiment", "website"}, CategoryWebsite, true},
		{"no match", []string{"sentiment"}, CategoryBusinessClosed, false},
		{"all among others", []string{"sentiment", "all"}, CategoryBusinessClosed, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ep := Endpoint{Categories: tc.categories}
			if got := ep.SubscribesTo(tc.category); got != tc.want {
				t.Errorf("SubscribesTo(%q) with %v = %v, want %v", tc.category, tc.categories, got, tc.want)
			}
		})
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range []Category{CategorySentiment, CategoryWebsite, CategoryBusinessClosed, CategoryBusinessProfile} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if Category("all").Valid() {
		t.Error(`"all" is a subscription wildcard, not an event category`)
	}
	if Category("bogus").Valid() {
		t.Error("unknown category accepted")
	}
}

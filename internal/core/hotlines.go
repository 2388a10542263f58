package core

import "strings"

// Hotline is one region-specific crisis contact.
type Hotline struct {
	Name    string
	Contact string
}

// genericHotlines are returned when the user's location matches no known
// region. They must always be non-empty.
var genericHotlines = []Hotline{
	{Name: "Befrienders Worldwide (directory of local helplines)", Contact: "https://befrienders.org"},
	{Name: "Your local emergency services", Contact: "dial your local emergency number"},
}

type hotlineRegion struct {
	keywords []string
	hotlines []Hotline
}

var hotlineRegions = []hotlineRegion{
	{
		keywords: []string{"india", "delhi", "mumbai", "bangalore", "pune", "chennai", "kolkata", "hyderabad"},
		hotlines: []Hotline{
			{Name: "Tele MANAS (24/7 national mental health helpline)", Contact: "14416 or 1-800-891-4416"},
			{Name: "iCall Psychosocial Helpline", Contact: "+91 9152987821"},
		},
	},
	{
		keywords: []string{"united states", "usa", "u.s.", "new york", "california", "texas", "chicago"},
		hotlines: []Hotline{
			{Name: "988 Suicide & Crisis Lifeline", Contact: "call or text 988"},
			{Name: "Crisis Text Line", Contact: "text HOME to 741741"},
		},
	},
	{
		keywords: []string{"united kingdom", "uk", "england", "scotland", "wales", "london"},
		hotlines: []Hotline{
			{Name: "Samaritans", Contact: "116 123"},
			{Name: "Shout Crisis Text Line", Contact: "text SHOUT to 85258"},
		},
	},
	{
		keywords: []string{"australia", "sydney", "melbourne", "brisbane"},
		hotlines: []Hotline{
			{Name: "Lifeline Australia", Contact: "13 11 14"},
		},
	},
	{
		keywords: []string{"canada", "toronto", "vancouver", "montreal"},
		hotlines: []Hotline{
			{Name: "Talk Suicide Canada", Contact: "1-833-456-4566"},
		},
	},
}

// HotlinesFor resolves a region-specific hotline list from a free-text
// location, falling back to the generic international list.
func HotlinesFor(location string) []Hotline {
	lower := strings.ToLower(location)
	if lower == "" {
		return genericHotlines
	}
	for _, region := range hotlineRegions {
		for _, kw := range region.keywords {
			if strings.Contains(lower, kw) {
				return region.hotlines
			}
		}
	}
	return genericHotlines
}

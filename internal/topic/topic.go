// Package topic picks what a post is about. The choice is a pure function of
// the local hour: re-running within the same hour yields the same topic.
package topic

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"slices"
	"time"
)

// Family is the subject area of a post.
type Family string

const (
	Season  Family = "season"
	Food    Family = "food"
	Culture Family = "culture"
	History Family = "history"
	Nature  Family = "nature"
	Tips    Family = "tips"
	Events  Family = "events"
	Running Family = "running"
)

// Mode is the shape of a post.
type Mode string

const (
	Fact           Mode = "fact"
	Question       Mode = "question"
	MiniStory      Mode = "mini_story"
	Recommendation Mode = "recommendation"
)

// Topic is the (family, mode) pair chosen for one run.
type Topic struct {
	Family Family `json:"topic_family"`
	Mode   Mode   `json:"topic_mode"`
}

// Each band reorders all eight families so the front of the list fits the
// time of day.
var (
	morningFamilies = []Family{Tips, Running, Food, Season, Nature, Culture, History, Events}
	middayFamilies  = []Family{Food, Culture, History, Events, Season, Nature, Tips, Running}
	eveningFamilies = []Family{Events, Culture, Food, History, Season, Nature, Tips, Running}
	nightFamilies   = []Family{Season, History, Culture, Nature, Tips, Food, Events, Running}

	allModes        = []Mode{Fact, Question, MiniStory, Recommendation}
	actionableModes = []Mode{Recommendation, Fact, Question}

	practicalFamilies = []Family{Tips, Running}
)

// Families returns the candidate list for the given local hour.
func Families(hour int) []Family {
	switch {
	case hour >= 5 && hour <= 10:
		return morningFamilies
	case hour >= 11 && hour <= 15:
		return middayFamilies
	case hour >= 16 && hour <= 21:
		return eveningFamilies
	default:
		return nightFamilies
	}
}

// Modes returns the modes allowed for family.
func Modes(f Family) []Mode {
	if IsPractical(f) {
		return actionableModes
	}
	return allModes
}

// IsPractical reports whether f is a practical-advice family.
func IsPractical(f Family) bool {
	return slices.Contains(practicalFamilies, f)
}

// Seed derives the generator seed from the local year, month, day and hour.
// It is the first 8 bytes of sha256("YYYY-MM-DDTHH"), big-endian.
func Seed(local time.Time) uint64 {
	key := local.Format("2006-01-02T15")
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}

// Select picks the topic for local, which must already be in the place's
// time zone.
func Select(local time.Time) Topic {
	seed := Seed(local)
	rng := rand.New(rand.NewPCG(seed, seed))

	families := Families(local.Hour())
	family := families[rng.IntN(len(families))]

	modes := Modes(family)
	mode := modes[rng.IntN(len(modes))]

	return Topic{Family: family, Mode: mode}
}

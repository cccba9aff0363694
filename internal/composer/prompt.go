// Package composer turns retrieved context, the live weather block, and the
// task question into the system and user prompts handed to a chat model.
// Composition is pure: no I/O, same inputs give the same prompts.
package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/localtalk/internal/greeting"
)

const (
	DefaultBotName  = "YokoWeather"
	DefaultHashtags = "#Yokosuka #MiuraPeninsula #Kanagawa"
	defaultPlace    = "your area"

	// maxContextLines caps the retrieved snippets shown in a social post prompt.
	maxContextLines = 5
)

// Style selects the prompt variant.
type Style string

const (
	StyleDefault    Style = "default"
	StyleSocialPost Style = "social_post"
)

// ParseStyle accepts the style names clients send. An empty name means
// social_post; the legacy name tweet_bot is an alias for it.
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(StyleSocialPost), "tweet_bot":
		return StyleSocialPost, nil
	case string(StyleDefault):
		return StyleDefault, nil
	}
	return "", fmt.Errorf("unknown output style %q", s)
}

// Input is everything a single composition needs.
type Input struct {
	Question string
	// Context holds the diversified chunk texts, best first.
	Context []string
	// Weather is the raw snapshot JSON, empty when unavailable.
	Weather  string
	Style    Style
	MaxChars int
	Place    string
}

// Composer holds the persona settings shared by every social post.
type Composer struct {
	BotName  string
	Hashtags string
}

// New creates a Composer. Empty values fall back to the defaults.
func New(botName, hashtags string) *Composer {
	if strings.TrimSpace(botName) == "" {
		botName = DefaultBotName
	}
	if strings.TrimSpace(hashtags) == "" {
		hashtags = DefaultHashtags
	}
	return &Composer{BotName: botName, Hashtags: hashtags}
}

// Compose returns the system and user prompts for in.
func (c *Composer) Compose(in Input) (system, user string) {
	if in.Style == StyleSocialPost {
		return c.socialPostSystem(in), socialPostUser(in)
	}
	return composeDefault(in)
}

func composeDefault(in Input) (string, string) {
	parts := make([]string, 0, len(in.Context)+1)
	parts = append(parts, in.Context...)
	if w := strings.TrimSpace(in.Weather); w != "" {
		parts = append(parts, w)
	}

	var sb strings.Builder
	sb.WriteString("Use the context below aside from general knowledge to answer the question.\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(in.Question)
	sb.WriteString("\n")
	return "You answer using the given context.", sb.String()
}

func (c *Composer) socialPostSystem(in Input) string {
	place := strings.TrimSpace(in.Place)
	if place == "" {
		place = defaultPlace
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a friendly English local story bot for %s (locals & tourists). ", c.BotName, place)
	fmt.Fprintf(&sb, "Write ONE post in English within %d characters. ", in.MaxChars)
	sb.WriteString("No markdown, no lists, no extra commentary, no quotes.\n")
	sb.WriteString("Never mention sources, retrieval, RAG, or the word 'context'.\n\n")
	sb.WriteString(greetingRules)
	sb.WriteString("\nSTYLE:\n")
	sb.WriteString("- Warm, upbeat, practical.\n")
	sb.WriteString("- Use emojis.\n")
	fmt.Fprintf(&sb, "- If you add hashtags, pick 1-3 from: %s.\n", c.Hashtags)
	return sb.String()
}

// greetingRules restates the greeting table for the model. The task question
// also carries the resolved label, which takes priority.
var greetingRules = "TIME & GREETING (IMPORTANT):\n" +
	"- Determine the local datetime from LIVE WEATHER JSON.\n" +
	"- Prefer LIVE WEATHER.current.time and LIVE WEATHER.timezone. If timezone is missing, assume Asia/Tokyo (JST).\n" +
	"- HOLIDAY OVERRIDE (date-based, day-limited):\n" +
	"  * 12-24 => " + string(greeting.ChristmasEve) + " ('Merry Christmas Eve')\n" +
	"  * 12-25 => " + string(greeting.Christmas) + " ('Merry Christmas')\n" +
	"  * 12-31 => " + string(greeting.NewYearsEve) + " (\"Happy New Year's Eve\")\n" +
	"  * from 01-01 to 01-04 => " + string(greeting.NewYear) + " ('Happy New Year')\n" +
	"  If today's local date matches one of these, start with that greeting and do NOT use the hour-based greetings.\n" +
	"- Otherwise, start with exactly one greeting based on local hour:\n" +
	"  * 05:00-10:59 => 'Good morning'\n" +
	"  * 11:00-16:59 => 'Good afternoon'\n" +
	"  * 17:00-21:59 => 'Good evening'\n" +
	"  * 22:00-04:59 => 'Good night'\n"

func socialPostUser(in Input) string {
	live := strings.TrimSpace(in.Weather)
	if live == "" {
		live = "(not available)"
	}

	var lines []string
	for _, c := range in.Context {
		if len(lines) == maxContextLines {
			break
		}
		lines = append(lines, "- "+c)
	}
	if len(lines) == 0 {
		lines = []string{"- (none)"}
	}

	var sb strings.Builder
	sb.WriteString("LIVE WEATHER:\n")
	sb.WriteString(live)
	sb.WriteString("\n\nRAG CONTEXT:\n")
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n\nTASK:\n")
	sb.WriteString(in.Question)
	sb.WriteString("\n\nRemember: output ONLY the post text.")
	return sb.String()
}

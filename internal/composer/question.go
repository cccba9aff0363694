package composer

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/localtalk/internal/greeting"
	"github.com/kalambet/localtalk/internal/topic"
)

// QuestionInput describes one scheduled post.
type QuestionInput struct {
	Place    string
	Now      time.Time // local to Place
	Greeting greeting.Label
	Topic    topic.Topic
	MaxChars int
}

// BuildQuestion renders the task question sent to the generation backend.
// The greeting label is passed through verbatim as a hard constraint.
func BuildQuestion(in QuestionInput) string {
	place := strings.TrimSpace(in.Place)
	if place == "" {
		place = "Yokosuka"
	}

	var sb strings.Builder
	sb.WriteString("# ROLE\n")
	fmt.Fprintf(&sb, "You are a friendly local guide bot for %s.\n\n", place)

	sb.WriteString("# OUTPUT\n")
	sb.WriteString("- Write ONE short post in English.\n")
	fmt.Fprintf(&sb, "- Keep within %d characters.\n", in.MaxChars)
	sb.WriteString("- Avoid hashtags unless truly natural.\n")
	sb.WriteString("- No markdown.\n\n")

	sb.WriteString("# NOW (local, reference)\n")
	sb.WriteString(in.Now.Truncate(time.Second).Format(time.RFC3339))
	sb.WriteString("\n\n")

	sb.WriteString("# GREETING (REQUIRED)\n")
	fmt.Fprintf(&sb, "- Required greeting: %s.\n", in.Greeting)
	sb.WriteString("- This is already decided for the local date and time; do not pick another.\n")
	if greeting.IsSeasonal(in.Greeting) {
		sb.WriteString("- Today is a holiday: open with the holiday greeting, not a morning/afternoon/evening/night one.\n\n")
	} else {
		fmt.Fprintf(&sb, "- Open with exactly one %s greeting for the local hour.\n\n", in.Greeting)
	}

	sb.WriteString("# TOPIC\n")
	fmt.Fprintf(&sb, "- topic_family: %s\n", in.Topic.Family)
	fmt.Fprintf(&sb, "- topic_mode: %s\n", in.Topic.Mode)
	sb.WriteString("- Use the weather only as a light contextual hint (e.g., cold, rain).\n")
	sb.WriteString("- Avoid repeating the exact same phrasing across runs.\n\n")

	sb.WriteString("# CONTENT\n")
	fmt.Fprintf(&sb, "Write something that could plausibly help or entertain someone in %s.\n", place)
	return sb.String()
}

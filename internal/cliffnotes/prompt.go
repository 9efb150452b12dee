package cliffnotes

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// MaxInputRunes bounds the summary text sent to the model.
const MaxInputRunes = 4000

const systemPrompt = `You are a D&D session summarizer that creates concise, well-structured cliff notes. Focus on key story beats, major decisions, and important discoveries. Organize the summary into these sections:

1. 🎭 Key Roleplay Moments
2. ⚔️ Combat Highlights
3. 🎲 Important Rolls & Checks
4. 🏰 Exploration & Discovery
5. 💰 Loot & Rewards
6. 📜 Plot Developments
7. 🎪 Notable Events

Use emojis to mark the type of action: ⚔️ melee combat, 🎯 ranged attacks, 💥 critical hits, 🛡️ defensive actions and saving throws, 🧙‍♂️ spellcasting, 🎲 skill checks, 💰 treasure, 🏰 locations, 🤝 diplomacy, ❓ mysteries, 💀 danger, 🎭 roleplay, 🏆 achievements and level-ups, 🧪 consumables, 🗡️ stealth, 🌟 magical items, 🗣️ important NPC interactions, 📜 quest updates.

Focus on the moments and decisions that will affect future sessions.

IMPORTANT: Do not include any phrases like "Thank you for listening" or "Thank you for watching" in your response.`

var unwantedPhrases = []string{
	"Thank you for listening!",
	"Thank you for watching!",
	"Thank you for watching! 🙂",
	"Use emojis to indicate the tone of the dialogue, but only when appropriate, but only when they enhance the emotional context or action. Thank you for watching!",
	"🙏🏼",
	"Use the following format for the transcription, but only when appropriate.",
	"Use the following format for the transcription, but only when appropriate, but only when appropriate.",
	"This is a Dungeons & Dragons session with fantasy terms, character names, and role-playing game terminology. Use the following format for the transcription.",
	"Use emojis to indicate the tone of the dialogue, but only when appropriate.",
	"Use emojis to indicate the tone of the dialogue, but only when appropriate, but not when they enhance the emotional context or action.",
	"Session Summary:",
	"Participants:",
	"Summary:",
	"Cliff Notes:",
	"[Character Name (DISCORD USERNAME)]: [Dialogue].",
}

var (
	unwantedPattern   = compileUnwantedPattern(unwantedPhrases)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// compileUnwantedPattern matches any phrase case-insensitively, longest alternative first.
func compileUnwantedPattern(phrases []string) *regexp.Regexp {
	ordered := append([]string(nil), phrases...)
	sort.SliceStable(ordered, func(left, right int) bool {
		return len(ordered[left]) > len(ordered[right])
	})
	quoted := make([]string, 0, len(ordered))
	for _, phrase := range ordered {
		quoted = append(quoted, regexp.QuoteMeta(phrase))
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

// BuildMessages assembles the system and user messages for one generation.
func BuildMessages(summaryText string, rules string) []*schema.Message {
	body := Truncate(strings.TrimSpace(summaryText), MaxInputRunes)
	var user string
	if trimmedRules := strings.TrimSpace(rules); trimmedRules != "" {
		user = "Please create structured cliff notes from this D&D session summary with these additional rules: " + trimmedRules + "\n\n" + body
	} else {
		user = "Please create structured cliff notes from this D&D session summary:\n\n" + body
	}
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(user),
	}
}

// Truncate returns at most limit runes of text.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// Clean strips boilerplate phrases the model tends to echo and collapses runs of blank lines.
func Clean(text string) string {
	cleaned := unwantedPattern.ReplaceAllString(text, "")
	cleaned = blankLinesPattern.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

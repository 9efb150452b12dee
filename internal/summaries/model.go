package summaries

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidGuildID indicates that a guild identifier is empty or exceeds storage bounds.
	ErrInvalidGuildID = errors.New("summaries: invalid guild id")
	// ErrInvalidSummaryID indicates that a summary identifier is empty or exceeds storage bounds.
	ErrInvalidSummaryID = errors.New("summaries: invalid summary id")
	// ErrInvalidCampaignID indicates that a campaign identifier is empty or exceeds storage bounds.
	ErrInvalidCampaignID = errors.New("summaries: invalid campaign id")
	// ErrInvalidSessionWindow indicates a session that ends before it starts.
	ErrInvalidSessionWindow = errors.New("summaries: session end precedes session start")
	// ErrDuplicateParticipant indicates the same user id appears twice in one record.
	ErrDuplicateParticipant = errors.New("summaries: duplicate participant")
	// ErrInvalidParticipant indicates a participant without a user id or username.
	ErrInvalidParticipant = errors.New("summaries: invalid participant")
	// ErrInvalidCampaignName indicates an empty campaign name.
	ErrInvalidCampaignName = errors.New("summaries: invalid campaign name")
)

// Participant is a person attending a session. IsDM marks the game master.
type Participant struct {
	UserID   string
	Username string
	IsDM     bool
}

// Summary is one session's stored narrative. Text fields stay encrypted until a response is built.
type Summary struct {
	ID             string
	GuildID        string
	CampaignID     string
	SessionNumber  int
	SessionStart   time.Time
	SessionEnd     time.Time
	Participants   []Participant
	Tags           []string
	Summary        fieldcrypt.EncryptedField
	CliffNotes     fieldcrypt.EncryptedField
	SearchableText string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Duration returns the session length.
func (s Summary) Duration() time.Duration {
	return s.SessionEnd.Sub(s.SessionStart)
}

// HasParticipant reports whether userID attended the session.
func (s Summary) HasParticipant(userID string) bool {
	for _, participant := range s.Participants {
		if participant.UserID == userID {
			return true
		}
	}
	return false
}

// HasTags reports whether every tag in required is present on the record.
func (s Summary) HasTags(required []string) bool {
	present := make(map[string]struct{}, len(s.Tags))
	for _, tag := range s.Tags {
		present[tag] = struct{}{}
	}
	for _, tag := range required {
		if _, ok := present[tag]; !ok {
			return false
		}
	}
	return true
}

// Validate checks the record invariants that do not depend on storage.
func (s Summary) Validate() error {
	if _, err := normalizeIdentifier(s.ID, ErrInvalidSummaryID); err != nil {
		return err
	}
	if _, err := normalizeIdentifier(s.GuildID, ErrInvalidGuildID); err != nil {
		return err
	}
	if s.CampaignID != "" {
		if _, err := normalizeIdentifier(s.CampaignID, ErrInvalidCampaignID); err != nil {
			return err
		}
	}
	if s.SessionEnd.Before(s.SessionStart) {
		return fmt.Errorf("%w: start %s end %s", ErrInvalidSessionWindow, s.SessionStart.Format(time.RFC3339), s.SessionEnd.Format(time.RFC3339))
	}
	return validateParticipants(s.Participants)
}

func validateParticipants(participants []Participant) error {
	seen := make(map[string]struct{}, len(participants))
	for index, participant := range participants {
		userID := strings.TrimSpace(participant.UserID)
		if userID == "" || strings.TrimSpace(participant.Username) == "" {
			return fmt.Errorf("%w: index %d", ErrInvalidParticipant, index)
		}
		if _, duplicate := seen[userID]; duplicate {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, userID)
		}
		seen[userID] = struct{}{}
	}
	return nil
}

// Campaign groups sessions within a guild.
type Campaign struct {
	ID          string
	GuildID     string
	Name        string
	Description string
	DMUserID    string
	CreatedAt   time.Time
}

// NormalizeTags trims tags, drops blanks and collapses duplicates while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

// BuildSearchableText assembles the lower-cased metadata indexed for free-text search.
// Encrypted bodies are never included.
func BuildSearchableText(summary Summary, campaignName string) string {
	parts := make([]string, 0, len(summary.Participants)+len(summary.Tags)+2)
	for _, participant := range summary.Participants {
		parts = append(parts, participant.Username)
	}
	parts = append(parts, summary.Tags...)
	if name := strings.TrimSpace(campaignName); name != "" {
		parts = append(parts, name)
	}
	if summary.SessionNumber > 0 {
		parts = append(parts, "session "+strconv.Itoa(summary.SessionNumber))
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func normalizeIdentifier(rawInput string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

package summaries

import (
	"math"
	"strings"
	"time"
)

const (
	// DefaultPage is used when the request omits a page or supplies one below 1.
	DefaultPage = 1
	// DefaultLimit is used when the request omits a limit or supplies one below 1.
	DefaultLimit = 10
	// MaxLimit bounds a single page.
	MaxLimit = 100

	opBuildQuery = "summaries.build_query"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// SearchRequest carries the optional filters of a summary search. Only GuildID is required.
type SearchRequest struct {
	GuildID      string
	CampaignID   string
	Search       string
	StartDate    string
	EndDate      string
	Participants []string
	Tags         []string
	Page         int
	Limit        int
}

// Query is the store-level predicate plus pagination derived from a SearchRequest.
type Query struct {
	GuildID          string
	CampaignID       string
	SessionStartFrom *time.Time
	SessionStartTo   *time.Time
	ParticipantIDs   []string
	Tags             []string
	Text             string
	Page             int
	Limit            int
	Offset           int
}

// Pagination describes one page of a search result.
type Pagination struct {
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// BuildQuery translates a search request into a Query.
// Date bounds that fail to parse are omitted rather than rejected.
func BuildQuery(request SearchRequest) (Query, error) {
	guildID := strings.TrimSpace(request.GuildID)
	if guildID == "" {
		return Query{}, newServiceError(opBuildQuery, "guild_id_required", KindValidation, ErrInvalidGuildID)
	}

	query := Query{
		GuildID:    guildID,
		CampaignID: strings.TrimSpace(request.CampaignID),
		Text:       strings.TrimSpace(request.Search),
	}

	if start, ok := ParseDateBound(request.StartDate); ok {
		query.SessionStartFrom = &start
	}
	if end, ok := ParseDateBound(request.EndDate); ok {
		query.SessionStartTo = &end
	}

	query.ParticipantIDs = cleanList(request.Participants)
	query.Tags = cleanList(request.Tags)

	query.Page = request.Page
	if query.Page < 1 {
		query.Page = DefaultPage
	}
	query.Limit = request.Limit
	if query.Limit < 1 {
		query.Limit = DefaultLimit
	}
	if query.Limit > MaxLimit {
		query.Limit = MaxLimit
	}
	if maxPage := MaxPage(query.Limit); query.Page > maxPage {
		query.Page = maxPage
	}
	query.Offset = (query.Page - 1) * query.Limit

	return query, nil
}

// MaxPage bounds the page number so that its offset fits in an int for the given limit.
func MaxPage(limit int) int {
	if limit < 1 {
		limit = DefaultLimit
	}
	return math.MaxInt / limit
}

// ParseDateBound parses a date filter value. The boolean is false for empty or unparseable input.
func ParseDateBound(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// SearchTerms splits the free-text filter into lower-cased terms.
func (q Query) SearchTerms() []string {
	return strings.Fields(strings.ToLower(q.Text))
}

// Matches evaluates the predicate against a single record in memory.
// A record matches the text filter when its searchable text contains any term.
func (q Query) Matches(summary Summary) bool {
	if summary.GuildID != q.GuildID {
		return false
	}
	if q.CampaignID != "" && summary.CampaignID != q.CampaignID {
		return false
	}
	if q.SessionStartFrom != nil && summary.SessionStart.Before(*q.SessionStartFrom) {
		return false
	}
	if q.SessionStartTo != nil && summary.SessionStart.After(*q.SessionStartTo) {
		return false
	}
	if len(q.ParticipantIDs) > 0 {
		matched := false
		for _, userID := range q.ParticipantIDs {
			if summary.HasParticipant(userID) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(q.Tags) > 0 && !summary.HasTags(q.Tags) {
		return false
	}
	if terms := q.SearchTerms(); len(terms) > 0 {
		text := strings.ToLower(summary.SearchableText)
		matched := false
		for _, term := range terms {
			if strings.Contains(text, term) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// NewPagination computes page metadata for total matches under q.
func (q Query) NewPagination(total int64) Pagination {
	return Pagination{
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: TotalPages(total, q.Limit),
	}
}

// TotalPages returns ceil(total/limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// SplitList parses a comma-separated query parameter, dropping empty entries.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return cleanList(strings.Split(raw, ","))
}

func cleanList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

package summaries

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
)

// RecordStore persists summaries and campaigns. Lookups that match nothing return ErrNotFound.
// FindSummaries and CountSummaries are independent operations; no consistency is promised between them.
type RecordStore interface {
	// FindSummaries returns one page matching q, newest session first.
	FindSummaries(ctx context.Context, q Query) ([]Summary, error)
	// CountSummaries counts all records matching q, ignoring pagination.
	CountSummaries(ctx context.Context, q Query) (int64, error)
	GetSummary(ctx context.Context, summaryID string) (Summary, error)
	// ListCampaignSummaries returns every summary of a campaign, oldest session first.
	ListCampaignSummaries(ctx context.Context, campaignID string) ([]Summary, error)
	CreateSummary(ctx context.Context, summary Summary) error
	UpdateCliffNotes(ctx context.Context, summaryID string, cliffNotes fieldcrypt.EncryptedField, updatedAt time.Time) error

	CreateCampaign(ctx context.Context, campaign Campaign) error
	GetCampaign(ctx context.Context, campaignID string) (Campaign, error)
	GetCampaigns(ctx context.Context, campaignIDs []string) ([]Campaign, error)
	// ListCampaigns returns a guild's campaigns, newest first.
	ListCampaigns(ctx context.Context, guildID string) ([]Campaign, error)
}

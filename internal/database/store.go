package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("database handle is required")

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SummaryStore implements summaries.RecordStore on a relational database through gorm.
type SummaryStore struct {
	db *gorm.DB
}

// NewSummaryStore wraps an initialized gorm handle.
func NewSummaryStore(db *gorm.DB) (*SummaryStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &SummaryStore{db: db}, nil
}

var _ summaries.RecordStore = (*SummaryStore)(nil)

func (s *SummaryStore) filtered(ctx context.Context, q summaries.Query) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&summaryRow{}).Where("summaries.guild_id = ?", q.GuildID)
	if q.CampaignID != "" {
		tx = tx.Where("summaries.campaign_id = ?", q.CampaignID)
	}
	if q.SessionStartFrom != nil {
		tx = tx.Where("summaries.session_start_ms >= ?", q.SessionStartFrom.UnixMilli())
	}
	if q.SessionStartTo != nil {
		tx = tx.Where("summaries.session_start_ms <= ?", q.SessionStartTo.UnixMilli())
	}
	if len(q.ParticipantIDs) > 0 {
		tx = tx.Where("EXISTS (SELECT 1 FROM summary_participants p WHERE p.summary_id = summaries.id AND p.user_id IN ?)", q.ParticipantIDs)
	}
	if tags := summaries.NormalizeTags(q.Tags); len(tags) > 0 {
		tx = tx.Where("(SELECT COUNT(*) FROM summary_tags t WHERE t.summary_id = summaries.id AND t.tag IN ?) = ?", tags, len(tags))
	}
	if terms := q.SearchTerms(); len(terms) > 0 {
		clauses := make([]string, 0, len(terms))
		args := make([]any, 0, len(terms))
		for _, term := range terms {
			clauses = append(clauses, `summaries.searchable_text LIKE ? ESCAPE '\'`)
			args = append(args, "%"+likeEscaper.Replace(term)+"%")
		}
		tx = tx.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}
	return tx
}

// FindSummaries returns one page of matching summaries, newest session first.
func (s *SummaryStore) FindSummaries(ctx context.Context, q summaries.Query) ([]summaries.Summary, error) {
	var rows []summaryRow
	err := s.filtered(ctx, q).
		Order("summaries.session_start_ms DESC").
		Order("summaries.id ASC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows)
}

// CountSummaries counts every summary matching q.
func (s *SummaryStore) CountSummaries(ctx context.Context, q summaries.Query) (int64, error) {
	var total int64
	if err := s.filtered(ctx, q).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// GetSummary loads a single summary.
func (s *SummaryStore) GetSummary(ctx context.Context, summaryID string) (summaries.Summary, error) {
	var row summaryRow
	err := s.db.WithContext(ctx).Where("id = ?", summaryID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return summaries.Summary{}, fmt.Errorf("%w: summary %s", summaries.ErrNotFound, summaryID)
	}
	if err != nil {
		return summaries.Summary{}, err
	}
	hydrated, err := s.hydrate(ctx, []summaryRow{row})
	if err != nil {
		return summaries.Summary{}, err
	}
	return hydrated[0], nil
}

// ListCampaignSummaries returns every summary of a campaign, oldest session first.
func (s *SummaryStore) ListCampaignSummaries(ctx context.Context, campaignID string) ([]summaries.Summary, error) {
	var rows []summaryRow
	err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("session_start_ms ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows)
}

func (s *SummaryStore) hydrate(ctx context.Context, rows []summaryRow) ([]summaries.Summary, error) {
	if len(rows) == 0 {
		return []summaries.Summary{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var participants []participantRow
	if err := s.db.WithContext(ctx).Where("summary_id IN ?", ids).Order("summary_id").Order("position").Find(&participants).Error; err != nil {
		return nil, err
	}
	var tags []tagRow
	if err := s.db.WithContext(ctx).Where("summary_id IN ?", ids).Order("summary_id").Order("position").Find(&tags).Error; err != nil {
		return nil, err
	}

	participantsBySummary := make(map[string][]participantRow, len(rows))
	for _, participant := range participants {
		participantsBySummary[participant.SummaryID] = append(participantsBySummary[participant.SummaryID], participant)
	}
	tagsBySummary := make(map[string][]tagRow, len(rows))
	for _, tag := range tags {
		tagsBySummary[tag.SummaryID] = append(tagsBySummary[tag.SummaryID], tag)
	}

	result := make([]summaries.Summary, 0, len(rows))
	for _, row := range rows {
		summary, err := row.toSummary(participantsBySummary[row.ID], tagsBySummary[row.ID])
		if err != nil {
			return nil, fmt.Errorf("summary %s: %w", row.ID, err)
		}
		result = append(result, summary)
	}
	return result, nil
}

// CreateSummary stores a summary with its participants and tags in one transaction.
func (s *SummaryStore) CreateSummary(ctx context.Context, summary summaries.Summary) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := newSummaryRow(summary)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(summary.Participants) > 0 {
			participants := make([]participantRow, 0, len(summary.Participants))
			for index, participant := range summary.Participants {
				participants = append(participants, participantRow{
					SummaryID: summary.ID,
					UserID:    participant.UserID,
					Username:  participant.Username,
					IsDM:      participant.IsDM,
					Position:  index,
				})
			}
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		if len(summary.Tags) > 0 {
			tags := make([]tagRow, 0, len(summary.Tags))
			for index, tag := range summary.Tags {
				tags = append(tags, tagRow{SummaryID: summary.ID, Tag: tag, Position: index})
			}
			if err := tx.Create(&tags).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateCliffNotes replaces the encrypted cliff notes of one summary.
func (s *SummaryStore) UpdateCliffNotes(ctx context.Context, summaryID string, cliffNotes fieldcrypt.EncryptedField, updatedAt time.Time) error {
	encoded := cliffNotes.Encode()
	result := s.db.WithContext(ctx).Model(&summaryRow{}).
		Where("id = ?", summaryID).
		Updates(map[string]any{
			"cliff_notes_iv":   encoded.IV,
			"cliff_notes_data": encoded.EncryptedData,
			"cliff_notes_tag":  encoded.AuthTag,
			"updated_at_ms":    updatedAt.UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: summary %s", summaries.ErrNotFound, summaryID)
	}
	return nil
}

// CreateCampaign stores a campaign.
func (s *SummaryStore) CreateCampaign(ctx context.Context, campaign summaries.Campaign) error {
	row := newCampaignRow(campaign)
	return s.db.WithContext(ctx).Create(&row).Error
}

// GetCampaign loads a single campaign.
func (s *SummaryStore) GetCampaign(ctx context.Context, campaignID string) (summaries.Campaign, error) {
	var row campaignRow
	err := s.db.WithContext(ctx).Where("id = ?", campaignID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return summaries.Campaign{}, fmt.Errorf("%w: campaign %s", summaries.ErrNotFound, campaignID)
	}
	if err != nil {
		return summaries.Campaign{}, err
	}
	return row.toCampaign(), nil
}

// GetCampaigns loads the campaigns with the given ids. Unknown ids are skipped.
func (s *SummaryStore) GetCampaigns(ctx context.Context, campaignIDs []string) ([]summaries.Campaign, error) {
	if len(campaignIDs) == 0 {
		return []summaries.Campaign{}, nil
	}
	var rows []campaignRow
	if err := s.db.WithContext(ctx).Where("id IN ?", campaignIDs).Order("created_at_ms DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCampaigns(rows), nil
}

// ListCampaigns returns a guild's campaigns, newest first.
func (s *SummaryStore) ListCampaigns(ctx context.Context, guildID string) ([]summaries.Campaign, error) {
	var rows []campaignRow
	if err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("created_at_ms DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCampaigns(rows), nil
}

func toCampaigns(rows []campaignRow) []summaries.Campaign {
	campaigns := make([]summaries.Campaign, 0, len(rows))
	for _, row := range rows {
		campaigns = append(campaigns, row.toCampaign())
	}
	return campaigns
}

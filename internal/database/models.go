package database

import (
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
)

// summaryRow is the persisted form of a session summary. Encrypted text is stored as base64 columns.
type summaryRow struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null"`
	GuildID         string `gorm:"column:guild_id;size:190;not null;index:idx_summaries_guild_start,priority:1"`
	CampaignID      string `gorm:"column:campaign_id;size:190;not null;default:'';index"`
	SessionNumber   int    `gorm:"column:session_number;not null;default:0"`
	SessionStartMs  int64  `gorm:"column:session_start_ms;not null;index:idx_summaries_guild_start,priority:2"`
	SessionEndMs    int64  `gorm:"column:session_end_ms;not null"`
	SummaryIV       string `gorm:"column:summary_iv;not null"`
	SummaryData     string `gorm:"column:summary_data;type:text;not null"`
	SummaryTag      string `gorm:"column:summary_tag;not null"`
	CliffNotesIV    string `gorm:"column:cliff_notes_iv;not null;default:''"`
	CliffNotesData  string `gorm:"column:cliff_notes_data;type:text;not null;default:''"`
	CliffNotesTag   string `gorm:"column:cliff_notes_tag;not null;default:''"`
	SearchableText  string `gorm:"column:searchable_text;type:text;not null;default:''"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

func (summaryRow) TableName() string {
	return "summaries"
}

type participantRow struct {
	SummaryID string `gorm:"column:summary_id;primaryKey;size:190;not null"`
	UserID    string `gorm:"column:user_id;primaryKey;size:190;not null;index"`
	Username  string `gorm:"column:username;size:190;not null"`
	IsDM      bool   `gorm:"column:is_dm;not null;default:false"`
	Position  int    `gorm:"column:position;not null"`
}

func (participantRow) TableName() string {
	return "summary_participants"
}

type tagRow struct {
	SummaryID string `gorm:"column:summary_id;primaryKey;size:190;not null"`
	Tag       string `gorm:"column:tag;primaryKey;size:190;not null;index"`
	Position  int    `gorm:"column:position;not null"`
}

func (tagRow) TableName() string {
	return "summary_tags"
}

type campaignRow struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null"`
	GuildID         string `gorm:"column:guild_id;size:190;not null;index"`
	Name            string `gorm:"column:name;size:190;not null"`
	Description     string `gorm:"column:description;type:text;not null;default:''"`
	DMUserID        string `gorm:"column:dm_user_id;size:190;not null;default:''"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
}

func (campaignRow) TableName() string {
	return "campaigns"
}

func newSummaryRow(summary summaries.Summary) summaryRow {
	body := summary.Summary.Encode()
	cliffNotes := summary.CliffNotes.Encode()
	return summaryRow{
		ID:              summary.ID,
		GuildID:         summary.GuildID,
		CampaignID:      summary.CampaignID,
		SessionNumber:   summary.SessionNumber,
		SessionStartMs:  summary.SessionStart.UnixMilli(),
		SessionEndMs:    summary.SessionEnd.UnixMilli(),
		SummaryIV:       body.IV,
		SummaryData:     body.EncryptedData,
		SummaryTag:      body.AuthTag,
		CliffNotesIV:    cliffNotes.IV,
		CliffNotesData:  cliffNotes.EncryptedData,
		CliffNotesTag:   cliffNotes.AuthTag,
		SearchableText:  summary.SearchableText,
		CreatedAtMillis: summary.CreatedAt.UnixMilli(),
		UpdatedAtMillis: summary.UpdatedAt.UnixMilli(),
	}
}

func (row summaryRow) toSummary(participants []participantRow, tags []tagRow) (summaries.Summary, error) {
	body, err := decodeColumns(row.SummaryIV, row.SummaryData, row.SummaryTag)
	if err != nil {
		return summaries.Summary{}, err
	}
	cliffNotes, err := decodeColumns(row.CliffNotesIV, row.CliffNotesData, row.CliffNotesTag)
	if err != nil {
		return summaries.Summary{}, err
	}
	summary := summaries.Summary{
		ID:             row.ID,
		GuildID:        row.GuildID,
		CampaignID:     row.CampaignID,
		SessionNumber:  row.SessionNumber,
		SessionStart:   time.UnixMilli(row.SessionStartMs).UTC(),
		SessionEnd:     time.UnixMilli(row.SessionEndMs).UTC(),
		Participants:   make([]summaries.Participant, 0, len(participants)),
		Tags:           make([]string, 0, len(tags)),
		Summary:        body,
		CliffNotes:     cliffNotes,
		SearchableText: row.SearchableText,
		CreatedAt:      time.UnixMilli(row.CreatedAtMillis).UTC(),
		UpdatedAt:      time.UnixMilli(row.UpdatedAtMillis).UTC(),
	}
	for _, participant := range participants {
		summary.Participants = append(summary.Participants, summaries.Participant{
			UserID:   participant.UserID,
			Username: participant.Username,
			IsDM:     participant.IsDM,
		})
	}
	for _, tag := range tags {
		summary.Tags = append(summary.Tags, tag.Tag)
	}
	return summary, nil
}

func decodeColumns(iv, data, tag string) (fieldcrypt.EncryptedField, error) {
	encoded := fieldcrypt.EncodedField{IV: iv, EncryptedData: data, AuthTag: tag}
	if encoded.IsZero() {
		return fieldcrypt.EncryptedField{}, nil
	}
	return encoded.Decode()
}

func newCampaignRow(campaign summaries.Campaign) campaignRow {
	return campaignRow{
		ID:              campaign.ID,
		GuildID:         campaign.GuildID,
		Name:            campaign.Name,
		Description:     campaign.Description,
		DMUserID:        campaign.DMUserID,
		CreatedAtMillis: campaign.CreatedAt.UnixMilli(),
	}
}

func (row campaignRow) toCampaign() summaries.Campaign {
	return summaries.Campaign{
		ID:          row.ID,
		GuildID:     row.GuildID,
		Name:        row.Name,
		Description: row.Description,
		DMUserID:    row.DMUserID,
		CreatedAt:   time.UnixMilli(row.CreatedAtMillis).UTC(),
	}
}

package mongostore

import (
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
)

type participantDocument struct {
	UserID   string `bson:"userId"`
	Username string `bson:"username"`
	IsDM     bool   `bson:"isDM"`
}

type summaryDocument struct {
	ID                  string                   `bson:"_id"`
	GuildID             string                   `bson:"guildId"`
	CampaignID          string                   `bson:"campaignId,omitempty"`
	SessionNumber       int                      `bson:"sessionNumber,omitempty"`
	SessionStart        time.Time                `bson:"sessionStart"`
	SessionEnd          time.Time                `bson:"sessionEnd"`
	Participants        []participantDocument    `bson:"participants"`
	Tags                []string                 `bson:"tags"`
	EncryptedSummary    fieldcrypt.EncodedField  `bson:"encryptedSummary"`
	EncryptedCliffNotes *fieldcrypt.EncodedField `bson:"encryptedCliffNotes,omitempty"`
	SearchableText      string                   `bson:"searchableText"`
	CreatedAt           time.Time                `bson:"createdAt"`
	UpdatedAt           time.Time                `bson:"updatedAt"`
}

type campaignDocument struct {
	ID          string    `bson:"_id"`
	GuildID     string    `bson:"guildId"`
	Name        string    `bson:"name"`
	Description string    `bson:"description,omitempty"`
	DMUserID    string    `bson:"dmUserId,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func newSummaryDocument(summary summaries.Summary) summaryDocument {
	document := summaryDocument{
		ID:               summary.ID,
		GuildID:          summary.GuildID,
		CampaignID:       summary.CampaignID,
		SessionNumber:    summary.SessionNumber,
		SessionStart:     summary.SessionStart.UTC(),
		SessionEnd:       summary.SessionEnd.UTC(),
		Participants:     make([]participantDocument, 0, len(summary.Participants)),
		Tags:             append([]string{}, summary.Tags...),
		EncryptedSummary: summary.Summary.Encode(),
		SearchableText:   summary.SearchableText,
		CreatedAt:        summary.CreatedAt.UTC(),
		UpdatedAt:        summary.UpdatedAt.UTC(),
	}
	for _, participant := range summary.Participants {
		document.Participants = append(document.Participants, participantDocument{
			UserID:   participant.UserID,
			Username: participant.Username,
			IsDM:     participant.IsDM,
		})
	}
	if !summary.CliffNotes.IsZero() {
		encoded := summary.CliffNotes.Encode()
		document.EncryptedCliffNotes = &encoded
	}
	return document
}

func (d summaryDocument) toSummary() (summaries.Summary, error) {
	body, err := d.EncryptedSummary.Decode()
	if err != nil {
		return summaries.Summary{}, err
	}
	summary := summaries.Summary{
		ID:             d.ID,
		GuildID:        d.GuildID,
		CampaignID:     d.CampaignID,
		SessionNumber:  d.SessionNumber,
		SessionStart:   d.SessionStart.UTC(),
		SessionEnd:     d.SessionEnd.UTC(),
		Participants:   make([]summaries.Participant, 0, len(d.Participants)),
		Tags:           append([]string{}, d.Tags...),
		Summary:        body,
		SearchableText: d.SearchableText,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	for _, participant := range d.Participants {
		summary.Participants = append(summary.Participants, summaries.Participant{
			UserID:   participant.UserID,
			Username: participant.Username,
			IsDM:     participant.IsDM,
		})
	}
	if d.EncryptedCliffNotes != nil && !d.EncryptedCliffNotes.IsZero() {
		summary.CliffNotes, err = d.EncryptedCliffNotes.Decode()
		if err != nil {
			return summaries.Summary{}, err
		}
	}
	return summary, nil
}

func newCampaignDocument(campaign summaries.Campaign) campaignDocument {
	return campaignDocument{
		ID:          campaign.ID,
		GuildID:     campaign.GuildID,
		Name:        campaign.Name,
		Description: campaign.Description,
		DMUserID:    campaign.DMUserID,
		CreatedAt:   campaign.CreatedAt.UTC(),
	}
}

func (d campaignDocument) toCampaign() summaries.Campaign {
	return summaries.Campaign{
		ID:          d.ID,
		GuildID:     d.GuildID,
		Name:        d.Name,
		Description: d.Description,
		DMUserID:    d.DMUserID,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/config"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ingestFile is the plaintext export consumed by the ingest command.
// Sessions reference campaigns either by an existing campaignId or by the ref of a campaign in the same file.
type ingestFile struct {
	Campaigns []ingestCampaign `json:"campaigns"`
	Sessions  []ingestSession  `json:"sessions"`
}

type ingestCampaign struct {
	Ref         string `json:"ref"`
	GuildID     string `json:"guildId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DMUserID    string `json:"dmUserId"`
}

type ingestParticipant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsDM     bool   `json:"isDM"`
}

type ingestSession struct {
	GuildID       string              `json:"guildId"`
	CampaignID    string              `json:"campaignId"`
	CampaignRef   string              `json:"campaignRef"`
	SessionNumber int                 `json:"sessionNumber"`
	SessionStart  time.Time           `json:"sessionStart"`
	SessionEnd    time.Time           `json:"sessionEnd"`
	Participants  []ingestParticipant `json:"participants"`
	Tags          []string            `json:"tags"`
	Summary       string              `json:"summary"`
	CliffNotes    string              `json:"cliffNotes"`
}

// summaryCreator is the subset of the summary service used during ingestion.
type summaryCreator interface {
	CreateCampaign(ctx context.Context, input summaries.NewCampaign) (summaries.Campaign, error)
	CreateSummary(ctx context.Context, input summaries.NewSummary) (summaries.Summary, error)
}

type ingestResult struct {
	Campaigns int
	Summaries int
}

func newIngestCommand() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Encrypt and store plaintext session summaries from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			file, err := os.Open(filePath)
			if err != nil {
				return err
			}
			defer file.Close()

			payload, err := decodeIngestFile(file)
			if err != nil {
				return err
			}

			app, err := openApplication(cmd.Context(), appConfig, logger)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := ingest(cmd.Context(), app.service, payload)
			if err != nil {
				return err
			}
			logger.Info("ingest complete",
				zap.String("file", filePath),
				zap.Int("campaigns", result.Campaigns),
				zap.Int("summaries", result.Summaries),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d campaigns and %d summaries\n", result.Campaigns, result.Summaries)
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "Path to the JSON export")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	return cmd
}

func decodeIngestFile(reader io.Reader) (ingestFile, error) {
	var payload ingestFile
	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return ingestFile{}, fmt.Errorf("ingest: decode file: %w", err)
	}
	return payload, nil
}

// ingest creates campaigns first so sessions can resolve their refs. It stops at the first failure.
func ingest(ctx context.Context, creator summaryCreator, payload ingestFile) (ingestResult, error) {
	var result ingestResult
	campaignIDs := make(map[string]string, len(payload.Campaigns))
	for index, campaign := range payload.Campaigns {
		ref := strings.TrimSpace(campaign.Ref)
		if ref != "" {
			if _, duplicate := campaignIDs[ref]; duplicate {
				return result, fmt.Errorf("ingest: campaign %d: duplicate ref %q", index, ref)
			}
		}
		created, err := creator.CreateCampaign(ctx, summaries.NewCampaign{
			GuildID:     campaign.GuildID,
			Name:        campaign.Name,
			Description: campaign.Description,
			DMUserID:    campaign.DMUserID,
		})
		if err != nil {
			return result, fmt.Errorf("ingest: campaign %d: %w", index, err)
		}
		if ref != "" {
			campaignIDs[ref] = created.ID
		}
		result.Campaigns++
	}

	for index, session := range payload.Sessions {
		campaignID := strings.TrimSpace(session.CampaignID)
		if ref := strings.TrimSpace(session.CampaignRef); ref != "" {
			resolved, ok := campaignIDs[ref]
			if !ok {
				return result, fmt.Errorf("ingest: session %d: unknown campaign ref %q", index, ref)
			}
			campaignID = resolved
		}
		participants := make([]summaries.Participant, 0, len(session.Participants))
		for _, participant := range session.Participants {
			participants = append(participants, summaries.Participant{
				UserID:   participant.UserID,
				Username: participant.Username,
				IsDM:     participant.IsDM,
			})
		}
		if _, err := creator.CreateSummary(ctx, summaries.NewSummary{
			GuildID:        session.GuildID,
			CampaignID:     campaignID,
			SessionNumber:  session.SessionNumber,
			SessionStart:   session.SessionStart,
			SessionEnd:     session.SessionEnd,
			Participants:   participants,
			Tags:           session.Tags,
			SummaryText:    session.Summary,
			CliffNotesText: session.CliffNotes,
		}); err != nil {
			return result, fmt.Errorf("ingest: session %d: %w", index, err)
		}
		result.Summaries++
	}
	return result, nil
}

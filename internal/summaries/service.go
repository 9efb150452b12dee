package summaries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	errMissingStore         = errors.New("record store is required")
	errMissingCipher        = errors.New("field cipher is required")
	errMissingIDProvider    = errors.New("id provider is required")
	errMissingTextGenerator = errors.New("text generator is not configured")
	errEmptyGeneratedText   = errors.New("text generator returned empty text")
	noOpLogger              = zap.NewNop()
)

const (
	opServiceNew          = "summaries.service.new"
	opSearch              = "summaries.search"
	opCampaignStats       = "summaries.campaign_stats"
	opRegenerateCliff     = "summaries.regenerate_cliff_notes"
	opCreateSummary       = "summaries.create_summary"
	opCreateCampaign      = "summaries.create_campaign"
	opListCampaigns       = "summaries.list_campaigns"
	opVerifyEncryption    = "summaries.verify_encryption"
	selfTestLines         = 1000
	reasonMissingStore    = "missing_store"
	reasonQueryFailed     = "query_failed"
	reasonCountFailed     = "count_failed"
	reasonDecryptFailed   = "decrypt_failed"
	reasonEncryptFailed   = "encrypt_failed"
	reasonNotFound        = "not_found"
	reasonLookupFailed    = "lookup_failed"
	reasonGenerateFailed  = "generate_failed"
	reasonSaveFailed      = "save_failed"
	reasonInvalidInput    = "invalid_input"
	reasonIDGeneration    = "id_generation_failed"
	reasonMissingGuildID  = "guild_id_required"
	reasonMissingID       = "id_required"
	reasonMissingCampaign = "campaign_not_found"
)

// FieldCipher encrypts and decrypts individual text fields.
type FieldCipher interface {
	Encrypt(plaintext []byte) (fieldcrypt.EncryptedField, error)
	Decrypt(field fieldcrypt.EncryptedField) ([]byte, error)
}

// TextGenerator produces cliff notes from a plaintext summary and optional free-form rules.
type TextGenerator interface {
	GenerateText(ctx context.Context, plaintext string, rules string) (string, error)
}

// IDProvider issues identifiers for new records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig wires the summary service collaborators. TextGenerator may be nil when
// cliff-note regeneration is not configured.
type ServiceConfig struct {
	Store         RecordStore
	Cipher        FieldCipher
	TextGenerator TextGenerator
	IDProvider    IDProvider
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Service searches, aggregates and updates encrypted session summaries.
type Service struct {
	store      RecordStore
	cipher     FieldCipher
	generator  TextGenerator
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, reasonMissingStore, KindInternal, errMissingStore)
	}
	if cfg.Cipher == nil {
		return nil, newServiceError(opServiceNew, "missing_cipher", KindInternal, errMissingCipher)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:      cfg.Store,
		cipher:     cfg.Cipher,
		generator:  cfg.TextGenerator,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// DecryptedSummary is a summary prepared for output, with text fields in plaintext.
type DecryptedSummary struct {
	ID             string
	GuildID        string
	CampaignID     string
	Campaign       *Campaign
	SessionNumber  int
	SessionStart   time.Time
	SessionEnd     time.Time
	Participants   []Participant
	Tags           []string
	SummaryText    string
	CliffNotesText string
}

// SearchResult is one page of decrypted summaries with the campaigns they reference.
type SearchResult struct {
	Summaries  []DecryptedSummary
	Campaigns  []Campaign
	Pagination Pagination
}

// Search runs a filtered, paginated lookup and decrypts the returned page.
// The count runs alongside the page query, so Total may be slightly stale under concurrent writes.
func (s *Service) Search(ctx context.Context, request SearchRequest) (SearchResult, error) {
	if s == nil || s.store == nil {
		return SearchResult{}, newServiceError(opSearch, reasonMissingStore, KindInternal, errMissingStore)
	}
	query, err := BuildQuery(request)
	if err != nil {
		return SearchResult{}, err
	}

	var (
		page  []Summary
		total int64
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		found, findErr := s.store.FindSummaries(groupCtx, query)
		if findErr != nil {
			return newServiceError(opSearch, reasonQueryFailed, KindInternal, findErr)
		}
		page = found
		return nil
	})
	group.Go(func() error {
		count, countErr := s.store.CountSummaries(groupCtx, query)
		if countErr != nil {
			return newServiceError(opSearch, reasonCountFailed, KindInternal, countErr)
		}
		total = count
		return nil
	})
	if err := group.Wait(); err != nil {
		s.logError(opSearch, "store_failed", err, zap.String("guild_id", query.GuildID))
		return SearchResult{}, err
	}

	campaigns, err := s.referencedCampaigns(ctx, page)
	if err != nil {
		s.logError(opSearch, reasonLookupFailed, err, zap.String("guild_id", query.GuildID))
		return SearchResult{}, newServiceError(opSearch, reasonLookupFailed, KindInternal, err)
	}
	campaignsByID := make(map[string]*Campaign, len(campaigns))
	for index := range campaigns {
		campaignsByID[campaigns[index].ID] = &campaigns[index]
	}

	decrypted := make([]DecryptedSummary, 0, len(page))
	for _, record := range page {
		output, err := s.decryptSummary(record)
		if err != nil {
			s.logError(opSearch, reasonDecryptFailed, err, zap.String("summary_id", record.ID))
			return SearchResult{}, newServiceError(opSearch, reasonDecryptFailed, KindDecryption, err)
		}
		output.Campaign = campaignsByID[record.CampaignID]
		decrypted = append(decrypted, output)
	}

	return SearchResult{
		Summaries:  decrypted,
		Campaigns:  campaigns,
		Pagination: query.NewPagination(total),
	}, nil
}

func (s *Service) referencedCampaigns(ctx context.Context, page []Summary) ([]Campaign, error) {
	ids := make([]string, 0, len(page))
	seen := make(map[string]struct{}, len(page))
	for _, record := range page {
		if record.CampaignID == "" {
			continue
		}
		if _, ok := seen[record.CampaignID]; ok {
			continue
		}
		seen[record.CampaignID] = struct{}{}
		ids = append(ids, record.CampaignID)
	}
	if len(ids) == 0 {
		return []Campaign{}, nil
	}
	return s.store.GetCampaigns(ctx, ids)
}

func (s *Service) decryptSummary(record Summary) (DecryptedSummary, error) {
	summaryText, err := s.decryptText(record.Summary)
	if err != nil {
		return DecryptedSummary{}, err
	}
	cliffNotesText, err := s.decryptText(record.CliffNotes)
	if err != nil {
		return DecryptedSummary{}, err
	}
	return DecryptedSummary{
		ID:             record.ID,
		GuildID:        record.GuildID,
		CampaignID:     record.CampaignID,
		SessionNumber:  record.SessionNumber,
		SessionStart:   record.SessionStart,
		SessionEnd:     record.SessionEnd,
		Participants:   record.Participants,
		Tags:           record.Tags,
		SummaryText:    summaryText,
		CliffNotesText: cliffNotesText,
	}, nil
}

// decryptText treats a field that was never written as empty text.
func (s *Service) decryptText(field fieldcrypt.EncryptedField) (string, error) {
	if field.IsZero() {
		return "", nil
	}
	plaintext, err := s.cipher.Decrypt(field)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// CampaignStats aggregates every summary recorded for a campaign.
func (s *Service) CampaignStats(ctx context.Context, campaignID string) (CampaignStats, error) {
	if s == nil || s.store == nil {
		return CampaignStats{}, newServiceError(opCampaignStats, reasonMissingStore, KindInternal, errMissingStore)
	}
	normalized, err := normalizeIdentifier(campaignID, ErrInvalidCampaignID)
	if err != nil {
		return CampaignStats{}, newServiceError(opCampaignStats, reasonMissingID, KindValidation, err)
	}

	records, err := s.store.ListCampaignSummaries(ctx, normalized)
	if err != nil {
		s.logError(opCampaignStats, reasonQueryFailed, err, zap.String("campaign_id", normalized))
		return CampaignStats{}, newServiceError(opCampaignStats, reasonQueryFailed, KindInternal, err)
	}
	if len(records) == 0 {
		return CampaignStats{}, newServiceError(opCampaignStats, reasonNotFound, KindNotFound, ErrNotFound)
	}
	return AggregateCampaignStats(records)
}

// RegenerateCliffNotes rebuilds a summary's cliff notes and stores them under a fresh nonce.
// The summary text itself is left untouched.
func (s *Service) RegenerateCliffNotes(ctx context.Context, summaryID string, rules string) (string, error) {
	if s == nil || s.store == nil {
		return "", newServiceError(opRegenerateCliff, reasonMissingStore, KindInternal, errMissingStore)
	}
	normalized, err := normalizeIdentifier(summaryID, ErrInvalidSummaryID)
	if err != nil {
		return "", newServiceError(opRegenerateCliff, reasonMissingID, KindValidation, err)
	}

	record, err := s.store.GetSummary(ctx, normalized)
	if errors.Is(err, ErrNotFound) {
		return "", newServiceError(opRegenerateCliff, reasonNotFound, KindNotFound, err)
	}
	if err != nil {
		s.logError(opRegenerateCliff, reasonLookupFailed, err, zap.String("summary_id", normalized))
		return "", newServiceError(opRegenerateCliff, reasonLookupFailed, KindInternal, err)
	}

	plaintext, err := s.cipher.Decrypt(record.Summary)
	if err != nil {
		s.logError(opRegenerateCliff, reasonDecryptFailed, err, zap.String("summary_id", normalized))
		return "", newServiceError(opRegenerateCliff, reasonDecryptFailed, KindDecryption, err)
	}
	if s.generator == nil {
		s.logError(opRegenerateCliff, "generator_unavailable", errMissingTextGenerator, zap.String("summary_id", normalized))
		return "", newServiceError(opRegenerateCliff, "generator_unavailable", KindUpstream, fmt.Errorf("%w: %v", ErrUpstream, errMissingTextGenerator))
	}

	cliffNotes, err := s.generator.GenerateText(ctx, string(plaintext), strings.TrimSpace(rules))
	if err == nil && strings.TrimSpace(cliffNotes) == "" {
		err = errEmptyGeneratedText
	}
	if err != nil {
		s.logError(opRegenerateCliff, reasonGenerateFailed, err, zap.String("summary_id", normalized))
		return "", newServiceError(opRegenerateCliff, reasonGenerateFailed, KindUpstream, fmt.Errorf("%w: %v", ErrUpstream, err))
	}

	encrypted, err := s.cipher.Encrypt([]byte(cliffNotes))
	if err != nil {
		s.logError(opRegenerateCliff, reasonEncryptFailed, err, zap.String("summary_id", normalized))
		return "", newServiceError(opRegenerateCliff, reasonEncryptFailed, KindInternal, err)
	}
	if err := s.store.UpdateCliffNotes(ctx, normalized, encrypted, s.clock().UTC()); err != nil {
		kind := KindInternal
		if errors.Is(err, ErrNotFound) {
			kind = KindNotFound
		}
		s.logError(opRegenerateCliff, reasonSaveFailed, err, zap.String("summary_id", normalized))
		return "", newServiceError(opRegenerateCliff, reasonSaveFailed, kind, err)
	}

	s.logger.Info("cliff notes regenerated", zap.String("summary_id", normalized))
	return cliffNotes, nil
}

// NewSummary is the plaintext input for ingesting one processed session.
type NewSummary struct {
	GuildID        string
	CampaignID     string
	SessionNumber  int
	SessionStart   time.Time
	SessionEnd     time.Time
	Participants   []Participant
	Tags           []string
	SummaryText    string
	CliffNotesText string
}

// CreateSummary validates, encrypts and stores a processed session.
// Summary and cliff notes are encrypted independently, each with its own nonce.
func (s *Service) CreateSummary(ctx context.Context, input NewSummary) (Summary, error) {
	if s == nil || s.store == nil {
		return Summary{}, newServiceError(opCreateSummary, reasonMissingStore, KindInternal, errMissingStore)
	}
	if strings.TrimSpace(input.SummaryText) == "" {
		return Summary{}, newServiceError(opCreateSummary, "summary_text_required", KindValidation, ErrValidation)
	}

	summaryID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateSummary, reasonIDGeneration, err)
		return Summary{}, newServiceError(opCreateSummary, reasonIDGeneration, KindInternal, err)
	}
	now := s.clock().UTC()
	record := Summary{
		ID:            summaryID,
		GuildID:       strings.TrimSpace(input.GuildID),
		CampaignID:    strings.TrimSpace(input.CampaignID),
		SessionNumber: input.SessionNumber,
		SessionStart:  input.SessionStart.UTC(),
		SessionEnd:    input.SessionEnd.UTC(),
		Participants:  input.Participants,
		Tags:          NormalizeTags(input.Tags),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := record.Validate(); err != nil {
		return Summary{}, newServiceError(opCreateSummary, reasonInvalidInput, KindValidation, err)
	}

	campaignName := ""
	if record.CampaignID != "" {
		campaign, err := s.store.GetCampaign(ctx, record.CampaignID)
		if errors.Is(err, ErrNotFound) {
			return Summary{}, newServiceError(opCreateSummary, reasonMissingCampaign, KindValidation, err)
		}
		if err != nil {
			s.logError(opCreateSummary, reasonLookupFailed, err, zap.String("campaign_id", record.CampaignID))
			return Summary{}, newServiceError(opCreateSummary, reasonLookupFailed, KindInternal, err)
		}
		if campaign.GuildID != record.GuildID {
			return Summary{}, newServiceError(opCreateSummary, reasonMissingCampaign, KindValidation, ErrInvalidCampaignID)
		}
		campaignName = campaign.Name
	}

	record.Summary, err = s.cipher.Encrypt([]byte(input.SummaryText))
	if err != nil {
		s.logError(opCreateSummary, reasonEncryptFailed, err)
		return Summary{}, newServiceError(opCreateSummary, reasonEncryptFailed, KindInternal, err)
	}
	if input.CliffNotesText != "" {
		record.CliffNotes, err = s.cipher.Encrypt([]byte(input.CliffNotesText))
		if err != nil {
			s.logError(opCreateSummary, reasonEncryptFailed, err)
			return Summary{}, newServiceError(opCreateSummary, reasonEncryptFailed, KindInternal, err)
		}
	}
	record.SearchableText = BuildSearchableText(record, campaignName)

	if err := s.store.CreateSummary(ctx, record); err != nil {
		s.logError(opCreateSummary, reasonSaveFailed, err, zap.String("summary_id", record.ID))
		return Summary{}, newServiceError(opCreateSummary, reasonSaveFailed, KindInternal, err)
	}
	return record, nil
}

// NewCampaign is the input for creating a campaign.
type NewCampaign struct {
	GuildID     string
	Name        string
	Description string
	DMUserID    string
}

// CreateCampaign stores a new campaign for a guild.
func (s *Service) CreateCampaign(ctx context.Context, input NewCampaign) (Campaign, error) {
	if s == nil || s.store == nil {
		return Campaign{}, newServiceError(opCreateCampaign, reasonMissingStore, KindInternal, errMissingStore)
	}
	guildID, err := normalizeIdentifier(input.GuildID, ErrInvalidGuildID)
	if err != nil {
		return Campaign{}, newServiceError(opCreateCampaign, reasonMissingGuildID, KindValidation, err)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Campaign{}, newServiceError(opCreateCampaign, "name_required", KindValidation, ErrInvalidCampaignName)
	}
	campaignID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateCampaign, reasonIDGeneration, err)
		return Campaign{}, newServiceError(opCreateCampaign, reasonIDGeneration, KindInternal, err)
	}
	campaign := Campaign{
		ID:          campaignID,
		GuildID:     guildID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		DMUserID:    strings.TrimSpace(input.DMUserID),
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.store.CreateCampaign(ctx, campaign); err != nil {
		s.logError(opCreateCampaign, reasonSaveFailed, err, zap.String("guild_id", guildID))
		return Campaign{}, newServiceError(opCreateCampaign, reasonSaveFailed, KindInternal, err)
	}
	return campaign, nil
}

// ListCampaigns returns a guild's campaigns, newest first.
func (s *Service) ListCampaigns(ctx context.Context, guildID string) ([]Campaign, error) {
	if s == nil || s.store == nil {
		return nil, newServiceError(opListCampaigns, reasonMissingStore, KindInternal, errMissingStore)
	}
	normalized, err := normalizeIdentifier(guildID, ErrInvalidGuildID)
	if err != nil {
		return nil, newServiceError(opListCampaigns, reasonMissingGuildID, KindValidation, err)
	}
	campaigns, err := s.store.ListCampaigns(ctx, normalized)
	if err != nil {
		s.logError(opListCampaigns, reasonQueryFailed, err, zap.String("guild_id", normalized))
		return nil, newServiceError(opListCampaigns, reasonQueryFailed, KindInternal, err)
	}
	return campaigns, nil
}

// VerifyEncryption round-trips a multi-line probe through the configured cipher.
func (s *Service) VerifyEncryption() bool {
	if s == nil || s.cipher == nil {
		return false
	}
	var builder strings.Builder
	for line := 0; line < selfTestLines; line++ {
		fmt.Fprintf(&builder, "Line %d: special characters !@#$%%^&*(), decimals 3.14, quotes \"Hello\", **markdown**.\n\n", line)
	}
	probe := builder.String()
	field, err := s.cipher.Encrypt([]byte(probe))
	if err != nil {
		s.logError(opVerifyEncryption, reasonEncryptFailed, err)
		return false
	}
	decrypted, err := s.cipher.Decrypt(field)
	if err != nil {
		s.logError(opVerifyEncryption, reasonDecryptFailed, err)
		return false
	}
	return string(decrypted) == probe
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("summaries service error", attrs...)
}

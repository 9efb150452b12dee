package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/guilds"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type participantPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsDM     bool   `json:"isDM"`
}

type campaignPayload struct {
	ID          string    `json:"id"`
	GuildID     string    `json:"guildId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DMUserID    string    `json:"dmUserId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type summaryPayload struct {
	ID            string               `json:"id"`
	GuildID       string               `json:"guildId"`
	CampaignID    string               `json:"campaignId,omitempty"`
	Campaign      *campaignPayload     `json:"campaign,omitempty"`
	SessionNumber int                  `json:"sessionNumber,omitempty"`
	SessionStart  time.Time            `json:"sessionStart"`
	SessionEnd    time.Time            `json:"sessionEnd"`
	Participants  []participantPayload `json:"participants"`
	Tags          []string             `json:"tags"`
	Summary       string               `json:"summary"`
	CliffNotes    string               `json:"cliffNotes"`
}

type paginationPayload struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type searchResponsePayload struct {
	Summaries  []summaryPayload  `json:"summaries"`
	Campaigns  []campaignPayload `json:"campaigns"`
	Pagination paginationPayload `json:"pagination"`
}

type participantStatsPayload struct {
	Name              string  `json:"name"`
	SessionsAttended  int     `json:"sessionsAttended"`
	ParticipationRate float64 `json:"participationRate"`
	IsDM              bool    `json:"isDM"`
}

type monthlyCountPayload struct {
	Month    string `json:"month"`
	Sessions int    `json:"sessions"`
}

type statsResponsePayload struct {
	TotalSessions        int                       `json:"totalSessions"`
	AverageSessionLength float64                   `json:"averageSessionLength"`
	TotalPlayTime        float64                   `json:"totalPlayTime"`
	ParticipantStats     []participantStatsPayload `json:"participantStats"`
	MonthlySessionCounts []monthlyCountPayload     `json:"monthlySessionCounts"`
}

type regenerateRequestPayload struct {
	SummaryID string `json:"summaryId"`
	Rules     string `json:"rules"`
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	request := summaries.SearchRequest{
		GuildID:      c.Query("guildId"),
		CampaignID:   c.Query("campaignId"),
		Search:       c.Query("search"),
		StartDate:    c.Query("startDate"),
		EndDate:      c.Query("endDate"),
		Participants: summaries.SplitList(c.Query("participants")),
		Tags:         summaries.SplitList(c.Query("tags")),
		Page:         parsePositiveInt(c.Query("page")),
		Limit:        parsePositiveInt(c.Query("limit")),
	}

	result, err := h.summaries.Search(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, "search_failed", err)
		return
	}

	response := searchResponsePayload{
		Summaries: make([]summaryPayload, 0, len(result.Summaries)),
		Campaigns: make([]campaignPayload, 0, len(result.Campaigns)),
		Pagination: paginationPayload{
			Total:      result.Pagination.Total,
			Page:       result.Pagination.Page,
			Limit:      result.Pagination.Limit,
			TotalPages: result.Pagination.TotalPages,
		},
	}
	for _, summary := range result.Summaries {
		response.Summaries = append(response.Summaries, newSummaryPayload(summary))
	}
	for _, campaign := range result.Campaigns {
		response.Campaigns = append(response.Campaigns, newCampaignPayload(campaign))
	}
	c.JSON(http.StatusOK, response)
}

// parsePositiveInt returns 0 for absent or malformed values so pagination defaults apply.
func parsePositiveInt(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func newSummaryPayload(summary summaries.DecryptedSummary) summaryPayload {
	payload := summaryPayload{
		ID:            summary.ID,
		GuildID:       summary.GuildID,
		CampaignID:    summary.CampaignID,
		SessionNumber: summary.SessionNumber,
		SessionStart:  summary.SessionStart,
		SessionEnd:    summary.SessionEnd,
		Participants:  make([]participantPayload, 0, len(summary.Participants)),
		Tags:          append([]string{}, summary.Tags...),
		Summary:       summary.SummaryText,
		CliffNotes:    summary.CliffNotesText,
	}
	for _, participant := range summary.Participants {
		payload.Participants = append(payload.Participants, participantPayload{
			UserID:   participant.UserID,
			Username: participant.Username,
			IsDM:     participant.IsDM,
		})
	}
	if summary.Campaign != nil {
		campaign := newCampaignPayload(*summary.Campaign)
		payload.Campaign = &campaign
	}
	return payload
}

func newCampaignPayload(campaign summaries.Campaign) campaignPayload {
	return campaignPayload{
		ID:          campaign.ID,
		GuildID:     campaign.GuildID,
		Name:        campaign.Name,
		Description: campaign.Description,
		DMUserID:    campaign.DMUserID,
		CreatedAt:   campaign.CreatedAt,
	}
}

func (h *httpHandler) handleListCampaigns(c *gin.Context) {
	campaigns, err := h.summaries.ListCampaigns(c.Request.Context(), c.Query("guildId"))
	if err != nil {
		h.respondError(c, "list_campaigns_failed", err)
		return
	}
	payload := make([]campaignPayload, 0, len(campaigns))
	for _, campaign := range campaigns {
		payload = append(payload, newCampaignPayload(campaign))
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": payload})
}

func (h *httpHandler) handleCampaignStats(c *gin.Context) {
	stats, err := h.summaries.CampaignStats(c.Request.Context(), c.Param("campaignId"))
	if err != nil {
		h.respondError(c, "campaign_stats_failed", err)
		return
	}

	response := statsResponsePayload{
		TotalSessions:        stats.TotalSessions,
		AverageSessionLength: stats.AverageSessionLength,
		TotalPlayTime:        stats.TotalPlayTime,
		ParticipantStats:     make([]participantStatsPayload, 0, len(stats.Participants)),
		MonthlySessionCounts: make([]monthlyCountPayload, 0, len(stats.MonthlySessionCounts)),
	}
	for _, participant := range stats.Participants {
		response.ParticipantStats = append(response.ParticipantStats, participantStatsPayload{
			Name:              participant.Name,
			SessionsAttended:  participant.SessionsAttended,
			ParticipationRate: participant.ParticipationRate,
			IsDM:              participant.IsDM,
		})
	}
	for _, month := range stats.MonthlySessionCounts {
		response.MonthlySessionCounts = append(response.MonthlySessionCounts, monthlyCountPayload{
			Month:    month.Month.Label(),
			Sessions: month.Sessions,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleRegenerate(c *gin.Context) {
	var request regenerateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if strings.TrimSpace(request.SummaryID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "summary_id_required"})
		return
	}

	cliffNotes, err := h.summaries.RegenerateCliffNotes(c.Request.Context(), request.SummaryID, request.Rules)
	if err != nil {
		h.respondError(c, "regenerate_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cliffNotes": cliffNotes})
}

func (h *httpHandler) handleGuilds(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	allowed, retryAfter := h.guildLimiter.Allow(claims.Subject)
	if !allowed {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}

	fetched, err := h.guilds.FetchGuilds(c.Request.Context(), claims.ProviderAccessToken)
	switch {
	case errors.Is(err, guilds.ErrMissingAccessToken), errors.Is(err, guilds.ErrUnauthorized):
		h.logger.Info("guild lookup rejected", zap.String("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "provider_unauthorized"})
		return
	case err != nil:
		h.logger.Error("guild lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "guilds_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"guilds": fetched})
}

func (h *httpHandler) handleEncryptionSelfTest(c *gin.Context) {
	success := h.summaries.VerifyEncryption()
	if !success {
		h.logger.Error("encryption self test failed")
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}

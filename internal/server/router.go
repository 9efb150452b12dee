package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/guilds"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionClaimsContextKey = "scribe_session_claims"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingSummaryService   = errors.New("summary service dependency required")
	errMissingGuildFetcher     = errors.New("guild fetcher dependency required")
	errMissingRateLimiter      = errors.New("rate limiter dependency required")
)

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// SummaryService is the summary and campaign surface exposed over HTTP.
type SummaryService interface {
	Search(ctx context.Context, request summaries.SearchRequest) (summaries.SearchResult, error)
	CampaignStats(ctx context.Context, campaignID string) (summaries.CampaignStats, error)
	RegenerateCliffNotes(ctx context.Context, summaryID string, rules string) (string, error)
	ListCampaigns(ctx context.Context, guildID string) ([]summaries.Campaign, error)
	VerifyEncryption() bool
}

// GuildFetcher lists the guilds visible to a provider access token.
type GuildFetcher interface {
	FetchGuilds(ctx context.Context, accessToken string) ([]guilds.Guild, error)
}

// RateLimiter admits or rejects a request for a caller key.
type RateLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// Dependencies wires the HTTP handler collaborators.
type Dependencies struct {
	SessionValidator SessionValidator
	SummaryService   SummaryService
	GuildFetcher     GuildFetcher
	GuildRateLimiter RateLimiter
	AllowedOrigins   []string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router serving the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.SummaryService == nil {
		return nil, errMissingSummaryService
	}
	if deps.GuildFetcher == nil {
		return nil, errMissingGuildFetcher
	}
	if deps.GuildRateLimiter == nil {
		return nil, errMissingRateLimiter
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:     deps.SessionValidator,
		summaries:    deps.SummaryService,
		guilds:       deps.GuildFetcher,
		guildLimiter: deps.GuildRateLimiter,
		logger:       logger,
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.Use(handler.authorizeRequest)
	api.GET("/summaries/search", handler.handleSearch)
	api.POST("/summaries/regenerate", handler.handleRegenerate)
	api.GET("/campaigns", handler.handleListCampaigns)
	api.GET("/campaigns/:campaignId/stats", handler.handleCampaignStats)
	api.GET("/guilds", handler.handleGuilds)
	api.GET("/encryption/selftest", handler.handleEncryptionSelfTest)

	return router, nil
}

// corsMiddleware allows credentialed requests from the configured origins, or from any origin when none are set.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		config.AllowOrigins = allowedOrigins
	} else {
		config.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions     SessionValidator
	summaries    SummaryService
	guilds       GuildFetcher
	guildLimiter RateLimiter
	logger       *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
			h.logger.Debug("session cookie missing", zap.String("path", c.FullPath()))
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(sessionClaimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusForKind maps a failure kind to its HTTP status.
func statusForKind(kind summaries.Kind) int {
	switch kind {
	case summaries.KindValidation:
		return http.StatusBadRequest
	case summaries.KindAuth:
		return http.StatusUnauthorized
	case summaries.KindNotFound:
		return http.StatusNotFound
	case summaries.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the stable error code for err. Causes stay in the logs.
func (h *httpHandler) respondError(c *gin.Context, fallbackCode string, err error) {
	kind := summaries.KindOf(err)
	status := statusForKind(kind)
	code := summaries.CodeOf(err)
	if code == "" {
		code = fallbackCode
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": code})
}

// Package mongostore persists summaries and campaigns in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	summariesCollection = "summaries"
	campaignsCollection = "campaigns"
	searchTextIndexName = "summaries_searchable_text"
)

var (
	errMissingURI      = errors.New("mongo uri is required")
	errMissingDatabase = errors.New("mongo database name is required")
)

// Store implements summaries.RecordStore on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var _ summaries.RecordStore = (*Store)(nil)

// Open connects to MongoDB, verifies the connection and ensures the collection indexes.
func Open(ctx context.Context, uri string, database string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errMissingURI
	}
	if strings.TrimSpace(database) == "" {
		return nil, errMissingDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{ObjectIDAsHexString: true})
	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &Store{client: client, db: client.Database(database), logger: logger}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("mongo store initialized", zap.String("database", database))
	return store, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) summaryCollection() *mongo.Collection { return s.db.Collection(summariesCollection) }
func (s *Store) campaignCollection() *mongo.Collection { return s.db.Collection(campaignsCollection) }

func (s *Store) ensureIndexes(ctx context.Context) error {
	collections := map[string][]mongo.IndexModel{
		summariesCollection: {
			{Keys: bson.D{{Key: "guildId", Value: 1}, {Key: "sessionStart", Value: -1}}},
			{Keys: bson.D{{Key: "campaignId", Value: 1}, {Key: "sessionStart", Value: 1}}},
			{Keys: bson.D{{Key: "participants.userId", Value: 1}}},
			{Keys: bson.D{{Key: "tags", Value: 1}}},
			{
				Keys:    bson.D{{Key: "searchableText", Value: "text"}},
				Options: options.Index().SetName(searchTextIndexName),
			},
		},
		campaignsCollection: {
			{Keys: bson.D{{Key: "guildId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for name, indexes := range collections {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// matchID matches an id stored either as a string or, for 24-character hex ids, as an ObjectID.
// Records written by earlier deployments use ObjectIDs for _id and campaignId.
func matchID(id string) any {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return id
	}
	return bson.M{"$in": bson.A{id, objectID}}
}

func idCandidates(ids []string) bson.A {
	candidates := make(bson.A, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, id)
		if objectID, err := bson.ObjectIDFromHex(id); err == nil {
			candidates = append(candidates, objectID)
		}
	}
	return candidates
}

// buildFilter translates a summaries.Query into a MongoDB filter document.
// Text search uses the text index, so a document matches when it contains any term.
func buildFilter(q summaries.Query) bson.M {
	filter := bson.M{"guildId": q.GuildID}
	if q.CampaignID != "" {
		filter["campaignId"] = matchID(q.CampaignID)
	}
	if q.SessionStartFrom != nil || q.SessionStartTo != nil {
		window := bson.M{}
		if q.SessionStartFrom != nil {
			window["$gte"] = q.SessionStartFrom.UTC()
		}
		if q.SessionStartTo != nil {
			window["$lte"] = q.SessionStartTo.UTC()
		}
		filter["sessionStart"] = window
	}
	if len(q.ParticipantIDs) > 0 {
		filter["participants.userId"] = bson.M{"$in": q.ParticipantIDs}
	}
	if len(q.Tags) > 0 {
		filter["tags"] = bson.M{"$all": q.Tags}
	}
	if terms := q.SearchTerms(); len(terms) > 0 {
		filter["$text"] = bson.M{"$search": strings.Join(terms, " ")}
	}
	return filter
}

// FindSummaries returns one page of matching summaries, newest session first.
func (s *Store) FindSummaries(ctx context.Context, q summaries.Query) ([]summaries.Summary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "sessionStart", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(q.Offset)).
		SetLimit(int64(q.Limit))
	cursor, err := s.summaryCollection().Find(ctx, buildFilter(q), opts)
	if err != nil {
		return nil, err
	}
	return decodeSummaries(ctx, cursor)
}

// CountSummaries counts every summary matching q.
func (s *Store) CountSummaries(ctx context.Context, q summaries.Query) (int64, error) {
	return s.summaryCollection().CountDocuments(ctx, buildFilter(q))
}

// GetSummary loads one summary by id.
func (s *Store) GetSummary(ctx context.Context, summaryID string) (summaries.Summary, error) {
	var document summaryDocument
	err := s.summaryCollection().FindOne(ctx, bson.M{"_id": matchID(summaryID)}).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return summaries.Summary{}, fmt.Errorf("%w: summary %s", summaries.ErrNotFound, summaryID)
	}
	if err != nil {
		return summaries.Summary{}, err
	}
	return document.toSummary()
}

// ListCampaignSummaries returns every summary of a campaign, oldest session first.
func (s *Store) ListCampaignSummaries(ctx context.Context, campaignID string) ([]summaries.Summary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sessionStart", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.summaryCollection().Find(ctx, bson.M{"campaignId": matchID(campaignID)}, opts)
	if err != nil {
		return nil, err
	}
	return decodeSummaries(ctx, cursor)
}

func decodeSummaries(ctx context.Context, cursor *mongo.Cursor) ([]summaries.Summary, error) {
	var documents []summaryDocument
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, err
	}
	result := make([]summaries.Summary, 0, len(documents))
	for _, document := range documents {
		summary, err := document.toSummary()
		if err != nil {
			return nil, fmt.Errorf("summary %s: %w", document.ID, err)
		}
		result = append(result, summary)
	}
	return result, nil
}

// CreateSummary inserts a summary document.
func (s *Store) CreateSummary(ctx context.Context, summary summaries.Summary) error {
	_, err := s.summaryCollection().InsertOne(ctx, newSummaryDocument(summary))
	return err
}

// UpdateCliffNotes replaces the encrypted cliff notes of one summary.
func (s *Store) UpdateCliffNotes(ctx context.Context, summaryID string, cliffNotes fieldcrypt.EncryptedField, updatedAt time.Time) error {
	update := bson.M{"$set": bson.M{
		"encryptedCliffNotes": cliffNotes.Encode(),
		"updatedAt":           updatedAt.UTC(),
	}}
	result, err := s.summaryCollection().UpdateOne(ctx, bson.M{"_id": matchID(summaryID)}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: summary %s", summaries.ErrNotFound, summaryID)
	}
	return nil
}

// CreateCampaign inserts a campaign document.
func (s *Store) CreateCampaign(ctx context.Context, campaign summaries.Campaign) error {
	_, err := s.campaignCollection().InsertOne(ctx, newCampaignDocument(campaign))
	return err
}

// GetCampaign loads one campaign by id.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (summaries.Campaign, error) {
	var document campaignDocument
	err := s.campaignCollection().FindOne(ctx, bson.M{"_id": matchID(campaignID)}).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return summaries.Campaign{}, fmt.Errorf("%w: campaign %s", summaries.ErrNotFound, campaignID)
	}
	if err != nil {
		return summaries.Campaign{}, err
	}
	return document.toCampaign(), nil
}

// GetCampaigns loads the campaigns with the given ids. Unknown ids are skipped.
func (s *Store) GetCampaigns(ctx context.Context, campaignIDs []string) ([]summaries.Campaign, error) {
	if len(campaignIDs) == 0 {
		return []summaries.Campaign{}, nil
	}
	cursor, err := s.campaignCollection().Find(ctx, bson.M{"_id": bson.M{"$in": idCandidates(campaignIDs)}})
	if err != nil {
		return nil, err
	}
	return decodeCampaigns(ctx, cursor)
}

// ListCampaigns returns a guild's campaigns, newest first.
func (s *Store) ListCampaigns(ctx context.Context, guildID string) ([]summaries.Campaign, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.campaignCollection().Find(ctx, bson.M{"guildId": guildID}, opts)
	if err != nil {
		return nil, err
	}
	return decodeCampaigns(ctx, cursor)
}

func decodeCampaigns(ctx context.Context, cursor *mongo.Cursor) ([]summaries.Campaign, error) {
	var documents []campaignDocument
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, err
	}
	result := make([]summaries.Campaign, 0, len(documents))
	for _, document := range documents {
		result = append(result, document.toCampaign())
	}
	return result, nil
}

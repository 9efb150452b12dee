package summaries

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
)

func mustCodec(t *testing.T) *fieldcrypt.Codec {
	t.Helper()
	codec, err := fieldcrypt.NewCodec(bytes.Repeat([]byte{0x42}, fieldcrypt.KeySize))
	if err != nil {
		t.Fatalf("unexpected codec error: %v", err)
	}
	return codec
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("unexpected time parse error: %v", err)
	}
	return parsed.UTC()
}

func mustEncrypt(t *testing.T, codec *fieldcrypt.Codec, plaintext string) fieldcrypt.EncryptedField {
	t.Helper()
	field, err := codec.Encrypt([]byte(plaintext))
	if err != nil {
		t.Fatalf("unexpected encrypt error: %v", err)
	}
	return field
}

func newSession(id string, start time.Time, minutes int, participants ...Participant) Summary {
	return Summary{
		ID:           id,
		GuildID:      "guild-1",
		CampaignID:   "campaign-1",
		SessionStart: start,
		SessionEnd:   start.Add(time.Duration(minutes) * time.Minute),
		Participants: participants,
	}
}

type memoryStore struct {
	mu        sync.Mutex
	summaries map[string]Summary
	campaigns map[string]Campaign
	findErr   error
	countErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		summaries: make(map[string]Summary),
		campaigns: make(map[string]Campaign),
	}
}

func (s *memoryStore) matching(q Query) []Summary {
	matched := make([]Summary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		if q.Matches(summary) {
			matched = append(matched, summary)
		}
	}
	sort.Slice(matched, func(left, right int) bool {
		return matched[left].SessionStart.After(matched[right].SessionStart)
	})
	return matched
}

func (s *memoryStore) FindSummaries(_ context.Context, q Query) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	matched := s.matching(q)
	if q.Offset >= len(matched) {
		return []Summary{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], nil
}

func (s *memoryStore) CountSummaries(_ context.Context, q Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return int64(len(s.matching(q))), nil
}

func (s *memoryStore) GetSummary(_ context.Context, summaryID string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries[summaryID]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return summary, nil
}

func (s *memoryStore) ListCampaignSummaries(_ context.Context, campaignID string) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]Summary, 0)
	for _, summary := range s.summaries {
		if summary.CampaignID == campaignID {
			records = append(records, summary)
		}
	}
	sort.Slice(records, func(left, right int) bool {
		return records[left].SessionStart.Before(records[right].SessionStart)
	})
	return records, nil
}

func (s *memoryStore) CreateSummary(_ context.Context, summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.summaries[summary.ID]; exists {
		return errors.New("duplicate summary")
	}
	s.summaries[summary.ID] = summary
	return nil
}

func (s *memoryStore) UpdateCliffNotes(_ context.Context, summaryID string, cliffNotes fieldcrypt.EncryptedField, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries[summaryID]
	if !ok {
		return ErrNotFound
	}
	summary.CliffNotes = cliffNotes
	summary.UpdatedAt = updatedAt
	s.summaries[summaryID] = summary
	return nil
}

func (s *memoryStore) CreateCampaign(_ context.Context, campaign Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *memoryStore) GetCampaign(_ context.Context, campaignID string) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[campaignID]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return campaign, nil
}

func (s *memoryStore) GetCampaigns(_ context.Context, campaignIDs []string) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaigns := make([]Campaign, 0, len(campaignIDs))
	for _, campaignID := range campaignIDs {
		if campaign, ok := s.campaigns[campaignID]; ok {
			campaigns = append(campaigns, campaign)
		}
	}
	return campaigns, nil
}

func (s *memoryStore) ListCampaigns(_ context.Context, guildID string) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaigns := make([]Campaign, 0)
	for _, campaign := range s.campaigns {
		if campaign.GuildID == guildID {
			campaigns = append(campaigns, campaign)
		}
	}
	sort.Slice(campaigns, func(left, right int) bool {
		return campaigns[left].CreatedAt.After(campaigns[right].CreatedAt)
	})
	return campaigns, nil
}

type stubGenerator struct {
	output    string
	err       error
	plaintext string
	rules     string
	calls     int
}

func (g *stubGenerator) GenerateText(_ context.Context, plaintext string, rules string) (string, error) {
	g.calls++
	g.plaintext = plaintext
	g.rules = rules
	return g.output, g.err
}

type sequenceIDs struct {
	values []string
	next   int
}

func (p *sequenceIDs) NewID() (string, error) {
	if p.next >= len(p.values) {
		return "", errors.New("id sequence exhausted")
	}
	value := p.values[p.next]
	p.next++
	return value, nil
}

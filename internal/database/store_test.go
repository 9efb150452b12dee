package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *SummaryStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "scribe.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := NewSummaryStore(db)
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func mustCodec(t *testing.T) *fieldcrypt.Codec {
	t.Helper()
	codec, err := fieldcrypt.NewCodec(bytes.Repeat([]byte{0x07}, fieldcrypt.KeySize))
	if err != nil {
		t.Fatalf("unexpected codec error: %v", err)
	}
	return codec
}

func mustQuery(t *testing.T, request summaries.SearchRequest) summaries.Query {
	t.Helper()
	query, err := summaries.BuildQuery(request)
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	return query
}

func seedSummary(t *testing.T, store *SummaryStore, codec *fieldcrypt.Codec, summary summaries.Summary) {
	t.Helper()
	if summary.Summary.IsZero() {
		field, err := codec.Encrypt([]byte("summary of " + summary.ID))
		if err != nil {
			t.Fatalf("unexpected encrypt error: %v", err)
		}
		summary.Summary = field
	}
	if summary.SessionEnd.IsZero() {
		summary.SessionEnd = summary.SessionStart.Add(time.Hour)
	}
	summary.Tags = summaries.NormalizeTags(summary.Tags)
	summary.SearchableText = summaries.BuildSearchableText(summary, "")
	if err := store.CreateSummary(context.Background(), summary); err != nil {
		t.Fatalf("failed to seed summary %s: %v", summary.ID, err)
	}
}

func TestSummaryStoreRoundTripsRecords(t *testing.T) {
	store := newTestStore(t)
	codec := mustCodec(t)
	start := time.Date(2024, time.January, 5, 18, 0, 0, 0, time.UTC)
	cliffNotes, err := codec.Encrypt([]byte("notes"))
	if err != nil {
		t.Fatalf("unexpected encrypt error: %v", err)
	}
	seedSummary(t, store, codec, summaries.Summary{
		ID:            "s1",
		GuildID:       "guild-1",
		CampaignID:    "campaign-1",
		SessionNumber: 3,
		SessionStart:  start,
		SessionEnd:    start.Add(90 * time.Minute),
		Participants: []summaries.Participant{
			{UserID: "u2", Username: "bob"},
			{UserID: "u1", Username: "alice", IsDM: true},
		},
		Tags:       []string{"combat", "boss"},
		CliffNotes: cliffNotes,
	})

	loaded, err := store.GetSummary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !loaded.SessionStart.Equal(start) || loaded.Duration() != 90*time.Minute {
		t.Fatalf("unexpected session window %s - %s", loaded.SessionStart, loaded.SessionEnd)
	}
	if len(loaded.Participants) != 2 || loaded.Participants[0].Username != "bob" || !loaded.Participants[1].IsDM {
		t.Fatalf("expected participant order and flags preserved, got %+v", loaded.Participants)
	}
	if len(loaded.Tags) != 2 || loaded.Tags[0] != "combat" {
		t.Fatalf("unexpected tags %v", loaded.Tags)
	}
	plaintext, err := codec.Decrypt(loaded.Summary)
	if err != nil || string(plaintext) != "summary of s1" {
		t.Fatalf("expected summary to decrypt, got %q %v", plaintext, err)
	}
	notes, err := codec.Decrypt(loaded.CliffNotes)
	if err != nil || string(notes) != "notes" {
		t.Fatalf("expected cliff notes to decrypt, got %q %v", notes, err)
	}

	if _, err := store.GetSummary(context.Background(), "missing"); !errors.Is(err, summaries.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSummaryStoreFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	codec := mustCodec(t)
	base := time.Date(2024, time.January, 1, 18, 0, 0, 0, time.UTC)
	for index := 0; index < 12; index++ {
		seedSummary(t, store, codec, summaries.Summary{
			ID:           fmt.Sprintf("s%02d", index),
			GuildID:      "guild-1",
			SessionStart: base.Add(time.Duration(index) * 24 * time.Hour),
		})
	}
	seedSummary(t, store, codec, summaries.Summary{ID: "other", GuildID: "guild-2", SessionStart: base})

	query := mustQuery(t, summaries.SearchRequest{GuildID: "guild-1", Page: 2, Limit: 5})
	page, err := store.FindSummaries(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	total, err := store.CountSummaries(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if total != 12 {
		t.Fatalf("expected 12 matches, got %d", total)
	}
	if len(page) != 5 {
		t.Fatalf("expected 5 results, got %d", len(page))
	}
	for position, summary := range page {
		want := fmt.Sprintf("s%02d", 6-position)
		if summary.ID != want {
			t.Fatalf("position %d: expected %s, got %s", position, want, summary.ID)
		}
	}

	beyond := mustQuery(t, summaries.SearchRequest{GuildID: "guild-1", Page: 5, Limit: 5})
	empty, err := store.FindSummaries(context.Background(), beyond)
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page beyond range, got %d", len(empty))
	}
}

func TestSummaryStoreTagParticipantAndTextPredicates(t *testing.T) {
	store := newTestStore(t)
	codec := mustCodec(t)
	start := time.Date(2024, time.February, 1, 18, 0, 0, 0, time.UTC)
	seedSummary(t, store, codec, summaries.Summary{
		ID:           "both-tags",
		GuildID:      "guild-1",
		SessionStart: start,
		Tags:         []string{"combat", "boss", "loot"},
		Participants: []summaries.Participant{{UserID: "u1", Username: "alice"}},
	})
	seedSummary(t, store, codec, summaries.Summary{
		ID:           "one-tag",
		GuildID:      "guild-1",
		SessionStart: start.Add(time.Hour),
		Tags:         []string{"combat"},
		Participants: []summaries.Participant{{UserID: "u2", Username: "bob_the_bold"}},
	})
	seedSummary(t, store, codec, summaries.Summary{
		ID:           "untagged",
		GuildID:      "guild-1",
		SessionStart: start.Add(2 * time.Hour),
		Participants: []summaries.Participant{{UserID: "u3", Username: "carol"}},
	})

	testCases := []struct {
		name    string
		request summaries.SearchRequest
		want    []string
	}{
		{name: "tags all", request: summaries.SearchRequest{Tags: []string{"combat", "boss"}}, want: []string{"both-tags"}},
		{name: "single tag", request: summaries.SearchRequest{Tags: []string{"combat"}}, want: []string{"one-tag", "both-tags"}},
		{name: "participants any", request: summaries.SearchRequest{Participants: []string{"u1", "u3"}}, want: []string{"untagged", "both-tags"}},
		{name: "text any term", request: summaries.SearchRequest{Search: "ALICE carol"}, want: []string{"untagged", "both-tags"}},
		{name: "text wildcard literal", request: summaries.SearchRequest{Search: "b_b"}, want: []string{}},
		{name: "text underscore", request: summaries.SearchRequest{Search: "bob_the"}, want: []string{"one-tag"}},
		{name: "date window", request: summaries.SearchRequest{StartDate: "2024-02-01T19:00:00Z", EndDate: "2024-02-01T19:00:00Z"}, want: []string{"one-tag"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			request := testCase.request
			request.GuildID = "guild-1"
			query := mustQuery(t, request)
			found, err := store.FindSummaries(context.Background(), query)
			if err != nil {
				t.Fatalf("unexpected find error: %v", err)
			}
			total, err := store.CountSummaries(context.Background(), query)
			if err != nil {
				t.Fatalf("unexpected count error: %v", err)
			}
			if int(total) != len(testCase.want) || len(found) != len(testCase.want) {
				t.Fatalf("expected %v, got %d results (count %d)", testCase.want, len(found), total)
			}
			for index, summary := range found {
				if summary.ID != testCase.want[index] {
					t.Fatalf("expected %v, got %s at %d", testCase.want, summary.ID, index)
				}
				if !query.Matches(summary) {
					t.Fatalf("store result %s disagrees with in-memory predicate", summary.ID)
				}
			}
		})
	}
}

func TestSummaryStoreUpdateCliffNotes(t *testing.T) {
	store := newTestStore(t)
	codec := mustCodec(t)
	start := time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC)
	seedSummary(t, store, codec, summaries.Summary{ID: "s1", GuildID: "guild-1", SessionStart: start})

	before, err := store.GetSummary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !before.CliffNotes.IsZero() {
		t.Fatalf("expected no cliff notes before update")
	}

	notes, err := codec.Encrypt([]byte("fresh notes"))
	if err != nil {
		t.Fatalf("unexpected encrypt error: %v", err)
	}
	updatedAt := start.Add(48 * time.Hour)
	if err := store.UpdateCliffNotes(context.Background(), "s1", notes, updatedAt); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	after, err := store.GetSummary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !bytes.Equal(after.Summary.Ciphertext, before.Summary.Ciphertext) {
		t.Fatalf("expected summary ciphertext to be unchanged")
	}
	plaintext, err := codec.Decrypt(after.CliffNotes)
	if err != nil || string(plaintext) != "fresh notes" {
		t.Fatalf("expected updated cliff notes, got %q %v", plaintext, err)
	}
	if !after.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("expected updated timestamp %s, got %s", updatedAt, after.UpdatedAt)
	}

	if err := store.UpdateCliffNotes(context.Background(), "missing", notes, updatedAt); !errors.Is(err, summaries.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSummaryStoreCampaigns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	older := summaries.Campaign{ID: "c1", GuildID: "guild-1", Name: "Older", CreatedAt: time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC)}
	newer := summaries.Campaign{ID: "c2", GuildID: "guild-1", Name: "Newer", DMUserID: "u1", CreatedAt: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)}
	foreign := summaries.Campaign{ID: "c3", GuildID: "guild-2", Name: "Foreign", CreatedAt: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)}
	for _, campaign := range []summaries.Campaign{older, newer, foreign} {
		if err := store.CreateCampaign(ctx, campaign); err != nil {
			t.Fatalf("failed to create campaign: %v", err)
		}
	}

	listed, err := store.ListCampaigns(ctx, "guild-1")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "c2" || listed[1].ID != "c1" {
		t.Fatalf("expected newest first, got %+v", listed)
	}

	loaded, err := store.GetCampaign(ctx, "c2")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if loaded.DMUserID != "u1" || !loaded.CreatedAt.Equal(newer.CreatedAt) {
		t.Fatalf("unexpected campaign %+v", loaded)
	}
	if _, err := store.GetCampaign(ctx, "missing"); !errors.Is(err, summaries.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	batch, err := store.GetCampaigns(ctx, []string{"c1", "c3", "missing"})
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(batch))
	}
}

func TestSummaryStoreListCampaignSummariesAscending(t *testing.T) {
	store := newTestStore(t)
	codec := mustCodec(t)
	base := time.Date(2024, time.April, 1, 18, 0, 0, 0, time.UTC)
	seedSummary(t, store, codec, summaries.Summary{ID: "late", GuildID: "guild-1", CampaignID: "c1", SessionStart: base.Add(72 * time.Hour)})
	seedSummary(t, store, codec, summaries.Summary{ID: "early", GuildID: "guild-1", CampaignID: "c1", SessionStart: base})
	seedSummary(t, store, codec, summaries.Summary{ID: "elsewhere", GuildID: "guild-1", CampaignID: "c2", SessionStart: base})

	records, err := store.ListCampaignSummaries(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 2 || records[0].ID != "early" || records[1].ID != "late" {
		t.Fatalf("unexpected records %+v", records)
	}
}

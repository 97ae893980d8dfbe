package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/store"
)

// DefaultTopN is how many accounts are exported when no limit is given.
const DefaultTopN = 50

// pageSize is the largest page the Notion query API returns.
const pageSize = 100

// SyncStats counts what a sync did, or would do in dry-run mode.
type SyncStats struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// Written is the number of pages created or updated.
func (s SyncStats) Written() int { return s.Created + s.Updated }

// Syncer upserts a dataset's accounts into one Notion database. Pages are
// keyed by dataset id and account number.
type Syncer struct {
	client     NotionService
	databaseID string
	dryRun     bool
}

// NewSyncer creates a Syncer. In dry-run mode nothing is written and the
// stats count what would have been.
func NewSyncer(client NotionService, databaseID string, dryRun bool) *Syncer {
	return &Syncer{client: client, databaseID: databaseID, dryRun: dryRun}
}

// SyncAccounts exports accounts and returns the number of pages written.
func (s *Syncer) SyncAccounts(ctx context.Context, datasetID string, accounts []domain.AggregatedAccount) (int, error) {
	stats, err := s.Sync(ctx, datasetID, accounts)
	if err != nil {
		return 0, err
	}
	return stats.Written(), nil
}

// Sync upserts accounts for datasetID. Pages of the same dataset whose
// account is no longer in the list are archived. A failure on one page is
// logged and counted, and the rest carry on.
func (s *Syncer) Sync(ctx context.Context, datasetID string, accounts []domain.AggregatedAccount) (SyncStats, error) {
	log := logger.FromContext(ctx).With().
		Str("dataset_id", datasetID).
		Bool("dry_run", s.dryRun).
		Logger()

	var stats SyncStats
	if datasetID == "" {
		return stats, fmt.Errorf("Sync: dataset id is required")
	}

	log.Info().Int("account_count", len(accounts)).Msg("Starting account sync to Notion")

	pages, err := queryDatasetPages(ctx, s.client, s.databaseID, datasetID)
	if err != nil {
		return stats, fmt.Errorf("Sync: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]string, len(pages))
	for _, p := range pages {
		if acc := extractAccountNumber(p); acc != "" {
			existing[acc] = string(p.ID)
		}
	}

	wanted := make(map[string]bool, len(accounts))
	for _, acc := range accounts {
		wanted[acc.AccountNumber] = true
		pageID, found := existing[acc.AccountNumber]

		if s.dryRun {
			if found {
				stats.Updated++
			} else {
				stats.Created++
			}
			continue
		}

		props := AccountToNotionProperties(datasetID, acc)
		if found {
			if _, err := s.client.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("account_number", acc.AccountNumber).Str("page_id", pageID).Msg("Failed to update Notion page")
				stats.Failed++
				continue
			}
			stats.Updated++
			continue
		}

		page, err := s.client.CreatePage(ctx, s.databaseID, props)
		if err != nil {
			log.Warn().Err(err).Str("account_number", acc.AccountNumber).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		existing[acc.AccountNumber] = string(page.ID)
		stats.Created++
	}

	for _, p := range pages {
		acc := extractAccountNumber(p)
		if wanted[acc] {
			continue
		}
		if !s.dryRun {
			if err := s.client.ArchivePage(ctx, string(p.ID)); err != nil {
				log.Warn().Err(err).Str("page_id", string(p.ID)).Msg("Failed to archive stale Notion page")
				stats.Failed++
				continue
			}
		}
		stats.Archived++
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Msg("Account sync completed")
	return stats, nil
}

// SyncDataset loads the topN ranked accounts of a stored dataset and syncs
// them. topN <= 0 uses DefaultTopN.
func (s *Syncer) SyncDataset(ctx context.Context, repo store.DatasetRepository, datasetID string, topN int) (SyncStats, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	rows, err := repo.LoadAccounts(ctx, datasetID, store.AccountQuery{Limit: topN})
	if err != nil {
		return SyncStats{}, fmt.Errorf("SyncDataset: %w", err)
	}
	return s.Sync(ctx, datasetID, store.Accounts(rows))
}

// queryDatasetPages returns every page tagged with datasetID, following the
// pagination cursor.
func queryDatasetPages(ctx context.Context, client NotionService, databaseID, datasetID string) ([]notionapi.Page, error) {
	var (
		all    []notionapi.Page
		cursor notionapi.Cursor
	)
	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: notionapi.PropertyFilter{
				Property: PropDatasetID,
				RichText: &notionapi.TextFilterCondition{Equals: datasetID},
			},
			PageSize: pageSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryDatasetPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}

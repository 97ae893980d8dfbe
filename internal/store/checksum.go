package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/krishnaenterprise/CYBER/internal/domain"
)

// Checksum fingerprints a sorted account list over each account's number,
// total amount and transaction count.
func Checksum(accounts []domain.AggregatedAccount) string {
	h := sha256.New()
	for _, a := range accounts {
		fmt.Fprintf(h, "%s|%s|%d|", a.AccountNumber, domain.FormatAmount(a.TotalAmount), a.TotalTransactions)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verification is the result of re-checking a stored dataset.
type Verification struct {
	DatasetID        string `json:"dataset_id"`
	Valid            bool   `json:"valid"`
	ExpectedCount    int64  `json:"expected_count"`
	ActualCount      int64  `json:"actual_count"`
	ExpectedChecksum string `json:"expected_checksum"`
	ActualChecksum   string `json:"actual_checksum"`
}

// Verify reloads a dataset's accounts and compares their count and checksum
// against the values recorded when it was saved.
func Verify(ctx context.Context, repo DatasetRepository, datasetID string) (*Verification, error) {
	ds, err := repo.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("Verify: loading dataset: %w", err)
	}
	rows, err := repo.LoadAccounts(ctx, datasetID, AccountQuery{})
	if err != nil {
		return nil, fmt.Errorf("Verify: loading accounts: %w", err)
	}

	v := &Verification{
		DatasetID:        datasetID,
		ExpectedCount:    ds.AccountCount,
		ActualCount:      int64(len(rows)),
		ExpectedChecksum: ds.ChecksumSHA256,
		ActualChecksum:   Checksum(Accounts(rows)),
	}
	v.Valid = v.ExpectedCount == v.ActualCount && strings.EqualFold(v.ExpectedChecksum, v.ActualChecksum)
	return v, nil
}


package jobs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPermanent(t *testing.T) {
	base := errors.New("missing required columns")
	err := fmt.Errorf("process: %w", Permanent(base))

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "process: missing required columns", err.Error())

	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestClone(t *testing.T) {
	started := time.Now()
	j := &ProcessDatasetJob{
		JobID:     "j1",
		Overrides: map[string]string{"bank_account_number": "Acct"},
		StartedAt: &started,
		Result:    &JobResult{AccountCount: 2, ReportURIs: map[string]string{"csv": "gs://b/r.csv"}},
	}
	c := j.Clone()

	c.Overrides["bank_account_number"] = "Amount"
	c.Result.ReportURIs["csv"] = "changed"
	*c.StartedAt = started.Add(time.Hour)

	assert.Equal(t, "Acct", j.Overrides["bank_account_number"])
	assert.Equal(t, "gs://b/r.csv", j.Result.ReportURIs["csv"])
	assert.True(t, j.StartedAt.Equal(started))
	assert.Equal(t, JobTypeProcessDataset, c.GetType())
}

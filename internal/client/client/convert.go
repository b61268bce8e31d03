package client

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/rpc"
	"github.com/dmitrijs2005/memokeeper/internal/status"
	"github.com/dmitrijs2005/memokeeper/internal/timex"
)

func recordFromWire(r *rpc.Record) (*models.ServerRecord, error) {
	if r == nil {
		return nil, fmt.Errorf("empty record")
	}
	st, err := status.Parse(r.Status)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", r.ID, err)
	}
	created, err := timex.FromEpochMillis(r.CreatedAtMs)
	if err != nil {
		return nil, fmt.Errorf("record %s created_at: %w", r.ID, err)
	}
	occurred, err := timex.FromEpochMillis(r.OccurredAtMs)
	if err != nil {
		return nil, fmt.Errorf("record %s occurred_at: %w", r.ID, err)
	}

	fields := make(map[string]models.Field, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = models.FieldFromWire(v)
	}

	return &models.ServerRecord{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Status:     st,
		Fields:     fields,
		ContactRef: r.ContactRef,
		Duration:   time.Duration(r.DurationMs) * time.Millisecond,
		CreatedAt:  created,
		OccurredAt: occurred,
	}, nil
}

func fieldsToWire(fields map[string]models.Field) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, f := range fields {
		out[k] = f.Value
	}
	return out
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/logger"
)

const dateFormat = "2006-01-02"

// BillMirror streams bill rows into <dataset>.<table>. It holds a
// shared BigQuery client to avoid creating a new connection for each
// operation.
type BillMirror struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
}

// NewBillMirror creates a mirror. With no options it uses Application
// Default Credentials.
func NewBillMirror(ctx context.Context, project, dataset, table string, opts ...option.ClientOption) (*BillMirror, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBillMirror: creating client: %w", err)
	}
	return &BillMirror{
		client:  client,
		project: project,
		dataset: dataset,
		table:   table,
	}, nil
}

// Close closes the BigQuery client connection.
func (m *BillMirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// InsertBills inserts a batch of BillRow into the mirror table.
func (m *BillMirror) InsertBills(ctx context.Context, rows []*BillRow) error {
	if len(rows) == 0 {
		return nil
	}

	// Use fully qualified table name to avoid project ID issues
	table := m.client.DatasetInProject(m.project, m.dataset).Table(m.table)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertBills: inserting rows: %w", err)
	}

	return nil
}

// QueryBillsByDateRange queries mirrored bills within the date range,
// parents only, oldest first.
func (m *BillMirror) QueryBillsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*BillRow, error) {
	q := m.client.Query(fmt.Sprintf(`
		SELECT
			b.bill_id,
			b.event_id,
			b.group_id,
			b.is_duplicate,
			b.bill_type,
			b.state,
			b.occurred_date,
			b.occurred_ts,
			b.amount,
			b.fee,
			b.currency,
			b.shop_name,
			b.shop_item,
			b.account_from,
			b.account_to,
			b.book_name,
			b.cate_name,
			b.channel,
			b.rule_name,
			b.remark,
			b.auto_flag,
			b.created_ts,
			b.updated_ts
		FROM %s.%s b
		WHERE b.occurred_date >= @start_date
		  AND b.occurred_date <= @end_date
		  AND b.group_id IS NULL
		ORDER BY b.occurred_date, b.created_ts
	`, m.dataset, m.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryBillsByDateRange: query read: %w", err)
	}

	var rows []*BillRow
	for {
		var r BillRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryBillsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// OnDecision implements the decision dispatcher contract: every settled
// bill is mirrored. Runs on the dispatcher goroutine; errors are logged
// and dropped.
func (m *BillMirror) OnDecision(rec domain.BillRecord, res domain.DedupResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.InsertBills(ctx, []*BillRow{NewBillRow(rec, res)}); err != nil {
		log := logger.Component(ctx, "mirror")
		log.Warn().Err(err).
			Int64("bill_id", rec.ID).
			Msg("mirror insert failed")
	}
}

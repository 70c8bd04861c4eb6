package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fentz26/leaddesk/internal/models"
)

// ErrUnknownReport indicates a report kind the store cannot build.
var ErrUnknownReport = errors.New("unknown report")

type reportQuery struct {
	columns []string
	query   string
	// timeCol is the index of a DATETIME column, or -1.
	timeCol int
}

// Day bounds compare the date prefix of stored values, which are UTC.
var reportQueries = map[string]reportQuery{
	models.ReportCalls: {
		columns: []string{"Called At", "Lead Name", "Phone", "Stage", "Remarks", "Agent"},
		query: `SELECT n.created_at, l.name, l.phone, n.stage, n.remarks, a.handle
			FROM lead_notes n
			JOIN leads l ON l.id = n.lead_id
			LEFT JOIN agents a ON a.id = l.assigned_to
			WHERE substr(n.created_at, 1, 10) BETWEEN ? AND ?
			ORDER BY n.created_at, n.rowid`,
		timeCol: 0,
	},
	models.ReportConnected: {
		columns: []string{"Connected At", "Lead Name", "Phone", "Status", "Agent"},
		query: `SELECT n.created_at, l.name, l.phone, l.status, a.handle
			FROM lead_notes n
			JOIN leads l ON l.id = n.lead_id
			LEFT JOIN agents a ON a.id = l.assigned_to
			WHERE n.stage = 'connected' AND substr(n.created_at, 1, 10) BETWEEN ? AND ?
			ORDER BY n.created_at, n.rowid`,
		timeCol: 0,
	},
	models.ReportConverted: {
		columns: []string{"Converted At", "Lead Name", "Phone", "Agent", "Project", "Visit Date"},
		query: `SELECT n.created_at, l.name, l.phone, a.handle, p.name, v.visit_date
			FROM lead_notes n
			JOIN leads l ON l.id = n.lead_id
			LEFT JOIN agents a ON a.id = l.assigned_to
			LEFT JOIN site_visits v ON v.lead_id = l.id
			LEFT JOIN projects p ON p.id = v.project_id
			WHERE n.stage = 'converted' AND substr(n.created_at, 1, 10) BETWEEN ? AND ?
			ORDER BY n.created_at, n.rowid, v.visit_date`,
		timeCol: 0,
	},
	models.ReportSiteVisits: {
		columns: []string{"Visit Date", "Lead Name", "Lead Phone", "Agent", "Project", "Location", "Property Type", "Budget"},
		query: `SELECT v.visit_date, l.name, l.phone, a.handle, p.name, p.location, p.property_type, p.budget_range
			FROM site_visits v
			JOIN leads l ON l.id = v.lead_id
			LEFT JOIN agents a ON a.id = l.assigned_to
			LEFT JOIN projects p ON p.id = v.project_id
			WHERE v.visit_date BETWEEN ? AND ?
			ORDER BY v.visit_date, v.created_at`,
		timeCol: -1,
	},
}

// Report builds a tabular report of kind for the days start through end
// (YYYY-MM-DD, inclusive).
func (s *Store) Report(ctx context.Context, kind, start, end string) (*models.Report, error) {
	rq, ok := reportQueries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, kind)
	}

	rows, err := s.db.QueryContext(ctx, rq.query, start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s report", kind)
	}
	defer rows.Close()

	report := &models.Report{Kind: kind, Start: start, End: end, Columns: rq.columns, Rows: [][]string{}}
	for rows.Next() {
		texts := make([]sql.NullString, len(rq.columns))
		var at time.Time
		dest := make([]any, len(rq.columns))
		for i := range dest {
			if i == rq.timeCol {
				dest[i] = &at
			} else {
				dest[i] = &texts[i]
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s report row", kind)
		}

		row := make([]string, len(rq.columns))
		for i := range row {
			if i == rq.timeCol {
				row[i] = at.UTC().Format("2006-01-02 15:04")
			} else {
				row[i] = texts[i].String
			}
		}
		report.Rows = append(report.Rows, row)
	}
	return report, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atkgudang/persediaan/internal/model"
)

const requestColumns = `id, number, requester_id, status, note,
	approved_l1_by, approved_l1_at, approved_l2_by, approved_l2_at, approved_l3_by, approved_l3_at,
	rejected_by, rejected_at, rejection_reason, distributed_by, distributed_at, received_at,
	created_at, updated_at`

// requestStamps names the actor and time columns a transition writes.
var requestStamps = map[model.RequestStatus][2]string{
	model.RequestApprovedL1:  {"approved_l1_by", "approved_l1_at"},
	model.RequestApprovedL2:  {"approved_l2_by", "approved_l2_at"},
	model.RequestApprovedL3:  {"approved_l3_by", "approved_l3_at"},
	model.RequestRejected:    {"rejected_by", "rejected_at"},
	model.RequestDistributed: {"distributed_by", "distributed_at"},
	model.RequestReceived:    {"", "received_at"},
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	Status      model.RequestStatus
	RequesterID int64
}

// InsertRequest creates a pending request header and returns its ID.
func InsertRequest(ctx context.Context, q Querier, number string, requesterID int64, note string, at time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO requests (number, requester_id, status, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		number, requesterID, model.RequestPending, nullString(note), at, at,
	)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting request id: %w", err)
	}
	return id, nil
}

// InsertRequestDetail adds an item line to a request.
func InsertRequestDetail(ctx context.Context, q Querier, requestID, itemID int64, quantity int) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO request_details (request_id, item_id, jumlah_diminta) VALUES (?, ?, ?)`,
		requestID, itemID, quantity,
	)
	if err != nil {
		return 0, fmt.Errorf("creating request detail: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting request detail id: %w", err)
	}
	return id, nil
}

// GetRequest returns a request with its details.
func GetRequest(ctx context.Context, q Querier, id int64) (*model.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}

	details, err := listRequestDetails(ctx, q, id)
	if err != nil {
		return nil, err
	}
	r.Details = details
	return r, nil
}

// ListRequests returns request headers, newest first.
func ListRequests(ctx context.Context, q Querier, f RequestFilter) ([]model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.RequesterID > 0 {
		query += ` AND requester_id = ?`
		args = append(args, f.RequesterID)
	}

	query += ` ORDER BY id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var requests []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		r.Details = []model.RequestDetail{}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// UpdateRequestStatus moves a request from one status to another, stamping
// the actor and time columns of the target status. It fails with
// ErrInvalidTransition if the request is no longer in from.
func UpdateRequestStatus(ctx context.Context, q Querier, id int64, from, to model.RequestStatus, actorID int64, at time.Time) error {
	stamp, ok := requestStamps[to]
	if !ok {
		return fmt.Errorf("no stamp columns for request status %q", to)
	}

	set := `status = ?, updated_at = ?`
	args := []any{to, at}
	if stamp[0] != "" {
		set += `, ` + stamp[0] + ` = ?`
		args = append(args, actorID)
	}
	set += `, ` + stamp[1] + ` = ?`
	args = append(args, at, id, from)

	result, err := q.ExecContext(ctx, `UPDATE requests SET `+set+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating request status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking request status update: %w", err)
	}
	if n != 1 {
		return &TransitionError{Entity: model.EntityRequest, ID: id, From: string(from), Action: string(to)}
	}
	return nil
}

// SetRejectionReason records why a request was rejected.
func SetRejectionReason(ctx context.Context, q Querier, id int64, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE requests SET rejection_reason = ? WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("setting rejection reason: %w", err)
	}
	return nil
}

// SetApprovedQuantity records jumlah_disetujui for a detail line.
func SetApprovedQuantity(ctx context.Context, q Querier, detailID int64, quantity int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE request_details SET jumlah_disetujui = ? WHERE id = ?`, quantity, detailID)
	if err != nil {
		return fmt.Errorf("setting approved quantity: %w", err)
	}
	return nil
}

// SetGivenQuantity records jumlah_diberikan for a detail line.
func SetGivenQuantity(ctx context.Context, q Querier, detailID int64, quantity int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE request_details SET jumlah_diberikan = ? WHERE id = ?`, quantity, detailID)
	if err != nil {
		return fmt.Errorf("setting distributed quantity: %w", err)
	}
	return nil
}

// AddReturnedQuantity increases jumlah_dikembalikan for a detail line.
func AddReturnedQuantity(ctx context.Context, q Querier, detailID int64, quantity int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE request_details SET jumlah_dikembalikan = jumlah_dikembalikan + ? WHERE id = ?`,
		quantity, detailID)
	if err != nil {
		return fmt.Errorf("recording returned quantity: %w", err)
	}
	return nil
}

func listRequestDetails(ctx context.Context, q Querier, requestID int64) ([]model.RequestDetail, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT d.id, d.request_id, d.item_id, d.jumlah_diminta, d.jumlah_disetujui, d.jumlah_diberikan,
		        d.jumlah_dikembalikan, i.name, i.unit
		 FROM request_details d
		 JOIN items i ON i.id = d.item_id
		 WHERE d.request_id = ?
		 ORDER BY d.id`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing request details: %w", err)
	}
	defer rows.Close()

	details := []model.RequestDetail{}
	for rows.Next() {
		var d model.RequestDetail
		if err := rows.Scan(&d.ID, &d.RequestID, &d.ItemID, &d.JumlahDiminta, &d.JumlahDisetujui,
			&d.JumlahDiberikan, &d.JumlahDikembalikan, &d.ItemName, &d.Unit); err != nil {
			return nil, fmt.Errorf("scanning request detail: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func scanRequest(row rowScanner) (*model.Request, error) {
	r := &model.Request{}
	var note, reason sql.NullString
	err := row.Scan(&r.ID, &r.Number, &r.RequesterID, &r.Status, &note,
		&r.ApprovedL1By, &r.ApprovedL1At, &r.ApprovedL2By, &r.ApprovedL2At, &r.ApprovedL3By, &r.ApprovedL3At,
		&r.RejectedBy, &r.RejectedAt, &reason, &r.DistributedBy, &r.DistributedAt, &r.ReceivedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Note = note.String
	r.RejectionReason = reason.String
	return r, nil
}

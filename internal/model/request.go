package model

import "time"

// RequestStatus is the state of a supplies request.
type RequestStatus string

// Request statuses.
const (
	RequestPending     RequestStatus = "pending"
	RequestApprovedL1  RequestStatus = "approved_l1"
	RequestApprovedL2  RequestStatus = "approved_l2"
	RequestApprovedL3  RequestStatus = "approved_l3"
	RequestRejected    RequestStatus = "rejected"
	RequestDistributed RequestStatus = "distributed"
	RequestReceived    RequestStatus = "received"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestReceived
}

// RequestAction is an operation that moves a request between states.
type RequestAction string

// Request actions.
const (
	ActionApproveL1  RequestAction = "approve_l1"
	ActionApproveL2  RequestAction = "approve_l2"
	ActionApproveL3  RequestAction = "approve_l3"
	ActionReject     RequestAction = "reject"
	ActionDistribute RequestAction = "distribute"
	ActionReceive    RequestAction = "receive"
)

type requestEdge struct {
	from   RequestStatus
	action RequestAction
}

// RequestTransitions is the legality matrix of the request approval chain.
// Any (state, action) pair absent from it is an invalid transition.
var RequestTransitions = map[requestEdge]RequestStatus{
	{RequestPending, ActionApproveL1}:     RequestApprovedL1,
	{RequestApprovedL1, ActionApproveL2}:  RequestApprovedL2,
	{RequestApprovedL2, ActionApproveL3}:  RequestApprovedL3,
	{RequestApprovedL3, ActionDistribute}: RequestDistributed,
	{RequestDistributed, ActionReceive}:   RequestReceived,

	// No rejection after L3: distribution commitments exist from there on.
	{RequestPending, ActionReject}:    RequestRejected,
	{RequestApprovedL1, ActionReject}: RequestRejected,
	{RequestApprovedL2, ActionReject}: RequestRejected,
}

// NextRequestStatus returns the state reached by applying action in state from.
func NextRequestStatus(from RequestStatus, action RequestAction) (RequestStatus, bool) {
	to, ok := RequestTransitions[requestEdge{from, action}]
	return to, ok
}

// Request is a staff request for supplies.
type Request struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	RequesterID     int64           `json:"requester_id"`
	Status          RequestStatus   `json:"status"`
	Note            string          `json:"note,omitempty"`
	ApprovedL1By    *int64          `json:"approved_l1_by,omitempty"`
	ApprovedL1At    *time.Time      `json:"approved_l1_at,omitempty"`
	ApprovedL2By    *int64          `json:"approved_l2_by,omitempty"`
	ApprovedL2At    *time.Time      `json:"approved_l2_at,omitempty"`
	ApprovedL3By    *int64          `json:"approved_l3_by,omitempty"`
	ApprovedL3At    *time.Time      `json:"approved_l3_at,omitempty"`
	RejectedBy      *int64          `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	DistributedBy   *int64          `json:"distributed_by,omitempty"`
	DistributedAt   *time.Time      `json:"distributed_at,omitempty"`
	ReceivedAt      *time.Time      `json:"received_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Details         []RequestDetail `json:"details"`
}

// RequestDetail is one requested item line.
type RequestDetail struct {
	ID                 int64 `json:"id"`
	RequestID          int64 `json:"request_id"`
	ItemID             int64 `json:"item_id"`
	JumlahDiminta      int   `json:"jumlah_diminta"`
	JumlahDisetujui    *int  `json:"jumlah_disetujui,omitempty"`
	JumlahDiberikan    *int  `json:"jumlah_diberikan,omitempty"`
	JumlahDikembalikan int   `json:"jumlah_dikembalikan"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// Approved returns the approved quantity, or zero before L3 approval.
func (d RequestDetail) Approved() int {
	if d.JumlahDisetujui == nil {
		return 0
	}
	return *d.JumlahDisetujui
}

// Given returns the distributed quantity, or zero before distribution.
func (d RequestDetail) Given() int {
	if d.JumlahDiberikan == nil {
		return 0
	}
	return *d.JumlahDiberikan
}

// Returnable is the quantity that may still be handed back to the warehouse.
func (d RequestDetail) Returnable() int {
	return d.Given() - d.JumlahDikembalikan
}

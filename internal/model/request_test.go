package model

import "testing"

func TestNextRequestStatus(t *testing.T) {
	statuses := []RequestStatus{
		RequestPending, RequestApprovedL1, RequestApprovedL2, RequestApprovedL3,
		RequestRejected, RequestDistributed, RequestReceived,
	}
	actions := []RequestAction{
		ActionApproveL1, ActionApproveL2, ActionApproveL3, ActionReject, ActionDistribute, ActionReceive,
	}

	legal := map[RequestStatus]map[RequestAction]RequestStatus{
		RequestPending:     {ActionApproveL1: RequestApprovedL1, ActionReject: RequestRejected},
		RequestApprovedL1:  {ActionApproveL2: RequestApprovedL2, ActionReject: RequestRejected},
		RequestApprovedL2:  {ActionApproveL3: RequestApprovedL3, ActionReject: RequestRejected},
		RequestApprovedL3:  {ActionDistribute: RequestDistributed},
		RequestDistributed: {ActionReceive: RequestReceived},
	}

	for _, from := range statuses {
		for _, action := range actions {
			want, wantOK := legal[from][action]
			got, ok := NextRequestStatus(from, action)
			if ok != wantOK || got != want {
				t.Errorf("NextRequestStatus(%s, %s) = (%q, %v), want (%q, %v)", from, action, got, ok, want, wantOK)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !RequestRejected.Terminal() || !RequestReceived.Terminal() {
		t.Error("rejected and received must be terminal")
	}
	if RequestDistributed.Terminal() {
		t.Error("distributed must not be terminal")
	}
}

func TestRequestDetailReturnable(t *testing.T) {
	given := 5
	d := RequestDetail{JumlahDiberikan: &given, JumlahDikembalikan: 2}
	if d.Returnable() != 3 {
		t.Errorf("expected returnable 3, got %d", d.Returnable())
	}
	if (RequestDetail{}).Returnable() != 0 {
		t.Error("expected returnable 0 before distribution")
	}
}

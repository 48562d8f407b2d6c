package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/tracker"
)

type fakeOwners struct {
	owners   map[string]string
	getErr   error
	writeErr error
	writes   []string
}

func (f *fakeOwners) GetOwner(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.owners[key], nil
}

func (f *fakeOwners) UpdateOwner(ctx context.Context, key, team string) error {
	f.writes = append(f.writes, key+"="+team)
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.owners == nil {
		f.owners = map[string]string{}
	}
	f.owners[key] = team
	return nil
}

func newCommitter(f *fakeOwners) *Committer {
	return &Committer{
		Tracker: f,
		Names:   NewTeamNames(map[string]string{"team-svl": "Team SVL", "team-anf-pas": "Team ANF PaS"}),
		Logger:  zerolog.Nop(),
	}
}

func TestCommitAlreadyAssignedNeverWrites(t *testing.T) {
	f := &fakeOwners{owners: map[string]string{"N-1": "Team Vega"}}
	res := newCommitter(f).Commit(context.Background(), "N-1", "team-mercury")
	if res.Status != CommitAlreadyAssigned {
		t.Fatalf("expected already_assigned, got %s", res.Status)
	}
	if res.CurrentOwner != "Team Vega" {
		t.Fatalf("expected current owner to be reported, got %q", res.CurrentOwner)
	}
	if len(f.writes) != 0 {
		t.Fatalf("expected no write calls, got %v", f.writes)
	}
}

func TestCommitWritesDisplayName(t *testing.T) {
	f := &fakeOwners{}
	res := newCommitter(f).Commit(context.Background(), "N-2", "team-mercury")
	if res.Status != CommitAssigned {
		t.Fatalf("expected assigned, got %s (%s)", res.Status, res.Error)
	}
	if len(f.writes) != 1 || f.writes[0] != "N-2=Team Mercury" {
		t.Fatalf("unexpected writes %v", f.writes)
	}
}

func TestCommitSecondAttemptIsAlreadyAssigned(t *testing.T) {
	f := &fakeOwners{}
	c := newCommitter(f)
	_ = c.Commit(context.Background(), "N-3", "Team Vega")
	res := c.Commit(context.Background(), "N-3", "Team Omega")
	if res.Status != CommitAlreadyAssigned || len(f.writes) != 1 {
		t.Fatalf("expected single write then already_assigned, got %s with %v", res.Status, f.writes)
	}
}

func TestCommitNotFound(t *testing.T) {
	f := &fakeOwners{getErr: tracker.ErrNotFound}
	res := newCommitter(f).Commit(context.Background(), "N-4", "Team Vega")
	if res.Status != CommitNotFound {
		t.Fatalf("expected not_found, got %s", res.Status)
	}
	if len(f.writes) != 0 {
		t.Fatalf("expected no write when owner cannot be read")
	}
}

func TestCommitUpdateFailedCarriesTrackerText(t *testing.T) {
	f := &fakeOwners{writeErr: &tracker.HTTPError{StatusCode: 400, Body: "Option value is not valid"}}
	res := newCommitter(f).Commit(context.Background(), "N-5", "Team Vega")
	if res.Status != CommitUpdateFailed {
		t.Fatalf("expected update_failed, got %s", res.Status)
	}
	if res.Error == "" {
		t.Fatalf("expected tracker error text")
	}
}

func TestCommitReadFailureIsUpdateFailed(t *testing.T) {
	f := &fakeOwners{getErr: errors.New("connection reset")}
	res := newCommitter(f).Commit(context.Background(), "N-6", "Team Vega")
	if res.Status != CommitUpdateFailed || len(f.writes) != 0 {
		t.Fatalf("expected update_failed without write, got %s %v", res.Status, f.writes)
	}
}

func TestTeamNamesDisplay(t *testing.T) {
	names := NewTeamNames(map[string]string{"team-svl": "Team SVL", "team-anf-pas": "Team ANF PaS"})
	cases := map[string]string{
		"team-svl":           "Team SVL",
		"TEAM-SVL":           "Team SVL",
		"Team ANF PaS":       "Team ANF PaS",
		"team-mercury":       "Team Mercury",
		"team-tunnel-snakes": "Team Tunnel Snakes",
		"team-cit":           "Team Cit",
		"Team Nandi":         "Team Nandi",
	}
	for in, want := range cases {
		if got := names.Display(in); got != want {
			t.Fatalf("Display(%q) = %q, want %q", in, got, want)
		}
	}
}

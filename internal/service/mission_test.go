package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"crowdtest/internal/fault"
	"crowdtest/internal/model"
)

type missionFixture struct {
	store    *memStore
	auth     *fakeAuth
	bus      *fakeBus
	missions *Missions
}

func newMissionFixture() *missionFixture {
	store := newMemStore()
	auth := newFakeAuth()
	bus := &fakeBus{}
	return &missionFixture{
		store:    store,
		auth:     auth,
		bus:      bus,
		missions: NewMissions(store, auth, bus),
	}
}

func (f *missionFixture) seed(id string, status model.MissionStatus) {
	f.store.seedMission(&model.Mission{
		ID:         id,
		AppName:    "My App",
		ProviderID: "provider-1",
		Status:     status,
	})
	f.auth.owners[id] = "provider-1"
}

func TestCreateMission(t *testing.T) {
	f := newMissionFixture()

	m, err := f.missions.Create(context.Background(), "provider-1", model.Mission{AppName: "My App"})
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "provider-1", m.ProviderID)
	assert.Equal(t, model.MissionDraft, m.Status)

	stored := f.store.state.missions[m.ID]
	require.NotNil(t, stored)
	assert.Equal(t, model.MissionDraft, stored.Status)
}

func TestCreateMissionValidation(t *testing.T) {
	f := newMissionFixture()

	_, err := f.missions.Create(context.Background(), "", model.Mission{AppName: "My App"})
	assert.Equal(t, codes.Unauthenticated, fault.CodeOf(err))

	_, err = f.missions.Create(context.Background(), "provider-1", model.Mission{})
	assert.Equal(t, codes.InvalidArgument, fault.CodeOf(err))
}

func TestSubmitMission(t *testing.T) {
	f := newMissionFixture()
	f.seed("m-1", model.MissionDraft)

	m, err := f.missions.Submit(context.Background(), "provider-1", "m-1")
	require.NoError(t, err)
	assert.Equal(t, model.MissionPending, m.Status)
	assert.Equal(t, "provider-1", m.StatusChangedBy)
	assert.Equal(t, 1, f.bus.count(model.TopicMissionStatus))
}

func TestSubmitMissionOwnerOnly(t *testing.T) {
	f := newMissionFixture()
	f.seed("m-1", model.MissionDraft)
	f.auth.admins["admin-1"] = true

	_, err := f.missions.Submit(context.Background(), "someone-else", "m-1")
	assert.Equal(t, codes.PermissionDenied, fault.CodeOf(err))

	// Admins are not owners; submission is the provider's act.
	_, err = f.missions.Submit(context.Background(), "admin-1", "m-1")
	assert.Equal(t, codes.PermissionDenied, fault.CodeOf(err))
}

func TestReviewApprove(t *testing.T) {
	f := newMissionFixture()
	f.seed("m-1", model.MissionPending)
	f.auth.admins["admin-1"] = true

	m, err := f.missions.Review(context.Background(), "admin-1", model.ReviewRequest{MissionID: "m-1", Approve: true})
	require.NoError(t, err)
	assert.Equal(t, model.MissionOpen, m.Status)
}

func TestReviewReject(t *testing.T) {
	f := newMissionFixture()
	f.seed("m-1", model.MissionPending)
	f.auth.admins["admin-1"] = true

	m, err := f.missions.Review(context.Background(), "admin-1", model.ReviewRequest{
		MissionID: "m-1", Approve: false, RejectionReason: "missing screenshots",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MissionRejected, m.Status)
	assert.Equal(t, "missing screenshots", m.RejectionReason)

	// A rejected mission can be resubmitted.
	m, err = f.missions.Submit(context.Background(), "provider-1", "m-1")
	require.NoError(t, err)
	assert.Equal(t, model.MissionPending, m.Status)
}

func TestReviewAdminOnly(t *testing.T) {
	f := newMissionFixture()
	f.seed("m-1", model.MissionPending)

	_, err := f.missions.Review(context.Background(), "provider-1", model.ReviewRequest{MissionID: "m-1", Approve: true})
	assert.Equal(t, codes.PermissionDenied, fault.CodeOf(err))
}

func TestIllegalTransitionsAreRejected(t *testing.T) {
	f := newMissionFixture()
	f.auth.admins["admin-1"] = true

	// Reviewing a draft mission skips the pending stage.
	f.seed("m-1", model.MissionDraft)
	_, err := f.missions.Review(context.Background(), "admin-1", model.ReviewRequest{MissionID: "m-1", Approve: true})
	assert.Equal(t, codes.FailedPrecondition, fault.CodeOf(err))
	assert.Equal(t, model.MissionDraft, f.store.state.missions["m-1"].Status)

	// Closed is terminal.
	f.seed("m-2", model.MissionClosed)
	_, err = f.missions.Submit(context.Background(), "provider-1", "m-2")
	assert.Equal(t, codes.FailedPrecondition, fault.CodeOf(err))

	// No event is published for a failed transition.
	assert.Equal(t, 0, f.bus.count(model.TopicMissionStatus))
}

func TestCloseMission(t *testing.T) {
	f := newMissionFixture()
	f.seed("m-1", model.MissionOpen)

	m, err := f.missions.Close(context.Background(), "provider-1", "m-1", "")
	require.NoError(t, err)
	assert.Equal(t, model.MissionClosed, m.Status)
	assert.Equal(t, "mission completed", m.ClosureReason)
}

func TestDeleteMissionPublishesEvent(t *testing.T) {
	f := newMissionFixture()
	f.seed("m-1", model.MissionOpen)

	err := f.missions.Delete(context.Background(), "provider-1", "m-1")
	require.NoError(t, err)

	assert.NotContains(t, f.store.state.missions, "m-1")
	require.Equal(t, 1, f.bus.count(model.TopicMissionDeleted))

	var ev model.MissionDeleted
	require.NoError(t, json.Unmarshal(f.bus.data[len(f.bus.data)-1], &ev))
	assert.Equal(t, "m-1", ev.MissionID)
	assert.Equal(t, "My App", ev.AppName)
	assert.Equal(t, "provider-1", ev.DeletedBy)
}

func TestDeleteMissionGuards(t *testing.T) {
	f := newMissionFixture()
	f.seed("m-1", model.MissionOpen)

	err := f.missions.Delete(context.Background(), "someone-else", "m-1")
	assert.Equal(t, codes.PermissionDenied, fault.CodeOf(err))

	f.auth.admins["admin-1"] = true
	err = f.missions.Delete(context.Background(), "admin-1", "missing")
	assert.Equal(t, codes.NotFound, fault.CodeOf(err))
	assert.Equal(t, 0, f.bus.count(model.TopicMissionDeleted))
}

func TestHandleStatusChangeApproved(t *testing.T) {
	f := newMissionFixture()

	err := f.missions.HandleStatusChange(context.Background(), model.MissionStatusChanged{
		MissionID: "m-1", AppName: "My App", ProviderID: "provider-1", To: model.MissionOpen,
	})
	require.NoError(t, err)

	require.Len(t, f.store.state.notifications, 1)
	n := f.store.state.notifications[0]
	assert.Equal(t, "provider-1", n.UserID)
	assert.Equal(t, model.NotificationMissionApproved, n.Kind)
	assert.Equal(t, "m-1", n.MissionID)
}

func TestHandleStatusChangeRejectedCancelsApplications(t *testing.T) {
	f := newMissionFixture()
	f.store.seedApplication("m-1", model.ApplicationPending)
	f.store.seedApplication("m-1", model.ApplicationPending)
	f.store.seedApplication("m-2", model.ApplicationPending)

	err := f.missions.HandleStatusChange(context.Background(), model.MissionStatusChanged{
		MissionID: "m-1", ProviderID: "provider-1", To: model.MissionRejected, Reason: "too vague",
	})
	require.NoError(t, err)

	require.Len(t, f.store.state.notifications, 1)
	assert.Equal(t, model.NotificationMissionRejected, f.store.state.notifications[0].Kind)

	cancelled := 0
	for _, a := range f.store.state.applications {
		if a.status == model.ApplicationCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 2, cancelled)
}

func TestHandleStatusChangeClosedCompletesEnrollments(t *testing.T) {
	f := newMissionFixture()
	f.store.seedEnrollment("m-1", model.EnrollmentActive)
	f.store.seedEnrollment("m-1", model.EnrollmentCompleted)

	err := f.missions.HandleStatusChange(context.Background(), model.MissionStatusChanged{
		MissionID: "m-1", ProviderID: "provider-1", To: model.MissionClosed,
	})
	require.NoError(t, err)

	for _, e := range f.store.state.enrollments {
		assert.Equal(t, model.EnrollmentCompleted, e.status)
	}
	require.Len(t, f.store.state.notifications, 1)
	assert.Equal(t, model.NotificationMissionClosed, f.store.state.notifications[0].Kind)
}

func TestHandleStatusChangeIgnoresOtherStatuses(t *testing.T) {
	f := newMissionFixture()

	err := f.missions.HandleStatusChange(context.Background(), model.MissionStatusChanged{
		MissionID: "m-1", To: model.MissionPending,
	})
	require.NoError(t, err)
	assert.Empty(t, f.store.state.notifications)
}

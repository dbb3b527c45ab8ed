package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-hub/internal/mocks"
	"chat-hub/internal/models"
	"chat-hub/internal/repositories"
)

func TestDirectConversationID(t *testing.T) {
	assert.Equal(t, "dm#alice#bob", DirectConversationID("alice", "bob"))
	assert.Equal(t, "dm#alice#bob", DirectConversationID("bob", "alice"))
}

func TestParseDirectID(t *testing.T) {
	a, b, err := ParseDirectID("dm#alice#bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	for _, id := range []string{"global", "gdm#g1", "dm#alice", "dm##bob", "dm#bob#alice", "dm#alice#alice"} {
		_, _, err := ParseDirectID(id)
		assert.ErrorIs(t, err, ErrInvalidInput, id)
	}
}

func newRouterFixture() (*Router, *mocks.ConnectionRepositoryMock, *mocks.GroupDirectoryMock, *mocks.BlocklistMock) {
	connections := &mocks.ConnectionRepositoryMock{}
	groups := &mocks.GroupDirectoryMock{}
	blocks := &mocks.BlocklistMock{}
	return NewRouter(connections, groups, blocks), connections, groups, blocks
}

func TestResolveUnknownConversation(t *testing.T) {
	router, _, _, _ := newRouterFixture()

	_, err := router.Resolve(context.Background(), "lobby", "alice", false)

	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolveDirectNonParticipant(t *testing.T) {
	router, _, _, _ := newRouterFixture()

	_, err := router.Resolve(context.Background(), "dm#alice#bob", "carol", false)

	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolveDirectBlocked(t *testing.T) {
	router, connections, _, blocks := newRouterFixture()
	blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(true, nil)

	route, err := router.Resolve(context.Background(), "dm#alice#bob", "alice", false)

	require.NoError(t, err)
	assert.True(t, route.Blocked)
	assert.Empty(t, route.Recipients)
	connections.AssertNotCalled(t, "ListRefsByUsers", mock.Anything, mock.Anything)
}

func TestResolveDirect(t *testing.T) {
	router, connections, _, blocks := newRouterFixture()
	blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	refs := []models.ConnectionRef{{Handle: "h1", UserID: "alice"}, {Handle: "h2", UserID: "bob"}}
	connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)

	route, err := router.Resolve(context.Background(), "dm#alice#bob", "bob", false)

	require.NoError(t, err)
	assert.Equal(t, KindDirect, route.Kind)
	assert.Equal(t, refs, route.Recipients)
	assert.Equal(t, []string{"alice", "bob"}, route.RecipientUsers)
}

func TestResolveGlobalFiltersBlocksPerUser(t *testing.T) {
	router, connections, _, blocks := newRouterFixture()
	refs := []models.ConnectionRef{
		{Handle: "h1", UserID: "alice"},
		{Handle: "h2", UserID: "mallory"},
		{Handle: "h3", UserID: "mallory"},
		{Handle: "h4", UserID: "carol"},
	}
	connections.On("ListRefsByConversation", mock.Anything, GlobalConversationID).Return(refs, nil)
	blocks.On("AnyBlockBetween", mock.Anything, "alice", "mallory").Return(true, nil)
	blocks.On("AnyBlockBetween", mock.Anything, "alice", "carol").Return(false, nil)

	route, err := router.Resolve(context.Background(), GlobalConversationID, "alice", false)

	require.NoError(t, err)
	assert.Equal(t, KindGlobal, route.Kind)
	assert.Equal(t, []models.ConnectionRef{
		{Handle: "h1", UserID: "alice"},
		{Handle: "h4", UserID: "carol"},
	}, route.Recipients)
	// One lookup per distinct user, even with two mallory connections.
	blocks.AssertNumberOfCalls(t, "AnyBlockBetween", 2)
}

func TestResolveGroupNonMember(t *testing.T) {
	router, _, groups, _ := newRouterFixture()
	groups.On("GetMembership", mock.Anything, "g1", "carol").Return(models.Membership{}, repositories.ErrMembershipNotFound)

	_, err := router.Resolve(context.Background(), "gdm#g1", "carol", false)

	require.ErrorIs(t, err, ErrForbidden)
}

func TestResolveGroupLapsedMemberReadOnly(t *testing.T) {
	router, connections, groups, _ := newRouterFixture()
	groups.On("GetMembership", mock.Anything, "g1", "bob").Return(models.Membership{
		GroupID: "g1", UserID: "bob", Status: models.MembershipLeft,
	}, nil)

	_, err := router.Resolve(context.Background(), "gdm#g1", "bob", false)
	require.ErrorIs(t, err, ErrForbidden)

	groups.On("GetActiveMembers", mock.Anything, "g1").Return([]string{"alice"}, nil)
	connections.On("ListRefsByUsers", mock.Anything, []string{"alice"}).Return([]models.ConnectionRef{}, nil)

	route, err := router.Resolve(context.Background(), "gdm#g1", "bob", true)
	require.NoError(t, err)
	assert.Equal(t, KindGroup, route.Kind)
}

func TestResolveGroupSortsRoster(t *testing.T) {
	router, connections, groups, _ := newRouterFixture()
	groups.On("GetMembership", mock.Anything, "g1", "alice").Return(models.Membership{
		GroupID: "g1", UserID: "alice", Status: models.MembershipActive,
	}, nil)
	groups.On("GetActiveMembers", mock.Anything, "g1").Return([]string{"carol", "alice", "bob"}, nil)
	connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob", "carol"}).Return([]models.ConnectionRef{}, nil)

	route, err := router.Resolve(context.Background(), "gdm#g1", "alice", false)

	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, route.RecipientUsers)
}

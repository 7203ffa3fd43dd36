package rooms

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-pagechat/types"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := NewDirectory("lobby", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestCreateRoom(t *testing.T) {
	d := newTestDirectory(t)
	_, ok := d.GetRoom("lobby")
	assert.True(t, ok, "default room must exist")

	room, err := d.CreateRoom("general", "", "General")
	require.NoError(t, err)
	assert.Equal(t, "General", room.Title())

	again, err := d.CreateRoom("general", "", "Other")
	require.NoError(t, err)
	assert.Same(t, room, again)
	assert.Equal(t, "General", again.Title())

	_, err = d.CreateRoom("", "", "")
	assert.ErrorIs(t, err, types.ErrEmptyRoomId)
	assert.Equal(t, 2, d.Len())
}

func TestGetRoomByUrl(t *testing.T) {
	d := newTestDirectory(t)
	_, err := d.CreateRoom("docs-room", "http://Example.com/docs/", "Docs")
	require.NoError(t, err)

	room, ok := d.GetRoomByUrl("https://example.com/docs")
	require.True(t, ok)
	assert.Equal(t, "docs-room", room.Id)

	room, ok = d.GetRoomByUrl("EXAMPLE.COM/docs/")
	require.True(t, ok)
	assert.Equal(t, "docs-room", room.Id)

	_, ok = d.GetRoomByUrl("https://example.com/other")
	assert.False(t, ok)
	_, ok = d.GetRoomByUrl("")
	assert.False(t, ok)
}

func TestNicknameUniqueness(t *testing.T) {
	d := newTestDirectory(t)
	require.NoError(t, d.AddMember("lobby", "c1", "Alice"))
	assert.ErrorIs(t, d.AddMember("lobby", "c2", "alice"), types.ErrNicknameInUse)
	assert.ErrorIs(t, d.AddMember("lobby", "c2", " ALICE "), types.ErrNicknameInUse)
	require.NoError(t, d.AddMember("lobby", "c2", "Bob"))

	assert.True(t, d.IsNicknameInUse("lobby", "aLiCe"))
	assert.False(t, d.IsNicknameInUse("lobby", "carol"))

	connId, ok := d.ResolveConnectionByNickname("lobby", "BOB")
	require.True(t, ok)
	assert.Equal(t, "c2", connId)

	room, _ := d.GetRoom("lobby")
	assert.Equal(t, []string{"Alice", "Bob"}, room.Nicknames())

	assert.ErrorIs(t, d.AddMember("missing", "c3", "Carol"), types.ErrRoomNotFound)
}

func TestRemoveMemberDeletesEmptyRoom(t *testing.T) {
	d := newTestDirectory(t)
	_, err := d.Join("general", "", "", "c1", "Alice")
	require.NoError(t, err)
	_, err = d.Join("general", "", "", "c2", "Bob")
	require.NoError(t, err)

	member, remaining := d.RemoveMember("general", "c1")
	require.NotNil(t, member)
	assert.Equal(t, "Alice", member.Nickname)
	assert.Equal(t, 1, remaining)
	_, ok := d.GetRoom("general")
	assert.True(t, ok)

	// nickname is free again once the member left
	assert.False(t, d.IsNicknameInUse("general", "alice"))

	_, remaining = d.RemoveMember("general", "c2")
	assert.Equal(t, 0, remaining)
	_, ok = d.GetRoom("general")
	assert.False(t, ok)

	member, _ = d.RemoveMember("general", "c2")
	assert.Nil(t, member)
}

func TestDefaultRoomIsNeverDeleted(t *testing.T) {
	d := newTestDirectory(t)
	require.NoError(t, d.AddMember("lobby", "c1", "Alice"))
	_, remaining := d.RemoveMember("lobby", "c1")
	assert.Equal(t, 0, remaining)
	assert.False(t, d.DeleteIfEmpty("lobby"))
	_, ok := d.GetRoom("lobby")
	assert.True(t, ok)
}

func TestDeleteIfEmptyKeepsOccupiedRoom(t *testing.T) {
	d := newTestDirectory(t)
	_, err := d.Join("general", "", "", "c1", "Alice")
	require.NoError(t, err)
	assert.False(t, d.DeleteIfEmpty("general"))
	assert.False(t, d.DeleteIfEmpty("unknown"))
}

func TestJoinRecreatesClosedRoom(t *testing.T) {
	d := newTestDirectory(t)
	room, err := d.EnsureRoom("general", "", "")
	require.NoError(t, err)
	require.True(t, d.DeleteIfEmpty("general"))
	assert.ErrorIs(t, room.addMember("c1", "Alice"), types.ErrRoomClosed)

	joined, err := d.Join("general", "", "", "c1", "Alice")
	require.NoError(t, err)
	assert.NotSame(t, room, joined)
	assert.Equal(t, 1, joined.Count())
}

func TestConcurrentJoinsSameNickname(t *testing.T) {
	d := newTestDirectory(t)
	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nick := "alice"
			if i%2 == 0 {
				nick = "ALICE"
			}
			_, err := d.Join("race", "", "", fmt.Sprintf("c%d", i), nick)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, types.ErrNicknameInUse)
		}
	}
	assert.Equal(t, 1, succeeded)
	room, ok := d.GetRoom("race")
	require.True(t, ok)
	assert.Equal(t, 1, room.Count())
}

func TestPresence(t *testing.T) {
	d := newTestDirectory(t)
	_, err := d.Join("https://example.com/page", "https://example.com/page", "Page", "c1", "Alice")
	require.NoError(t, err)

	records, err := d.Snapshot("https://example.com/page")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.StatusOnline, records[0].Status)
	assert.Equal(t, "c1", records[0].ConnectionId)
	assert.False(t, records[0].JoinedAt.IsZero())

	require.NoError(t, d.SetStatus("https://example.com/page", "c1", types.StatusAway))
	records, _ = d.Snapshot("https://example.com/page")
	assert.Equal(t, types.StatusAway, records[0].Status)

	before := records[0].LastActivity
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, d.TouchActivity("https://example.com/page", "c1"))
	records, _ = d.Snapshot("https://example.com/page")
	assert.True(t, records[0].LastActivity.After(before))
	// explicit status survives activity
	assert.Equal(t, types.StatusAway, records[0].Status)

	assert.ErrorIs(t, d.SetStatus("https://example.com/page", "ghost", types.StatusIdle), types.ErrNotMember)
	assert.ErrorIs(t, d.TouchActivity("nowhere", "c1"), types.ErrRoomNotFound)
	_, err = d.Snapshot("nowhere")
	assert.ErrorIs(t, err, types.ErrRoomNotFound)
}

func TestSweepIdle(t *testing.T) {
	d := newTestDirectory(t)
	pageId := "https://example.com/page"
	_, err := d.Join(pageId, pageId, "", "c1", "Alice")
	require.NoError(t, err)
	_, err = d.Join(pageId, pageId, "", "c2", "Bob")
	require.NoError(t, err)
	require.NoError(t, d.SetStatus(pageId, "c2", types.StatusIdle))
	// named rooms are not swept
	require.NoError(t, d.AddMember("lobby", "c3", "Carol"))

	now := time.Now()
	assert.Empty(t, d.SweepIdle(now, time.Minute, 10*time.Minute))

	changed := d.SweepIdle(now.Add(2*time.Minute), time.Minute, 10*time.Minute)
	assert.Equal(t, []string{pageId}, changed)
	records, _ := d.Snapshot(pageId)
	assert.Equal(t, types.StatusIdle, records[0].Status)
	assert.Equal(t, types.StatusIdle, records[1].Status)

	changed = d.SweepIdle(now.Add(11*time.Minute), time.Minute, 10*time.Minute)
	assert.Equal(t, []string{pageId}, changed)
	records, _ = d.Snapshot(pageId)
	assert.Equal(t, types.StatusAway, records[0].Status)
	// client-chosen idle is not demoted further
	assert.Equal(t, types.StatusIdle, records[1].Status)

	require.NoError(t, d.TouchActivity(pageId, "c1"))
	records, _ = d.Snapshot(pageId)
	assert.Equal(t, types.StatusActive, records[0].Status)

	lobby, _ := d.Snapshot("lobby")
	assert.Equal(t, types.StatusOnline, lobby[0].Status)
}

func TestListAndDetail(t *testing.T) {
	d := newTestDirectory(t)
	_, err := d.Join("general", "", "", "c1", "Alice")
	require.NoError(t, err)
	_, err = d.Join("https://example.com", "https://example.com", "Example", "c2", "Bob")
	require.NoError(t, err)

	list := d.List()
	require.Len(t, list, 3)
	ids := []string{list[0].Id, list[1].Id, list[2].Id}
	assert.Equal(t, []string{"general", "https://example.com", "lobby"}, ids)
	assert.Equal(t, 1, list[0].MemberCount)
	assert.Equal(t, "Example", list[1].Title)

	detail, err := d.Detail("general")
	require.NoError(t, err)
	require.Len(t, detail.Members, 1)
	assert.Equal(t, "Alice", detail.Members[0].Nickname)

	_, err = d.Detail("nope")
	assert.ErrorIs(t, err, types.ErrRoomNotFound)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/stub-console/internal/apierr"
	"github.com/prasenjit/stub-console/internal/models"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")

func manyStubs(n int) []*models.Stub {
	out := make([]*models.Stub, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, stub(strconv.Itoa(i), i%2 == 0))
	}
	return out
}

func loaded(t *testing.T, api *fakeAPI, page, size int) *Store {
	t.Helper()
	s := New(api, WithPageSize(size))
	require.NoError(t, s.FetchPage(context.Background(), page, size, ""))
	return s
}

func ids(stubs []*models.Stub) []string {
	out := make([]string, len(stubs))
	for i, st := range stubs {
		out[i] = st.ID.String()
	}
	return out
}

func TestNewStoreIsEmpty(t *testing.T) {
	s := New(newFakeAPI())

	snap := s.Snapshot()
	assert.Empty(t, snap.Stubs)
	assert.Equal(t, 0, snap.Page)
	assert.Equal(t, DefaultPageSize, snap.Size)
	assert.Equal(t, int64(0), snap.Total)
	assert.Empty(t, snap.Selected)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Error)
	assert.Equal(t, 0, snap.TotalPages)
	assert.False(t, snap.HasNext)
	assert.False(t, snap.HasPrevious)
	assert.False(t, snap.AllVisibleSelected)
}

func TestFetchPageReplacesState(t *testing.T) {
	api := newFakeAPI(manyStubs(25)...)
	s := New(api)

	require.NoError(t, s.FetchPage(context.Background(), 1, 10, ""))

	page, size, total := s.Page()
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, size)
	assert.Equal(t, int64(25), total)
	assert.Equal(t, []string{"11", "12", "13", "14", "15", "16", "17", "18", "19", "20"}, ids(s.Stubs()))
	assert.Equal(t, 3, s.TotalPages())
	assert.True(t, s.HasNext())
	assert.True(t, s.HasPrevious())
	assert.False(t, s.Loading())
}

func TestFetchPageLastPage(t *testing.T) {
	api := newFakeAPI(manyStubs(25)...)
	s := New(api)

	require.NoError(t, s.FetchPage(context.Background(), 2, 10, ""))

	assert.Len(t, s.Stubs(), 5)
	assert.False(t, s.HasNext())
	assert.True(t, s.HasPrevious())
}

func TestFetchPageFailureKeepsContent(t *testing.T) {
	api := newFakeAPI(manyStubs(5)...)
	s := loaded(t, api, 0, 10)
	before := ids(s.Stubs())

	api.failWith("list", serverError("GET", "/admin/stubs/page"))
	err := s.FetchPage(context.Background(), 1, 10, "other")

	var rec *apierr.Record
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, apierr.KindServer, rec.Kind)
	assert.True(t, rec.Retryable())

	assert.Equal(t, before, ids(s.Stubs()))
	page, size, total := s.Page()
	assert.Equal(t, 0, page)
	assert.Equal(t, 10, size)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, "", s.Keyword())
	assert.False(t, s.Loading())
	assert.Same(t, rec, s.LastError())
}

func TestFetchPageSuccessClearsError(t *testing.T) {
	api := newFakeAPI(manyStubs(3)...)
	s := New(api)

	api.failWith("list", connRefused("GET", "/admin/stubs/page"))
	require.Error(t, s.FetchPage(context.Background(), 0, 10, ""))
	assert.Equal(t, apierr.KindNetwork, s.LastError().Kind)

	api.clearFailures()
	require.NoError(t, s.FetchPage(context.Background(), 0, 10, ""))
	assert.Nil(t, s.LastError())
}

func TestSearchResetsToFirstPage(t *testing.T) {
	api := newFakeAPI(manyStubs(30)...)
	s := loaded(t, api, 2, 5)

	require.NoError(t, s.Search(context.Background(), "stub-1"))

	page, size, total := s.Page()
	assert.Equal(t, 0, page)
	assert.Equal(t, 5, size)
	// stub-1, stub-10..stub-19
	assert.Equal(t, int64(11), total)
	assert.Equal(t, "stub-1", s.Keyword())
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	api := newFakeAPI(manyStubs(30)...)
	s := New(api, WithPageSize(10))

	var once sync.Once
	var newerErr error
	api.listHook = func(page int, keyword string) {
		if page != 0 {
			return
		}
		// A newer fetch completes while the first one is still in flight
		once.Do(func() {
			newerErr = s.FetchPage(context.Background(), 2, 10, "")
		})
	}

	err := s.FetchPage(context.Background(), 0, 10, "")

	assert.ErrorIs(t, err, ErrStaleResponse)
	require.NoError(t, newerErr)
	page, _, _ := s.Page()
	assert.Equal(t, 2, page)
	assert.Equal(t, "21", s.Stubs()[0].ID.String())
	assert.False(t, s.Loading())
}

func TestGetByID(t *testing.T) {
	api := newFakeAPI(stub("1", true))
	s := New(api)

	st := s.GetByID(context.Background(), "1")
	require.NotNil(t, st)
	assert.Equal(t, "stub-1", st.Name)
}

func TestGetByIDSwallowsFailure(t *testing.T) {
	api := newFakeAPI()
	s := New(api)
	_, events := s.Subscribe()

	assert.Nil(t, s.GetByID(context.Background(), "404"))
	assert.Nil(t, s.GetByID(context.Background(), ""))

	assert.Nil(t, s.LastError())
	assert.Empty(t, events)
}

func TestCreateReloadsCurrentPage(t *testing.T) {
	api := newFakeAPI(manyStubs(2)...)
	s := loaded(t, api, 0, 10)
	listsBefore := api.countCalls("list")

	created, err := s.Create(context.Background(), validInput("orders"))

	require.NoError(t, err)
	assert.Equal(t, "3", created.ID.String())
	assert.Equal(t, listsBefore+1, api.countCalls("list"))
	assert.Equal(t, []string{"1", "2", "3"}, ids(s.Stubs()))
	_, _, total := s.Page()
	assert.Equal(t, int64(3), total)
}

func TestCreateValidationFailure(t *testing.T) {
	api := newFakeAPI()
	s := New(api)

	_, err := s.Create(context.Background(), &models.StubInput{Name: "missing-url", Method: "GET", ResponseDefinition: "{}"})

	var rec *apierr.Record
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, apierr.KindValidation, rec.Kind)
	assert.False(t, rec.Retryable())
	assert.Zero(t, api.countCalls("create"))

	_, err = s.Create(context.Background(), nil)
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, apierr.KindValidation, rec.Kind)
}

func TestCreateServerFailureDoesNotReload(t *testing.T) {
	api := newFakeAPI()
	s := loaded(t, api, 0, 10)
	api.failWith("create", serverError("POST", "/admin/stubs"))
	listsBefore := api.countCalls("list")

	_, err := s.Create(context.Background(), validInput("x"))

	require.Error(t, err)
	assert.Equal(t, listsBefore, api.countCalls("list"))
}

func TestCreateBulk(t *testing.T) {
	api := newFakeAPI()
	s := loaded(t, api, 0, 10)

	created, err := s.CreateBulk(context.Background(), []*models.StubInput{validInput("a"), validInput("b")})

	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Len(t, s.Stubs(), 2)
	assert.Equal(t, 1, api.countCalls("bulk"))
}

func TestCreateBulkRejectsInvalidItem(t *testing.T) {
	api := newFakeAPI()
	s := New(api)

	_, err := s.CreateBulk(context.Background(), []*models.StubInput{validInput("a"), {Name: "b"}})
	assert.Equal(t, apierr.KindValidation, apierr.Classify(err))

	_, err = s.CreateBulk(context.Background(), nil)
	assert.Equal(t, apierr.KindValidation, apierr.Classify(err))

	assert.Zero(t, api.countCalls("bulk"))
}

func TestImportBulk(t *testing.T) {
	api := newFakeAPI()
	s := loaded(t, api, 0, 10)

	payload := json.RawMessage(`{"mappings":[{"name":"health","request":{"method":"GET","url":"/health"}}]}`)
	imported, err := s.ImportBulk(context.Background(), payload)

	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, "health", imported[0].Name)
	assert.Len(t, s.Stubs(), 1)
}

func TestImportBulkInvalidPayload(t *testing.T) {
	api := newFakeAPI()
	s := New(api)

	_, err := s.ImportBulk(context.Background(), json.RawMessage(`{not json`))

	assert.Equal(t, apierr.KindValidation, apierr.Classify(err))
	assert.NotNil(t, s.LastError())
}

func TestUpdate(t *testing.T) {
	api := newFakeAPI(stub("1", true))
	s := loaded(t, api, 0, 10)

	in := s.Stubs()[0].Input()
	in.Name = "renamed"
	updated, err := s.Update(context.Background(), "1", in)

	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "renamed", s.Stubs()[0].Name)
}

func TestUpdateUnknownIDIsUnknownKind(t *testing.T) {
	api := newFakeAPI()
	s := New(api)

	_, err := s.Update(context.Background(), "99", validInput("x"))

	var rec *apierr.Record
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, apierr.KindUnknown, rec.Kind)
	assert.Equal(t, 404, rec.StatusCode())
	assert.Equal(t, "stub 99 not found", rec.Message)
}

func TestRemovePrunesSelectionAndReloads(t *testing.T) {
	api := newFakeAPI(manyStubs(3)...)
	s := loaded(t, api, 0, 10)
	s.Select("2")
	s.Select("3")

	require.NoError(t, s.Remove(context.Background(), "2"))

	assert.Equal(t, []string{"1", "3"}, ids(s.Stubs()))
	assert.False(t, s.IsSelected("2"))
	assert.True(t, s.IsSelected("3"))
}

func TestRemoveFailureKeepsSelection(t *testing.T) {
	api := newFakeAPI(manyStubs(3)...)
	s := loaded(t, api, 0, 10)
	s.Select("2")
	api.failWith("delete 2", serverError("DELETE", "/admin/stubs/2"))

	require.Error(t, s.Remove(context.Background(), "2"))

	assert.True(t, s.IsSelected("2"))
	assert.Len(t, s.Stubs(), 3)
}

func TestTogglePatchesOnlyMatchingEntry(t *testing.T) {
	api := newFakeAPI(manyStubs(4)...)
	s := loaded(t, api, 0, 10)
	before := s.Snapshot()
	listsBefore := api.countCalls("list")

	toggled, err := s.Toggle(context.Background(), "3")

	require.NoError(t, err)
	assert.True(t, toggled.Enabled)

	after := s.Snapshot()
	require.Len(t, after.Stubs, len(before.Stubs))
	for i := range before.Stubs {
		if before.Stubs[i].ID == "3" {
			assert.NotEqual(t, before.Stubs[i].Enabled, after.Stubs[i].Enabled)
			continue
		}
		assert.Equal(t, before.Stubs[i], after.Stubs[i])
	}
	assert.Equal(t, before.Page, after.Page)
	assert.Equal(t, before.Size, after.Size)
	assert.Equal(t, before.Total, after.Total)
	assert.Equal(t, listsBefore, api.countCalls("list"), "toggle must not reload")
}

func TestToggleTwiceRestoresState(t *testing.T) {
	api := newFakeAPI(stub("1", false))
	s := loaded(t, api, 0, 10)

	_, err := s.Toggle(context.Background(), "1")
	require.NoError(t, err)
	_, err = s.Toggle(context.Background(), "1")
	require.NoError(t, err)

	assert.False(t, s.Stubs()[0].Enabled)
}

func TestToggleFailureLeavesStateUntouched(t *testing.T) {
	api := newFakeAPI(stub("1", false))
	s := loaded(t, api, 0, 10)
	api.failWith("toggle 1", authError("POST", "/admin/stubs/1/toggle"))

	_, err := s.Toggle(context.Background(), "1")

	var rec *apierr.Record
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, apierr.KindAuth, rec.Kind)
	assert.False(t, s.Stubs()[0].Enabled)
}

func TestReloadAll(t *testing.T) {
	api := newFakeAPI(manyStubs(2)...)
	s := loaded(t, api, 0, 10)

	require.NoError(t, s.ReloadAll(context.Background()))

	calls := api.callLog()
	assert.Equal(t, []string{"list", "reload", "list"}, calls)
}

func TestReloadAllFailure(t *testing.T) {
	api := newFakeAPI()
	s := New(api)
	api.failWith("reload", serverError("POST", "/admin/stubs/reload"))

	err := s.ReloadAll(context.Background())

	assert.Equal(t, apierr.KindServer, apierr.Classify(err))
	assert.Zero(t, api.countCalls("list"))
}

func TestStatistics(t *testing.T) {
	api := newFakeAPI(manyStubs(5)...)
	s := New(api)

	stats := s.Statistics(context.Background())
	require.NotNil(t, stats)
	assert.Equal(t, int64(5), stats.TotalStubs)
	assert.Equal(t, int64(2), stats.EnabledStubs)
	assert.Equal(t, int64(3), stats.DisabledStubs)

	api.failWith("stats", connRefused("GET", "/admin/stubs/statistics"))
	assert.Nil(t, s.Statistics(context.Background()))
	assert.Nil(t, s.LastError())
}

func TestBatchToggleSkipsStubsInTargetState(t *testing.T) {
	api := newFakeAPI(stub("a", true), stub("b", false))
	s := loaded(t, api, 0, 10)

	results, err := s.BatchToggle(context.Background(), []string{"a", "b"}, true)

	require.NoError(t, err)
	assert.Equal(t, []BatchResult{
		{ID: "a", Outcome: OutcomeSkipped},
		{ID: "b", Outcome: OutcomeSucceeded},
	}, results)
	assert.Equal(t, 0, api.countCalls("toggle a"))
	assert.Equal(t, 1, api.countCalls("toggle b"))
	for _, st := range s.Stubs() {
		assert.True(t, st.Enabled, st.ID)
	}
}

func TestBatchToggleLooksUpStubsOffPage(t *testing.T) {
	api := newFakeAPI(stub("1", true), stub("2", false), stub("3", false))
	s := loaded(t, api, 0, 1)

	results, err := s.BatchToggle(context.Background(), []string{"1", "3"}, false)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, results[0].Outcome)
	assert.Equal(t, OutcomeSkipped, results[1].Outcome)
	assert.Equal(t, 1, api.countCalls("get 3"))
	assert.Equal(t, 0, api.countCalls("get 1"))
}

func TestBatchTogglePartialFailure(t *testing.T) {
	api := newFakeAPI(stub("1", false), stub("2", false), stub("3", false))
	s := loaded(t, api, 0, 10)
	api.failWith("toggle 2", serverError("POST", "/admin/stubs/2/toggle"))

	results, err := s.BatchToggle(context.Background(), []string{"1", "2", "3"}, true)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "1 of 3 operations failed", batchErr.Error())
	assert.Equal(t, OutcomeFailed, results[1].Outcome)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, apierr.KindServer, results[1].Error.Kind)

	enabled := map[string]bool{}
	for _, st := range s.Stubs() {
		enabled[st.ID.String()] = st.Enabled
	}
	assert.Equal(t, map[string]bool{"1": true, "2": false, "3": true}, enabled)
}

func TestBatchToggleReachesTargetWhenServerChanged(t *testing.T) {
	api := newFakeAPI(stub("a", false), stub("b", false))
	s := loaded(t, api, 0, 10)

	// another client enabled b after the page was loaded
	api.mu.Lock()
	api.stubs["b"].Enabled = true
	api.mu.Unlock()

	results, err := s.BatchToggle(context.Background(), []string{"a", "b"}, true)

	require.NoError(t, err)
	assert.Equal(t, []BatchResult{
		{ID: "a", Outcome: OutcomeSucceeded},
		{ID: "b", Outcome: OutcomeSucceeded},
	}, results)
	assert.Equal(t, 2, api.countCalls("toggle b"))

	got, err := api.GetStub(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	for _, st := range s.Stubs() {
		assert.True(t, st.Enabled, st.ID)
	}
}

// stuckToggleAPI answers toggles without changing anything
type stuckToggleAPI struct {
	*fakeAPI
}

func (f stuckToggleAPI) ToggleStub(ctx context.Context, id string) (*models.Stub, error) {
	if err := f.record("toggle", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stubs[id].Clone(), nil
}

func TestBatchToggleFailsWhenTargetNotReached(t *testing.T) {
	api := newFakeAPI(stub("1", false))
	s := New(stuckToggleAPI{api}, WithPageSize(10))
	require.NoError(t, s.FetchPage(context.Background(), 0, 10, ""))

	results, err := s.BatchToggle(context.Background(), []string{"1"}, true)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "1 of 1 operations failed", batchErr.Error())
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, apierr.KindUnknown, results[0].Error.Kind)
	assert.Contains(t, results[0].Error.Message, "enabled=true")
	assert.Equal(t, 2, api.countCalls("toggle 1"))
}

func TestBatchDeletePartialFailure(t *testing.T) {
	api := newFakeAPI(stub("1", true), stub("2", true), stub("3", true))
	s := loaded(t, api, 0, 10)
	s.Select("1")
	s.Select("2")
	api.failWith("delete 1", serverError("DELETE", "/admin/stubs/1"))

	results, err := s.BatchDelete(context.Background(), []string{"1", "2"})

	require.Error(t, err)
	assert.Equal(t, "1 of 2 operations failed", err.(*apierr.Record).Message)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Failed)
	assert.Equal(t, 2, batchErr.Total)
	assert.Equal(t, results, batchErr.Results)

	// both attempted in order, then one reload
	assert.Equal(t, []string{"list", "delete 1", "delete 2", "list"}, api.callLog())
	assert.Equal(t, []string{"1", "3"}, ids(s.Stubs()))
	assert.True(t, s.IsSelected("1"))
	assert.False(t, s.IsSelected("2"))
	assert.Equal(t, apierr.KindServer, s.LastError().Kind)
}

func TestBatchDeleteAllSucceed(t *testing.T) {
	api := newFakeAPI(manyStubs(3)...)
	s := loaded(t, api, 0, 10)

	results, err := s.BatchDelete(context.Background(), []string{"1", "3"})

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []string{"2"}, ids(s.Stubs()))
	assert.Nil(t, s.LastError())
}

func TestBatchMixedFailureKindsIsUnknown(t *testing.T) {
	api := newFakeAPI(manyStubs(2)...)
	s := loaded(t, api, 0, 10)
	api.failWith("delete 1", serverError("DELETE", "/admin/stubs/1"))
	api.failWith("delete 2", connRefused("DELETE", "/admin/stubs/2"))

	_, err := s.BatchDelete(context.Background(), []string{"1", "2"})

	assert.Equal(t, apierr.KindUnknown, apierr.Classify(err))
	assert.Contains(t, err.Error(), "2 of 2 operations failed")
}

func TestSelection(t *testing.T) {
	api := newFakeAPI(manyStubs(3)...)
	s := loaded(t, api, 0, 10)

	assert.False(t, s.IsSelected("1"))
	s.Select("1")
	assert.True(t, s.IsSelected("1"))
	s.Deselect("1")
	assert.False(t, s.IsSelected("1"))

	s.SelectAllVisible()
	assert.True(t, s.AllVisibleSelected())
	assert.Equal(t, []string{"1", "2", "3"}, s.Selected())

	s.Deselect("2")
	assert.False(t, s.AllVisibleSelected())

	s.ClearSelection()
	assert.Empty(t, s.Selected())
	s.ClearSelection()
	assert.Empty(t, s.Selected())
}

func TestAllVisibleSelectedEmptyPage(t *testing.T) {
	s := loaded(t, newFakeAPI(), 0, 10)

	s.SelectAllVisible()
	assert.False(t, s.AllVisibleSelected())
}

func TestSelectionSurvivesPageChange(t *testing.T) {
	api := newFakeAPI(manyStubs(4)...)
	s := loaded(t, api, 0, 2)
	s.SelectAllVisible()

	require.NoError(t, s.FetchPage(context.Background(), 1, 2, ""))

	assert.Equal(t, []string{"1", "2"}, s.Selected())
	assert.False(t, s.AllVisibleSelected())
}

func TestSubscribeReceivesEvents(t *testing.T) {
	api := newFakeAPI(stub("1", false))
	s := loaded(t, api, 0, 10)
	id, events := s.Subscribe()
	assert.Equal(t, 1, s.Subscribers())

	_, err := s.Toggle(context.Background(), "1")
	require.NoError(t, err)

	ev := receive(t, events)
	assert.Equal(t, EventState, ev.Type)
	assert.NotEmpty(t, ev.ID)
	require.NotNil(t, ev.State)
	assert.True(t, ev.State.Stubs[0].Enabled)

	api.failWith("toggle 1", serverError("POST", "/admin/stubs/1/toggle"))
	_, err = s.Toggle(context.Background(), "1")
	require.Error(t, err)

	ev = receive(t, events)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, apierr.KindServer, ev.Error.Kind)

	s.Unsubscribe(id)
	_, ok := <-events
	assert.False(t, ok)
	assert.Equal(t, 0, s.Subscribers())
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	s := New(newFakeAPI())
	_, events := s.Subscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		s.Select(strconv.Itoa(i))
	}

	assert.Len(t, events, subscriberBuffer)
}

func TestConcurrentActions(t *testing.T) {
	api := newFakeAPI(manyStubs(50)...)
	s := New(api, WithPageSize(10))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.FetchPage(context.Background(), i%5, 10, "")
			if err != nil {
				assert.ErrorIs(t, err, ErrStaleResponse)
			}
			s.Select(strconv.Itoa(i))
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.Stubs, 10)
	assert.Len(t, snap.Selected, 10)
	assert.False(t, snap.Loading)
}

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	for {
		select {
		case ev := <-ch:
			// skip loading transitions from reloads
			if ev.Type == EventState && ev.State.Loading {
				continue
			}
			return ev
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

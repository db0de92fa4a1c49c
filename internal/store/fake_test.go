package store

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prasenjit/stub-console/internal/adminapi"
	"github.com/prasenjit/stub-console/internal/models"
)

// fakeAPI is a scripted in-memory admin API
type fakeAPI struct {
	mu     sync.Mutex
	stubs  map[string]*models.Stub
	nextID int
	calls  []string
	fail   map[string]error // "op" or "op id" -> error

	// listHook runs before ListPage answers; tests use it to interleave fetches
	listHook func(page int, keyword string)
}

func newFakeAPI(stubs ...*models.Stub) *fakeAPI {
	f := &fakeAPI{
		stubs: make(map[string]*models.Stub),
		fail:  make(map[string]error),
	}
	for _, st := range stubs {
		f.stubs[st.ID.String()] = st.Clone()
		if n, err := strconv.Atoi(st.ID.String()); err == nil && n > f.nextID {
			f.nextID = n
		}
	}
	return f
}

func stub(id string, enabled bool) *models.Stub {
	return &models.Stub{
		ID:                 models.ID(id),
		Name:               "stub-" + id,
		Method:             "GET",
		URL:                "/api/" + id,
		UrlMatchType:       models.MatchEquals,
		ResponseDefinition: `{"status":200}`,
		Enabled:            enabled,
	}
}

func validInput(name string) *models.StubInput {
	return &models.StubInput{
		Name:               name,
		Method:             "POST",
		URL:                "/api/" + name,
		ResponseDefinition: `{"status":201}`,
		Enabled:            true,
	}
}

func (f *fakeAPI) record(op, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := op
	if id != "" {
		key = op + " " + id
	}
	f.calls = append(f.calls, key)
	if err, ok := f.fail[key]; ok {
		return err
	}
	if err, ok := f.fail[op]; ok {
		return err
	}
	return nil
}

func (f *fakeAPI) failWith(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[key] = err
}

func (f *fakeAPI) clearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = make(map[string]error)
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) countCalls(prefix string) int {
	n := 0
	for _, c := range f.callLog() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeAPI) sortedLocked() []*models.Stub {
	out := make([]*models.Stub, 0, len(f.stubs))
	for _, st := range f.stubs {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID.String())
		b, _ := strconv.Atoi(out[j].ID.String())
		return a < b
	})
	return out
}

func (f *fakeAPI) ListPage(ctx context.Context, page, size int, keyword string) (*models.Page, error) {
	if f.listHook != nil {
		f.listHook(page, keyword)
	}
	if err := f.record("list", ""); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]*models.Stub, 0)
	for _, st := range f.sortedLocked() {
		if keyword == "" || strings.Contains(st.Name, keyword) || strings.Contains(st.URL, keyword) {
			matched = append(matched, st.Clone())
		}
	}

	start := page * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return &models.Page{
		Content:       matched[start:end],
		Number:        page,
		Size:          size,
		TotalElements: int64(len(matched)),
	}, nil
}

func (f *fakeAPI) GetStub(ctx context.Context, id string) (*models.Stub, error) {
	if err := f.record("get", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stubs[id]
	if !ok {
		return nil, notFound("GET", id)
	}
	return st.Clone(), nil
}

func (f *fakeAPI) CreateStub(ctx context.Context, in *models.StubInput) (*models.Stub, error) {
	if err := f.record("create", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(in), nil
}

func (f *fakeAPI) insertLocked(in *models.StubInput) *models.Stub {
	f.nextID++
	st := &models.Stub{
		ID:                 models.ID(strconv.Itoa(f.nextID)),
		Name:               in.Name,
		Method:             in.Method,
		URL:                in.URL,
		UrlMatchType:       in.UrlMatchType,
		ResponseDefinition: in.ResponseDefinition,
		Priority:           in.Priority,
		Enabled:            in.Enabled,
	}
	f.stubs[st.ID.String()] = st
	return st.Clone()
}

func (f *fakeAPI) CreateStubs(ctx context.Context, ins []*models.StubInput) ([]*models.Stub, error) {
	if err := f.record("bulk", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Stub, 0, len(ins))
	for _, in := range ins {
		out = append(out, f.insertLocked(in))
	}
	return out, nil
}

func (f *fakeAPI) ImportStubs(ctx context.Context, payload json.RawMessage) ([]*models.Stub, error) {
	if err := f.record("import", ""); err != nil {
		return nil, err
	}
	var doc struct {
		Mappings []struct {
			Name    string `json:"name"`
			Request struct {
				Method string `json:"method"`
				URL    string `json:"url"`
			} `json:"request"`
		} `json:"mappings"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, &adminapi.PayloadError{Reason: err.Error()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Stub, 0, len(doc.Mappings))
	for _, m := range doc.Mappings {
		out = append(out, f.insertLocked(&models.StubInput{
			Name:               m.Name,
			Method:             m.Request.Method,
			URL:                m.Request.URL,
			ResponseDefinition: `{"status":200}`,
			Enabled:            true,
		}))
	}
	return out, nil
}

func (f *fakeAPI) UpdateStub(ctx context.Context, id string, in *models.StubInput) (*models.Stub, error) {
	if err := f.record("update", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stubs[id]
	if !ok {
		return nil, notFound("PUT", id)
	}
	st.Name = in.Name
	st.Method = in.Method
	st.URL = in.URL
	st.ResponseDefinition = in.ResponseDefinition
	st.Enabled = in.Enabled
	return st.Clone(), nil
}

func (f *fakeAPI) DeleteStub(ctx context.Context, id string) error {
	if err := f.record("delete", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stubs[id]; !ok {
		return notFound("DELETE", id)
	}
	delete(f.stubs, id)
	return nil
}

func (f *fakeAPI) ToggleStub(ctx context.Context, id string) (*models.Stub, error) {
	if err := f.record("toggle", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stubs[id]
	if !ok {
		return nil, notFound("POST", id)
	}
	st.Enabled = !st.Enabled
	return st.Clone(), nil
}

func (f *fakeAPI) ReloadStubs(ctx context.Context) error {
	return f.record("reload", "")
}

func (f *fakeAPI) Statistics(ctx context.Context) (*models.Statistics, error) {
	if err := f.record("stats", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.Statistics{TotalStubs: int64(len(f.stubs))}
	for _, st := range f.stubs {
		if st.Enabled {
			stats.EnabledStubs++
		} else {
			stats.DisabledStubs++
		}
	}
	return stats, nil
}

func notFound(method, id string) error {
	return &adminapi.ResponseError{
		Method:     method,
		Path:       adminapi.BasePath + "/" + id,
		StatusCode: 404,
		Body:       []byte(`{"errorCode":"NOT_FOUND","message":"stub ` + id + ` not found"}`),
	}
}

func serverError(method, path string) error {
	return &adminapi.ResponseError{Method: method, Path: path, StatusCode: 500}
}

func connRefused(method, path string) error {
	return &adminapi.TransportError{Method: method, Path: path, Err: errConnRefused}
}

func authError(method, path string) error {
	return &adminapi.ResponseError{Method: method, Path: path, StatusCode: 401}
}

package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/hitoshi/docdownload/internal/middleware"
	"github.com/hitoshi/docdownload/internal/model"
	"github.com/hitoshi/docdownload/internal/security"
	"github.com/hitoshi/docdownload/internal/shortid"
	"github.com/hitoshi/docdownload/internal/web"
)

// --- モック定義 ---

var (
	testServiceID  = uuid.MustParse("0c8d1b0e-52b6-4ef1-9c1a-6c3e2e0d9f11")
	testDocumentID = uuid.MustParse("7f2a9d34-1b5c-4e8f-a0d2-3c4b5a6f7e81")
	testKey        = "9rGh-secret_key"
)

// mockDocumentAPI はDocumentAPIのモック実装。呼び出しを順に記録する。
type mockDocumentAPI struct {
	getServiceFn    func(ctx context.Context, serviceID uuid.UUID, onward http.Header) (*model.ServiceInfo, error)
	checkDocumentFn func(ctx context.Context, ref model.DocumentReference, onward http.Header) (*model.DocumentMetadata, error)
	authenticateFn  func(ctx context.Context, ref model.DocumentReference, email string, onward http.Header) (*model.AuthorizationGrant, error)

	mu     sync.Mutex
	calls  []string
	onward []http.Header
}

func (m *mockDocumentAPI) record(op string, onward http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	m.onward = append(m.onward, onward)
}

func (m *mockDocumentAPI) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockDocumentAPI) GetService(ctx context.Context, serviceID uuid.UUID, onward http.Header) (*model.ServiceInfo, error) {
	m.record("get_service", onward)
	if m.getServiceFn != nil {
		return m.getServiceFn(ctx, serviceID, onward)
	}
	return &model.ServiceInfo{Name: "Example Service", ContactInfo: "help@example.gov.uk"}, nil
}

func (m *mockDocumentAPI) CheckDocument(ctx context.Context, ref model.DocumentReference, onward http.Header) (*model.DocumentMetadata, error) {
	m.record("check_document", onward)
	if m.checkDocumentFn != nil {
		return m.checkDocumentFn(ctx, ref, onward)
	}
	return testMetadata(false), nil
}

func (m *mockDocumentAPI) Authenticate(ctx context.Context, ref model.DocumentReference, email string, onward http.Header) (*model.AuthorizationGrant, error) {
	m.record("authenticate", onward)
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, ref, email, onward)
	}
	return nil, nil
}

func testMetadata(confirmEmail bool) *model.DocumentMetadata {
	return &model.DocumentMetadata{
		DirectFileURL:             "https://download.example.gov.uk/services/" + testServiceID.String() + "/documents/" + testDocumentID.String() + ".pdf",
		SizeInBytes:               1048576,
		FileExtension:             "pdf",
		AvailableUntil:            "2999-01-01",
		RequiresEmailConfirmation: confirmEmail,
	}
}

func withMetadata(md *model.DocumentMetadata) func(context.Context, model.DocumentReference, http.Header) (*model.DocumentMetadata, error) {
	return func(context.Context, model.DocumentReference, http.Header) (*model.DocumentMetadata, error) {
		return md, nil
	}
}

// --- テストヘルパー ---

type testEnv struct {
	router http.Handler
	api    *mockDocumentAPI
	logs   *bytes.Buffer
}

func newTestEnv(t *testing.T, api *mockDocumentAPI, mutate ...func(*RouterDeps)) *testEnv {
	t.Helper()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	views, err := web.NewTemplateSet(web.Options{HeaderColour: "#005EA5"}, logger)
	if err != nil {
		t.Fatalf("NewTemplateSet() error = %v", err)
	}

	deps := &RouterDeps{
		Logger:      logger,
		DocumentAPI: api,
		Views:       views,
		Sanitizer:   security.NewTextSanitizer(),
		CSRF:        middleware.CSRFConfig{Enabled: false},
		Access: AccessHandlerConfig{
			CookieSecure: true,
			CookieDomain: "example.gov.uk",
		},
		APIHostName:       "https://download.example.gov.uk",
		SecurityPolicyURL: "https://vdp.cabinetoffice.gov.uk/.well-known/security.txt",
	}
	for _, m := range mutate {
		m(deps)
	}

	return &testEnv{router: NewRouter(deps), api: api, logs: &logs}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func pagePath(suffix string, key string) string {
	p := "/d/" + shortid.Encode(testServiceID) + "/" + shortid.Encode(testDocumentID) + suffix
	if key != "" {
		p += "?" + url.Values{"key": {key}}.Encode()
	}
	return p
}

func postEmail(path, email string) *http.Request {
	form := url.Values{}
	form.Set("email_address", email)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func body(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	b, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(b)
}

func assertCalls(t *testing.T, api *mockDocumentAPI, want ...string) {
	t.Helper()
	got := api.Calls()
	if len(got) != len(want) {
		t.Fatalf("upstream calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("upstream calls = %v, want %v", got, want)
		}
	}
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

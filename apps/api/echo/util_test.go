package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/pariksha/lms/apps/api/echo"
	"github.com/pariksha/lms/apps/shared"
	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/access"
	"github.com/pariksha/lms/core/attempt"
	"github.com/pariksha/lms/core/payment"
	"github.com/pariksha/lms/testutil"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type env struct {
	conf    *core.Config
	store   *testutil.Store
	gateway *testutil.Gateway
	logger  *testutil.Logger
	server  *echoapi.Server
}

func setup(t *testing.T) *env {
	t.Helper()
	e := &env{
		conf: &core.Config{
			Env:       "TEST",
			TestMode:  true,
			AppName:   "Pariksha",
			SecretKey: "secret",
			Server: core.ServerConfig{
				DisableReqLogs:     true,
				JWTExpirationDelta: time.Hour,
			},
		},
		store:   testutil.NewStore(),
		gateway: testutil.NewGateway(),
		logger:  &testutil.Logger{},
	}

	validate, translator := shared.NewValidator()

	cache := testutil.NewCache()
	e.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:   e.conf,
		Logger: e.logger,
		Payments: payment.NewService(payment.Options{
			Repo:         e.store.Payments,
			Entitlements: e.store.Entitlements,
			Catalog:      e.store.Catalog,
			Gateway:      e.gateway,
			IDs:          &testutil.IDs{},
			Logger:       e.logger,
			Cache:        cache,
			PollInterval: time.Minute,
		}),
		Attempts: attempt.NewService(attempt.Options{
			Repo:         e.store.Results,
			Entitlements: e.store.Entitlements,
			Catalog:      e.store.Catalog,
			Logger:       e.logger,
			Cache:        cache,
		}),
		Access: access.NewService(access.Options{
			Entitlements: e.store.Entitlements,
			Results:      e.store.Results,
			Catalog:      e.store.Catalog,
			Logger:       e.logger,
			Cache:        cache,
			CacheTTL:     time.Minute,
		}),
		Credentials: payment.NewCredentialService(e.store.Credentials, e.logger),
		Validate:    validate,
		Translator:  translator,
	})
	return e
}

func (e *env) token(t *testing.T, userID string, isAdmin bool) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.NewClaims(e.conf, userID, userID, isAdmin), e.conf.SecretKey)
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (e *env) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	e.server.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, e *env, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, e.do(req, rec))
		})
	}
}

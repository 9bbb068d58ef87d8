package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/vilmosmisota/sportapp/apps/api/echo"
	"github.com/vilmosmisota/sportapp/core/user"
	cachesvc "github.com/vilmosmisota/sportapp/services/cache"
	reportsvc "github.com/vilmosmisota/sportapp/services/report"
	storagesvc "github.com/vilmosmisota/sportapp/services/storage"
	"github.com/vilmosmisota/sportapp/tests"
)

var errMissingToken = httpErr{Error: "user not authenticated"}

func setup(t *testing.T, limiter ...cachesvc.PINAttemptLimiter) (*Server, *testutil.Env) {
	env := testutil.NewEnv(t)
	store := storagesvc.NewLocalStore(t.TempDir(), "http://localhost:8000/media")

	deps := ServerDeps{
		Conf:           env.Conf,
		Logger:         env.Logger,
		Validate:       env.Validate,
		Translator:     env.Translator,
		TenantSvc:      env.TenantSvc,
		UserSvc:        env.UserSvc,
		MemberSvc:      env.MemberSvc,
		AttendanceSvc:  env.AttendanceSvc,
		Reports:        reportsvc.NewXLSXWriter(),
		Uploader:       storagesvc.NewUploader(store, env.Conf),
		DisableReqLogs: true,
	}
	if len(limiter) > 0 {
		deps.Limiter = limiter[0]
	}
	app := NewServer(deps)
	t.Cleanup(func() { _ = app.Close() })
	return app, env
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

func getToken(t *testing.T, env *testutil.Env, tenantID string, tu user.TenantUser) string {
	token, err := GenerateToken(env.Conf, NewClaims(env.Conf, tenantID, tu))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

// nolint
func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
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

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	checkCode(t, tt, rec)
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app *Server, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else {
				checkCode(t, tt, rec)
			}
		})
	}
}

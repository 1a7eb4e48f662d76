package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pariksha/lms/core/payment"
)

func TestCredentialAPI(t *testing.T) {
	e := setup(t)
	admin := e.token(t, "admin", true)
	newCred := map[string]interface{}{
		"env":         "UAT",
		"merchant_id": "MERCHANTUAT",
		"salt_key":    "s3cr3t-salt",
		"salt_index":  1,
		"base_url":    "https://api-preprod.phonepe.com/apis/pg-sandbox",
	}

	runHTTPTests(t, e, []httpTest{
		{name: "not admin", method: http.MethodGet, path: "/v1/gateway/credentials", token: e.token(t, "u1", false), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "no token", method: http.MethodGet, path: "/v1/gateway/credentials", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name:     "invalid",
			method:   http.MethodPost,
			path:     "/v1/gateway/credentials",
			body:     marshalObj(t, map[string]interface{}{"env": "STAGING", "merchant_id": " ", "salt_key": "k", "salt_index": 1, "base_url": "https://x.test"}),
			token:    admin,
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"env":         "env must be one of [UAT PROD]",
				"merchant_id": "this field cannot be blank",
			}),
		},
		{name: "activate unknown", method: http.MethodPut, path: "/v1/gateway/credentials/nope/activate", token: admin, wantCode: http.StatusNotFound},
	})

	var first payment.Credential
	t.Run("create inactive", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/gateway/credentials", admin, marshalObj(t, newCred))
		e.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "s3cr3t-salt")
		decode(t, rec, &first)
		assert.False(t, first.IsActive)
		assert.Equal(t, 1, first.Version)
	})

	var second payment.Credential
	t.Run("create and activate", func(t *testing.T) {
		newCred["activate"] = true
		newCred["env"] = "PROD"
		req, rec := newAuthRequest(http.MethodPost, "/v1/gateway/credentials", admin, marshalObj(t, newCred))
		e.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &second)
		assert.True(t, second.IsActive)
		assert.Equal(t, 2, second.Version)
	})

	t.Run("switch back", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/gateway/credentials/"+first.ID+"/activate", admin)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/gateway/credentials", admin)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var creds []payment.Credential
		decode(t, rec, &creds)
		require.Len(t, creds, 2)
		active := map[string]bool{}
		for _, c := range creds {
			active[c.ID] = c.IsActive
		}
		assert.Equal(t, map[string]bool{first.ID: true, second.ID: false}, active)
	})
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contabil/fiscore/pkg/types/common"
)

func TestTenantMiddleware_InjectsOrgAndUser(t *testing.T) {
	var gotOrg common.OrgID
	var gotUser common.UserID

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = ContextOrgID(r.Context())
		gotUser = ContextUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/instances", nil)
	r.Header.Set(HeaderOrgID, "org-1")
	r.Header.Set(HeaderUserID, "user-1")

	w := httptest.NewRecorder()
	NewTenantMiddleware().Handler(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.OrgID("org-1"), gotOrg)
	assert.Equal(t, common.UserID("user-1"), gotUser)
}

func TestTenantMiddleware_MissingOrgRejected(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a tenant")
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/instances", nil)
	w := httptest.NewRecorder()
	NewTenantMiddleware().Handler(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "X-Org-ID")
}

func TestContextHelpers_EmptyWhenUnset(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ContextOrgID(r.Context()))
	assert.Empty(t, ContextUserID(r.Context()))
}

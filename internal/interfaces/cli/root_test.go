package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the CLI with args against serverURL and returns what
// the command printed.
func executeCommand(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	cmd.SetContext(context.Background())

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	full := append(args, "--server", serverURL, "--org", "org-1", "--user", "user-1")
	cmd.SetArgs(full)

	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_RequiresOrg(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetContext(context.Background())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"instances", "list", "--org", ""})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "organization id is required")
}

func TestRootCommand_RejectsUnknownOutputFormat(t *testing.T) {
	_, err := executeCommand(t, "http://localhost:1", "instances", "list", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestGetCLIContext_MissingReturnsError(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetContext(context.Background())

	_, err := GetCLIContext(cmd)
	require.Error(t, err)
}

func TestInstancesList_RendersTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/instances", r.URL.Path)
		assert.Equal(t, "org-1", r.Header.Get("X-Org-ID"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"items":[
			{"id":"i1","competence":"03/2025","status":"overdue","due_at":"2025-04-20T00:00:00Z","internal_target_at":"2025-04-15T00:00:00Z"}
		],"total":1,"page":1,"page_size":50}}`))
	}))
	defer srv.Close()

	out, err := executeCommand(t, srv.URL, "instances", "list", "--status", "overdue")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPETENCE")
	assert.Contains(t, out, "03/2025")
	assert.Contains(t, out, "overdue")
	assert.Contains(t, out, "1 of 1 instance(s)")
}

func TestInstancesGenerate_PrintsReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/instances/generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"competence":"03/2025","links_visited":12,"instances_created":7,"already_existing":5,"skipped":0}}`))
	}))
	defer srv.Close()

	out, err := executeCommand(t, srv.URL, "instances", "generate", "03/2025")
	require.NoError(t, err)
	assert.Contains(t, out, "7 created")
	assert.Contains(t, out, "5 already existing")
}

func TestInstancesGenerate_NoArgTargetsCurrentMonth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Competence string `json:"competence"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Empty(t, body.Competence)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"competence":"09/2026","links_visited":3,"instances_created":1,"already_existing":2,"skipped":0}}`))
	}))
	defer srv.Close()

	out, err := executeCommand(t, srv.URL, "instances", "generate")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated 09/2026")
	assert.Contains(t, out, "1 created")
}

func TestInstancesComplete_RequiresNotes(t *testing.T) {
	_, err := executeCommand(t, "http://localhost:1", "instances", "complete", "i1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes are required")
}

func TestDeliveriesCancel_SurfacesConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":{"code":"DLV_002","message":"only pending deliveries can be cancelled"}}`))
	}))
	defer srv.Close()

	_, err := executeCommand(t, srv.URL, "deliveries", "cancel", "q1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DLV_002")
}

func TestUploadsClassifyBatch_PrintsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"success_count":1,"error_count":1,"failed_file_names":["gps.pdf"],"reasons":["upload is not ready for batch classification"]}}`))
	}))
	defer srv.Close()

	out, err := executeCommand(t, srv.URL, "uploads", "classify-batch", "u1", "u2")
	require.NoError(t, err)
	assert.Contains(t, out, "Promoted 1, failed 1")
	assert.Contains(t, out, "gps.pdf")
}

func TestOutputJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"competence":"03/2025","links_visited":1,"instances_created":1,"already_existing":0,"skipped":0}}`))
	}))
	defer srv.Close()

	out, err := executeCommand(t, srv.URL, "instances", "generate", "03/2025", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"instances_created": 1`)
}

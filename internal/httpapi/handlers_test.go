package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdimeji/mmsgate/internal/mms"
	"github.com/tdimeji/mmsgate/internal/mmsconfig"
	"github.com/tdimeji/mmsgate/internal/network"
	"github.com/tdimeji/mmsgate/internal/request"
	"github.com/tdimeji/mmsgate/internal/scheduler"
	"github.com/tdimeji/mmsgate/internal/store"
	"github.com/tdimeji/mmsgate/internal/transport"
	"github.com/tdimeji/mmsgate/pkg/codes"
)

func newTestRouter(t *testing.T, mmscURL string) (*gin.Engine, *store.MemStore, *StatusStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache := mmsconfig.NewCache()
	cache.RefreshAll(context.Background(), map[int]map[string]any{
		1: {"mmsc_url": mmscURL, "user_agent": "mmsgate-test"},
	})
	mem := store.NewMemStore()
	env := &request.Env{
		Configs:      cache,
		Leases:       network.NewLeaseManager(&network.HostPlatform{}, 2*time.Second, time.Second),
		Transport:    transport.NewClient(transport.Options{}),
		Store:        mem,
		MaxAttempts:  1,
		RetryBackoff: time.Millisecond,
		Sleep:        func(context.Context, time.Duration) {},
	}
	sched := scheduler.New(env, nil, scheduler.Config{SendWorkers: 2, DownloadWorkers: 2})
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	statuses := NewStatusStore()
	router := gin.New()
	RegisterRoutes(router, NewHandler(mms.NewService(cache, sched), statuses))
	return router, mem, statuses
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func awaitStatus(t *testing.T, router *gin.Engine, id, want string) StatusEntry {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		w := doJSON(t, router, http.MethodGet, "/v1/requests/"+id, "")
		require.Equal(t, http.StatusOK, w.Code)
		var entry StatusEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		if entry.Status == want {
			return entry
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("request %s never reached status %s", id, want)
	return StatusEntry{}
}

func TestSendEndpointAcceptsAndCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	router, mem, _ := newTestRouter(t, srv.URL)
	require.NoError(t, mem.Write(context.Background(), "msg-1", []byte("pdu")))

	w := doJSON(t, router, http.MethodPost, "/v1/mms/send",
		`{"sub_id":1,"payload_handle":"msg-1"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp submitResponseDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RequestID)
	assert.Equal(t, codes.ReqStatusPending, resp.Status)

	entry := awaitStatus(t, router, resp.RequestID, codes.ReqStatusSucceeded)
	assert.Equal(t, codes.KindSend, entry.Kind)
	assert.Equal(t, 1, entry.Attempts)
}

func TestDownloadEndpointStoresContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("retrieved"))
	}))
	defer srv.Close()

	router, mem, _ := newTestRouter(t, srv.URL)

	w := doJSON(t, router, http.MethodPost, "/v1/mms/download",
		`{"sub_id":1,"location_url":"`+srv.URL+`/msg","payload_handle":"dl-1"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp submitResponseDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	awaitStatus(t, router, resp.RequestID, codes.ReqStatusSucceeded)

	stored, ok := mem.Get("dl-1")
	require.True(t, ok)
	assert.Equal(t, []byte("retrieved"), stored)
}

func TestSendEndpointRejectsBadBody(t *testing.T) {
	router, _, _ := newTestRouter(t, "http://mmsc.invalid")

	w := doJSON(t, router, http.MethodPost, "/v1/mms/send", `{"sub_id":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/mms/send",
		`{"sub_id":-5,"payload_handle":"msg-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConfigEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, "http://mmsc.example.com/mms")

	w := doJSON(t, router, http.MethodGet, "/v1/config/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mmsc.example.com")

	w = doJSON(t, router, http.MethodGet, "/v1/config/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetUnknownRequest(t *testing.T) {
	router, _, _ := newTestRouter(t, "http://mmsc.invalid")
	w := doJSON(t, router, http.MethodGet, "/v1/requests/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/foodorder/internal/auth"
	"github.com/Alturino/foodorder/internal/constants"
	inHttp "github.com/Alturino/foodorder/internal/http"
	"github.com/Alturino/foodorder/internal/middleware"
)

func setupServer(t *testing.T, h *Hub) (*httptest.Server, *auth.TokenService) {
	t.Helper()
	tokens := auth.NewTokenService("secret", "storefront-auth", constants.AudienceStorefront, time.Hour)
	router := mux.NewRouter()
	router.Use(middleware.Logging, middleware.Authenticate(tokens))
	AttachHub(router, h)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, tokens
}

func connect(t *testing.T, c context.Context, url string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(c, http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(inHttp.KeyHeaderAuthorization, "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func TestEventsRequireStaff(t *testing.T) {
	server, tokens := setupServer(t, New(time.Minute))
	customer, err := tokens.Issue(context.Background(), uuid.New(), auth.RoleCustomer)
	require.NoError(t, err)

	res := connect(t, context.Background(), server.URL+"/events", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = connect(t, context.Background(), server.URL+"/events", customer)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestEventsStreamBroadcasts(t *testing.T) {
	h := New(time.Minute)
	server, tokens := setupServer(t, h)
	staff, err := tokens.Issue(context.Background(), uuid.New(), auth.RoleStaff)
	require.NoError(t, err)

	c, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := connect(t, c, server.URL+"/events", staff)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, inHttp.ValueHeaderEventStream, res.Header.Get(inHttp.KeyHeaderContentType))

	reader := bufio.NewReader(res.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	assert.Equal(t, 1, h.Clients())

	assert.Equal(t, 1, h.Broadcast([]byte(`{"orderNumber":"ORD-1","to":"CONFIRMED"}`)))

	var received []string
	for len(received) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "data:") {
			received = append(received, strings.TrimSpace(line))
		}
	}
	assert.Equal(t, []string{
		"event: order-status-changed",
		`data: {"orderNumber":"ORD-1","to":"CONFIRMED"}`,
	}, received)

	cancel()
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastSkipsFullClients(t *testing.T) {
	h := New(time.Minute)
	slow := h.subscribe()
	for i := 0; i < clientBuffer; i++ {
		require.Equal(t, 1, h.Broadcast([]byte("x")))
	}
	fast := h.subscribe()

	assert.Equal(t, 1, h.Broadcast([]byte("y")))
	assert.Len(t, slow, clientBuffer)
	assert.Equal(t, []byte("y"), <-fast)
}

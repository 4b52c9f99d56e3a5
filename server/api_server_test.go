package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApiServer_Punishments(t *testing.T) {
	proxy := newTestProxy(t, newFakeGame(), "")
	_, packets := attachPipe(t, proxy, "lobby")
	api := NewApiServer(proxy, nil, MetricsBackendDiscard)

	body, err := json.Marshal(punishmentToJSON(*ban(11, "lobby")))
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/punishments", bytes.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	p := expectPacket(t, packets)
	assert.Equal(t, protocol.SubchannelPlayerBan, p.Subchannel)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/punishments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []PunishmentJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, int64(11), listed[0].ID)
	assert.Equal(t, steve, listed[0].Player)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/punishments/11?staff=admin", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	p = expectPacket(t, packets)
	assert.Equal(t, protocol.SubchannelPlayerUnban, p.Subchannel)
	assert.Equal(t, 0, proxy.Punishments().Len())

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/punishments/11", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApiServer_RejectsBadPunishments(t *testing.T) {
	proxy := newTestProxy(t, newFakeGame(), "")
	api := NewApiServer(proxy, nil, MetricsBackendDiscard)

	for _, body := range []string{`{"id": 1, "type": "JAIL"}`, `not json`} {
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/punishments", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestApiServer_LinksAndViolations(t *testing.T) {
	proxy := newTestProxy(t, newFakeGame(), "")
	a, _ := attachPipe(t, proxy, "lobby")
	attachPipe(t, proxy, "creative")
	writePayload(t, a, flyViolation(2))
	require.Eventually(t, func() bool {
		_, ok := proxy.Violations().Get(steve, "fly")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	api := NewApiServer(proxy, nil, MetricsBackendDiscard)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/links", nil))
	var links LinksJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	assert.Equal(t, ProxyID, links.Node)
	assert.Equal(t, RoleProxy, links.Role)
	assert.Equal(t, []string{"creative", "lobby"}, links.Servers)
	assert.Nil(t, links.Connected)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/violations/"+steve.String(), nil))
	var violations []Violation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &violations))
	require.Len(t, violations, 1)
	assert.Equal(t, "lobby", violations[0].Server)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/violations/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

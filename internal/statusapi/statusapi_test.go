package statusapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhpc/qsched/internal/events"
)

type fakeReports struct {
	report CycleReport
	ok     bool
}

func (f fakeReports) LastReport() (CycleReport, bool) { return f.report, f.ok }

func TestHandleStatusReturnsOK(t *testing.T) {
	b := events.NewBroker()
	b.Start()
	defer b.Stop()
	s := New(fakeReports{}, b, zerolog.Nop())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleCycleNoReportYetReturnsUnavailable(t *testing.T) {
	b := events.NewBroker()
	b.Start()
	defer b.Stop()
	s := New(fakeReports{}, b, zerolog.Nop())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status/cycle")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleCycleReturnsLastReport(t *testing.T) {
	b := events.NewBroker()
	b.Start()
	defer b.Stop()
	s := New(fakeReports{report: CycleReport{CycleID: "c1", JobsRun: 3}, ok: true}, b, zerolog.Nop())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status/cycle")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleWatchDeliversPublishedEvent(t *testing.T) {
	b := events.NewBroker()
	b.Start()
	defer b.Stop()
	s := New(fakeReports{}, b, zerolog.Nop())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the subscription before publishing.
	time.Sleep(50 * time.Millisecond)
	b.Publish(&events.Event{Type: events.TypeCycleCompleted, Message: "done"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
}

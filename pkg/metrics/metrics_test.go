package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blicence/notifysync/pkg/metrics"
)

func TestCollector(t *testing.T) {
	c := metrics.New()

	c.ConnectAttempt()
	c.ConnectAttempt()
	c.Connected()
	c.Dropped("close")
	c.RetryScheduled()
	c.MessageRouted("plan_update")
	c.MessageRouted("plan_update")
	c.MessageMalformed()
	c.NotificationStored("usage_alert")
	c.NotificationSuppressed("disabled")
	c.Presented("ok")
	c.SetUnread(7)
	c.PersistFailed("notification_history")

	count, err := testutil.GatherAndCount(c.Registry())
	require.NoError(t, err)
	assert.Positive(t, count)

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[f.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[f.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["notifysync_connection_connect_attempts_total"])
	assert.Equal(t, 0.0, values["notifysync_connection_connected"])
	assert.Equal(t, 2.0, values["notifysync_messages_routed_total"])
	assert.Equal(t, 7.0, values["notifysync_notifications_unread"])
	assert.Equal(t, 1.0, values["notifysync_storage_persist_failures_total"])
}

func TestCollector_Nil(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.ConnectAttempt()
		c.Connected()
		c.Dropped("error")
		c.Disconnected()
		c.RetryScheduled()
		c.GaveUp()
		c.Heartbeat()
		c.MessageRouted("x")
		c.MessageMalformed()
		c.NotificationStored("x")
		c.NotificationSuppressed("x")
		c.Presented("x")
		c.SetUnread(1)
		c.PersistFailed("x")
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := metrics.New()
	c.Heartbeat()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "notifysync_connection_heartbeats_total 1")
}

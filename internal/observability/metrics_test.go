package observability

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/watermark"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverCounters(t *testing.T) {
	m := New()

	m.SweepStarted()
	m.SweepStarted()
	m.UpdateRejected()
	m.SampleInvalid(2)
	m.SampleInvalid(2)
	m.SampleInvalid(5)
	m.SweepCompleted(2100 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweeps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.invalid.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalid.WithLabelValues("5")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestPublishTracksLatestValidReading(t *testing.T) {
	m := New()

	m.Publish(watermark.Reading{Channel: 1, Kind: watermark.KindTension, Value: 62, Valid: true})
	m.Publish(watermark.Reading{Channel: 0, Kind: watermark.KindTemperature, Value: 21.5, Valid: true})
	assert.Equal(t, 2, testutil.CollectAndCount(m.readings))
	assert.Equal(t, 62.0, testutil.ToFloat64(m.readings.WithLabelValues("1", "soil_water_tension")))

	m.Publish(watermark.Reading{Channel: 1, Kind: watermark.KindTension, Value: 70, Valid: true})
	assert.Equal(t, 70.0, testutil.ToFloat64(m.readings.WithLabelValues("1", "soil_water_tension")))

	m.Publish(watermark.Reading{Channel: 1, Kind: watermark.KindTension, Value: math.NaN()})
	assert.Equal(t, 1, testutil.CollectAndCount(m.readings))
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.SweepStarted()
	m.Publish(watermark.Reading{Channel: 3, Kind: watermark.KindResistance, Value: 10119.5, Valid: true})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "soilctl_sweeps_total 1")
	assert.Contains(t, body, `soilctl_reading{channel="3",kind="resistance"} 10119.5`)
	assert.Contains(t, body, "go_goroutines")
}

func TestServer(t *testing.T) {
	m := New()
	m.UpdateRejected()

	srv, err := Start("127.0.0.1:0", m, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	})

	get := func(path string) string {
		resp, err := http.Get("http://" + srv.Addr() + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(b)
	}

	assert.Equal(t, "ok", get("/healthz"))
	assert.True(t, strings.Contains(get("/metrics"), "soilctl_updates_rejected_total 1"))
}

func TestStartRejectsBadAddress(t *testing.T) {
	_, err := Start("not an address", New(), logger.Nop())
	assert.Error(t, err)
}

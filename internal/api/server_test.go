package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/teds/internal/acquire"
	"github.com/banshee-data/teds/internal/channel"
	"github.com/banshee-data/teds/internal/db"
	"github.com/banshee-data/teds/internal/monitoring"
	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/testutil"
	"github.com/banshee-data/teds/internal/vteds"
)

type fakeReader struct {
	words []uint64
	err   error
}

func (f fakeReader) ReadWords(context.Context) ([]uint64, error) {
	return f.words, f.err
}

func newTestServer(t *testing.T, opts Options) (*Server, http.Handler) {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	s := NewServer(database, opts)
	return s, s.ServeMux()
}

func do(t *testing.T, h http.Handler, req *http.Request) (int, map[string]any) {
	t.Helper()
	w := testutil.NewTestRecorder()
	h.ServeHTTP(w, req)
	var body map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w.Code, body
}

func accelHex(t *testing.T) string {
	return hex.EncodeToString(testutil.EncodeDocument(t, testutil.AccelerometerDocument(t, 4242)))
}

func TestDecodeHex(t *testing.T) {
	_, h := newTestServer(t, Options{})

	code, body := do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/decode",
		fmt.Sprintf(`{"hex": %q}`, accelHex(t))))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(25), body["template_id"])
	assert.Equal(t, "accelerometer/force", body["family"])
	assert.Equal(t, false, body["legacy"])

	doc := body["document"].(map[string]any)
	fields := doc["fields"].([]any)
	first := fields[0].(map[string]any)
	assert.Equal(t, "manufacturer_id", first["name"])
}

func TestDecodeWordsAndPreambleDefault(t *testing.T) {
	doc := testutil.ThermocoupleDocument(t, 11)
	words, err := teds.EncodeWords(doc)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]any{"words": words})
	require.NoError(t, err)

	_, h := newTestServer(t, Options{HasPreamble: true})
	code, body := do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/decode", string(raw)))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "thermocouple", body["family"])

	// Hex without preamble is rejected when the server defaults to preamble.
	code, _ = do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/decode",
		fmt.Sprintf(`{"hex": %q}`, accelHex(t))))
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/decode",
		fmt.Sprintf(`{"hex": %q, "has_preamble": false}`, accelHex(t))))
	assert.Equal(t, http.StatusOK, code)
}

func TestDecodeErrors(t *testing.T) {
	_, h := newTestServer(t, Options{})
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", `{}`, http.StatusBadRequest},
		{"both", `{"hex":"00","words":[1]}`, http.StatusBadRequest},
		{"document not allowed", `{"document":{"fields":[]}}`, http.StatusBadRequest},
		{"bad hex", `{"hex":"zz"}`, http.StatusBadRequest},
		{"odd hex", `{"hex":"abc"}`, http.StatusBadRequest},
		{"unknown key", `{"bits":"0101"}`, http.StatusBadRequest},
		{"not json", `hello`, http.StatusBadRequest},
		{"truncated", `{"hex":"5B76"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/decode", tt.body))
			assert.Equal(t, tt.want, code, body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestEncode(t *testing.T) {
	doc := testutil.AccelerometerDocument(t, 4242)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	_, h := newTestServer(t, Options{})
	code, body := do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/encode", string(raw)))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, strings.ToUpper(accelHex(t)), body["hex"])

	buf, err := teds.EncodeBuffer(doc)
	require.NoError(t, err)
	assert.Equal(t, float64(buf.Len()), body["bits"])
	assert.Len(t, body["words"], len(buf.Bytes()))

	code, _ = do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/encode",
		`{"fields":[{"name":"flux_capacitor","value":1}]}`))
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/encode", `{"fields":[]}`))
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/teds/encode", `[`))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSensorLifecycle(t *testing.T) {
	_, h := newTestServer(t, Options{})

	code, created := do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/sensors",
		fmt.Sprintf(`{"hex": %q}`, accelHex(t))))
	require.Equal(t, http.StatusCreated, code, created)
	id := created["id"].(string)
	assert.Equal(t, float64(4242), created["serial_number"])

	thermo, err := json.Marshal(testutil.ThermocoupleDocument(t, 12))
	require.NoError(t, err)
	code, body := do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/sensors",
		fmt.Sprintf(`{"document": %s}`, thermo)))
	require.Equal(t, http.StatusCreated, code, body)

	code, body = do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/sensors"))
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["sensors"], 2)

	code, body = do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/sensors/"+id))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["id"])

	code, body = do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/sensors/"+id+"/channel?vmin=-10&vmax=10&direction=-X"))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, channel.KindAcceleration, body["kind"])
	assert.Equal(t, "-X", body["direction"])
	assert.Equal(t, "stored", body["source"])
	assert.Equal(t, "mV/g", body["sensitivity_unit"])
	assert.InDelta(t, 980, body["max"], 2)

	code, _ = do(t, h, testutil.NewTestRequest(http.MethodDelete, "/api/sensors/"+id))
	assert.Equal(t, http.StatusNoContent, code)

	code, body = do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/sensors/"+id))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "sensor not found")

	code, _ = do(t, h, testutil.NewTestRequest(http.MethodDelete, "/api/sensors/"+id))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListSensorsByIdentity(t *testing.T) {
	s, h := newTestServer(t, Options{})
	ctx := context.Background()
	first, err := s.db.InsertSensor(ctx, testutil.AccelerometerDocument(t, 500))
	require.NoError(t, err)
	_, err = s.db.InsertSensor(ctx, testutil.AccelerometerDocument(t, 501))
	require.NoError(t, err)
	again, err := s.db.InsertSensor(ctx, testutil.AccelerometerDocument(t, 500))
	require.NoError(t, err)

	code, body := do(t, h, testutil.NewTestRequest(http.MethodGet,
		"/api/sensors?manufacturer_id=43&model_number=3321&serial_number=500"))
	require.Equal(t, http.StatusOK, code, body)
	sensors := body["sensors"].([]any)
	require.Len(t, sensors, 2)
	var ids []string
	for _, raw := range sensors {
		ids = append(ids, raw.(map[string]any)["id"].(string))
	}
	assert.ElementsMatch(t, []string{first.ID, again.ID}, ids)

	code, body = do(t, h, testutil.NewTestRequest(http.MethodGet,
		"/api/sensors?manufacturer_id=43&model_number=3321&serial_number=9"))
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["sensors"])

	for _, q := range []string{"serial_number=500", "manufacturer_id=x&model_number=1&serial_number=2"} {
		code, _ = do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/sensors?"+q))
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestCreateSensorMatchesStoredDocument(t *testing.T) {
	_, h := newTestServer(t, Options{})
	doc, err := json.Marshal(testutil.AccelerometerDocument(t, 4))
	require.NoError(t, err)

	code, created := do(t, h, testutil.NewJSONRequest(http.MethodPost, "/api/sensors",
		fmt.Sprintf(`{"document": %s}`, doc)))
	require.Equal(t, http.StatusCreated, code, created)

	code, stored := do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/sensors/"+created["id"].(string)))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, stored["document"], created["document"])
}

func TestSensorChannelUnit(t *testing.T) {
	s, h := newTestServer(t, Options{})
	sensor, err := s.db.InsertSensor(context.Background(), testutil.AccelerometerDocument(t, 2))
	require.NoError(t, err)
	path := "/api/sensors/" + sensor.ID + "/channel"

	code, body := do(t, h, testutil.NewTestRequest(http.MethodGet, path+"?unit="+url.QueryEscape("mV/(m/s²)")))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "mV/(m/s²)", body["sensitivity_unit"])
	assert.InDelta(t, 10.2, body["sensitivity"], 0.01)

	code, body = do(t, h, testutil.NewTestRequest(http.MethodGet, path+"?unit="+url.QueryEscape("mV/N")))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "unknown sensitivity unit")
}

func TestSensorChannelBadQuery(t *testing.T) {
	s, h := newTestServer(t, Options{})
	sensor, err := s.db.InsertSensor(context.Background(), testutil.AccelerometerDocument(t, 1))
	require.NoError(t, err)

	for _, q := range []string{"vmin=low", "direction=up", "vmin=5&vmax=1"} {
		code, _ := do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/sensors/"+sensor.ID+"/channel?"+q))
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
	code, _ := do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/sensors/missing/channel"))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSensorDump(t *testing.T) {
	s, h := newTestServer(t, Options{})
	sensor, err := s.db.InsertSensor(context.Background(), testutil.AccelerometerDocument(t, 99))
	require.NoError(t, err)

	w := testutil.NewTestRecorder()
	h.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/sensors/"+sensor.ID+"/dump"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "43-3321-99.ted")

	buf, err := vteds.Read(w.Body)
	require.NoError(t, err)
	doc, err := teds.DecodeBuffer(buf, true)
	require.NoError(t, err)
	serial, err := doc.Uint("serial_number")
	require.NoError(t, err)
	assert.Equal(t, uint64(99), serial)
}

func TestAcquire(t *testing.T) {
	words, err := teds.EncodeWords(testutil.AccelerometerDocument(t, 31337))
	require.NoError(t, err)

	_, h := newTestServer(t, Options{Reader: fakeReader{words: words}})
	code, body := do(t, h, testutil.NewTestRequest(http.MethodPost, "/api/acquire"))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "accelerometer/force", body["family"])

	code, body = do(t, h, testutil.NewTestRequest(http.MethodPost, "/api/acquire?store=true"))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, float64(31337), body["serial_number"])
}

func TestAcquireSurvivesAbandonedRequest(t *testing.T) {
	words, err := teds.EncodeWords(testutil.AccelerometerDocument(t, 808))
	require.NoError(t, err)
	line := make([]string, len(words))
	for i, w := range words {
		line[i] = fmt.Sprint(w)
	}
	port := acquire.NewTestablePort("", strings.Join(line, ",")+"\n")
	reader, err := acquire.Open("/dev/ttyTEDS0", acquire.PortOptions{Timeout: time.Minute}, port.Opener())
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	_, h := newTestServer(t, Options{Reader: reader})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	req := testutil.NewTestRequest(http.MethodPost, "/api/acquire").WithContext(ctx)
	code, _ := do(t, h, req)
	assert.NotEqual(t, http.StatusOK, code)

	code, body := do(t, h, testutil.NewTestRequest(http.MethodPost, "/api/acquire"))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "accelerometer/force", body["family"])
}

func TestAcquireErrors(t *testing.T) {
	tests := []struct {
		name   string
		reader WordReader
		want   int
	}{
		{"disabled", nil, http.StatusServiceUnavailable},
		{"timeout", fakeReader{err: acquire.ErrTimeout}, http.StatusGatewayTimeout},
		{"device", fakeReader{err: fmt.Errorf("%w: ERR 3", acquire.ErrDevice)}, http.StatusBadGateway},
		{"garbage words", fakeReader{words: []uint64{1, 2}}, http.StatusUnprocessableEntity},
		{"unknown", fakeReader{err: errors.New("usb reset")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(t, Options{Reader: tt.reader})
			code, _ := do(t, h, testutil.NewTestRequest(http.MethodPost, "/api/acquire"))
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestMethodRouting(t *testing.T) {
	_, h := newTestServer(t, Options{})
	code, _ := do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/teds/decode"))
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestVersion(t *testing.T) {
	_, h := newTestServer(t, Options{})
	code, body := do(t, h, testutil.NewTestRequest(http.MethodGet, "/api/version"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "dev", body["version"])
}

func TestLoggingMiddleware(t *testing.T) {
	lines, restore := monitoring.Capture()
	defer restore()

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := testutil.NewTestRecorder()
	h.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/sensors?x=1"))

	require.Len(t, *lines, 1)
	assert.Contains(t, (*lines)[0], colorBoldRed+"418"+colorReset)
	assert.Contains(t, (*lines)[0], "/api/sensors?x=1")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}

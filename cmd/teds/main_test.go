package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"math/bits"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/teds/internal/acquire"
	"github.com/banshee-data/teds/internal/httputil"
	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/testutil"
)

type result struct {
	code           int
	stdout, stderr string
}

func runCmd(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func documentJSON(t *testing.T, doc *teds.Document) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

func decodeJSON(t *testing.T, s string) *teds.Document {
	t.Helper()
	doc := teds.NewDocument()
	require.NoError(t, json.Unmarshal([]byte(s), doc))
	return doc
}

func TestRun_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{name: "no args", args: nil, wantCode: 2, wantErr: "usage: teds"},
		{name: "help", args: []string{"help"}, wantCode: 0, wantOut: "commands:"},
		{name: "unknown", args: []string{"frobnicate"}, wantCode: 2, wantErr: `unknown command "frobnicate"`},
		{name: "version", args: []string{"version"}, wantCode: 0, wantOut: "teds "},
		{name: "bad flag", args: []string{"decode", "-nope"}, wantCode: 2, wantErr: "flag provided but not defined"},
		{name: "decode without input", args: []string{"decode"}, wantCode: 2, wantErr: "usage: teds decode"},
		{name: "decode bad hex", args: []string{"decode", "-hex", "zz"}, wantCode: 1, wantErr: "invalid hex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runCmd(t, "", tt.args...)
			assert.Equal(t, tt.wantCode, r.code)
			assert.Contains(t, r.stdout, tt.wantOut)
			assert.Contains(t, r.stderr, tt.wantErr)
		})
	}
}

func TestEncodeDecode_Hex(t *testing.T) {
	doc := testutil.AccelerometerDocument(t, 4411)
	want := strings.ToUpper(hex.EncodeToString(testutil.EncodeDocument(t, doc)))

	enc := runCmd(t, documentJSON(t, doc), "encode")
	require.Equal(t, 0, enc.code, enc.stderr)
	assert.Equal(t, want, strings.TrimSpace(enc.stdout))

	dec := runCmd(t, "", "decode", "-format", "json", "-hex", want)
	require.Equal(t, 0, dec.code, dec.stderr)
	got := decodeJSON(t, dec.stdout)
	if diff := cmp.Diff(doc.Names(), got.Names()); diff != "" {
		t.Errorf("field order mismatch (-want +got):\n%s", diff)
	}
	serial, err := got.Uint("serial_number")
	require.NoError(t, err)
	assert.Equal(t, uint64(4411), serial)
}

func TestDecode_Text(t *testing.T) {
	data := testutil.EncodeDocument(t, testutil.ThermocoupleDocument(t, 7))
	r := runCmd(t, "", "decode", "-hex", hex.EncodeToString(data))
	require.Equal(t, 0, r.code, r.stderr)
	assert.True(t, strings.HasPrefix(r.stdout, "# template 36 (thermocouple)\n"), r.stdout)
	assert.Contains(t, r.stdout, "serial_number: 7\n")
}

func TestDecode_Words(t *testing.T) {
	data := testutil.EncodeDocument(t, testutil.AccelerometerDocument(t, 12))
	words := make([]string, len(data))
	for i, b := range data {
		words[i] = strconv.Itoa(int(bits.Reverse8(b)))
	}
	r := runCmd(t, "", "decode", "-words", strings.Join(words, ","))
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "serial_number: 12\n")
}

func TestEncode_DumpDirRoundTrip(t *testing.T) {
	dir := t.TempDir()
	doc := testutil.AccelerometerDocument(t, 4411)

	enc := runCmd(t, documentJSON(t, doc), "encode", "-dump-dir", dir)
	require.Equal(t, 0, enc.code, enc.stderr)
	path := strings.TrimSpace(enc.stdout)
	assert.Equal(t, filepath.Join(dir, "43-3321-4411.ted"), path)

	dec := runCmd(t, "", "decode", path)
	require.Equal(t, 0, dec.code, dec.stderr)
	assert.Contains(t, dec.stdout, "user_data: bench 3\n")
}

func TestEncode_FromFileRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	body := `{"fields":[{"name":"not_a_field","value":1}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	r := runCmd(t, "", "encode", "-in", path)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "not_a_field")
}

func TestRead_FromSerialPort(t *testing.T) {
	words, err := teds.EncodeWords(testutil.AccelerometerDocument(t, 99))
	require.NoError(t, err)
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = strconv.FormatUint(w, 10)
	}
	port := acquire.NewTestablePort(strings.Join(parts, ",") + "\n")

	orig := openPort
	openPort = port.Opener()
	t.Cleanup(func() { openPort = orig })

	dbPath := filepath.Join(t.TempDir(), "teds.db")
	r := runCmd(t, "", "read", "-port", "/dev/ttyTEST", "-store", "-db", dbPath)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "serial_number: 99\n")
	assert.Contains(t, r.stderr, "stored sensor ")
	assert.Equal(t, "TEDS?\n", port.Written())
	assert.True(t, port.IsClosed())
}

func TestRead_RequiresPort(t *testing.T) {
	r := runCmd(t, "", "read")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "no serial port")
}

func TestPush(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.bin")
	require.NoError(t, os.WriteFile(path, testutil.EncodeDocument(t, testutil.AccelerometerDocument(t, 5)), 0o600))

	tests := []struct {
		name     string
		resp     httputil.MockResponse
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{
			name:     "created",
			resp:     httputil.MockResponse{StatusCode: http.StatusCreated, Body: `{"id":"abc"}`},
			wantCode: 0,
			wantOut:  "abc\n",
		},
		{
			name:     "rejected",
			resp:     httputil.MockResponse{StatusCode: http.StatusUnprocessableEntity, Body: `{"error":"bad field"}`},
			wantCode: 1,
			wantErr:  "server returned 422: bad field",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := httputil.NewMockHTTPClient(tt.resp)
			orig := httpClient
			httpClient = client
			t.Cleanup(func() { httpClient = orig })

			r := runCmd(t, "", "push", "-server", "http://teds.local/", path)
			assert.Equal(t, tt.wantCode, r.code)
			assert.Equal(t, tt.wantOut, r.stdout)
			assert.Contains(t, r.stderr, tt.wantErr)

			require.Equal(t, 1, client.RequestCount())
			req, body := client.Request(0)
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "http://teds.local/api/sensors", req.URL.String())

			var sent struct {
				Document *teds.Document `json:"document"`
			}
			sent.Document = teds.NewDocument()
			require.NoError(t, json.Unmarshal(body, &sent))
			serial, err := sent.Document.Uint("serial_number")
			require.NoError(t, err)
			assert.Equal(t, uint64(5), serial)
		})
	}
}

func TestMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "teds.db")

	up := runCmd(t, "", "migrate", "-db", dbPath, "up")
	require.Equal(t, 0, up.code, up.stderr)
	assert.Equal(t, "schema version 1\n", up.stdout)

	v := runCmd(t, "", "migrate", "-db", dbPath, "version")
	require.Equal(t, 0, v.code, v.stderr)
	assert.Equal(t, "schema version 1\n", v.stdout)

	bad := runCmd(t, "", "migrate", "-db", dbPath, "sideways")
	assert.Equal(t, 1, bad.code)
	assert.Contains(t, bad.stderr, `unknown migrate action "sideways"`)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/teds/internal/channel"
	"github.com/banshee-data/teds/internal/db"
	"github.com/banshee-data/teds/internal/httputil"
	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/teds/template"
	"github.com/banshee-data/teds/internal/vteds"
)

// sourceRequest names a TEDS bitstream in one of its three forms.
type sourceRequest struct {
	Hex         string          `json:"hex,omitempty"`
	Words       []uint64        `json:"words,omitempty"`
	HasPreamble *bool           `json:"has_preamble,omitempty"`
	Document    json.RawMessage `json:"document,omitempty"`
}

type documentResponse struct {
	TemplateID uint64         `json:"template_id"`
	Family     string         `json:"family"`
	Legacy     bool           `json:"legacy"`
	Document   *teds.Document `json:"document"`
}

type encodeResponse struct {
	Hex   string   `json:"hex"`
	Bits  int      `json:"bits"`
	Words []uint64 `json:"words"`
}

var (
	errBadRequest = errors.New("invalid request")
	errBadSource  = fmt.Errorf("%w: exactly one of hex, words or document is required", errBadRequest)
)

// document resolves req into a decoded document. allowDocument permits the
// JSON document form.
func (s *Server) document(req sourceRequest, allowDocument bool) (*teds.Document, error) {
	given := 0
	for _, set := range []bool{req.Hex != "", req.Words != nil, len(req.Document) > 0} {
		if set {
			given++
		}
	}
	if given != 1 || (!allowDocument && len(req.Document) > 0) {
		return nil, errBadSource
	}

	switch {
	case req.Hex != "":
		data, err := hex.DecodeString(strings.Join(strings.Fields(req.Hex), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid hex: %v", errBadRequest, err)
		}
		hasPreamble := s.opts.HasPreamble
		if req.HasPreamble != nil {
			hasPreamble = *req.HasPreamble
		}
		return teds.Decode(data, hasPreamble)
	case req.Words != nil:
		return teds.DecodeWords(req.Words)
	default:
		doc := teds.NewDocument()
		if err := json.Unmarshal(req.Document, doc); err != nil {
			return nil, badJSON(err)
		}
		return doc, nil
	}
}

func describe(doc *teds.Document) documentResponse {
	resp := documentResponse{Legacy: doc.Legacy(), Document: doc}
	if id, err := doc.TemplateID(); err == nil {
		resp.TemplateID = id
		resp.Family, _ = template.FamilyName(id)
	}
	return resp
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := httputil.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		httputil.BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	doc, err := s.document(req, false)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, describe(doc))
}

func (s *Server) encode(w http.ResponseWriter, r *http.Request) {
	doc := teds.NewDocument()
	if err := httputil.DecodeJSON(w, r, maxBodyBytes, doc); err != nil {
		writeError(w, badJSON(err))
		return
	}
	buf, err := teds.EncodeBuffer(doc)
	if err != nil {
		writeError(w, err)
		return
	}
	words, err := teds.EncodeWords(doc)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, encodeResponse{
		Hex:   strings.ToUpper(hex.EncodeToString(buf.Bytes())),
		Bits:  buf.Len(),
		Words: words,
	})
}

// identityParams are the query parameters that filter the sensor list down
// to one physical sensor. They are given together or not at all.
var identityParams = []string{"manufacturer_id", "model_number", "serial_number"}

func (s *Server) listSensors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		ids   [3]uint64
		given int
	)
	for i, name := range identityParams {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid %s %q", name, v))
			return
		}
		ids[i] = n
		given++
	}

	var (
		sensors []db.Sensor
		err     error
	)
	switch given {
	case 0:
		sensors, err = s.db.ListSensors(r.Context())
	case len(identityParams):
		sensors, err = s.db.FindSensors(r.Context(), ids[0], ids[1], ids[2])
	default:
		httputil.BadRequest(w, "manufacturer_id, model_number and serial_number must be given together")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"sensors": sensors})
}

func (s *Server) createSensor(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := httputil.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		httputil.BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	doc, err := s.document(req, true)
	if err != nil {
		writeError(w, err)
		return
	}
	sensor, err := s.db.InsertSensor(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sensor)
}

func (s *Server) getSensor(w http.ResponseWriter, r *http.Request) {
	sensor, err := s.db.GetSensor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, sensor)
}

func (s *Server) deleteSensor(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteSensor(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sensorChannel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vr := channel.VoltageRange{Min: -5, Max: 5}
	for name, dst := range map[string]*float64{"vmin": &vr.Min, "vmax": &vr.Max} {
		if v := q.Get(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				httputil.BadRequest(w, fmt.Sprintf("invalid %s %q", name, v))
				return
			}
			*dst = f
		}
	}
	if vr.Min >= vr.Max {
		httputil.BadRequest(w, fmt.Sprintf("invalid voltage range [%g, %g]", vr.Min, vr.Max))
		return
	}

	sensor, err := s.db.GetSensor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	ch := channel.New(q.Get("name"), true, vr)
	if ch.Name == "" {
		ch.Name = sensor.ID
	}
	ch.SensitivityUnit = q.Get("unit")
	if d := q.Get("direction"); d != "" {
		if err := ch.SetDirection(d); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	if err := ch.SetDocument(sensor.Document, channel.SourceStored); err != nil {
		writeError(w, err)
		return
	}
	cfg, err := ch.Config()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, cfg)
}

func (s *Server) sensorDump(w http.ResponseWriter, r *http.Request) {
	sensor, err := s.db.GetSensor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	doc := sensor.Document
	doc.SetPreamble(true)
	buf, err := teds.EncodeBuffer(doc)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", vteds.FileName(doc)))
	if err := vteds.Write(w, buf); err != nil {
		writeError(w, err)
	}
}

func (s *Server) acquire(w http.ResponseWriter, r *http.Request) {
	if s.opts.Reader == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no acquisition hardware configured")
		return
	}
	words, err := s.opts.Reader.ReadWords(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := teds.DecodeWords(words)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("store") != "true" {
		httputil.WriteJSONOK(w, describe(doc))
		return
	}
	sensor, err := s.db.InsertSensor(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sensor)
}

// badJSON keeps codec errors raised while unmarshalling a document and
// marks everything else as a malformed request.
func badJSON(err error) error {
	if statusFor(err) == http.StatusUnprocessableEntity {
		return err
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/teds/internal/acquire"
	"github.com/banshee-data/teds/internal/config"
	"github.com/banshee-data/teds/internal/db"
	"github.com/banshee-data/teds/internal/httputil"
	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/teds/template"
	"github.com/banshee-data/teds/internal/version"
	"github.com/banshee-data/teds/internal/vteds"
)

var errUsage = errors.New("usage")

// Swapped out in tests.
var (
	openPort   acquire.Opener       = acquire.OpenSerial
	httpClient httputil.HTTPClient = httputil.StandardClient(&http.Client{Timeout: 10 * time.Second})
)

// loadConfig returns the config at path, or an empty config when path is "".
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.EmptyConfig(), nil
	}
	return config.LoadConfig(path)
}

func runDecode(e *env, args []string) error {
	fs := e.flags("decode")
	hexIn := fs.String("hex", "", "TEDS bytes as hex")
	words := fs.String("words", "", "comma separated hardware words")
	preamble := fs.Bool("preamble", false, "input carries the vendor preamble (always on for .ted files)")
	format := fs.String("format", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintln(e.err, "usage: teds decode [-format text|json] (-hex HEX | -words W,W,... | [-preamble] FILE)")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		doc *teds.Document
		err error
	)
	switch {
	case *hexIn != "":
		data, herr := hex.DecodeString(strings.Join(strings.Fields(*hexIn), ""))
		if herr != nil {
			return fmt.Errorf("invalid hex: %w", herr)
		}
		doc, err = teds.Decode(data, *preamble)
	case *words != "":
		w, werr := acquire.ParseWords(*words)
		if werr != nil {
			return werr
		}
		doc, err = teds.DecodeWords(w)
	case fs.NArg() == 1:
		doc, err = decodeFile(fs.Arg(0), *preamble)
	default:
		fs.Usage()
		return errUsage
	}
	if err != nil {
		return err
	}
	return printDocument(e.out, doc, *format)
}

// decodeFile decodes a virtual TEDS dump (.ted) or a raw binary image.
func decodeFile(path string, preamble bool) (*teds.Document, error) {
	if strings.EqualFold(filepath.Ext(path), vteds.Extension) {
		return vteds.Load(path, true)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return teds.Decode(data, preamble)
}

func printDocument(w io.Writer, doc *teds.Document, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "text":
		if id, err := doc.TemplateID(); err == nil {
			family, _ := template.FamilyName(id)
			fmt.Fprintf(w, "# template %d (%s)\n", id, family)
		}
		if doc.Legacy() {
			fmt.Fprintln(w, "# legacy TEDS version")
		}
		_, err := io.WriteString(w, doc.String())
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func runEncode(e *env, args []string) error {
	fs := e.flags("encode")
	in := fs.String("in", "-", "JSON document to encode, - for stdin")
	dumpDir := fs.String("dump-dir", "", "write a virtual TEDS file into this directory instead of printing hex")
	name := fs.String("name", "", "dump file name (default derived from the sensor identity)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var r io.Reader = e.in
	if *in != "-" {
		f, err := os.Open(filepath.Clean(*in))
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	doc := teds.NewDocument()
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	if *dumpDir != "" {
		doc.SetPreamble(true)
		fileName := *name
		if fileName == "" {
			fileName = vteds.FileName(doc)
		}
		path, err := vteds.Save(*dumpDir, fileName, doc)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, path)
		return nil
	}

	data, err := teds.Encode(doc)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, strings.ToUpper(hex.EncodeToString(data)))
	return nil
}

func runRead(e *env, args []string) error {
	fs := e.flags("read")
	configPath := fs.String("config", "", "JSON config file")
	port := fs.String("port", "", "serial port (overrides serial_port)")
	store := fs.Bool("store", false, "store the result in the sensor database")
	dbPath := fs.String("db", "", "database path (overrides database_path)")
	format := fs.String("format", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	path := cfg.GetSerialPort()
	if *port != "" {
		path = *port
	}
	if path == "" {
		return errors.New("no serial port: set -port or serial_port")
	}

	reader, err := acquire.Open(path, cfg.PortOptions(), openPort)
	if err != nil {
		return err
	}
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetReadTimeout()+time.Second)
	defer cancel()
	doc, err := reader.ReadDocument(ctx)
	if err != nil {
		return err
	}

	if *store {
		database, err := db.NewDB(firstNonEmpty(*dbPath, cfg.GetDatabasePath()))
		if err != nil {
			return err
		}
		defer database.Close()
		sensor, err := database.InsertSensor(ctx, doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.err, "stored sensor %s\n", sensor.ID)
	}
	return printDocument(e.out, doc, *format)
}

func runPush(e *env, args []string) error {
	fs := e.flags("push")
	server := fs.String("server", "http://localhost:8088", "teds server base URL")
	preamble := fs.Bool("preamble", false, "raw input carries the vendor preamble")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.err, "usage: teds push [-server URL] FILE")
		return errUsage
	}

	doc, err := decodeFile(fs.Arg(0), *preamble)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"document": doc})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*server, "/")+"/api/sensors", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", *server, err)
	}
	defer resp.Body.Close()

	var out struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return fmt.Errorf("bad response from %s: %w", *server, err)
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
	}
	fmt.Fprintln(e.out, out.ID)
	return nil
}

func runMigrate(e *env, args []string) error {
	fs := e.flags("migrate")
	configPath := fs.String("config", "", "JSON config file")
	dbPath := fs.String("db", "", "database path (overrides database_path)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.err, "usage: teds migrate [-db PATH] up|down|version")
		return errUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	database, err := db.OpenDB(firstNonEmpty(*dbPath, cfg.GetDatabasePath()))
	if err != nil {
		return err
	}
	defer database.Close()

	switch fs.Arg(0) {
	case "up":
		err = database.MigrateUp()
	case "down":
		err = database.MigrateDown()
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", fs.Arg(0))
	}
	if err != nil {
		return err
	}

	v, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "schema version %s", strconv.FormatUint(uint64(v), 10))
	if dirty {
		fmt.Fprint(e.out, " (dirty)")
	}
	fmt.Fprintln(e.out)
	return nil
}

func runVersion(e *env, args []string) error {
	fs := e.flags("version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Fprintln(e.out, version.String())
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}


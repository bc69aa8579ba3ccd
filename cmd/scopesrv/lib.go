package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"
	"github.com/tarm/serial"

	"github.jpl.nasa.gov/bdube/oscope/comm"
	"github.jpl.nasa.gov/bdube/oscope/generichttp/ascii"
	httpscope "github.jpl.nasa.gov/bdube/oscope/generichttp/scope"
	"github.jpl.nasa.gov/bdube/oscope/keysight"
	"github.jpl.nasa.gov/bdube/oscope/scpi"
	"github.jpl.nasa.gov/bdube/oscope/server"
	"github.jpl.nasa.gov/bdube/oscope/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/oscope/usbtmc"
)

// ScopeSetup describes one instrument and where to serve it
type ScopeSetup struct {
	// Addr is the network or filesystem address of the instrument,
	// e.g. 192.168.100.10:5025 or /dev/ttyUSB0
	Addr string `yaml:"Addr"`

	// Endpoint is the URL stem the scope's routes are served under
	Endpoint string `yaml:"Endpoint"`

	// Serial selects a serial connection instead of TCP
	Serial bool `yaml:"Serial"`

	// Baud is the serial baud rate, defaulting to 9600
	Baud int `yaml:"Baud"`

	// VID and PID select a USBTMC connection when both are nonzero
	VID uint16 `yaml:"VID"`
	PID uint16 `yaml:"PID"`

	// PaceMS inserts a delay of this many milliseconds between commands,
	// for firmware that drops messages under rapid fire
	PaceMS int `yaml:"PaceMS"`
}

// Config holds the initialization parameters for the server
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Scopes is the list of instruments to serve
	Scopes []ScopeSetup `yaml:"Scopes"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// connect opens the transport described by s and identifies the instrument
func connect(s ScopeSetup) (*keysight.Scope, error) {
	var tx *scpi.SCPI
	switch {
	case s.VID != 0 && s.PID != 0:
		tx = scpi.New(usbtmc.ConnMaker(s.VID, s.PID))
	case s.Serial:
		baud := s.Baud
		if baud == 0 {
			baud = 9600
		}
		conf := &serial.Config{Name: s.Addr, Baud: baud, ReadTimeout: 5 * time.Second}
		tx = scpi.New(comm.SerialConnMaker(conf))
	default:
		tx = scpi.NewTCP(s.Addr)
	}
	if s.PaceMS > 0 {
		tx.SetPace(time.Duration(s.PaceMS) * time.Millisecond)
	}
	return keysight.Connect(tx)
}

// sanitizeEndpoint turns "scope" or "scope/" into "/scope"
func sanitizeEndpoint(s string) string {
	s = "/" + strings.Trim(s, "/")
	return s
}

// BuildMux connects to every configured scope and assembles the root router
func BuildMux(c Config) (chi.Router, error) {
	rootMux := chi.NewRouter()
	rootMux.Use(middleware.Logger)
	supergraph := map[string][]string{}
	for _, setup := range c.Scopes {
		sc, err := connect(setup)
		if err != nil {
			return nil, fmt.Errorf("connecting to scope at %s: %w", setup.Addr, err)
		}
		httper := httpscope.NewHTTPScope(sc)
		ascii.InjectRawComm(httper, sc)
		lock := locker.New()
		locker.Inject(httper, lock)

		stem := sanitizeEndpoint(setup.Endpoint)
		supergraph[stem] = httper.RT().Endpoints()
		handler := lock.Check(server.Build(httper))
		rootMux.Mount(stem, http.StripPrefix(stem, handler))
	}
	rootMux.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return rootMux, nil
}

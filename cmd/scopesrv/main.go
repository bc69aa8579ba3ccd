package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "scopesrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr: ":8000",
		Scopes: []ScopeSetup{
			{Addr: "192.168.100.10:5025", Endpoint: "/scope"},
		}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `scopesrv communicates with oscilloscopes and exposes an HTTP interface to them.
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	scopesrv <command>

Commands:
	run [config.yml]
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `scopesrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Each entry under Scopes describes one instrument and the URL it is served
under.  No two scopes may share an endpoint.

Connection types:
- LAN (default): set Addr to host:port; port 5025 is the SCPI socket on
  Keysight instruments
- Serial: set Serial: true and Addr to the device path, e.g. /dev/ttyUSB0,
  plus Baud (defaults to 9600)
- USBTMC: set VID and PID to the vendor and product IDs, e.g. 0x2a8d/0x0396

The model and its command dialect are detected from *IDN? when the server
starts.  Unrecognized models get a generic command set.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("scopesrv version %v\n", Version)
}

func run(configPath string) {
	var (
		c   Config
		err error
	)
	if configPath != "" {
		// an explicit path bypasses the default config search
		c, err = LoadYaml(configPath)
	} else {
		err = k.Unmarshal("", &c)
	}
	if err != nil {
		log.Fatal(err)
	}
	mux, err := BuildMux(c)
	if err != nil {
		log.Fatal(err)
	}
	log.Println("now listening for requests at", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		path := ""
		if len(args) > 2 {
			path = args[2]
		}
		run(path)
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}

// Command oscope is a command line client for Keysight oscilloscopes.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/theckman/yacspin"

	httpscope "github.jpl.nasa.gov/bdube/oscope/generichttp/scope"
	"github.jpl.nasa.gov/bdube/oscope/keysight"
	"github.jpl.nasa.gov/bdube/oscope/oscilloscope"
	"github.jpl.nasa.gov/bdube/oscope/scpi"
)

var (
	addr    = flag.String("addr", "", "scope address as host:port; falls back to $OSCOPE_ADDR")
	channel = flag.String("chan", "", "channel to act on, e.g. 1, CHAN2, POD1, FUNC3")
	install = flag.Bool("install", false, "add measurements to the scope's display so they accumulate statistics")
	paceMS  = flag.Int("pace", 0, "milliseconds to wait between commands, for firmware that drops rapid-fire messages")
)

func usage() {
	str := `oscope controls Keysight oscilloscopes from the command line.

Usage:
	oscope [flags] <command> [args]

Commands:
	idn                      print the instrument identification
	run | stop | single      acquisition control
	autoscale [CHAN...]      autoscale the given channels, or everything
	measure <name>           run a measurement on -chan (see measure-names)
	measure-names            list the available measurement names
	stats                    print accumulated measurement statistics
	clear-stats              reset the statistics accumulators
	label <text>             label -chan on the scope's display
	clear-labels             turn off label display
	annotate <text> [CHAN]   put text on the display, optionally in a channel's color
	clear-annotation         remove the annotation
	lock | unlock            disable or restore the front panel
	view <CHAN...>           display the given channels
	blank [CHAN...]          hide the given channels, or everything
	screenshot <file.png>    save a PNG of the display
	setup-save <file>        save the instrument configuration to a file
	setup-load <file>        restore a saved configuration
	waveform <file>          acquire -chan and save as .csv or .fits
	raw <command>            send a raw SCPI command or query

Flags:`
	fmt.Println(str)
	flag.PrintDefaults()
}

func connect() *keysight.Scope {
	a := *addr
	if a == "" {
		a = os.Getenv("OSCOPE_ADDR")
	}
	if a == "" {
		log.Fatal("no scope address given, use -addr or set OSCOPE_ADDR")
	}
	tx := scpi.NewTCP(a)
	if *paceMS > 0 {
		tx.SetPace(time.Duration(*paceMS) * time.Millisecond)
	}
	s, err := keysight.Connect(tx)
	if err != nil {
		log.Fatal(err)
	}
	return s
}

// spin runs fcn under a spinner with the given message, dying on error
func spin(msg string, fcn func() error) {
	cfg := yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[59],
		Suffix:        " " + msg,
		StopCharacter: "done",
	}
	spinner, err := yacspin.New(cfg)
	if err != nil {
		// cosmetics only; run the work without it
		if err := fcn(); err != nil {
			log.Fatal(err)
		}
		return
	}
	spinner.Start()
	err = fcn()
	if err != nil {
		spinner.StopFail()
		log.Fatal(err)
	}
	spinner.Stop()
}

func withChannel(s *keysight.Scope) {
	if *channel == "" {
		log.Fatal("this command needs -chan")
	}
	if err := s.SetChannel(*channel); err != nil {
		log.Fatal(err)
	}
}

func printStats(stats []keysight.Statistic) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "label\tcurrent\tmin\tmax\tmean\tstddev\tcount")
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%G\t%G\t%G\t%G\t%G\t%d\n",
			st.Label, st.Current, st.Min, st.Max, st.Mean, st.StdDev, st.Count)
	}
	tw.Flush()
}

func saveWaveform(wav *oscilloscope.Waveform, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if strings.HasSuffix(path, ".fits") {
		return wav.EncodeFITS(f)
	}
	return wav.EncodeCSV(f)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		return
	}
	cmd := strings.ToLower(args[0])
	args = args[1:]

	if cmd == "measure-names" {
		for _, name := range httpscope.Measurements() {
			fmt.Println(name)
		}
		return
	}

	s := connect()
	defer s.Close()

	var err error
	switch cmd {
	case "idn":
		fmt.Println(s.Identify())
	case "run":
		err = s.Run()
	case "stop":
		err = s.Stop()
	case "single":
		err = s.Single()
	case "autoscale":
		spin("autoscaling", func() error { return s.Autoscale(args...) })
	case "measure":
		if len(args) != 1 {
			log.Fatal("measure takes exactly one measurement name")
		}
		withChannel(s)
		var f float64
		f, err = httpscope.Measure(s, args[0], *install)
		if err == nil {
			fmt.Printf("%G\n", f)
		}
	case "stats":
		var stats []keysight.Statistic
		stats, err = s.Statistics()
		if err == nil {
			printStats(stats)
		}
	case "clear-stats":
		err = s.ClearStatistics()
	case "label":
		if len(args) != 1 {
			log.Fatal("label takes exactly one argument, quote multi-word labels")
		}
		withChannel(s)
		err = s.SetLabel(args[0])
	case "clear-labels":
		err = s.ClearLabels()
	case "annotate":
		if len(args) < 1 || len(args) > 2 {
			log.Fatal("annotate takes text and optionally a channel to take the color of, quote multi-word text")
		}
		color := ""
		if len(args) == 2 {
			color = args[1]
		}
		err = s.Annotate(args[0], color)
	case "clear-annotation":
		err = s.ClearAnnotation()
	case "lock":
		err = s.Lock()
	case "unlock":
		err = s.Unlock()
	case "view":
		if len(args) == 0 {
			log.Fatal("view takes one or more channels")
		}
		err = s.EnableOutput(args...)
	case "blank":
		if len(args) == 0 {
			err = s.DisableAllOutputs()
		} else {
			err = s.DisableOutput(args...)
		}
	case "screenshot":
		if len(args) != 1 {
			log.Fatal("screenshot takes exactly one file name")
		}
		var img []byte
		spin("capturing display", func() error {
			var err error
			img, err = s.Hardcopy()
			return err
		})
		err = ioutil.WriteFile(args[0], img, 0644)
	case "setup-save":
		if len(args) != 1 {
			log.Fatal("setup-save takes exactly one file name")
		}
		var blob []byte
		blob, err = s.SaveSetup()
		if err == nil {
			err = ioutil.WriteFile(args[0], blob, 0644)
		}
	case "setup-load":
		if len(args) != 1 {
			log.Fatal("setup-load takes exactly one file name")
		}
		var blob []byte
		blob, err = ioutil.ReadFile(args[0])
		if err == nil {
			err = s.LoadSetup(blob)
		}
	case "waveform":
		if len(args) != 1 {
			log.Fatal("waveform takes exactly one file name (.csv or .fits)")
		}
		withChannel(s)
		var wav *oscilloscope.Waveform
		spin("digitizing", func() error {
			var err error
			wav, err = s.AcquireWaveform()
			return err
		})
		err = saveWaveform(wav, args[0])
	case "raw":
		if len(args) == 0 {
			log.Fatal("raw takes a SCPI command, quote it to avoid shell mangling")
		}
		var resp string
		resp, err = s.Raw(strings.Join(args, " "))
		if err == nil && resp != "" {
			fmt.Println(resp)
		}
	default:
		usage()
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatal(err)
	}
}

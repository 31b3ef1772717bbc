package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/iumi/pinem/acq"
	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/hub"
	"github.com/iumi/pinem/imgrec"
	"github.com/iumi/pinem/metrics"
	"github.com/iumi/pinem/mqttpub"
	"github.com/iumi/pinem/orsay"
	"github.com/iumi/pinem/predict"
	"github.com/iumi/pinem/viewer"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "pinemsrv.yml"
	k              = koanf.New(".")
	cfgFile        = file.Provider(ConfigFileName)
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(cfgFile, yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

// loadConfig reads the defaults and the config file afresh
func loadConfig() (Config, error) {
	c := Config{}
	kk := koanf.New(".")
	kk.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := kk.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		return c, err
	}
	err := kk.Unmarshal("", &c)
	return c, err
}

func root() {
	str := `pinemsrv runs an Orsay camera viewer which infers the electron-light
coupling strength g from each frame, and exposes the results over HTTP.

Usage:
	pinemsrv <command>

Commands:
	run
	predict
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `pinemsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Use mkconf to write the default configuration to pinemsrv.yml.

The model is the first file in Model.Dir (default: the cnns folder beside the
program) with extension Model.Ext.  .yml and .yaml files are dense networks
evaluated in process; any other file is served by the inference server at
Model.Server, under the file's base name.  There is no fallback model.

Camera.Mode is Camera or SPIM.  In Camera mode each Ny by Nx frame is summed
over Y and the predicted g is published.  In SPIM mode a SpimX by SpimY raster
of Nx pixel spectra is built; partial rasters are temporary and the complete
raster is final.

Only the simulated camera is available; Mock must be true.  Its spectra are
shaped by Physics.G, Physics.Counts and Physics.Noise.

Changes to the Camera and Physics sections of pinemsrv.yml are applied to the
running server.

When Recorder.Enabled, final exports are written as FITS files under
Recorder.Root in a folder per day.  When MQTT.Broker is set, g values, SPIM
completions and status reports are published under MQTT.Topic.

predict runs the model once on a simulated spectrum and prints the result.`
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
	fmt.Printf("pinemsrv version %v\n", Version)
}

// spin starts a terminal spinner.  It returns nil if the terminal can't have one.
func spin(msg string) *yacspin.Spinner {
	s, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[59],
		Suffix:            " " + msg,
		StopCharacter:     "✓",
		StopFailCharacter: "✗",
		StopMessage:       "done",
		StopFailMessage:   "failed"})
	if err != nil {
		return nil
	}
	if err = s.Start(); err != nil {
		return nil
	}
	return s
}

func stopSpin(s *yacspin.Spinner, err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.StopFail()
		return
	}
	s.Stop()
}

func predictOnce() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	dir := c.Model.Dir
	if dir == "" {
		dir = viewer.DefaultModelDir()
	}
	s := spin("loading model")
	path, err := predict.FindModel(dir, c.Model.Ext)
	var p predict.Predictor
	if err == nil {
		p, err = predict.Open(path, predict.Options{Server: c.Model.Server, Timeout: c.Model.Timeout, RateLimit: c.Model.RateLimit})
	}
	stopSpin(s, err)
	if err != nil {
		log.Fatal(err)
	}
	series := simulatedSeries(c)
	ctx, cancel := context.WithTimeout(context.Background(), c.Model.Timeout)
	defer cancel()
	out, err := p.Predict(ctx, series)
	if err != nil {
		log.Fatal(err)
	}
	g, err := predict.First(out)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("model %s\nsimulated g %g\npredicted g %g\n", path, c.Physics.G, g)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	if !c.Mock {
		log.Fatal("only the simulated Orsay camera is implemented, set Mock: true")
	}

	hb := hub.New(c.History, c.StatusDepth)
	rec := imgrec.New(c.Recorder.Root, c.Recorder.Prefix, c.Recorder.Enabled)
	defer rec.Close()
	em := dte.Multi{hb, rec}
	if c.MQTT.Broker != "" {
		pub := mqttpub.New(c.MQTT)
		if err = pub.Connect(5 * time.Second); err != nil {
			log.Fatal(err)
		}
		defer pub.Disconnect()
		em = append(em, pub)
	}

	dev := orsay.NewMock(c.Camera, c.Physics, time.Now().UnixNano())
	s := spin("loading model")
	router, err := viewer.New(dev, em, c.Model)
	stopSpin(s, err)
	if err != nil {
		log.Fatal(err)
	}
	log.Println("loaded model", router.ModelPath)
	obs, err := metrics.NewRouter(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal(err)
	}
	router.Observer = obs

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	eng := acq.New(dev, router, c.Period)
	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Println("acquisition stopped:", err)
		}
	}()
	reloadOnChange(ctx, eng, dev)

	srv := &http.Server{Addr: c.Addr, Handler: BuildMux(c, hb, eng, rec)}
	go func() {
		<-ctx.Done()
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdown)
	}()
	log.Println("now listening for requests at ", c.Addr)
	if err = srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "predict":
		predictOnce()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}

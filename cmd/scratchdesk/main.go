package main

import (
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/tarm/serial"

	"github.com/scratchdesk/scratchdesk/config"
	"github.com/scratchdesk/scratchdesk/engine"
	"github.com/scratchdesk/scratchdesk/machine"
	"github.com/scratchdesk/scratchdesk/machine/grbl"
	"github.com/scratchdesk/scratchdesk/machine/sim"
	"github.com/scratchdesk/scratchdesk/program"
	"github.com/scratchdesk/scratchdesk/safety"
)

func main() {
	log.SetFlags(log.Lshortfile)

	cfgPath := flag.String("config", "", "Path to the config file (default ./scratchdesk.yaml).")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	var hw machine.Adapter
	switch cfg.Backend {
	case "grbl":
		grblPort, err := serial.OpenPort(&serial.Config{Name: cfg.GrblPort, Baud: cfg.BaudRate})
		if err != nil {
			log.Fatal(err)
		}
		busPort, err := serial.OpenPort(&serial.Config{Name: cfg.BusPort, Baud: cfg.BaudRate})
		if err != nil {
			log.Fatal(err)
		}
		hw = grbl.NewAdapter(grblPort, busPort, grbl.Config{
			PollInterval: cfg.PollInterval,
			MoveTimeout:  cfg.MoveTimeout,
		})
	case "sim":
		hw = sim.New()
	default:
		log.Fatalf("unknown backend %q", cfg.Backend)
	}

	programs := loadPrograms(cfg.ProgramsFile, cfg.Limits)

	il := safety.NewInterlock()
	eng := engine.New(hw, il, cfg.PollInterval)
	api := newAPI(eng, il, hw, cfg.Limits, programs)

	log.Println("Listening on", cfg.Listen)
	err = http.ListenAndServe(cfg.Listen, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		api.ServeHTTP(w, req)
	}))
	if err != nil {
		log.Fatal(err)
	}
}

func loadPrograms(path string, lim program.Limits) []program.Program {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("no program table at '%s', starting empty: %v", path, err)
		return nil
	}
	defer f.Close()

	progs, errs := program.ReadCSV(f, lim)
	for _, e := range errs {
		log.Println("ERROR:", path+":", e)
	}
	log.Printf("loaded %d programs from '%s'", len(progs), path)
	return progs
}

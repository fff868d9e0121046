package main

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"strconv"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"

	"github.com/scratchdesk/scratchdesk/engine"
	"github.com/scratchdesk/scratchdesk/machine"
	"github.com/scratchdesk/scratchdesk/plan"
	"github.com/scratchdesk/scratchdesk/program"
	"github.com/scratchdesk/scratchdesk/safety"
)

// triggerable is implemented by the sim backend; the physical desk
// gets its triggers from the real sensors.
type triggerable interface {
	Trigger(machine.SensorID)
}

type api struct {
	http.Handler

	eng *engine.Engine
	il  *safety.Interlock
	hw  machine.Adapter
	lim program.Limits

	mx       sync.Mutex
	programs []program.Program

	sse *sse.Server
}

type statusPayload struct {
	State     string            `json:"state"`
	Index     int               `json:"index"`
	Total     int               `json:"total"`
	Fraction  float64           `json:"fraction"`
	Desc      string            `json:"description"`
	Elapsed   int64             `json:"elapsed_seconds"`
	Error     string            `json:"error,omitempty"`
	Violation *safety.Violation `json:"violation,omitempty"`
	Position  struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"position"`
	DoorClosed bool `json:"door_closed"`
}

func newAPI(eng *engine.Engine, il *safety.Interlock, hw machine.Adapter, lim program.Limits, programs []program.Program) *api {
	r := mux.NewRouter()

	a := &api{
		Handler:  r,
		eng:      eng,
		il:       il,
		hw:       hw,
		lim:      lim,
		programs: programs,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}

	r.HandleFunc("/api/programs", a.listPrograms).Methods("GET")
	r.HandleFunc("/api/programs", a.uploadPrograms).Methods("POST")
	r.HandleFunc("/api/programs/{number}/run", a.run).Methods("POST")

	r.HandleFunc("/api/pause", a.pause).Methods("POST")
	r.HandleFunc("/api/resume", a.resume).Methods("POST")
	r.HandleFunc("/api/stop", a.stop).Methods("POST")
	r.HandleFunc("/api/estop", a.estop).Methods("POST")

	r.HandleFunc("/api/step/forward", a.stepForward).Methods("POST")
	r.HandleFunc("/api/step/back", a.stepBack).Methods("POST")
	r.HandleFunc("/api/step/execute", a.stepExecute).Methods("POST")

	r.HandleFunc("/api/status", a.status).Methods("GET")
	r.HandleFunc("/api/violations", a.violations).Methods("GET")
	r.HandleFunc("/api/violations", a.clearViolations).Methods("DELETE")

	r.HandleFunc("/api/sensors/{id}/trigger", a.trigger).Methods("POST")

	r.PathPrefix("/events/").Handler(a.sse)
	r.HandleFunc("/ws", a.ws)

	eng.SetNotify(a.broadcast)

	return a
}

func (a *api) statusPayload() statusPayload {
	p := a.eng.Status()
	var sp statusPayload
	sp.State = string(p.State)
	sp.Index = p.Index
	sp.Total = p.Total
	sp.Fraction = p.Fraction
	sp.Desc = p.Desc
	sp.Elapsed = int64(p.Elapsed.Seconds())
	sp.Error = p.Err
	sp.Violation = p.Violation
	pos := a.hw.Position()
	sp.Position.X = pos.X
	sp.Position.Y = pos.Y
	sp.DoorClosed = a.hw.DoorClosed()
	return sp
}

// broadcast pushes engine progress to every SSE subscriber. Must not
// block; the engine calls it inline.
func (a *api) broadcast(engine.Progress) {
	go func() {
		data, err := json.Marshal(a.statusPayload())
		if err != nil {
			log.Printf("ERROR: marshal json: %+v", err)
			return
		}
		a.sse.SendMessage("/events/status", sse.SimpleMessage(string(data)))
	}()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("ERROR: encode:", err)
	}
}

type programPayload struct {
	program.Program
	ActualWidth  float64  `json:"actual_width"`
	ActualHeight float64  `json:"actual_height"`
	LineSpacing  float64  `json:"line_spacing"`
	Errors       []string `json:"errors,omitempty"`
}

func (a *api) listPrograms(w http.ResponseWriter, req *http.Request) {
	a.mx.Lock()
	progs := a.programs
	a.mx.Unlock()

	out := make([]programPayload, 0, len(progs))
	for _, p := range progs {
		out = append(out, programPayload{
			Program:      p,
			ActualWidth:  p.ActualWidth(),
			ActualHeight: p.ActualHeight(),
			LineSpacing:  p.LineSpacing(),
			Errors:       p.Validate(),
		})
	}
	writeJSON(w, out)
}

func (a *api) uploadPrograms(w http.ResponseWriter, req *http.Request) {
	progs, errs := program.ReadCSV(req.Body, a.lim)
	if len(progs) == 0 {
		log.Printf("ERROR: upload: no usable programs (%d errors)", len(errs))
		http.Error(w, "no usable programs in upload", http.StatusBadRequest)
		return
	}
	a.mx.Lock()
	a.programs = progs
	a.mx.Unlock()

	writeJSON(w, struct {
		Loaded int      `json:"loaded"`
		Errors []string `json:"errors,omitempty"`
	}{Loaded: len(progs), Errors: errs})
}

func (a *api) findProgram(number int) (program.Program, bool) {
	a.mx.Lock()
	defer a.mx.Unlock()
	for _, p := range a.programs {
		if p.Number == number {
			return p, true
		}
	}
	return program.Program{}, false
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	number, err := strconv.Atoi(mux.Vars(req)["number"])
	if err != nil {
		http.Error(w, "bad program number", http.StatusBadRequest)
		return
	}
	p, ok := a.findProgram(number)
	if !ok {
		http.Error(w, "no such program", http.StatusNotFound)
		return
	}
	if errs := p.Validate(); len(errs) > 0 {
		http.Error(w, "program invalid: "+errs[0], http.StatusBadRequest)
		return
	}

	steps := plan.Generate(p)
	if err := a.eng.Load(steps); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err := a.eng.Start(); err != nil {
		log.Printf("ERROR: run %d: %+v", number, err)
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, plan.Summarize(p))
}

func (a *api) pause(w http.ResponseWriter, req *http.Request)  { a.control(w, a.eng.Pause) }
func (a *api) resume(w http.ResponseWriter, req *http.Request) { a.control(w, a.eng.Resume) }
func (a *api) stop(w http.ResponseWriter, req *http.Request)   { a.control(w, a.eng.Stop) }

func (a *api) stepForward(w http.ResponseWriter, req *http.Request) {
	a.control(w, a.eng.StepForward)
}
func (a *api) stepBack(w http.ResponseWriter, req *http.Request) {
	a.control(w, a.eng.StepBackward)
}
func (a *api) stepExecute(w http.ResponseWriter, req *http.Request) {
	a.control(w, a.eng.ExecuteCurrentStep)
}

func (a *api) control(w http.ResponseWriter, fn func() error) {
	if err := fn(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, a.statusPayload())
}

func (a *api) estop(w http.ResponseWriter, req *http.Request) {
	if err := a.hw.EmergencyStop(); err != nil {
		log.Printf("ERROR: estop: %+v", err)
		http.Error(w, err.Error(), 500)
		return
	}
	a.eng.Stop()
	writeJSON(w, a.statusPayload())
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, a.statusPayload())
}

func (a *api) violations(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, a.il.Violations())
}

func (a *api) clearViolations(w http.ResponseWriter, req *http.Request) {
	a.il.ClearViolations()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) trigger(w http.ResponseWriter, req *http.Request) {
	id := machine.SensorID(mux.Vars(req)["id"])
	if !id.Valid() {
		http.Error(w, "unknown sensor", http.StatusBadRequest)
		return
	}
	tr, ok := a.hw.(triggerable)
	if !ok {
		http.Error(w, "sensor triggers only work on the sim backend", http.StatusConflict)
		return
	}
	tr.Trigger(id)
	w.WriteHeader(http.StatusNoContent)
}

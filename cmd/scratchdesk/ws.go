package main

import (
	"log"
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(req *http.Request) bool { return true },
}

// ws streams status frames to a browser client. Frames are pushed on
// every change and at a slow keepalive cadence in between.
func (a *api) ws(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println("ERROR: upgrade:", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			// client frames are ignored, reading only detects close
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()

	var last statusPayload
	keepalive := 0
	for {
		select {
		case <-done:
			return
		case <-t.C:
		}

		cur := a.statusPayload()
		keepalive++
		if reflect.DeepEqual(cur, last) && keepalive < 40 {
			continue
		}
		keepalive = 0
		last = cur

		if err := conn.WriteJSON(cur); err != nil {
			log.Println("ERROR: write:", err)
			return
		}
	}
}

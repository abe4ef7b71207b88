package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/w1xm/rot2prog_interface/rotator"
)

type Server struct {
	latitude  float64
	longitude float64

	// mu serializes commands to the rotator and guards trackCancel.
	mu          sync.Mutex
	r           rotator.Rotator
	trackCancel context.CancelFunc

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     rotator.Status
	statusSeq  int
}

func NewServer(latitude, longitude float64) *Server {
	s := &Server{latitude: latitude, longitude: longitude}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

func (s *Server) SetRotator(r rotator.Rotator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r = r
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

type Command struct {
	Command string  `json:"command"`
	Az      float64 `json:"az"`
	El      float64 `json:"el"`
	Offset  float64 `json:"offset"`
	RA      float64 `json:"ra"`
	Dec     float64 `json:"dec"`
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			if err := s.dispatch(msg); err != nil {
				log.Printf("ws command %q: %v", msg.Command, err)
			}
		}
	}()

	// Wake the send loop when the client goes away.
	go func() {
		<-ctx.Done()
		s.statusCond.Broadcast()
	}()

	send := func(status rotator.Status) error {
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.statusMu.RLock()
	seq, status := s.statusSeq, s.status
	s.statusMu.RUnlock()
	if err := send(status); err != nil {
		log.Print(err)
		return
	}

	for {
		s.statusMu.RLock()
		for s.statusSeq == seq && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		seq, status = s.statusSeq, s.status
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if err := send(status); err != nil {
			log.Print(err)
			return
		}
	}
}

func (s *Server) dispatch(msg Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Command {
	case "set_position":
		s.stopTrack()
		return s.r.SetPosition(msg.Az, msg.El)
	case "stop":
		s.stopTrack()
		_, err := s.r.Stop()
		return err
	case "set_azimuth_offset":
		o, ok := s.r.(rotator.Offsetter)
		if !ok {
			return fmt.Errorf("rotator has no adjustable offsets")
		}
		return o.SetAzimuthOffset(msg.Offset)
	case "set_elevation_offset":
		o, ok := s.r.(rotator.Offsetter)
		if !ok {
			return fmt.Errorf("rotator has no adjustable offsets")
		}
		return o.SetElevationOffset(msg.Offset)
	case "track":
		s.startTrack(msg.RA, msg.Dec)
	case "track_stop":
		s.stopTrack()
	default:
		return fmt.Errorf("unknown command %q", msg.Command)
	}
	return nil
}

func (s *Server) statusCallback(status rotator.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.statusSeq++
	s.statusCond.Broadcast()
}

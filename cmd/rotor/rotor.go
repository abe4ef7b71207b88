package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/w1xm/rot2prog_interface/rot2prog"
	"github.com/w1xm/rot2prog_interface/rot2prog/simulator"
)

var (
	addr         = flag.String("addr", "127.0.0.1:8502", "address to listen on")
	staticDir    = flag.String("static_dir", "static", "directory containing static files")
	serialPort   = flag.String("serial", "/dev/ttyUSB0", "serial port name")
	simulate     = flag.Bool("simulate", false, "drive a simulated controller instead of hardware")
	pollInterval = flag.Duration("poll_interval", time.Second, "status poll interval")
	readTimeout  = flag.Duration("read_timeout", 0, "response deadline (0 for the default)")
	settleDelay  = flag.Duration("settle_delay", 0, "pause after a position command (0 for the default)")
	azOffset     = flag.Float64("az_offset", 0, "azimuth mounting offset in degrees")
	elOffset     = flag.Float64("el_offset", 0, "elevation mounting offset in degrees")
	rotctldAddr  = flag.String("rotctld_addr", "", "if set, address to serve Hamlib rotctld commands on")
	latitude     = flag.Float64("latitude", 42.36, "site latitude in degrees for tracking")
	longitude    = flag.Float64("longitude", -71.09, "site longitude in degrees east for tracking")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	srv := NewServer(*latitude, *longitude)
	config := rot2prog.Config{
		ReadTimeout:    *readTimeout,
		SettleDelay:    *settleDelay,
		StatusCallback: srv.statusCallback,
	}
	var rot *rot2prog.Offset
	var err error
	if *simulate {
		sim, conn := simulator.New(1)
		go func() {
			if err := sim.Run(ctx); err != nil {
				log.Printf("simulator: %v", err)
			}
		}()
		rot, err = rot2prog.OpenOffset(conn, config, *azOffset, *elOffset)
	} else {
		rot, err = rot2prog.ConnectOffset(*serialPort, config, *azOffset, *elOffset)
	}
	if err != nil {
		log.Fatalf("connecting to rotator: %v", err)
	}
	defer rot.Close()
	srv.SetRotator(rot)
	log.Printf("connected; %d pulses per degree", rot.Pulse())

	go func() {
		if err := rot.Watch(ctx, *pollInterval); err != nil {
			log.Printf("watch: %v", err)
		}
	}()

	if *rotctldAddr != "" {
		if err := srv.ListenRotctld(ctx, *rotctldAddr); err != nil {
			log.Fatalf("rotctld: %v", err)
		}
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", srv.StatusHandler)
	r.HandleFunc("/api/ws", srv.StatusSocketHandler)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(*staticDir)))
	httpSrv := &http.Server{
		Handler:      r,
		Addr:         *addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	log.Printf("listening on %v", httpSrv.Addr)
	log.Fatal(httpSrv.ListenAndServe())
}

package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

var (
	influxServer = flag.String("influx_server", "http://localhost:9999", "InfluxDB server URL")
	influxToken  = flag.String("influx_token", "", "InfluxDB auth token")
	influxOrg    = flag.String("influx_org", "w1xm", "InfluxDB organization")
	influxBucket = flag.String("influx_bucket", "rotor.raw", "InfluxDB bucket")
	rotorAddr    = flag.String("rotor_addr", "ws://localhost:8502/api/ws", "rotor server websocket address")
)

func main() {
	flag.Parse()
	client := influxdb2.NewClient(*influxServer, *influxToken)
	defer client.Close()
	// Non-blocking write client; errors come back on a channel.
	writeApi := client.WriteApi(*influxOrg, *influxBucket)
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()
	for {
		if err := logData(writeApi); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// flattenStatus turns nested JSON into dotted field names.
func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		fields[prefix[1:]] = status
	}
}

// logData streams status reports from one websocket connection into Influx
// until the connection drops.
func logData(writeApi api.WriteApi) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(*rotorAddr, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("connected to %s", *rotorAddr)
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")
		writeApi.WritePoint(influxdb2.NewPoint("rotor.status", nil, fields, time.Now()))
	}
}

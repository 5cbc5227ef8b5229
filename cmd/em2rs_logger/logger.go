// Command em2rs_logger copies the status stream of em2rs_server into
// InfluxDB.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/influxdata/influxdb-client-go/api/write"
)

func main() {
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi("w1xm", "em2rs.raw")
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

// flattenStatus turns nested JSON into dotted field names, e.g.
// motors.az.status.
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
	case nil:
	default:
		fields[prefix[1:]] = status
	}
}

// motorPoints splits a status message into one point per motor, tagged with
// the motor name. Flags and alarms are recorded as booleans.
func motorPoints(status map[string]interface{}, now time.Time) []*write.Point {
	motors, _ := status["motors"].(map[string]interface{})
	var points []*write.Point
	for name, m := range motors {
		m, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		fields := make(map[string]interface{})
		for k, v := range m {
			switch k {
			case "flags", "alarms":
				list, _ := v.([]interface{})
				for _, f := range list {
					if f, ok := f.(string); ok {
						fields[k+"."+f] = true
					}
				}
			default:
				flattenStatus(fields, v, "."+k)
			}
		}
		if len(fields) == 0 {
			continue
		}
		points = append(points, influxdb2.NewPoint("em2rs.motor",
			map[string]string{"motor": name},
			fields,
			now,
		))
	}
	return points
}

func logData(writeApi api.WriteApi) error {
	url := os.Getenv("EM2RS_ADDRESS")
	if url == "" {
		url = "ws://localhost:8503/api/ws"
	}
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status map[string]interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		if connected, _ := status["connected"].(bool); !connected {
			continue
		}
		now := time.Now()
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")
		writeApi.WritePoint(influxdb2.NewPoint("em2rs.status", nil, fields, now))
		for _, p := range motorPoints(status, now) {
			writeApi.WritePoint(p)
		}
	}
}

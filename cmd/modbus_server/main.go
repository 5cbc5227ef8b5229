// Command modbus_server exposes a local RS-485 line to remote em2rs clients.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/goburrow/modbus"
	"github.com/gorilla/mux"
	"github.com/w1xm/em2rs/internal/modbus/modbushttp"
)

var (
	addr       = flag.String("addr", "127.0.0.1:8502", "address to listen on")
	password   = flag.String("password", "", "password to require on remote connections")
	serialPort = flag.String("serial", "", "RS-485 serial port name")
	baud       = flag.Int("baud", 19200, "baud rate")
	parity     = flag.String("parity", "N", "parity (N, E or O)")
	timeout    = flag.Duration("timeout", 1*time.Second, "time to wait for a drive to answer")
	verbose    = flag.Bool("v", false, "log every frame")
)

type Server struct {
	handler  *modbus.RTUClientHandler
	password string
}

func NewServer(port string, baud int, parity string, timeout time.Duration, password string) *Server {
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = baud
	handler.DataBits = 8
	handler.Parity = parity
	handler.StopBits = 1
	handler.Timeout = timeout
	if *verbose {
		handler.Logger = log.New(os.Stderr, "rtu: ", log.Ldate|log.Ltime|log.Lmicroseconds)
	}
	return &Server{
		handler:  handler,
		password: password,
	}
}

// SendHandler forwards one RTU request frame to the line and returns the
// drive's answer. The handler serializes frames from concurrent requests.
func (s *Server) SendHandler(w http.ResponseWriter, r *http.Request) {
	if s.password != "" {
		_, pass, ok := r.BasicAuth()
		if !ok || pass != s.password {
			http.Error(w, "wrong password", http.StatusUnauthorized)
			return
		}
	}
	err := func() error {
		aduRequest, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		aduResponse, err := s.handler.Send(aduRequest)
		var errString string
		if err != nil {
			errString = err.Error()
		}
		body, err := json.Marshal(&modbushttp.SendResponse{
			ADUResponse: aduResponse,
			Error:       errString,
		})
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		_, err = w.Write(body)
		return err
	}()
	if err != nil {
		log.Printf("SendHandler: %v", err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func main() {
	flag.Parse()
	if *serialPort == "" {
		log.Fatal("--serial is required")
	}
	server := NewServer(*serialPort, *baud, *parity, *timeout, *password)
	r := mux.NewRouter()
	r.Handle("/api/send", http.HandlerFunc(server.SendHandler)).Methods(http.MethodPost)
	r.PathPrefix("/debug").Handler(http.DefaultServeMux)
	srv := &http.Server{
		Handler:      r,
		Addr:         *addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Printf("Listening on %v", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

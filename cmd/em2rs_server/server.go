package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/config"
)

// MotorStatus is one poll of a drive.
type MotorStatus struct {
	Slave   byte     `json:"slave"`
	Status  uint16   `json:"status"`
	Flags   []string `json:"flags"`
	Alarms  []string `json:"alarms"`
	Inputs  uint16   `json:"inputs"`
	Outputs uint16   `json:"outputs"`
	Error   string   `json:"error,omitempty"`
}

type Status struct {
	Time time.Time `json:"time"`
	// Connected is false when no drive answered the last poll.
	Connected bool                   `json:"connected"`
	Motors    map[string]MotorStatus `json:"motors"`
}

type motor struct {
	cfg *config.Motor
	c   *em2rs.Client
}

func (m *motor) poll(ctx context.Context) (MotorStatus, error) {
	ms := MotorStatus{Slave: m.cfg.Slave}
	status, err := m.c.MotionStatus(ctx)
	if err != nil {
		return ms, err
	}
	ms.Status = uint16(status)
	ms.Flags = status.Flags()
	alarm, err := m.c.CurrentAlarm(ctx)
	if err != nil {
		return ms, err
	}
	ms.Alarms = alarm.Active()
	in, err := m.c.InputStatus(ctx)
	if err != nil {
		return ms, err
	}
	ms.Inputs = uint16(in)
	out, err := m.c.OutputStatus(ctx)
	if err != nil {
		return ms, err
	}
	ms.Outputs = uint16(out)
	return ms, nil
}

type Server struct {
	// mu keeps command sequences from interleaving.
	mu     sync.Mutex
	motors []*motor

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     Status
}

// NewServer builds a client for every configured motor on top of the
// transport returned by dial.
func NewServer(cfg *config.Config, dial func(slave byte) em2rs.Transport) (*Server, error) {
	s := &Server{}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	for i := range cfg.Motors {
		m := &cfg.Motors[i]
		sc, err := m.StepperConfig()
		if err != nil {
			return nil, err
		}
		s.motors = append(s.motors, &motor{cfg: m, c: em2rs.NewClient(dial(m.Slave), sc)})
	}
	return s, nil
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.StatusHandler).Methods("GET")
	api.HandleFunc("/command", s.CommandHandler).Methods("POST")
	api.HandleFunc("/ws", s.StatusSocketHandler)
	return r
}

// poll reads every drive once and publishes the result. It fails only when
// none of them answered.
func (s *Server) poll(ctx context.Context) error {
	status := Status{Time: time.Now(), Motors: make(map[string]MotorStatus)}
	var errs []error
	for _, m := range s.motors {
		ms, err := m.poll(ctx)
		if err != nil {
			ms.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", m.cfg.Name, err))
		}
		status.Motors[m.cfg.Name] = ms
	}
	status.Connected = len(errs) < len(s.motors)
	s.statusCallback(status)
	if !status.Connected {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Server) statusCallback(status Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.statusCond.Broadcast()
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
	Command   string `json:"command"`
	Motor     string `json:"motor"`
	Slot      uint8  `json:"slot"`
	Direction string `json:"direction"`
}

func (s *Server) motor(name string) (*motor, error) {
	if name == "" && len(s.motors) == 1 {
		return s.motors[0], nil
	}
	for _, m := range s.motors {
		if m.cfg.Name == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w motor %q", errUnknown, name)
}

var errUnknown = errors.New("unknown")

func (s *Server) exec(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.Command == "stop" && cmd.Motor == "" {
		var errs []error
		for _, m := range s.motors {
			if err := m.c.StopMotor(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", m.cfg.Name, err))
			}
		}
		return errors.Join(errs...)
	}
	m, err := s.motor(cmd.Motor)
	if err != nil {
		return err
	}
	switch cmd.Command {
	case "stop":
		return m.c.StopMotor(ctx)
	case "start_path":
		return m.c.StartPath(ctx, cmd.Slot)
	case "apply_path":
		p, err := m.cfg.Path(cmd.Slot)
		if err != nil {
			return fmt.Errorf("%w path: %v", errUnknown, err)
		}
		return m.c.ApplyPathConfig(ctx, p)
	case "jog":
		d, err := em2rs.ParseDirection(cmd.Direction)
		if err != nil {
			return err
		}
		return m.c.JogMotor(ctx, d)
	case "home":
		return m.c.StartHoming(ctx)
	case "zero":
		return m.c.ManualZero(ctx)
	case "clear_alarm":
		return m.c.ResetCurrentAlarm(ctx)
	case "setup":
		return m.cfg.Apply(ctx, m.c)
	}
	return fmt.Errorf("%w command %q", errUnknown, cmd.Command)
}

func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.exec(r.Context(), cmd); err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, errUnknown) || em2rs.IsConfigError(err) {
			code = http.StatusBadRequest
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Time{})

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.exec(ctx, msg); err != nil {
				log.Printf("%s %s: %v", msg.Command, msg.Motor, err)
			}
		}
	}()

	send := func(status Status) error {
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	if err := send(status); err != nil {
		log.Print(err)
		return
	}

	for {
		s.statusMu.RLock()
		s.statusCond.Wait()
		status := s.status
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

// Package sim provides in-memory implementations of the hal interfaces for
// development hosts and tests. State is process-local and lost on exit.
package sim

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/hal"
	"github.com/tembedos/runtime/internal/shared/errdefs"
)

// Radio simulates the transceiver. Received signals can be injected with
// Inject for tests and demos.
type Radio struct {
	mu         sync.Mutex
	frequency  uint32
	modulation string
	receiving  bool
	queue      []*hal.Signal
	log        *zap.Logger
}

func NewRadio(log *zap.Logger) *Radio {
	if log == nil {
		log = zap.NewNop()
	}
	return &Radio{frequency: 433920000, modulation: "ASK_OOK", log: log}
}

var validModulations = map[string]bool{
	"ASK_OOK": true,
	"GFSK":    true,
	"MSK":     true,
	"2FSK":    true,
}

func (r *Radio) SetFrequency(hz uint32) error {
	if hz < 300000000 || hz > 928000000 {
		return fmt.Errorf("frequency %d out of range: %w", hz, errdefs.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frequency = hz
	return nil
}

func (r *Radio) Frequency() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frequency
}

func (r *Radio) SetModulation(mode string) error {
	if !validModulations[mode] {
		return fmt.Errorf("modulation %q: %w", mode, errdefs.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modulation = mode
	return nil
}

func (r *Radio) StartReceive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiving = true
	return nil
}

func (r *Radio) StopReceive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiving = false
	return nil
}

func (r *Radio) Transmit(data []byte) error {
	if len(data) == 0 {
		return errdefs.ErrInvalidArgument
	}
	r.log.Debug("sim transmit", zap.Int("bytes", len(data)))
	return nil
}

func (r *Radio) ReadSignal() (*hal.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, hal.ErrNoSignal
	}
	sig := r.queue[0]
	r.queue = r.queue[1:]
	return sig, nil
}

func (r *Radio) RSSI() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.receiving {
		return -62
	}
	return -120
}

func (r *Radio) Present() bool { return true }

func (r *Radio) LoadPreset(name string) error {
	switch name {
	case "AM270", "AM650", "FM238", "FM476":
		return nil
	default:
		return fmt.Errorf("preset %q: %w", name, errdefs.ErrNotFound)
	}
}

// Inject queues a signal for the next ReadSignal.
func (r *Radio) Inject(sig *hal.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, sig)
}

// GPIO simulates pins as a level map.
type GPIO struct {
	mu     sync.Mutex
	modes  map[int]string
	levels map[int]bool
}

func NewGPIO() *GPIO {
	return &GPIO{modes: make(map[int]string), levels: make(map[int]bool)}
}

func (g *GPIO) Setup(pin int, mode string) error {
	if mode != "input" && mode != "output" {
		return fmt.Errorf("gpio mode %q: %w", mode, errdefs.ErrInvalidArgument)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modes[pin] = mode
	return nil
}

func (g *GPIO) Write(pin int, level bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.modes[pin] != "output" {
		return fmt.Errorf("pin %d not configured for output: %w", pin, errdefs.ErrInvalidArgument)
	}
	g.levels[pin] = level
	return nil
}

func (g *GPIO) Read(pin int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.modes[pin]; !ok {
		return false, fmt.Errorf("pin %d not configured: %w", pin, errdefs.ErrInvalidArgument)
	}
	return g.levels[pin], nil
}

// Display simulates the UI port. Widget mutation is serialized by its own
// lock, the same rule the LVGL port enforces.
type Display struct {
	mu      sync.Mutex
	nextID  int
	widgets map[int]string
	log     *zap.Logger
}

func NewDisplay(log *zap.Logger) *Display {
	if log == nil {
		log = zap.NewNop()
	}
	return &Display{nextID: 1, widgets: make(map[int]string), log: log}
}

func (d *Display) create(kind, text string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.widgets[id] = kind + ":" + text
	return id, nil
}

func (d *Display) CreateScreen(title string) (int, error) { return d.create("screen", title) }

func (d *Display) CreateButton(screen int, label string) (int, error) {
	d.mu.Lock()
	_, ok := d.widgets[screen]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("screen %d: %w", screen, errdefs.ErrNotFound)
	}
	return d.create("button", label)
}

func (d *Display) CreateLabel(screen int, text string) (int, error) {
	d.mu.Lock()
	_, ok := d.widgets[screen]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("screen %d: %w", screen, errdefs.ErrNotFound)
	}
	return d.create("label", text)
}

func (d *Display) ShowNotification(text string) error {
	d.log.Info("notification", zap.String("text", text))
	return nil
}

// Storage simulates the storage service with an in-memory file and config map.
type Storage struct {
	mu     sync.Mutex
	files  map[string]string
	config map[string]string
}

func NewStorage() *Storage {
	return &Storage{files: make(map[string]string), config: make(map[string]string)}
}

func (s *Storage) WriteText(path, content string) error {
	if path == "" {
		return errdefs.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
	return nil
}

func (s *Storage) ReadText(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, errdefs.ErrNotFound)
	}
	return content, nil
}

func (s *Storage) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[path]; !ok {
		return fmt.Errorf("%s: %w", path, errdefs.ErrNotFound)
	}
	delete(s.files, path)
	return nil
}

func (s *Storage) SetConfig(key, value string) error {
	if key == "" {
		return errdefs.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

func (s *Storage) GetConfig(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.config[key]
	if !ok {
		return "", fmt.Errorf("config %s: %w", key, errdefs.ErrNotFound)
	}
	return value, nil
}

// Network simulates the Wi-Fi service. Scan sleeps briefly to model the
// bounded dwell time of a real scan.
type Network struct {
	mu        sync.Mutex
	connected string
	apActive  bool
	scanDwell time.Duration
}

func NewNetwork() *Network {
	return &Network{scanDwell: 10 * time.Millisecond}
}

func (n *Network) Connect(ssid, password string) error {
	if ssid == "" {
		return errdefs.ErrInvalidArgument
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = ssid
	return nil
}

func (n *Network) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = ""
	return nil
}

func (n *Network) Scan() ([]hal.AccessPoint, error) {
	time.Sleep(n.scanDwell)
	return []hal.AccessPoint{
		{SSID: "workshop", RSSI: -48},
		{SSID: "garage-iot", RSSI: -71},
	}, nil
}

func (n *Network) Status() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connected != "" {
		return "connected", nil
	}
	return "disconnected", nil
}

func (n *Network) IPAddress() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connected == "" {
		return "", fmt.Errorf("ip address: %w", errdefs.ErrNotFound)
	}
	return "192.168.4.17", nil
}

func (n *Network) StartAP(ssid, password string) error {
	if ssid == "" {
		return errdefs.ErrInvalidArgument
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.apActive = true
	return nil
}

func (n *Network) StopAP() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.apActive = false
	return nil
}

// Notifier logs attention events instead of driving hardware.
type Notifier struct {
	log *zap.Logger
}

func NewNotifier(log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{log: log}
}

func (n *Notifier) Show(message string) error {
	n.log.Info("notify", zap.String("message", message))
	return nil
}

func (n *Notifier) LED(on bool) error {
	n.log.Debug("led", zap.Bool("on", on))
	return nil
}

func (n *Notifier) Beep(durationMS int) error {
	if durationMS < 0 {
		return errdefs.ErrInvalidArgument
	}
	return nil
}

func (n *Notifier) Vibrate(durationMS int) error {
	if durationMS < 0 {
		return errdefs.ErrInvalidArgument
	}
	return nil
}

func (n *Notifier) Flash(times int) error {
	if times < 0 {
		return errdefs.ErrInvalidArgument
	}
	return nil
}

// Sanity check the interfaces are satisfied.
var (
	_ hal.Radio    = (*Radio)(nil)
	_ hal.GPIO     = (*GPIO)(nil)
	_ hal.Display  = (*Display)(nil)
	_ hal.Storage  = (*Storage)(nil)
	_ hal.Network  = (*Network)(nil)
	_ hal.Notifier = (*Notifier)(nil)
)

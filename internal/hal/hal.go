// Package hal declares the hardware collaborator interfaces the runtime
// drives. Real drivers (SPI transceiver, LVGL display port, Wi-Fi stack) live
// behind these interfaces; the runtime only ever sees the contract.
package hal

import "errors"

// ErrNoSignal is returned by Radio.ReadSignal when nothing has been received.
// It is an expected condition, not a failure.
var ErrNoSignal = errors.New("no signal available")

// Signal is a captured RF transmission.
type Signal struct {
	Frequency uint32 `json:"frequency"`
	RSSI      int    `json:"rssi"`
	Data      []byte `json:"data"`
}

// Radio is the sub-GHz transceiver. Singleton with no internal locking; the
// app manager's single-current-app invariant keeps access exclusive.
type Radio interface {
	SetFrequency(hz uint32) error
	Frequency() uint32
	SetModulation(mode string) error
	StartReceive() error
	StopReceive() error
	Transmit(data []byte) error
	ReadSignal() (*Signal, error)
	RSSI() int
	Present() bool
	LoadPreset(name string) error
}

// GPIO drives general-purpose pins.
type GPIO interface {
	Setup(pin int, mode string) error
	Write(pin int, level bool) error
	Read(pin int) (bool, error)
}

// Display is the UI port. Implementations must serialize widget mutation
// internally; UI natives may be invoked from the script worker.
type Display interface {
	CreateScreen(title string) (int, error)
	CreateButton(screen int, label string) (int, error)
	CreateLabel(screen int, text string) (int, error)
	ShowNotification(text string) error
}

// Storage is the app-visible file and config service.
type Storage interface {
	WriteText(path, content string) error
	ReadText(path string) (string, error)
	Delete(path string) error
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
}

// AccessPoint is one Wi-Fi scan result.
type AccessPoint struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"`
}

// Network is the Wi-Fi service. Scan is bounded by an internal timeout owned
// by the implementation; no call blocks indefinitely.
type Network interface {
	Connect(ssid, password string) error
	Disconnect() error
	Scan() ([]AccessPoint, error)
	Status() (string, error)
	IPAddress() (string, error)
	StartAP(ssid, password string) error
	StopAP() error
}

// Notifier drives user-attention hardware.
type Notifier interface {
	Show(message string) error
	LED(on bool) error
	Beep(durationMS int) error
	Vibrate(durationMS int) error
	Flash(times int) error
}

package serialmux

import (
	"errors"
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{name: "defaults", in: PortOptions{}, want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}},
		{name: "long parity names", in: PortOptions{BaudRate: 9600, Parity: " even "}, want: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "E"}},
		{name: "odd two stop bits", in: PortOptions{DataBits: 7, StopBits: 2, Parity: "o"}, want: PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "O"}},
		{name: "bad data bits", in: PortOptions{DataBits: 9}, wantErr: true},
		{name: "bad stop bits", in: PortOptions{StopBits: 3}, wantErr: true},
		{name: "bad parity", in: PortOptions{Parity: "mark"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	t.Parallel()
	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "E"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	want := serial.Mode{BaudRate: 57600, DataBits: 8, StopBits: serial.TwoStopBits, Parity: serial.EvenParity}
	if *mode != want {
		t.Errorf("got %+v, want %+v", *mode, want)
	}
	if _, err := (PortOptions{Parity: "?"}).SerialMode(); err == nil {
		t.Error("expected error for bad parity")
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	t.Cleanup(func() { port.Close() })

	var gotPath string
	var gotMode *serial.Mode
	opener := func(path string, mode *serial.Mode) (SerialPorter, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}
	mux, err := Open("/dev/ttyACM0", PortOptions{}, opener)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotPath != "/dev/ttyACM0" || gotMode.BaudRate != DefaultBaudRate {
		t.Errorf("opened %q at %d baud", gotPath, gotMode.BaudRate)
	}
	if err := mux.SendCommand("lec"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if port.Written() != "lec\n" {
		t.Errorf("written = %q", port.Written())
	}

	failing := func(string, *serial.Mode) (SerialPorter, error) { return nil, errors.New("no device") }
	if _, err := Open("/dev/null", PortOptions{}, failing); err == nil {
		t.Error("expected opener error")
	}
	if _, err := Open("/dev/null", PortOptions{DataBits: 2}, opener); err == nil {
		t.Error("expected options error")
	}
}

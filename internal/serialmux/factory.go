package serialmux

// Open opens the gateway at path through opener and wraps it in a SerialMux.
// A nil opener uses OpenSerialPort.
func Open(path string, opts PortOptions, opener PortOpener) (*SerialMux[SerialPorter], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	if opener == nil {
		opener = OpenSerialPort
	}
	port, err := opener(path, mode)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}

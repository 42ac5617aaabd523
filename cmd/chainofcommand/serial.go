package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// baudRates maps a baud rate in bits per second to the termios speed
// constant golang.org/x/sys/unix exposes for it. Only the rates the
// board's UART driver actually negotiates need to be listed.
var baudRates = map[uint32]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1500000: unix.B1500000,
}

// openSerial opens path as a raw, 8N1, no-flow-control serial line at
// baud bits per second — the same "talk directly to a character
// device" termios setup tamago's own host-side tooling uses, rather
// than pulling in a serial-port library.
func openSerial(path string, baud uint32) (*os.File, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}

	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("get termios: %w", err)
	}

	t.Iflag = 0
	t.Oflag = 0
	t.Lflag = 0
	t.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, fmt.Errorf("set termios: %w", err)
	}
	return f, nil
}

// enableStdinRawMode disables canonical mode and local echo on stdin so
// every keystroke reaches the serial link immediately. The returned
// func restores the terminal's prior settings and must be deferred.
func enableStdinRawMode() (restore func(), err error) {
	fd := int(os.Stdin.Fd())
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("get termios: %w", err)
	}

	raw := *orig
	raw.Iflag &^= unix.IXON | unix.ICRNL | unix.BRKINT | unix.ISTRIP
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, fmt.Errorf("set termios: %w", err)
	}

	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, orig)
	}, nil
}

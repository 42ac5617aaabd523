// Command chainofcommand is the host side of the chainboot wire
// protocol: it opens a serial link to a waiting target, passes bytes
// through to and from the user's terminal, and — the moment the
// target asks for a kernel — streams one over and resumes
// pass-through. A single goroutine owns the serial connection, fed
// by one reader goroutine over a channel, so there is exactly one
// consumer of incoming bytes whether they belong to pass-through or
// to the handshake.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	_ "github.com/mkevac/debugcharts"

	"github.com/metta-systems/nucleus/chainboot"
)

func main() {
	log.SetFlags(0)

	var (
		kernelPath  = flag.String("kernel", "kernel8.img", "path of the binary kernel image to send")
		debugCharts = flag.Bool("debug-charts", false, "serve live handshake charts at :1234/debug/charts")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <port> <baud> [--kernel path] [--debug-charts]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	port := flag.Arg(0)
	var baud uint32
	if _, err := fmt.Sscanf(flag.Arg(1), "%d", &baud); err != nil {
		log.Fatalf("chainofcommand: invalid baud rate %q: %v", flag.Arg(1), err)
	}

	if *debugCharts {
		go func() {
			log.Println(http.ListenAndServe("localhost:1234", nil))
		}()
	}

	kernel, err := os.ReadFile(*kernelPath)
	if err != nil {
		log.Fatalf("chainofcommand: reading kernel image: %v", err)
	}

	restoreStdin, err := enableStdinRawMode()
	if err != nil {
		log.Fatalf("chainofcommand: %v", err)
	}
	defer restoreStdin()

	serial, err := openSerial(port, baud)
	if err != nil {
		log.Fatalf("chainofcommand: opening %s: %v", port, err)
	}
	defer serial.Close()

	fmt.Fprintf(os.Stderr, "chainofcommand: waiting for handshake, pass-through. power the target now.\r\n")

	if err := session(serial, os.Stdin, os.Stdout, kernel); err != nil {
		log.Fatalf("chainofcommand: %v", err)
	}
}

// session runs the pass-through-plus-handshake loop for one connected
// target.
func session(serial *os.File, stdin *os.File, stdout *os.File, kernel []byte) error {
	fromSerial := make(chan []byte, 64)
	go readLoop(serial, fromSerial)

	fromStdin := make(chan []byte, 64)
	go readLoop(stdin, fromStdin)

	link := &serialLink{reader: chanReader{ch: fromSerial}, writer: serial}

	breaks := 0
	for {
		select {
		case chunk, ok := <-fromStdin:
			if !ok {
				return nil
			}
			if _, err := serial.Write(chunk); err != nil {
				return err
			}
			stdout.Write(chunk)

		case chunk, ok := <-fromSerial:
			if !ok {
				return nil
			}
			for i, b := range chunk {
				if b == chainboot.RequestByte {
					breaks++
					if breaks == chainboot.RequestByteCount {
						breaks = 0
						link.pushBack(chunk[i+1:])
						fmt.Fprintf(stdout, "\r\n[>>] sending kernel image (%d bytes)\r\n", len(kernel))
						if err := chainboot.SendKernel(link, kernel); err != nil {
							fmt.Fprintf(stdout, "\r\n[>>] send failed: %v\r\n", err)
						} else {
							fmt.Fprintf(stdout, "\r\n[>>] send successful, pass-through\r\n")
						}
						break
					}
					continue
				}
				breaks = 0
				stdout.Write([]byte{b})
			}
		}
	}
}

func readLoop(f *os.File, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 256)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			return
		}
	}
}

// chanReader adapts a channel of byte chunks (fed by readLoop) into an
// io.Reader, so chainboot.SendKernel can block on the same stream of
// incoming bytes the pass-through loop already owns.
type chanReader struct {
	ch      <-chan []byte
	pending []byte
}

func (c *chanReader) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		chunk, ok := <-c.ch
		if !ok {
			return 0, fmt.Errorf("serial link closed")
		}
		c.pending = chunk
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

type serialLink struct {
	reader chanReader
	writer *os.File
}

func (s *serialLink) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *serialLink) Write(p []byte) (int, error) { return s.writer.Write(p) }

// pushBack makes the handshake's first read see any bytes that arrived
// in the same chunk as the third request byte, before falling back to
// the channel for more.
func (s *serialLink) pushBack(rest []byte) {
	if len(rest) == 0 {
		return
	}
	s.reader.pending = append(append([]byte{}, rest...), s.reader.pending...)
}

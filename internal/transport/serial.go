package transport

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const inboundBuffer = 16

// Link is the newline-delimited serial session with the host bridge. One
// goroutine reads, one writes; the scheduler never blocks on the wire.
type Link struct {
	conn  io.ReadWriteCloser
	lines chan string
	out   chan []byte
	done  chan struct{}
}

// Open dials the host serial port at 8N1.
func Open(port string, baud int) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	conn, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	log.Info().Str("port", port).Int("baud", baud).Msg("Serial port opened")
	return New(conn), nil
}

// New wraps an already-open connection. Tests pass a pipe here.
func New(conn io.ReadWriteCloser) *Link {
	l := &Link{
		conn:  conn,
		lines: make(chan string, inboundBuffer),
		out:   make(chan []byte, 1),
		done:  make(chan struct{}),
	}
	go l.readLoop()
	go l.writeLoop()
	return l
}

// Lines yields inbound lines. The channel closes when the port closes.
func (l *Link) Lines() <-chan string {
	return l.lines
}

// TrySend queues one outbound line without blocking. Returns false when a
// previous line is still pending; telemetry treats that as superseded.
func (l *Link) TrySend(line []byte) bool {
	select {
	case l.out <- line:
		return true
	default:
		return false
	}
}

func (l *Link) Close() error {
	close(l.done)
	return l.conn.Close()
}

func (l *Link) readLoop() {
	defer close(l.lines)
	scanner := bufio.NewScanner(l.conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		select {
		case l.lines <- scanner.Text():
		default:
			log.Warn().Msg("Inbound line dropped, command buffer full")
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-l.done:
		default:
			log.Error().Err(err).Msg("Serial read failed")
		}
	}
}

func (l *Link) writeLoop() {
	for {
		select {
		case line := <-l.out:
			if _, err := l.conn.Write(line); err != nil {
				select {
				case <-l.done:
					return
				default:
					log.Error().Err(err).Msg("Serial write failed")
				}
			}
		case <-l.done:
			return
		}
	}
}

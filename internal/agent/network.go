package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/yokwe/guam-go/internal/log"
	"github.com/yokwe/guam-go/internal/mesa"
)

// Network FCB layout: a single command/status cell plus a buffer descriptor,
// the same IOCB shape as the disk agent's FCB, carrying a byte length
// instead of a fixed page size since frames vary.
const (
	netCommand  = 0
	netStatus   = 1
	netBufferLo = 2
	netBufferHi = 3
	netLength   = 4
	netWords    = 5
)

// Network command codes.
const (
	NetworkCommandTransmit mesa.Word = 1
	NetworkCommandReceive  mesa.Word = 2
)

// Network status codes.
const (
	NetworkStatusOK    mesa.Word = 0
	NetworkStatusError mesa.Word = 1
)

// minTransmitBytes is the minimum Ethernet frame length the core pads
// outgoing frames to (§6); odd lengths are rounded up to the next whole
// word before padding is applied.
const minTransmitBytes = 64

// ethPAll is ETH_P_ALL in network byte order, the protocol AgentNetwork
// binds its AF_PACKET socket to so it sees every frame on the interface.
const ethPAll = 0x0300 // htons(unix.ETH_P_ALL)

// ErrNetworkClosed is returned by operations attempted after Close.
var ErrNetworkClosed = errors.New("agent: network agent is closed")

// Network is the network agent: a raw AF_PACKET socket bridging Ethernet
// frames to the guest's IOCB chain. Per §1/§6 it deliberately does not
// reproduce the original MAC layer's wire framing; frames are exchanged as
// opaque byte payloads, byteswapped into machine word order exactly once at
// this boundary (the redesign decision recorded in DESIGN.md: earlier
// implementations mixed an index-xor convention with explicit word-swap
// helpers, addressed here by picking one and applying it everywhere).
//
// Receive and transmit each run on their own worker goroutine, with
// transmit frames queued through a bounded channel, so socket I/O never stalls the
// processor goroutine -- the same shape as the disk agent's synchronous
// Call would give, except a raw socket read can block indefinitely, so it
// cannot run inline on CALLAGENT the way disk transfers do.
type Network struct {
	fd int

	m   *mesa.Machine
	fcb mesa.Long

	txCh chan []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	log *log.Logger
}

// NewNetwork opens a raw AF_PACKET socket on the named interface (e.g.
// "eth0"). The caller must have CAP_NET_RAW or run as root.
func NewNetwork(iface string) (*Network, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, ethPAll)
	if err != nil {
		return nil, fmt.Errorf("agent: open network socket: %w", err)
	}

	idx, err := interfaceIndex(iface)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	addr := unix.SockaddrLinklayer{
		Protocol: ethPAll,
		Ifindex:  idx,
	}

	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("agent: bind network socket to %s: %w", iface, err)
	}

	return &Network{
		fd:   fd,
		txCh: make(chan []byte, 16),
		log:  log.DefaultLogger(),
	}, nil
}

func (n *Network) Index() int    { return 4 }
func (n *Network) Name() string  { return "network" }
func (n *Network) FCBSize() int  { return netWords }

func (n *Network) Initialize(m *mesa.Machine, fcb mesa.Long) error {
	n.m = m
	n.fcb = fcb

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.wg.Add(2)
	go n.receiveLoop(ctx)
	go n.transmitLoop(ctx)

	return nil
}

// Call serves CALLAGENT(Index()): the guest has posted a transmit or
// receive request in the FCB. Transmit hands the frame to the transmit
// worker and returns immediately; receive is driven the other way (the
// receive worker posts completed frames and calls NotifyInterrupt), so a
// receive Call here records nothing: the receive worker writes every
// incoming frame into the FCB's buffer as it arrives, whether or not a
// receive was requested.
func (n *Network) Call(m *mesa.Machine) error {
	cmd, err := n.readWord(m, netCommand)
	if err != nil {
		return err
	}

	switch cmd {
	case NetworkCommandTransmit:
		return n.handleTransmit(m)
	case NetworkCommandReceive:
		// Nothing to record; the receive worker delivers frames on its own.
		return nil
	default:
		return n.postStatus(m, NetworkStatusError)
	}
}

func (n *Network) handleTransmit(m *mesa.Machine) error {
	lo, err := n.readWord(m, netBufferLo)
	if err != nil {
		return err
	}

	hi, err := n.readWord(m, netBufferHi)
	if err != nil {
		return err
	}

	length, err := n.readWord(m, netLength)
	if err != nil {
		return err
	}

	bufVA := mesa.JoinWords(lo, hi)

	frame, err := n.readFrame(m, bufVA, int(length))
	if err != nil {
		return n.postStatus(m, NetworkStatusError)
	}

	frame = padFrame(frame)

	select {
	case n.txCh <- frame:
	default:
		n.log.Warn("NETWORK TRANSMIT QUEUE FULL, FRAME DROPPED")
		return n.postStatus(m, NetworkStatusError)
	}

	return n.postStatus(m, NetworkStatusOK)
}

// padFrame rounds an odd length up to a whole word and pads with zero bytes
// up to the minimum Ethernet frame length, per §6.
func padFrame(frame []byte) []byte {
	if len(frame)%2 != 0 {
		frame = append(frame, 0)
	}

	if len(frame) < minTransmitBytes {
		pad := make([]byte, minTransmitBytes-len(frame))
		frame = append(frame, pad...)
	}

	return frame
}

func (n *Network) transmitLoop(ctx context.Context) {
	defer n.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-n.txCh:
			if _, err := unix.Write(n.fd, frame); err != nil {
				n.log.Error("NETWORK TRANSMIT ERROR", "err", err)
			}
		}
	}
}

func (n *Network) receiveLoop(ctx context.Context) {
	defer n.wg.Done()

	buf := make([]byte, 1600)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		nr, _, err := unix.Recvfrom(n.fd, buf, unix.MSG_DONTWAIT)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				continue
			}

			n.log.Error("NETWORK RECEIVE ERROR", "err", err)

			continue
		}

		if err := n.deliverFrame(buf[:nr]); err != nil {
			n.log.Error("NETWORK DELIVER ERROR", "err", err)
		}
	}
}

// deliverFrame writes a received frame into the guest's FCB buffer,
// byteswapping the big-endian wire bytes into machine word order exactly
// once, and notifies the guest.
func (n *Network) deliverFrame(frame []byte) error {
	lo, err := n.readWord(n.m, netBufferLo)
	if err != nil {
		return err
	}

	hi, err := n.readWord(n.m, netBufferHi)
	if err != nil {
		return err
	}

	bufVA := mesa.JoinWords(lo, hi)

	words := (len(frame) + 1) / 2

	for i := 0; i < words; i++ {
		var w mesa.Word
		if 2*i+1 < len(frame) {
			w = mesa.JoinBytes(frame[2*i+1], frame[2*i])
		} else {
			w = mesa.Word(frame[2*i]) << 8
		}

		p, err := n.m.Mem.Store(bufVA + mesa.Long(i))
		if err != nil {
			return err
		}

		*p = w
	}

	if err := n.writeWord(n.m, netLength, mesa.Word(len(frame))); err != nil {
		return err
	}

	if err := n.postStatus(n.m, NetworkStatusOK); err != nil {
		return err
	}

	n.m.NotifyInterrupt(SelNetwork)

	return nil
}

func (n *Network) readFrame(m *mesa.Machine, bufVA mesa.Long, length int) ([]byte, error) {
	words := (length + 1) / 2
	frame := make([]byte, 0, words*2)

	for i := 0; i < words; i++ {
		p, err := m.Mem.Fetch(bufVA + mesa.Long(i))
		if err != nil {
			return nil, err
		}

		frame = append(frame, byte(*p>>8), byte(*p))
	}

	return frame[:length], nil
}

func (n *Network) readWord(m *mesa.Machine, off mesa.Word) (mesa.Word, error) {
	p, err := m.Mem.Fetch(n.fcb + mesa.Long(off))
	if err != nil {
		return 0, err
	}

	return *p, nil
}

func (n *Network) writeWord(m *mesa.Machine, off mesa.Word, val mesa.Word) error {
	p, err := m.Mem.Store(n.fcb + mesa.Long(off))
	if err != nil {
		return err
	}

	*p = val

	return nil
}

func (n *Network) postStatus(m *mesa.Machine, status mesa.Word) error {
	return n.writeWord(m, netStatus, status)
}

// Close stops the worker goroutines and closes the raw socket.
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}

	n.closed = true
	n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}

	n.wg.Wait()

	return unix.Close(n.fd)
}

// HardwareAddr returns the Ethernet address of iface, for populating the
// processor identity (PID[1..3]) during boot (§4.5).
func HardwareAddr(iface string) (net.HardwareAddr, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("agent: resolve hardware address of %s: %w", iface, err)
	}

	return ifi.HardwareAddr, nil
}

// interfaceIndex resolves iface to its kernel link index via NETLINK-free
// ioctl, matching the Ifindex field SockaddrLinklayer needs for Bind.
func interfaceIndex(iface string) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return 0, fmt.Errorf("agent: resolve interface %s: %w", iface, err)
	}
	defer unix.Close(fd)

	ifreq, err := unix.NewIfreq(iface)
	if err != nil {
		return 0, fmt.Errorf("agent: resolve interface %s: %w", iface, err)
	}

	if err := unix.IoctlIfreq(fd, unix.SIOCGIFINDEX, ifreq); err != nil {
		return 0, fmt.Errorf("agent: resolve interface %s: %w", iface, err)
	}

	return int(ifreq.Uint32()), nil
}

// Package network supplies frame byte streams that arrive over UDP, either
// live from a UART-to-UDP bridge or from a packet capture of one.
package network

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/mmwave.report/internal/monitoring"
)

// pcapng files start with a section header block.
const pcapngMagic = 0x0A0D0D0A

type packetDataSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// PCAPStats counts what a PCAPReader has seen.
type PCAPStats struct {
	Packets    int `json:"packets"`
	UDPPackets int `json:"udp_packets"`
	Matched    int `json:"matched"`
	Bytes      int `json:"bytes"`
}

// PCAPReader yields the UDP payloads of a capture file as one byte stream.
type PCAPReader struct {
	file     io.Closer
	src      packetDataSource
	linkType layers.LinkType
	udpPort  int

	pending []byte
	stats   PCAPStats
	done    bool
}

// OpenPCAP opens a pcap or pcapng file. Only UDP datagrams whose source or
// destination port equals udpPort are kept; 0 keeps every UDP datagram.
func OpenPCAP(path string, udpPort int) (*PCAPReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	r, err := NewPCAPReader(f, udpPort)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read PCAP file %s: %w", path, err)
	}
	r.file = f
	return r, nil
}

// NewPCAPReader reads a capture from r, detecting pcap or pcapng.
func NewPCAPReader(r io.Reader, udpPort int) (*PCAPReader, error) {
	if udpPort < 0 || udpPort > 65535 {
		return nil, fmt.Errorf("invalid UDP port %d", udpPort)
	}
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture magic: %w", err)
	}

	var src packetDataSource
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, err
	}
	return &PCAPReader{src: src, linkType: src.LinkType(), udpPort: udpPort}, nil
}

// Read implements io.Reader over the matching payloads, in capture order.
func (p *PCAPReader) Read(b []byte) (int, error) {
	for len(p.pending) == 0 {
		if p.done {
			return 0, io.EOF
		}
		if err := p.next(); err != nil {
			return 0, err
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *PCAPReader) next() error {
	data, _, err := p.src.ReadPacketData()
	if errors.Is(err, io.EOF) {
		p.done = true
		monitoring.Logf("PCAP reading complete: %d packets, %d matched, %d payload bytes",
			p.stats.Packets, p.stats.Matched, p.stats.Bytes)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read packet: %w", err)
	}
	p.stats.Packets++

	packet := gopacket.NewPacket(data, p.linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		return nil
	}
	p.stats.UDPPackets++
	if p.udpPort != 0 && int(udp.DstPort) != p.udpPort && int(udp.SrcPort) != p.udpPort {
		return nil
	}
	if len(udp.Payload) == 0 {
		return nil
	}
	p.stats.Matched++
	p.stats.Bytes += len(udp.Payload)
	p.pending = udp.Payload
	return nil
}

func (p *PCAPReader) Stats() PCAPStats { return p.stats }

func (p *PCAPReader) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

package network

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/uart"
	"github.com/banshee-data/mmwave.report/internal/testutil"
)

type datagram struct {
	srcPort, dstPort uint16
	payload          []byte
}

func ethernetUDP(t *testing.T, d datagram) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 50),
		DstIP:    net.IPv4(192, 168, 1, 10),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(d.srcPort), DstPort: layers.UDPPort(d.dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.payload)))
	return buf.Bytes()
}

func ethernetTCP(t *testing.T, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(192, 168, 1, 50),
		DstIP:    net.IPv4(192, 168, 1, 10),
	}
	tcp := &layers.TCP{SrcPort: 7000, DstPort: 7000, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writePCAP(t *testing.T, packets ...[]byte) []byte {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Unix(1700000000, 0)
	for i, p := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(p),
			Length:        len(p),
		}
		require.NoError(t, w.WritePacket(ci, p))
	}
	return out.Bytes()
}

func writePCAPNG(t *testing.T, packets ...[]byte) []byte {
	t.Helper()
	var out bytes.Buffer
	w, err := pcapgo.NewNgWriter(&out, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for _, p := range packets {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000, 0), CaptureLength: len(p), Length: len(p)}
		require.NoError(t, w.WritePacket(ci, p))
	}
	require.NoError(t, w.Flush())
	return out.Bytes()
}

func TestPCAPReader_ConcatenatesMatchingPayloads(t *testing.T) {
	frame := testutil.PointFrame(21, [4]float32{1, 2, 3, 4})
	capture := writePCAP(t,
		ethernetUDP(t, datagram{7000, 7001, frame[:30]}),
		ethernetUDP(t, datagram{5353, 5353, []byte("mdns noise")}),
		ethernetTCP(t, []byte("tcp noise")),
		ethernetUDP(t, datagram{7000, 7001, frame[30:]}),
	)

	r, err := NewPCAPReader(bytes.NewReader(capture), 7001)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	st := r.Stats()
	assert.Equal(t, 4, st.Packets)
	assert.Equal(t, 3, st.UDPPackets)
	assert.Equal(t, 2, st.Matched)
	assert.Equal(t, len(frame), st.Bytes)
}

func TestPCAPReader_PortZeroKeepsAllUDP(t *testing.T) {
	capture := writePCAP(t,
		ethernetUDP(t, datagram{1, 2, []byte("ab")}),
		ethernetUDP(t, datagram{3, 4, []byte("cd")}),
	)
	r, err := NewPCAPReader(bytes.NewReader(capture), 0)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
}

func TestPCAPReader_SourcePortMatches(t *testing.T) {
	capture := writePCAP(t, ethernetUDP(t, datagram{7000, 40000, []byte("x")}))
	r, err := NewPCAPReader(bytes.NewReader(capture), 7000)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestPCAPReader_PCAPNG(t *testing.T) {
	frame := testutil.PointFrame(5)
	capture := writePCAPNG(t, ethernetUDP(t, datagram{7000, 7000, frame}))
	r, err := NewPCAPReader(bytes.NewReader(capture), 7000)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestOpenPCAP_FeedsUARTReader(t *testing.T) {
	var packets [][]byte
	for i := uint32(0); i < 3; i++ {
		packets = append(packets, ethernetUDP(t, datagram{7000, 7000, testutil.PointFrame(i, [4]float32{0, 1, 0, 0})}))
	}
	path := filepath.Join(t.TempDir(), "bridge.pcap")
	require.NoError(t, os.WriteFile(path, writePCAP(t, packets...), 0644))

	src, err := OpenPCAP(path, 7000)
	require.NoError(t, err)
	defer src.Close()

	r := uart.NewReader(src, uart.Options{})
	var numbers []uint32
	for {
		f, err := r.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		assert.Equal(t, parse.ErrNone, f.Error)
		numbers = append(numbers, f.FrameNumber)
	}
	assert.Equal(t, []uint32{0, 1, 2}, numbers)
}

func TestPCAPReader_Errors(t *testing.T) {
	_, err := NewPCAPReader(bytes.NewReader([]byte{1, 2}), 0)
	assert.Error(t, err)

	_, err = NewPCAPReader(bytes.NewReader(bytes.Repeat([]byte{0xee}, 32)), 0)
	assert.Error(t, err)

	_, err = NewPCAPReader(bytes.NewReader(nil), 70000)
	assert.Error(t, err)

	_, err = OpenPCAP(filepath.Join(t.TempDir(), "missing.pcap"), 0)
	assert.Error(t, err)
}

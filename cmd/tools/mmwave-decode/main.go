// Command mmwave-decode decodes a captured mmWave byte stream and writes
// each frame as a JSON line or a CBOR item. The input may be a raw UART
// dump, a recording directory, or a pcap/pcapng capture of a UDP bridge.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fxamacker/cbor/v2"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/mmwave/network"
	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/uart"
	"github.com/banshee-data/mmwave.report/internal/recorder"
	"github.com/banshee-data/mmwave.report/internal/security"
	"github.com/banshee-data/mmwave.report/internal/version"
)

var (
	outPath   = flag.String("o", "-", "output file, '-' for stdout, 'auto' to derive a name from the input")
	format    = flag.String("format", "json", "output format: json (one frame per line) or cbor (a sequence of items)")
	summaries = flag.Bool("summaries", false, "write per-frame summaries instead of full frames")
	pcapPort  = flag.Int("port", network.DefaultUDPPort, "UDP port to keep when the input is a capture; 0 keeps every datagram")
	alignment = flag.Int("alignment", parse.FRAME_ALIGNMENT, "frame padding used to check totalPacketLen")
	maxFrame  = flag.Int("max-frame-bytes", parse.MAX_SANE_FRAME_BYTES, "largest declared frame length accepted")
	reportOut = flag.Bool("report-json", false, "print the final report as JSON instead of text")
	verbose   = flag.Bool("v", false, "log decoder diagnostics to stderr")
	versionF  = flag.Bool("version", false, "print version and exit")
)

// Report is what one decode run saw.
type Report struct {
	Input        string         `json:"input"`
	Frames       int            `json:"frames"`
	Written      int            `json:"written"`
	EncodeErrors int            `json:"encode_errors"`
	Errors       map[string]int `json:"errors"`
	TLVs         map[string]int `json:"tlvs"`
	Points       int            `json:"points"`
	Tracks       int            `json:"tracks"`
	Reader       uart.Stats     `json:"reader"`
}

func newReport(input string) *Report {
	return &Report{Input: input, Errors: map[string]int{}, TLVs: map[string]int{}}
}

func (r *Report) add(f *parse.Frame) {
	r.Frames++
	r.Errors[f.Error.String()]++
	for _, t := range f.TLVTypes {
		r.TLVs[t.String()]++
	}
	r.Points += len(f.DetectedPoints())
	r.Tracks += len(f.Tracks)
}

func (r *Report) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s: %d frames, %d written, %d points, %d tracks\n", r.Input, r.Frames, r.Written, r.Points, r.Tracks)
	fmt.Fprintf(w, "  reader: %d short, %d bad lengths, %d bytes discarded\n",
		r.Reader.ShortFrames, r.Reader.BadLengths, r.Reader.BytesDiscarded)
	if r.EncodeErrors > 0 {
		fmt.Fprintf(w, "  %d frames could not be encoded and were written as summaries\n", r.EncodeErrors)
	}
	writeCounts(w, "errors", r.Errors)
	writeCounts(w, "tlvs", r.TLVs)
}

func writeCounts(w io.Writer, label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "  %s:\n", label)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-32s %d\n", k, counts[k])
	}
}

// encoder is satisfied by both json.Encoder and cbor.Encoder.
type encoder interface {
	Encode(v any) error
}

func newEncoder(format string, w io.Writer) (encoder, error) {
	switch format {
	case "json":
		return json.NewEncoder(w), nil
	case "cbor":
		return cbor.NewEncoder(w), nil
	}
	return nil, fmt.Errorf("unknown format %q (want json or cbor)", format)
}

// openInput picks the byte source for path: recording directories and flat
// dumps go through the recorder, .pcap and .pcapng files through the
// capture reader.
func openInput(path string, port int) (io.ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng":
		return network.OpenPCAP(path, port)
	}
	return recorder.Open(path)
}

type decodeOptions struct {
	Parser        *parse.Parser
	MaxFrameBytes int
	Summaries     bool
}

// decode reads every frame from src and encodes it. The report is returned
// even when decoding stops on an error.
func decode(ctx context.Context, src io.Reader, enc encoder, opts decodeOptions, rep *Report) error {
	r := uart.NewReader(src, uart.Options{Parser: opts.Parser, MaxFrameBytes: opts.MaxFrameBytes})
	defer func() { rep.Reader = r.Stats() }()
	for {
		f, err := r.Next(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
		rep.add(f)

		var v any = f
		if opts.Summaries {
			v = f.Summary()
		}
		if err := enc.Encode(v); err != nil {
			if opts.Summaries {
				return fmt.Errorf("failed to write frame %d: %w", f.FrameNumber, err)
			}
			// NaN and Inf payload values have no JSON form.
			rep.EncodeErrors++
			mmwave.Diagf("frame %d: %v, writing summary", f.FrameNumber, err)
			if err := enc.Encode(f.Summary()); err != nil {
				return fmt.Errorf("failed to write frame %d: %w", f.FrameNumber, err)
			}
		}
		rep.Written++
	}
}

// outputName derives the output file for -o auto.
func outputName(input, format string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return security.SanitizeFilename(base) + "." + format
}

func createOutput(path, input, format string) (io.WriteCloser, error) {
	switch path {
	case "-":
		return nopCloser{os.Stdout}, nil
	case "auto":
		path = outputName(input, format)
	}
	if err := security.ValidateOutputPath(path); err != nil {
		return nil, fmt.Errorf("invalid output path: %w", err)
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <capture.bin | recording-dir | capture.pcap>\n", filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *versionF {
		fmt.Println(version.String("mmwave-decode"))
		return
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	ops := io.Writer(os.Stderr)
	var diag io.Writer
	if *verbose {
		diag = os.Stderr
	}
	mmwave.SetLogWriters(mmwave.LogWriters{Ops: ops, Diag: diag})

	if *alignment < 0 || (*alignment > 1 && *alignment&(*alignment-1) != 0) {
		log.Fatalf("alignment must be 0, 1 or a power of two, got %d", *alignment)
	}
	p := parse.NewParser()
	p.Alignment = *alignment

	src, err := openInput(input, *pcapPort)
	if err != nil {
		log.Fatalf("failed to open %s: %v", input, err)
	}
	defer src.Close()

	out, err := createOutput(*outPath, input, *format)
	if err != nil {
		log.Fatal(err)
	}
	enc, err := newEncoder(*format, out)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep := newReport(input)
	decodeErr := decode(ctx, src, enc, decodeOptions{Parser: p, MaxFrameBytes: *maxFrame, Summaries: *summaries}, rep)
	if err := out.Close(); err != nil {
		log.Printf("failed to close output: %v", err)
	}

	if *reportOut {
		b, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Fprintln(os.Stderr, string(b))
	} else {
		rep.WriteText(os.Stderr)
	}
	if decodeErr != nil && !errors.Is(decodeErr, context.Canceled) {
		log.Fatalf("decode stopped: %v", decodeErr)
	}
}

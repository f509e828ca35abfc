package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mmwave.report/internal/api"
	"github.com/banshee-data/mmwave.report/internal/config"
	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/mmwave/cfg"
	"github.com/banshee-data/mmwave.report/internal/mmwave/network"
	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/uart"
	"github.com/banshee-data/mmwave.report/internal/mmwave/vitals"
	"github.com/banshee-data/mmwave.report/internal/recorder"
	"github.com/banshee-data/mmwave.report/internal/serialmux"
	"github.com/banshee-data/mmwave.report/internal/timeutil"
)

type sourceKind string

const (
	sourceLive   sourceKind = "live"
	sourceReplay sourceKind = "replay"
	sourcePCAP   sourceKind = "pcap"
	sourceUDP    sourceKind = "udp"
	sourceMock   sourceKind = "mock"
)

// finiteSubscriberBuffer lets a consumer keep up with a capture that is
// read as fast as the disk allows.
const finiteSubscriberBuffer = 4096

// runOptions is everything run needs beyond the AppConfig.
type runOptions struct {
	conf        *config.AppConfig
	replayPath  string
	pcapPath    string
	pcapPort    int
	mock        bool
	noDB        bool
	sendCfg     bool
	keepServing bool
	clock       timeutil.Clock
	// ready, if set, receives the bound HTTP address once serving.
	ready chan<- string
}

func (o runOptions) kind() (sourceKind, error) {
	var kinds []sourceKind
	if o.replayPath != "" {
		kinds = append(kinds, sourceReplay)
	}
	if o.pcapPath != "" {
		kinds = append(kinds, sourcePCAP)
	}
	if o.conf.GetUDPAddr() != "" {
		kinds = append(kinds, sourceUDP)
	}
	if o.mock {
		kinds = append(kinds, sourceMock)
	}
	switch len(kinds) {
	case 0:
		return sourceLive, nil
	case 1:
		return kinds[0], nil
	}
	return "", fmt.Errorf("choose one frame source, got %v", kinds)
}

// finite sources end with io.EOF.
func (k sourceKind) finite() bool { return k == sourceReplay || k == sourcePCAP }

// describe names the source for the session record.
func (o runOptions) describe(k sourceKind) string {
	switch k {
	case sourceReplay:
		return "replay:" + o.replayPath
	case sourcePCAP:
		return fmt.Sprintf("pcap:%s:%d", o.pcapPath, o.pcapPort)
	case sourceUDP:
		return "udp:" + o.conf.GetUDPAddr()
	case sourceMock:
		return "mock"
	}
	if o.conf.GetDevice().SingleCOM {
		return o.conf.GetCLIPort()
	}
	return o.conf.GetDataPort()
}

// openSource builds the mux for k. Replays, captures and UDP streams are
// presented as a single read-only port.
func openSource(k sourceKind, o runOptions, sensor *cfg.SensorConfig, opts serialmux.Options) (serialmux.SerialMuxInterface, error) {
	conf := o.conf
	switch k {
	case sourceReplay:
		src, err := recorder.Open(o.replayPath)
		if err != nil {
			return nil, err
		}
		return serialmux.NewSingleCOMSerialMux[serialmux.SerialPorter](serialmux.NewReplayPort(src), opts), nil
	case sourcePCAP:
		src, err := network.OpenPCAP(o.pcapPath, o.pcapPort)
		if err != nil {
			return nil, err
		}
		return serialmux.NewSingleCOMSerialMux[serialmux.SerialPorter](serialmux.NewReplayPort(src), opts), nil
	case sourceUDP:
		src, err := network.ListenUDP(network.UDPSourceConfig{
			Address:     conf.GetUDPAddr(),
			ReadTimeout: conf.GetReadTimeout(),
		})
		if err != nil {
			return nil, err
		}
		mmwave.Opsf("listening for frames on udp %s", src.LocalAddr())
		return serialmux.NewSingleCOMSerialMux[serialmux.SerialPorter](serialmux.NewReplayPort(src), opts), nil
	case sourceMock:
		period := 100 * time.Millisecond
		if sensor != nil && sensor.FramePeriod() > 0 {
			period = sensor.FramePeriod()
		}
		return serialmux.NewMockSerialMux(mockFrame(), period, opts), nil
	}

	cliOpts := serialmux.PortOptions{BaudRate: conf.GetCLIBaudRate(), ReadTimeout: conf.GetReadTimeout()}
	if opts.Device.SingleCOM {
		return serialmux.NewRealSingleCOMSerialMux(conf.GetCLIPort(), cliOpts, opts)
	}
	dataOpts := serialmux.PortOptions{BaudRate: conf.GetDataBaudRate(), ReadTimeout: conf.GetReadTimeout()}
	return serialmux.NewRealSerialMux(conf.GetCLIPort(), conf.GetDataPort(), cliOpts, dataOpts, opts)
}

// mockFrame is a valid two-point frame for running without hardware.
func mockFrame() []byte {
	var pts []byte
	for _, p := range [][4]float32{{0.5, 2, 1, 0.1}, {-0.3, 3.5, 1.2, -0.4}} {
		for _, v := range p {
			pts = binary.LittleEndian.AppendUint32(pts, math.Float32bits(v))
		}
	}
	body := binary.LittleEndian.AppendUint32(nil, uint32(parse.TLVDetectedPoints))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(pts)))
	body = append(body, pts...)

	n := parse.FRAME_HEADER_SIZE + len(body)
	padded := (n + parse.FRAME_ALIGNMENT - 1) / parse.FRAME_ALIGNMENT * parse.FRAME_ALIGNMENT
	out := parse.AppendHeader(nil, parse.Header{
		TotalPacketLen: uint32(padded),
		NumDetectedObj: 2,
		NumTLVs:        1,
	})
	out = append(out, body...)
	return append(out, make([]byte, padded-n)...)
}

// run starts the session and blocks until ctx is done, or until a finite
// source is exhausted unless keepServing is set.
func run(ctx context.Context, o runOptions) error {
	conf := o.conf
	if o.clock == nil {
		o.clock = timeutil.RealClock{}
	}
	kind, err := o.kind()
	if err != nil {
		return err
	}
	dev := conf.GetDevice()

	var sensor *cfg.SensorConfig
	if p := conf.GetCfgPath(); p != "" {
		sensor, err = cfg.Load(p, dev)
		if err != nil {
			return err
		}
		for _, w := range sensor.Warnings {
			mmwave.Opsf("cfg %s: %s", p, w)
		}
	}

	sessionID := uuid.NewString()
	var store *db.DB
	if !o.noDB {
		store, err = db.NewDB(conf.GetDBPath())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		sess, err := store.StartSession(dev.Name, o.describe(kind), conf.GetCfgPath(), o.clock.Now())
		if err != nil {
			return err
		}
		sessionID = sess.ID
		defer func() {
			if err := store.EndSession(sessionID, o.clock.Now()); err != nil {
				mmwave.Opsf("failed to end session %s: %v", sessionID, err)
			}
		}()
	}

	readerOpts := uart.Options{
		Parser:        conf.Parser(),
		MaxFrameBytes: conf.GetMaxFrameBytes(),
		ChunkSize:     conf.GetReadChunkSize(),
	}
	if dir := conf.GetRecordDir(); dir != "" {
		rec, err := recorder.NewRecorder(dir, recorder.Options{
			Device:         dev.Name,
			FramesPerChunk: conf.GetFramesPerChunk(),
			Clock:          o.clock,
			SessionID:      sessionID,
		})
		if err != nil {
			return err
		}
		readerOpts.OnFrame = rec.RecordFunc(func(err error) { mmwave.Opsf("recording: %v", err) })
		defer func() {
			if err := rec.Close(); err != nil {
				mmwave.Opsf("failed to close recording: %v", err)
			}
			mmwave.Opsf("recorded %d frames to %s", rec.FrameCount(), rec.Path())
		}()
	}

	muxOpts := serialmux.Options{
		Device:           dev,
		Clock:            o.clock,
		Reader:           readerOpts,
		CLIBaudRate:      conf.GetCLIBaudRate(),
		SubscriberBuffer: conf.GetSubscriberBuffer(),
	}
	if kind.finite() {
		muxOpts.SubscriberBuffer = max(muxOpts.SubscriberBuffer, finiteSubscriberBuffer)
	}
	m, err := openSource(kind, o, sensor, muxOpts)
	if err != nil {
		return fmt.Errorf("failed to open %s source: %w", kind, err)
	}
	defer m.Close()

	if kind == sourceLive && o.sendCfg {
		if sensor == nil {
			mmwave.Opsf("no cfg file given, assuming the sensor is already configured")
		} else if _, err := m.SendConfig(ctx, sensor.Commands()); err != nil {
			return fmt.Errorf("failed to send cfg: %w", err)
		}
	}

	tracker := vitals.NewTracker(vitals.ConfigFor(sensor))
	consumerOpts := mmwave.ConsumerOptions{SessionID: sessionID, Vitals: tracker, Clock: o.clock}
	if store != nil && conf.GetPersistFrames() {
		consumerOpts.Store = store
	}
	consumer := mmwave.NewConsumer(m, consumerOpts)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	stop := func() {
		cancel()
		wg.Wait()
	}

	// run the monitor routine to manage IO on the data port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			mmwave.Opsf("failed to monitor %s source: %v", kind, err)
		}
		mmwave.Diagf("monitor routine terminated: %+v", m.Stats())
		if kind.finite() && !o.keepServing {
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	mux := http.NewServeMux()
	// mount the admin debugging routes (accessible only over localhost or Tailscale)
	m.AttachAdminRoutes(mux)
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			stop()
			return fmt.Errorf("failed to attach db admin routes: %w", err)
		}
	}
	apiServer := api.NewServer(m, api.Options{
		DB:        store,
		Sensor:    sensor,
		Vitals:    tracker,
		SessionID: sessionID,
	})
	mux.Handle("/api/", apiServer.ServeMux())

	ln, err := net.Listen("tcp", conf.GetListenAddr())
	if err != nil {
		stop()
		return fmt.Errorf("failed to listen: %w", err)
	}
	server := &http.Server{
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			cancel()
		}
	}()
	mmwave.Opsf("session %s: serving on http://%s", sessionID, ln.Addr())
	if o.ready != nil {
		o.ready <- ln.Addr().String()
	}

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mmwave.Opsf("HTTP server shutdown error: %v", err)
	}
	wg.Wait()
	mmwave.Opsf("session %s ended: %+v", sessionID, consumer.Stats())

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	default:
		return nil
	}
}

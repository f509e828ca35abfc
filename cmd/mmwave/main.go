// Command mmwave configures a TI mmWave sensor, decodes its frame stream
// and serves the result over HTTP. Recordings, pcap captures, UDP bridges
// and a synthetic source stand in for the serial ports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/mmwave.report/internal/config"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/mmwave/network"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
	"github.com/banshee-data/mmwave.report/internal/version"
)

var (
	configPath = flag.String("config", "", "Service config file (.toml or .json)")
	cfgPath    = flag.String("cfg", "", "Sensor .cfg file (overrides cfg_path)")
	device     = flag.String("device", "", "Device family: xWR6843, xWR1843, xWRL6432 or xWRL1432")
	cliPort    = flag.String("cli-port", "", "CLI serial port (the only port on single-COM devices)")
	dataPort   = flag.String("data-port", "", "Data serial port")
	listen     = flag.String("listen", "", "HTTP listen address (default :8080)")
	dbPath     = flag.String("db", "", "sqlite database path (default mmwave.db)")
	recordDir  = flag.String("record", "", "Record raw frames into this directory")
	udpAddr    = flag.String("udp", "", "Read frames from UDP datagrams on this address instead of the data port")

	replayPath  = flag.String("replay", "", "Replay a recording directory or raw capture file")
	pcapPath    = flag.String("pcap", "", "Replay UDP payloads from a pcap or pcapng file")
	pcapPort    = flag.Int("pcap-port", network.DefaultUDPPort, "UDP port selected from -pcap, 0 for any")
	mockMode    = flag.Bool("mock", false, "Serve synthetic frames without hardware")
	noDB        = flag.Bool("no-db", false, "Do not open a database")
	skipCfg     = flag.Bool("skip-cfg", false, "Do not send the cfg, the sensor is already running")
	keepServing = flag.Bool("keep-serving", false, "Keep serving the API after a replay or capture ends")
	diagLog     = flag.Bool("diag", false, "Enable the diagnostic log stream")
	traceLog    = flag.Bool("trace", false, "Enable the per-frame trace log stream")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// applyOverrides copies the explicitly set flags into conf.
func applyOverrides(conf *config.AppConfig, set map[string]bool) {
	strFlags := map[string]struct {
		val *string
		dst **string
	}{
		"cfg":       {cfgPath, &conf.CfgPath},
		"device":    {device, &conf.Device},
		"cli-port":  {cliPort, &conf.CLIPort},
		"data-port": {dataPort, &conf.DataPort},
		"listen":    {listen, &conf.ListenAddr},
		"db":        {dbPath, &conf.DBPath},
		"record":    {recordDir, &conf.RecordDir},
		"udp":       {udpAddr, &conf.UDPAddr},
	}
	for name, f := range strFlags {
		if set[name] {
			v := *f.val
			*f.dst = &v
		}
	}
	if set["diag"] {
		v := *diagLog
		conf.DiagLog = &v
	}
	if set["trace"] {
		v := *traceLog
		conf.TraceLog = &v
	}
}

func loadConfig(set map[string]bool) (*config.AppConfig, error) {
	conf := &config.AppConfig{}
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	applyOverrides(conf, set)
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}

func setupLogging(conf *config.AppConfig) {
	w := mmwave.LogWriters{Ops: os.Stderr}
	if conf.GetDiagLog() {
		w.Diag = os.Stderr
	}
	if conf.GetTraceLog() {
		w.Trace = os.Stderr
	}
	mmwave.SetLogWriters(w)
	monitoring.SetLogger(monitoring.WriterLogger(os.Stderr, "[service] "))
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("mmwave"))
		return
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	conf, err := loadConfig(set)
	if err != nil {
		log.Fatal(err)
	}
	setupLogging(conf)
	log.Print(version.String("mmwave"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, runOptions{
		conf:        conf,
		replayPath:  *replayPath,
		pcapPath:    *pcapPath,
		pcapPort:    *pcapPort,
		mock:        *mockMode,
		noDB:        *noDB,
		sendCfg:     !*skipCfg,
		keepServing: *keepServing,
	})
	if err != nil {
		log.Fatal(err)
	}
}

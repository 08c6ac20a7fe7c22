// evtxlink parses Windows EVTX event log files and emits each record as
// XML or JSON, optionally republishing rendered records to Kafka, MQTT,
// and Valkey and serving a read-only HTTP query API and terminal UI over
// a live run.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evtxlink/api"
	"evtxlink/config"
	"evtxlink/driver"
	"evtxlink/evtx"
	"evtxlink/forward/kafka"
	"evtxlink/forward/mqtt"
	"evtxlink/forward/valkey"
	"evtxlink/logging"
	"evtxlink/sink"
	"evtxlink/view"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// preprocessLogDebugFlag handles --log-debug without a value by injecting
// "all" as the default, since flag requires an explicit value for string
// flags but `--log-debug` alone should mean "log everything".
func preprocessLogDebugFlag() {
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--log-debug" || arg == "-log-debug" {
			if i+1 >= len(args) || (len(args[i+1]) > 0 && args[i+1][0] == '-') {
				os.Args = append(os.Args[:i+2], append([]string{"all"}, os.Args[i+2:]...)...)
			}
			return
		}
		if len(arg) > 11 && (arg[:12] == "--log-debug=" || arg[:11] == "-log-debug=") {
			return
		}
	}
}

func main() {
	cli := parseFlags()

	if cli.showVersion {
		fmt.Printf("evtxlink %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cli.applyOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Inputs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no input files (set inputs: in config, or pass file paths)")
		os.Exit(1)
	}

	if cli.logDebug != "" {
		debugLogger, err := logging.NewDebugLogger("debug.log")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open debug log: %v\n", err)
		} else {
			defer debugLogger.Close()
			filter := cli.logDebug
			if filter == "all" || filter == "true" || filter == "1" {
				filter = ""
			}
			debugLogger.SetFilter(filter)
			logging.SetGlobalDebugLogger(debugLogger)
		}
	}

	stats := evtx.NewStats()

	kafkaMgr := kafka.NewManager()
	mqttMgr := mqtt.NewManager(cfg.Namespace)
	valkeyMgr := valkey.NewManager(cfg.Namespace)
	kafkaMgr.Configure(toKafkaConfigs(cfg.Kafka))
	mqttMgr.Configure(toMQTTConfigs(cfg.MQTT))
	valkeyMgr.Configure(toValkeyConfigs(cfg.Valkey))
	defer kafkaMgr.StopAll()
	defer mqttMgr.StopAll()
	defer valkeyMgr.StopAll()

	var apiServer *api.Server
	if cfg.Web.Enabled {
		apiServer = api.NewServer(stats, cfg)
		if err := apiServer.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start API server: %v\n", err)
		} else {
			defer apiServer.Stop()
			logging.Log("api", "listening on %s", apiServer.Address())
		}
	}

	var tui *view.App
	if !cli.noTUI {
		tui = view.NewApp(cfg, stats)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	out := os.Stdout
	primarySink := newPrimarySink(out, cfg)

	opts := driver.Options{Threads: cfg.Threads, ValidateChecksums: cfg.ValidateChecksums}

	runErr := make(chan error, 1)
	go func() {
		runErr <- runAll(ctx, cfg.Inputs, stats, primarySink, opts, func(source string, rec evtx.Record) {
			forwardAndDisplay(cfg, source, rec, kafkaMgr, mqttMgr, valkeyMgr, apiServer, tui)
		})
	}()

	if tui != nil {
		tui.SetOnDisconnect(cancel)
		if err := tui.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}

	if err := <-runErr; err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runAll walks every input file in order, running the chunk driver over
// each and invoking onRecord for every decoded record (successful or
// errored). A per-record render error is logged and does not abort the
// run; a file-level error aborts only that file, and a chunk that fails
// to parse is logged and skipped by the driver.
func runAll(ctx context.Context, inputs []string, stats *evtx.Stats, dst sink.RecordSink, opts driver.Options, onRecord func(source string, rec evtx.Record)) error {
	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runOne(ctx, path, stats, dst, opts, onRecord); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		}
	}
	return nil
}

func runOne(ctx context.Context, path string, stats *evtx.Stats, dst sink.RecordSink, opts driver.Options, onRecord func(source string, rec evtx.Record)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	file, err := evtx.Open(f)
	if err != nil {
		return fmt.Errorf("open evtx: %w", err)
	}

	return driver.Run(ctx, file, stats, func(chunkIndex int, rec evtx.Record) error {
		onRecord(path, rec)
		if rec.Err != nil {
			logging.Log("sink", "%s chunk %d record %d: %v", path, chunkIndex, rec.Meta.EventRecordID, rec.Err)
			return nil
		}
		return sink.WriteRecord(dst, rec.Nodes)
	}, opts)
}

// forwardAndDisplay renders a successfully decoded record to JSON once
// (shared by every downstream consumer) and fans it out to the
// configured forwarders, the API's SSE hub, and the TUI.
func forwardAndDisplay(cfg *config.Config, source string, rec evtx.Record, kafkaMgr *kafka.Manager, mqttMgr *mqtt.Manager, valkeyMgr *valkey.Manager, apiServer *api.Server, tui *view.App) {
	if rec.Err != nil {
		if tui != nil {
			tui.AddRecord(view.RecordRow{Source: source, RecordID: rec.Meta.EventRecordID, Err: rec.Err})
		}
		return
	}

	needJSON := kafkaMgr.AnyPublishing() || mqttMgr.AnyRunning() || valkeyMgr.AnyRunning() || (apiServer != nil && apiServer.IsRunning())
	needPretty := tui != nil

	var jsonBody []byte
	if needJSON || needPretty {
		var buf bytes.Buffer
		js := sink.NewJSON(&buf, needPretty)
		if err := sink.WriteRecord(js, rec.Nodes); err == nil {
			jsonBody = bytes.TrimRight(buf.Bytes(), "\n")
		}
	}

	ts := rec.Meta.Timestamp.Time().Format(time.RFC3339)

	if needJSON && jsonBody != nil {
		kafkaMgr.PublishAll(context.Background(), kafka.RecordMessage{
			Source: source, Chunk: 0, RecordID: rec.Meta.EventRecordID, Timestamp: ts, Body: jsonBody,
		})
		mqttMgr.PublishAll(mqtt.RecordMessage{
			Source: source, Chunk: 0, RecordID: rec.Meta.EventRecordID, Timestamp: ts, Body: jsonBody,
		})
		valkeyMgr.PublishAll(valkey.RecordMessage{
			Source: source, Chunk: 0, RecordID: rec.Meta.EventRecordID, Timestamp: ts, Body: jsonBody,
		})
		if apiServer != nil {
			apiServer.Broadcast(api.RecordEvent{
				Source: source, Chunk: 0, RecordID: rec.Meta.EventRecordID, Timestamp: ts, Body: jsonBody,
			})
		}
	}

	if tui != nil {
		var eventID uint64
		for _, ev := range rec.Nodes {
			for _, sys := range ev.Children {
				if sys.Name != "System" {
					continue
				}
				for _, f := range sys.Children {
					if f.Name == "EventID" && len(f.Children) > 0 {
						fmt.Sscan(f.Children[0].Text, &eventID)
					}
				}
			}
		}
		tui.AddRecord(view.RecordRow{
			Source:    source,
			RecordID:  rec.Meta.EventRecordID,
			EventID:   eventID,
			Timestamp: rec.Meta.Timestamp.Time(),
			Body:      string(jsonBody),
		})
	}
}

func newPrimarySink(w *os.File, cfg *config.Config) sink.RecordSink {
	var s sink.RecordSink
	switch cfg.Output {
	case config.FormatJSON:
		s = sink.NewJSON(w, cfg.Indent)
	default:
		s = sink.NewXML(w, cfg.Indent, cfg.OmitRootAttrs)
	}
	// chunks run concurrently across goroutines (opts.Threads != 1), so
	// the shared writer needs serializing per record.
	return sink.NewMutex(s)
}

func toKafkaConfigs(cfgs []config.KafkaConfig) []kafka.Config {
	out := make([]kafka.Config, len(cfgs))
	for i, c := range cfgs {
		out[i] = kafka.Config{
			Name: c.Name, Enabled: c.Enabled, Brokers: c.Brokers, Topic: c.Topic,
			UseTLS: c.UseTLS, TLSSkipVerify: c.TLSSkipVerify,
			SASLMechanism: kafka.SASLMechanism(c.SASLMechanism),
			Username:      c.Username, Password: c.Password, RequiredAcks: c.RequiredAcks,
		}
	}
	return out
}

func toMQTTConfigs(cfgs []config.MQTTConfig) []mqtt.Config {
	out := make([]mqtt.Config, len(cfgs))
	for i, c := range cfgs {
		out[i] = mqtt.Config{
			Name: c.Name, Enabled: c.Enabled, Broker: c.Broker, Port: c.Port,
			Username: c.Username, Password: c.Password, ClientID: c.ClientID,
			Selector: c.Selector, UseTLS: c.UseTLS,
		}
	}
	return out
}

func toValkeyConfigs(cfgs []config.ValkeyConfig) []valkey.Config {
	out := make([]valkey.Config, len(cfgs))
	for i, c := range cfgs {
		out[i] = valkey.Config{
			Name: c.Name, Enabled: c.Enabled, Address: c.Address, Password: c.Password,
			Database: c.Database, Selector: c.Selector, UseTLS: c.UseTLS,
			KeyTTL: c.KeyTTL, MirrorListSize: c.MirrorListSize,
		}
	}
	return out
}

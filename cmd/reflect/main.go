package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reflect/internal/config"
	"github.com/zsiec/reflect/internal/logging"
	"github.com/zsiec/reflect/internal/objstore"
	"github.com/zsiec/reflect/internal/option"
	"github.com/zsiec/reflect/internal/recorder"
	"github.com/zsiec/reflect/internal/reflector"
	"github.com/zsiec/reflect/internal/srt"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code per spec.md §6: 0 normal, -1 bind
// failure, -2 no reflection entries, -3 unhandled exception.
func run() int {
	confPath := confArg(os.Args[1:])
	cfg, err := config.Load(confPath)
	if err != nil {
		slog.Error("failed to load config", "path", confPath, "error", err)
		return -3
	}
	if len(cfg.Reflects) == 0 {
		slog.Error("no reflection entries configured")
		return -2
	}

	log := logging.New(cfg.Name, cfg.Logger)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	var boundAny bool
	var reflectors []*reflector.Reflector

	for _, spec := range cfg.Reflects {
		spec := spec
		endpoint, err := endpointFromSpec(spec)
		if err != nil {
			log.Error("skipping reflect entry", "app", spec.App, "error", err)
			continue
		}

		loopRecs, err := buildLoopRecs(ctx, spec, log)
		if err != nil {
			log.Error("failed to initialise loopRecs", "app", spec.App, "error", err)
			continue
		}

		rf := reflector.New(ctx, reflectorConfig(spec), loopRecs, log)
		reflectors = append(reflectors, rf)

		l := srt.NewListener(endpoint, log, rf)
		boundAny = true

		g.Go(func() error {
			if err := l.Start(ctx); err != nil {
				return fmt.Errorf("reflect %s: %w", spec.App, err)
			}
			return nil
		})
	}

	if !boundAny {
		log.Error("every reflect entry failed to configure, nothing bound")
		return -1
	}

	g.Go(func() error {
		<-ctx.Done()
		for _, rf := range reflectors {
			rf.Shutdown()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return -1
	}
	return 0
}

// confArg parses `conf=<path>` from argv, defaulting to
// "./srt-live-reflect.conf" next to the binary.
func confArg(args []string) string {
	for _, a := range args {
		if rest, ok := strings.CutPrefix(a, "conf="); ok {
			return rest
		}
	}
	exe, err := os.Executable()
	if err != nil {
		return "./srt-live-reflect.conf"
	}
	return filepath.Join(filepath.Dir(exe), "srt-live-reflect.conf")
}

func endpointFromSpec(spec config.ReflectSpec) (srt.Endpoint, error) {
	host, port := spec.Host, spec.Port
	if spec.URI != "" {
		u := option.Parse(spec.URI)
		if u.Scheme == "srt" {
			if u.Host != "" {
				host = u.Host
			}
			if u.Port != "" {
				if p, err := strconv.Atoi(u.Port); err == nil {
					port = p
				}
			}
		}
	}
	if port == 0 {
		return srt.Endpoint{}, fmt.Errorf("no port configured")
	}
	return srt.Endpoint{
		Host:       host,
		Port:       port,
		Backlog:    spec.Backlog,
		EpollTimeo: spec.EpollTimeo,
		BindOption: config.ToOptionMap(spec.Option),
	}, nil
}

func reflectorConfig(spec config.ReflectSpec) reflector.Config {
	cacheAge := spec.CacheAge
	return reflector.Config{
		App:                 spec.App,
		PublishAccess:       accessListFromSpec(spec.Publish.Access),
		PlayAccess:          accessListFromSpec(spec.Play.Access),
		PublishOption:       config.ToOptionMap(spec.Publish.Option),
		PlayOption:          config.ToOptionMap(spec.Play.Option),
		PublishPreAcceptURL: spec.Publish.OnPreAccept,
		PublishAcceptURL:    spec.Publish.OnAccept,
		PlayPreAcceptURL:    spec.Play.OnPreAccept,
		PlayAcceptURL:       spec.Play.OnAccept,
		AuthorizerTTL:       secondsToDuration(cacheAge),
		StatsInterval:       secondsToDuration(spec.Publish.Stats),
	}
}

func accessListFromSpec(rules []config.AccessSpec) reflector.AccessList {
	out := make(reflector.AccessList, 0, len(rules))
	for _, r := range rules {
		out = append(out, reflector.AccessRule{Name: r.Name, Allow: r.Allow, Deny: r.Deny})
	}
	return out
}

func buildLoopRecs(ctx context.Context, spec config.ReflectSpec, log *slog.Logger) (map[string]*recorder.LoopRec, error) {
	out := map[string]*recorder.LoopRec{}
	for _, lrSpec := range spec.LoopRecs {
		var store recorder.ObjectStore
		if lrSpec.S3.Bucket != "" {
			client, err := objstore.New(ctx, "")
			if err != nil {
				return nil, fmt.Errorf("loopRec %s: %w", lrSpec.Name, err)
			}
			store = client
		}

		lr, err := recorder.New(ctx, loopRecConfig(lrSpec), store, log)
		if err != nil {
			return nil, fmt.Errorf("loopRec %s: %w", lrSpec.Name, err)
		}
		out[lrSpec.Name] = lr
	}
	return out, nil
}

func loopRecConfig(s config.LoopRecSpec) recorder.Config {
	return recorder.Config{
		Name:            s.Name,
		Dir:             s.Dir,
		DataExt:         s.DataExtension,
		IdxExt:          s.IndexExtension,
		SegmentDuration: secondsToDuration(s.SegmentDuration),
		TotalDuration:   secondsToDuration(s.TotalDuration),
		IndexInterval:   msToDuration(s.IndexInterval),
		IndexEndian:     endianFromString(s.IndexEndian),
		Prefetch:        msToDuration(s.Prefetch),
		QueueAge:        msToDuration(s.Queue),
		QueueLimitMin:   msToDuration(s.QueueLimitMin),
		QueueLimitMax:   msToDuration(s.QueueLimitMax),
		S3Bucket:        s.S3.Bucket,
		S3Folder:        s.S3.Folder,
		S3Bufsiz:        s.S3.Bufsiz,
	}
}

func secondsToDuration(n int) time.Duration { return time.Duration(n) * time.Second }
func msToDuration(n int) time.Duration      { return time.Duration(n) * time.Millisecond }

func endianFromString(s string) recorder.Endian {
	switch s {
	case "big":
		return recorder.EndianBig
	case "little":
		return recorder.EndianLittle
	default:
		return recorder.EndianNative
	}
}

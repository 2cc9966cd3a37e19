package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"scholira/internal/api"
	"scholira/internal/consult"
	"scholira/internal/model"
	"scholira/internal/normalizer"
	"scholira/internal/notifier"
	"scholira/internal/profile"
	"scholira/internal/render"
	"scholira/internal/scheduler"
	"scholira/internal/search"
	"scholira/internal/storage"
	"scholira/internal/tracker"
	"scholira/internal/upstream"
)

const usage = `usage: scholira [serve|refresh|search scholarships <origin> <level> <field> <region>|search courses <query>]`

type refresher interface {
	Start(ctx context.Context) error
	RunOnce(ctx context.Context) (int, error)
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// appDeps 汇总运行期组件。
type appDeps struct {
	handler http.Handler
	sched   refresher
	search  *search.Service
}

type depsBuilder func(ctx context.Context, cfg AppConfig) (appDeps, func(), error)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "serve":
		deps, cleanup, err := buildDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		addr := cfg.Server.Addr
		if addr == "" {
			addr = ":8080"
		}
		srv := &http.Server{Addr: addr, Handler: deps.handler, ReadHeaderTimeout: 10 * time.Second}
		log.Printf("listening on %s", addr)
		return runServer(ctx, srv, deps.sched, 5*time.Second)
	case "refresh":
		created, err := runOnceManual(ctx, cfg, buildDeps)
		if err != nil {
			return err
		}
		log.Printf("refresh done, new scholarships: %d", created)
		return nil
	case "search":
		deps, cleanup, err := buildDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		return runSearch(ctx, deps.search, args[1:], os.Stdout)
	default:
		return errors.New(usage)
	}
}

// runServer 并行运行 HTTP 服务与刷新调度，ctx 取消后在 timeout 内优雅关闭。
func runServer(ctx context.Context, srv httpServer, sched refresher, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// runOnceManual 构建依赖并执行一次推荐刷新。
func runOnceManual(ctx context.Context, cfg AppConfig, build depsBuilder) (int, error) {
	deps, cleanup, err := build(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer cleanup()
	return deps.sched.RunOnce(ctx)
}

func runSearch(ctx context.Context, svc *search.Service, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "scholarships":
		if len(args) != 5 {
			return errors.New(usage)
		}
		st := svc.SearchScholarships(ctx, model.SearchParams{
			OriginCountry: args[1],
			StudyLevel:    args[2],
			FieldOfStudy:  args[3],
			TargetRegion:  args[4],
		})
		if st.Status != search.StatusSuccess {
			return errors.New(st.Error)
		}
		if err := render.Scholarships(w, st.Result.Scholarships); err != nil {
			return err
		}
		if st.Result.RawText != "" {
			fmt.Fprintf(w, "\n%s\n", normalizer.DisplayText(st.Result.RawText))
		}
		for _, src := range st.Result.Sources {
			fmt.Fprintf(w, "[%s] %s\n", src.Title, src.URI)
		}
		return nil
	case "courses":
		if len(args) < 2 {
			return errors.New(usage)
		}
		st := svc.SearchCourses(ctx, model.CourseSearchParams{Query: strings.Join(args[1:], " ")})
		if st.Status != search.StatusSuccess {
			return errors.New(st.Error)
		}
		if err := render.Courses(w, st.Result.Courses); err != nil {
			return err
		}
		fmt.Fprintf(w, "total: %d\n", st.Result.Total)
		return nil
	default:
		return errors.New(usage)
	}
}

func buildDeps(ctx context.Context, cfg AppConfig) (appDeps, func(), error) {
	store, err := storage.Open(cfg.Database)
	if err != nil {
		return appDeps{}, nil, fmt.Errorf("init store: %w", err)
	}
	closers := []func(){func() { _ = store.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var kv profile.KV = store
	if strings.EqualFold(cfg.ProfileStore.Backend, "redis") {
		rdb, err := storage.NewRedisClient(ctx, cfg.ProfileStore.RedisURL)
		if err != nil {
			cleanup()
			return appDeps{}, nil, fmt.Errorf("init redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		kv = storage.NewRedisKV(rdb, "scholira:")
	}

	profiles, err := profile.Open(ctx, kv, nil)
	if err != nil {
		cleanup()
		return appDeps{}, nil, fmt.Errorf("init profile store: %w", err)
	}

	client := upstream.NewClient(&http.Client{Timeout: cfg.Upstream.HTTPTimeout()}, nil)
	searchSvc := search.NewService(client, cfg.Upstream, nil)
	refreshSvc := search.NewService(client, cfg.Upstream, log.New(os.Stdout, "[refresh] ", log.LstdFlags))
	sched := scheduler.NewScheduler(refreshSvc, profiles, kv, buildNotifier(cfg.Email), cfg.Scheduler, nil)

	handler := api.NewHandler(api.Deps{
		Search:    searchSvc,
		Profiles:  profiles,
		Tracker:   tracker.NewService(store, nil),
		Consult:   consult.NewService(store, client, profiles, cfg.Upstream.ChatEndpoint, nil),
		Refresher: sched,
	})

	return appDeps{handler: handler, sched: sched, search: searchSvc}, cleanup, nil
}

func buildNotifier(cfg notifier.EmailConfig) scheduler.Notifier {
	notifiers := notifier.Multi{notifier.NewLogNotifier(nil)}
	if !cfg.Enabled() {
		log.Printf("email notifier disabled: missing host/port/from/to")
		return notifiers
	}
	return append(notifiers, notifier.NewEmailNotifier(cfg, nil))
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/facematch"
	"classattend/internal/httpmiddleware"
	"classattend/internal/mirror"
	"classattend/internal/queue"
	"classattend/internal/roster"
	"classattend/internal/scanner"
	"classattend/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("station failed: %v", err)
	}
}

func run(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rosterStore := roster.NewStore(cfg.RosterCSV, cfg.DataDir)
	students, err := rosterStore.Load()
	if err != nil {
		log.Printf("warning: roster load: %v", err)
	}
	log.Printf("roster: %d students", len(students))

	dayStore, err := attendance.NewDayStore(cfg.DataDir)
	if err != nil {
		return err
	}
	session := attendance.NewSession(dayStore, rosterStore, cfg.DedupWindow)

	face := facematch.New(cfg.FaceServiceURL, cfg.SimilarityThreshold, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
		} else {
			log.Println("face service connected")
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "classattend:checkins")
	} else {
		q = queue.NewInMemory(64)
	}

	// Best-effort mirror of accepted check-ins; the day file stays the
	// store of record whether or not the database is reachable.
	var db *store.DB
	if cfg.DatabaseURL != "" {
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: mirror db not reachable: %v", err)
			db = nil
		}
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()
	if db != nil {
		repo := mirror.NewRepository(db.Client)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Printf("warning: mirror schema: %v", err)
		}
		worker := mirror.NewWorker(repo, q)
		go func() {
			if err := worker.Run(ctx); err != nil {
				log.Printf("mirror worker: %v", err)
			}
		}()
		session.OnAccept = func(studentID string, ts int64) {
			mirror.Publish(ctx, q, mirror.CheckinMessage{
				StudentID: studentID,
				Timestamp: ts,
				Day:       attendance.DayKey(time.Unix(ts, 0)),
			})
		}
	}

	frames, err := scanner.NewDirSource(cfg.FrameDir)
	if err != nil {
		return err
	}
	scan := scanner.New(frames, face, face, rosterStore, session, cfg.ScanInterval)
	go scan.Run(ctx)

	srv := controlServer(cfg, session, rosterStore, redisClient)
	go func() {
		log.Printf("station control API on :%s", cfg.StationPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("control server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down station...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("control server forced shutdown: %v", err)
	}

	log.Println("station exited")
	return nil
}

// controlServer exposes the operator controls: reset today's attendance and
// read the live snapshot. These are the only mutation surface outside the
// scan loop itself.
func controlServer(cfg config.App, session *attendance.Session, rosterStore *roster.Store, redisClient *store.Redis) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		redisHealthy := true
		if cfg.QueueBackend == "redis" {
			redisHealthy = redisClient.Healthy(c.Request.Context())
			if !redisHealthy {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "day": session.Day()})
	})

	r.GET("/control/snapshot", func(c *gin.Context) {
		checkedIn, knownCount := session.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"day":         session.Day(),
			"attendance":  checkedIn,
			"known_count": knownCount,
		})
	})

	r.POST("/control/reset", func(c *gin.Context) {
		session.ResetDay()
		c.JSON(http.StatusOK, gin.H{"status": "reset", "day": session.Day()})
	})

	r.POST("/control/roster/reload", func(c *gin.Context) {
		students, err := rosterStore.Load()
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"students": len(students), "warning": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": len(students)})
	})

	return &http.Server{
		Addr:         ":" + cfg.StationPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

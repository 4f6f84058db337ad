package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/facematch"
	"classattend/internal/httpmiddleware"
	"classattend/internal/mirror"
	"classattend/internal/roster"
	"classattend/internal/store"
)

// The web process is the admin surface: it manages the roster and reference
// photos and projects the current day file. It never mutates attendance
// state; the station owns the day file and this process only reads it.
func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("web server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	rosterStore := roster.NewStore(cfg.RosterCSV, cfg.DataDir)
	if _, err := rosterStore.Load(); err != nil {
		log.Printf("warning: roster load: %v", err)
	}

	dayStore, err := attendance.NewDayStore(cfg.DataDir)
	if err != nil {
		return err
	}

	face := facematch.New(cfg.FaceServiceURL, cfg.SimilarityThreshold, cfg.FaceSkip)

	var repo *mirror.Repository
	if cfg.DatabaseURL != "" {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: mirror db not reachable: %v", err)
		} else {
			defer db.Close()
			repo = mirror.NewRepository(db.Client)
		}
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "face_service": face.Health(c.Request.Context()) == nil})
	})

	r.GET("/api/attendance", attendanceHandler(cfg, rosterStore, dayStore))

	r.POST("/api/students", func(c *gin.Context) {
		var req struct {
			ID    string `json:"id" binding:"required"`
			Name  string `json:"name" binding:"required"`
			Class string `json:"class" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st := roster.Student{ID: req.ID, Name: req.Name, Class: req.Class}
		if err := rosterStore.Add(st); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": roster.NormalizeID(req.ID)})
	})

	r.DELETE("/api/students/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := rosterStore.Remove(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": roster.NormalizeID(id)})
	})

	r.POST("/api/students/sync", func(c *gin.Context) {
		if err := rosterStore.SyncMirror(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "synced"})
	})

	// Reference photo upload: stored locally, then enrolled with the face
	// service so the station can match against it.
	r.POST("/api/upload", func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()

		studentID := roster.NormalizeID(c.PostForm("student_id"))
		if studentID == "student_" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id required"})
			return
		}

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "only png, jpg and jpeg files are allowed"})
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, 16<<20))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}

		name := studentID + "_" + uuid.NewString() + ext
		local := filepath.Join(cfg.UploadDir, name)
		if err := os.WriteFile(local, data, 0o644); err != nil {
			log.Printf("upload: local save failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
			return
		}

		result, err := face.Enroll(c.Request.Context(), studentID, data)
		if err != nil {
			log.Printf("upload: enroll failed for %s: %v", studentID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "enrollment failed", "stored": name})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"student_id": studentID,
			"stored":     name,
			"enrolled":   result.Success,
			"message":    result.Message,
		})
	})

	r.GET("/api/history", func(c *gin.Context) {
		if repo == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "mirror database not configured"})
			return
		}
		day := c.Query("day")
		if day == "" {
			day = attendance.DayKey(time.Now())
		}
		limit := 100
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		rows, err := repo.ListDay(c.Request.Context(), day, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"day": day, "checkins": rows})
	})

	r.StaticFile("/", "web/index.html")

	srv := &http.Server{
		Addr:         ":" + cfg.WebPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting web server on :%s", cfg.WebPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("web server exited")
	return nil
}

// attendanceHandler projects the roster mirror plus the current day file.
// An empty roster is reported as an explicit condition rather than a
// silently empty page.
func attendanceHandler(cfg config.App, rosterStore *roster.Store, dayStore *attendance.DayStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		students, rerr := rosterStore.Load()
		day := attendance.DayKey(time.Now())
		records, derr := dayStore.Load(day)
		if derr != nil {
			log.Printf("web: day file: %v", derr)
		}

		className := cfg.ClassLabel
		if className == "" && len(students) > 0 {
			className = students[0].Class
		}

		if len(students) == 0 {
			msg := "no roster"
			if rerr != nil {
				msg = rerr.Error()
			}
			c.JSON(http.StatusOK, gin.H{
				"success":    false,
				"error":      msg,
				"students":   []roster.Student{},
				"attendance": records,
				"class_name": className,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"students":   students,
			"attendance": records,
			"class_name": className,
			"timestamp":  time.Now().Format("2006-01-02 15:04:05"),
		})
	}
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

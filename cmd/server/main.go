package main

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pettycash/internal/auth"
	"pettycash/internal/config"
	"pettycash/internal/database"
	"pettycash/internal/handlers"
	"pettycash/internal/middleware"
	"pettycash/internal/services"
)

// TemplateRegistry holds separate template instances for each page
type TemplateRegistry struct {
	templates map[string]*template.Template
	funcMap   template.FuncMap
}

func NewTemplateRegistry(funcMap template.FuncMap) *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*template.Template),
		funcMap:   funcMap,
	}
}

func (tr *TemplateRegistry) Add(name string, tmpl *template.Template) {
	tr.templates[name] = tmpl
}

func (tr *TemplateRegistry) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	// First try direct lookup in registry
	tmpl, ok := tr.templates[name]
	if ok {
		// For partial templates, the file might define a template without .html extension
		if strings.HasSuffix(name, ".html") {
			baseName := strings.TrimSuffix(name, ".html")
			if lookup := tmpl.Lookup(baseName); lookup != nil {
				return lookup.Execute(w, data)
			}
		}
		return tmpl.ExecuteTemplate(w, name, data)
	}

	// For partial templates, the registry key might be different from the
	// template name; try to find a template that contains the requested define
	for _, t := range tr.templates {
		if lookup := t.Lookup(name); lookup != nil {
			return lookup.Execute(w, data)
		}
	}

	return fmt.Errorf("template %s not found", name)
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Determine web directory
	webDir := getWebDir()
	log.Printf("Using web directory: %s", webDir)

	// Initialize database
	db, err := database.New(filepath.Join(cfg.DataDir, "pettycash.db"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize services
	userService := auth.NewUserService(db)
	sessionManager := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionMaxAge)
	auditService := services.NewAuditService(db)
	requestService := services.NewRequestService(db)
	receiptService := services.NewReceiptService(db, cfg.UploadDir)

	// Ensure default admin user exists on an empty database
	if _, err := userService.BootstrapDefaultAdmin(cfg.DefaultAdmin, cfg.DefaultPassword); err != nil {
		if !errors.Is(err, auth.ErrUsersExist) {
			log.Printf("Warning: Failed to create default admin: %v", err)
		}
	} else {
		log.Printf("Default admin created: username=%s, password=%s", cfg.DefaultAdmin, cfg.DefaultPassword)
	}

	// Load templates
	templates, err := loadTemplates(filepath.Join(webDir, "templates"))
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(templates, sessionManager, userService, auditService)
	dashboardHandler := handlers.NewDashboardHandler(templates, sessionManager, requestService, receiptService)
	requestHandler := handlers.NewRequestHandler(templates, sessionManager, requestService, auditService)
	receiptHandler := handlers.NewReceiptHandler(templates, sessionManager, requestService, receiptService, auditService, cfg.MaxUploadBytes)
	adminHandler := handlers.NewAdminHandler(templates, sessionManager, userService, auditService, cfg.DefaultAdmin, cfg.DefaultPassword)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(sessionManager, userService)

	// Setup router
	r := handlers.Routes(authMiddleware, authHandler, dashboardHandler, requestHandler, receiptHandler, adminHandler)
	handlers.Static(r, filepath.Join(webDir, "static"))

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting petty cash service on %s", addr)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down...")
		os.Exit(0)
	}()

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func getWebDir() string {
	// Check for environment variable
	if dir := os.Getenv("PETTYCASH_WEB_DIR"); dir != "" {
		return dir
	}

	// Try relative paths from executable
	exe, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exe)

		// Check ../web (for build directory structure)
		candidate := filepath.Join(exeDir, "..", "web")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		// Check ../../web (for cmd/server structure)
		candidate = filepath.Join(exeDir, "..", "..", "web")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	// Try current working directory
	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, "web")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	// Default fallback
	return "./web"
}

func loadTemplates(templatesDir string) (*TemplateRegistry, error) {
	funcMap := template.FuncMap{
		"formatAmount": formatAmount,
		"formatTime":   formatTime,
	}

	registry := NewTemplateRegistry(funcMap)

	layoutsDir := filepath.Join(templatesDir, "layouts")
	partialsDir := filepath.Join(templatesDir, "partials")
	pagesDir := filepath.Join(templatesDir, "pages")

	// Collect shared template files
	var sharedFiles []string

	layoutFiles, _ := filepath.Glob(filepath.Join(layoutsDir, "*.html"))
	sharedFiles = append(sharedFiles, layoutFiles...)

	partialFiles, _ := filepath.Glob(filepath.Join(partialsDir, "*.html"))
	sharedFiles = append(sharedFiles, partialFiles...)

	// Get page template files
	pageFiles, err := filepath.Glob(filepath.Join(pagesDir, "*.html"))
	if err != nil {
		return nil, err
	}

	// For each page, create a separate template that includes shared templates + that page
	for _, pageFile := range pageFiles {
		pageName := filepath.Base(pageFile)

		tmpl := template.New(pageName).Funcs(funcMap)

		for _, sharedFile := range sharedFiles {
			content, err := os.ReadFile(sharedFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", sharedFile, err)
			}
			_, err = tmpl.Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", sharedFile, err)
			}
		}

		pageContent, err := os.ReadFile(pageFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", pageFile, err)
		}
		_, err = tmpl.Parse(string(pageContent))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", pageFile, err)
		}

		registry.Add(pageName, tmpl)
	}

	return registry, nil
}

func formatAmount(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

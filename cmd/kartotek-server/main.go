package main

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/bakkenl/kartotek/pkg/kartotek/apikeys"
	"github.com/bakkenl/kartotek/pkg/kartotek/audit"
	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/classes"
	"github.com/bakkenl/kartotek/pkg/kartotek/config"
	"github.com/bakkenl/kartotek/pkg/kartotek/database"
	"github.com/bakkenl/kartotek/pkg/kartotek/groups"
	"github.com/bakkenl/kartotek/pkg/kartotek/links"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
	"github.com/bakkenl/kartotek/pkg/kartotek/namespaces"
	"github.com/bakkenl/kartotek/pkg/kartotek/objects"
	"github.com/bakkenl/kartotek/pkg/kartotek/users"
)

func main() {
	cfg := config.Load()
	audit.Setup(cfg.LogLevel)
	auth.Configure(cfg.JWTSecret, cfg.TokenHours)

	if err := database.Connect(cfg.DatabasePath); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Msg("Database migrations completed")

	if err := ensureAdminExists(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure admin user exists")
	}

	r := gin.New()
	r.Use(gin.Recovery(), audit.RequestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok", "service": "kartotek"})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(database.GetDB())
		authHandler.RegisterRoutes(api.Group("/auth"))
		authHandler.RegisterProtectedRoutes(api.Group("/auth", auth.AuthMiddleware()))

		// Combined auth middleware (accepts JWT or API key)
		combinedAuth := apikeys.CombinedAuthMiddleware(database.GetDB())

		// API keys routes (JWT only - need to be logged in to manage keys)
		apiKeysHandler := apikeys.NewHandler(database.GetDB())
		apiKeysHandler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		protected := api.Group("", combinedAuth)

		// Namespaces, classes, objects, link types and links
		namespacesHandler := namespaces.NewHandler(database.GetDB())
		namespacesHandler.RegisterRoutes(protected)

		classesHandler := classes.NewHandler(database.GetDB())
		classesHandler.RegisterRoutes(protected)

		objectsHandler := objects.NewHandler(database.GetDB())
		objectsHandler.RegisterRoutes(protected)

		linksHandler := links.NewHandler(database.GetDB())
		linksHandler.RegisterRoutes(protected)

		// Identity reads are open to any authenticated caller
		usersHandler := users.NewHandler(database.GetDB())
		usersHandler.RegisterRoutes(protected.Group("/users"))

		groupsHandler := groups.NewHandler(database.GetDB())
		groupsHandler.RegisterRoutes(protected.Group("/groups"))

		// Identity mutations (JWT only, admin role required)
		adminUsers := api.Group("/users", auth.AuthMiddleware(), auth.RequireAdmin())
		usersHandler.RegisterAdminRoutes(adminUsers)

		adminGroups := api.Group("/groups", auth.AuthMiddleware(), auth.RequireAdmin())
		groupsHandler.RegisterAdminRoutes(adminGroups)
	}

	log.Info().Str("addr", cfg.ListenAddr).Msg("Starting kartotek server")
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}

// ensureAdminExists creates a default admin user if no admin exists in the
// database. The password comes from KARTOTEK_ADMIN_PASSWORD; when unset a
// random one is generated and logged once.
func ensureAdminExists(cfg *config.Config) error {
	db := database.GetDB()

	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := cfg.AdminPassword
	generated := false
	if password == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		password = hex.EncodeToString(buf)
		generated = true
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        cfg.AdminEmail,
		Name:         "Admin",
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleAdmin,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	if generated {
		log.Info().Str("email", adminUser.Email).Str("password", password).
			Msg("Created default admin user with generated password")
	} else {
		log.Info().Str("email", adminUser.Email).Msg("Created default admin user")
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sahilchouksey/studymill/database"
	"github.com/sahilchouksey/studymill/services"
	"gorm.io/gorm"
)

func main() {
	name := flag.String("name", "Demo Tenant", "tenant display name")
	slug := flag.String("slug", "demo", "tenant slug")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Initialize database connection using GORM
	store, err := database.StartGORM()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	gormDB := store.GetDB().(*gorm.DB)

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("StudyMill - Tenant Seeding")
	fmt.Println(separator)
	fmt.Println()

	tenantService := services.NewTenantService(gormDB, os.Getenv("PROVIDER_KEY_SECRET"))
	tenant, apiKey, err := tenantService.CreateTenant(context.Background(), *name, *slug)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	fmt.Printf("Tenant created: %s (id=%d, slug=%s)\n", tenant.Name, tenant.ID, tenant.Slug)
	fmt.Println()
	fmt.Println("API key (shown once, store it now):")
	fmt.Printf("  %s\n", apiKey)
	fmt.Println()
	fmt.Println(separator)
}

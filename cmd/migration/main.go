package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"strings"

	"datagen_platform/datagen/migrations"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDsn(uri string) string {
	if uri == "" {
		log.Fatalf("Missing --db_uri arg")
	}
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func main() {
	dbUri := flag.String("db_uri", "", "Database URI")
	flag.Parse()

	db, err := gorm.Open(postgres.Open(postgresDsn(*dbUri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	if err := migrations.Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("migration completed successfully")
}

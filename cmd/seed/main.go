package main

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/aegis-proxy/aegis/internal/config"
	"github.com/aegis-proxy/aegis/internal/database"
	"github.com/aegis-proxy/aegis/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	fmt.Println("✓ Database migrated successfully")

	accessLists := []models.AccessList{
		{
			UUID:             uuid.NewString(),
			Name:             "LAN only",
			Description:      "Allow RFC1918 private networks only",
			Type:             "whitelist",
			LocalNetworkOnly: true,
			Enabled:          true,
		},
		{
			UUID:         uuid.NewString(),
			Name:         "Block high-risk regions",
			Type:         "geo_blacklist",
			CountryCodes: "CN,RU",
			Enabled:      true,
		},
	}
	for _, list := range accessLists {
		result := db.Where("name = ?", list.Name).FirstOrCreate(&list)
		if result.Error != nil {
			log.Printf("Failed to seed access list %s: %v", list.Name, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created access list: %s (%s)\n", list.Name, list.Type)
		} else {
			fmt.Printf("  Access list already exists: %s\n", list.Name)
		}
	}

	proxyHosts := []models.ProxyHost{
		{
			UUID:             uuid.NewString(),
			Name:             "Development App",
			DomainNames:      "app.local.dev",
			ForwardScheme:    "http",
			ForwardHost:      "localhost",
			ForwardPort:      3000,
			WebsocketSupport: true,
			BlockExploits:    true,
			Enabled:          true,
		},
		{
			UUID:          uuid.NewString(),
			Name:          "API Server",
			DomainNames:   "api.local.dev",
			ForwardScheme: "http",
			ForwardHost:   "192.168.1.100",
			ForwardPort:   8080,
			BlockExploits: true,
			Enabled:       true,
		},
		{
			UUID:          uuid.NewString(),
			Name:          "Blog",
			DomainNames:   "blog.local.dev",
			ForwardScheme: "http",
			ForwardHost:   "localhost",
			ForwardPort:   8081,
			Application:   "wordpress",
			ForceTLS:      true,
			HSTSEnabled:   true,
			BlockExploits: true,
			Enabled:       false,
		},
	}
	for _, host := range proxyHosts {
		result := db.Where("domain_names = ?", host.DomainNames).FirstOrCreate(&host)
		if result.Error != nil {
			log.Printf("Failed to seed proxy host %s: %v", host.DomainNames, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created proxy host: %s -> %s\n", host.DomainNames, host.Upstream())
		} else {
			fmt.Printf("  Proxy host already exists: %s\n", host.DomainNames)
		}
	}

	ruleset := models.SecurityRuleSet{
		UUID:    uuid.NewString(),
		Name:    "owasp-crs",
		Mode:    "block",
		Content: "# OWASP Core Rule Set bootstrap\nSecDefaultAction \"phase:1,log,auditlog,deny,status:403\"\n",
	}
	result := db.Where("name = ?", ruleset.Name).FirstOrCreate(&ruleset)
	if result.Error != nil {
		log.Printf("Failed to seed ruleset %s: %v", ruleset.Name, result.Error)
	} else if result.RowsAffected > 0 {
		fmt.Printf("✓ Created ruleset: %s\n", ruleset.Name)
	} else {
		fmt.Printf("  Ruleset already exists: %s\n", ruleset.Name)
	}

	security := models.SecurityConfig{
		UUID:               uuid.NewString(),
		Name:               "default",
		Enabled:            true,
		ACLEnabled:         true,
		WAFMode:            "detect",
		WAFRulesSource:     "owasp-crs",
		RateLimitEnabled:   true,
		RateLimitRequests:  100,
		RateLimitBurst:     50,
		RateLimitWindowSec: 60,
	}
	result = db.Where("name = ?", security.Name).FirstOrCreate(&security)
	if result.Error != nil {
		log.Printf("Failed to seed security config: %v", result.Error)
	} else if result.RowsAffected > 0 {
		fmt.Println("✓ Created security config: default (WAF detect, rate limit on)")
	} else {
		fmt.Println("  Security config already exists: default")
	}

	fmt.Println("\n✓ Database seeding completed successfully!")
	fmt.Println("  You can now start the application and see sample data.")
}

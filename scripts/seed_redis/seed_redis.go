package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const authPrefix = "api:auth:"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
	})
	defer client.Close()

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	seedAPIKeys(ctx, client)
	verify(ctx, client)

	fmt.Println("\n✅ Redis seeded")
	fmt.Println("   Run next: go run . serve")
}

// seedAPIKeys stores api:auth:<key> → owner. The authenticator resolves
// keys it does not hold statically or in memory through these.
func seedAPIKeys(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── API keys ────────────────────────────────────")

	keys := map[string]string{
		"gateway_primary_key":  "device-gateway",
		"dispatch_console_key": "dispatch-console",
		"test_key":             "test",
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		if err := client.Set(ctx, authPrefix+k, keys[k], 0).Err(); err != nil {
			log.Fatalf("Failed to set key %s: %v", k, err)
		}
		fmt.Printf("  ✓ %-40s → %s\n", authPrefix+k, keys[k])
	}
}

func verify(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Verification ────────────────────────────────")

	var count int
	iter := client.Scan(ctx, 0, authPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d API keys found\n", count)

	owner, err := client.Get(ctx, authPrefix+"test_key").Result()
	if err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: %stest_key → %s\n", authPrefix, owner)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

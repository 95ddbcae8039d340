// Command main runs the store seeder for the threads app.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"threads/internal/cache"
	"threads/internal/config"
	"threads/internal/database"
	"threads/internal/featureflags"
	"threads/internal/repository"
	"threads/internal/seed"
	"threads/internal/service"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numCommunities := flag.Int("communities", 5, "Number of communities to create")
	numThreads := flag.Int("threads", 200, "Number of top-level threads to create")
	maxReplies := flag.Int("max-replies", 4, "Maximum replies per thread")
	shouldClean := flag.Bool("clean", true, "Clean the store before seeding")
	flag.Parse()

	log.Println("Store seeder")
	log.Printf("Target: %d users, %d communities, %d threads, clean=%v\n",
		*numUsers, *numCommunities, *numThreads, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cache.InitRedis(cfg.RedisURL)
	store := database.New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	users := repository.NewUserRepository(store)
	threads := repository.NewThreadRepository(store)
	communities := repository.NewCommunityRepository(store)
	flags := featureflags.NewManager(cfg.FeatureFlags)

	seeder := seed.NewSeeder(store,
		service.NewUserService(users, threads),
		service.NewThreadService(threads, users, communities, flags),
		service.NewCommunityService(communities, users),
	)

	if *shouldClean {
		if err := seeder.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if err := seeder.Run(ctx, seed.Options{
		NumUsers:       *numUsers,
		NumCommunities: *numCommunities,
		NumThreads:     *numThreads,
		MaxReplies:     *maxReplies,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	if err := store.Disconnect(ctx); err != nil {
		log.Printf("Disconnect error: %v", err)
	}
	log.Println("All done! The store is populated with demo data.")
}

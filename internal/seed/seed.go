// Package seed provides helpers to create demo data for development and
// testing. It drives the regular service layer so seeded data obeys the same
// rules as user traffic.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"threads/internal/database"
	"threads/internal/models"
	"threads/internal/observability"
	"threads/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Options configures a seeding run.
type Options struct {
	NumUsers       int
	NumCommunities int
	NumThreads     int
	// MaxReplies is the upper bound of replies generated per thread.
	MaxReplies int
}

// Seeder populates the store with generated users, communities, and thread
// forests.
type Seeder struct {
	store       *database.Store
	users       *service.UserService
	threads     *service.ThreadService
	communities *service.CommunityService
	rng         *rand.Rand
}

// NewSeeder creates a Seeder driving the given services.
func NewSeeder(store *database.Store, users *service.UserService, threads *service.ThreadService, communities *service.CommunityService) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		store:       store,
		users:       users,
		threads:     threads,
		communities: communities,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll drops every collection the application writes to.
func (s *Seeder) ClearAll(ctx context.Context) error {
	for _, name := range []string{database.CollUsers, database.CollThreads, database.CollCommunities} {
		coll, err := s.store.Collection(ctx, name)
		if err != nil {
			return err
		}
		if err := coll.Drop(ctx); err != nil {
			return fmt.Errorf("dropping %s: %w", name, err)
		}
	}
	return nil
}

// SeedUsers onboards n generated users and returns them.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		u, err := s.users.UpdateUser(ctx, service.UpdateUserInput{
			ExternalID: "user_" + uuid.NewString(),
			Username:   fmt.Sprintf("%s%d", gofakeit.Username(), gofakeit.Number(100, 999)),
			Name:       gofakeit.Name(),
			Bio:        gofakeit.Sentence(10),
			Image:      fmt.Sprintf("https://i.pravatar.cc/150?u=%s", uuid.NewString()),
		})
		if err != nil {
			return nil, fmt.Errorf("seeding user %d: %w", i, err)
		}
		users = append(users, u)
	}
	observability.GlobalLogger.InfoContext(ctx, "seeded users", "count", len(users))
	return users, nil
}

// SeedCommunities creates n communities owned by random seeded users and
// joins a random subset of users to each.
func (s *Seeder) SeedCommunities(ctx context.Context, users []*models.User, n int) ([]*models.Community, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("no users to own communities")
	}

	communities := make([]*models.Community, 0, n)
	for i := 0; i < n; i++ {
		owner := users[s.rng.Intn(len(users))]
		name := gofakeit.Company()
		c, err := s.communities.CreateCommunity(ctx, service.CreateCommunityInput{
			ExternalID:          "org_" + uuid.NewString(),
			Name:                name,
			Username:            gofakeit.Username(),
			Image:               fmt.Sprintf("https://i.pravatar.cc/150?u=%s", uuid.NewString()),
			Bio:                 gofakeit.Sentence(8),
			CreatedByExternalID: owner.ExternalID,
		})
		if err != nil {
			return nil, fmt.Errorf("seeding community %d: %w", i, err)
		}

		for _, u := range users {
			if u.ExternalID == owner.ExternalID || s.rng.Intn(3) != 0 {
				continue
			}
			if err := s.communities.AddMember(ctx, c.ExternalID, u.ExternalID); err != nil {
				return nil, err
			}
		}
		communities = append(communities, c)
	}
	observability.GlobalLogger.InfoContext(ctx, "seeded communities", "count", len(communities))
	return communities, nil
}

// SeedThreads creates n top-level threads by random authors, roughly half of
// them inside a random community, each with a small generated reply tree.
func (s *Seeder) SeedThreads(ctx context.Context, users []*models.User, communities []*models.Community, n, maxReplies int) error {
	if len(users) == 0 {
		return fmt.Errorf("no users to author threads")
	}

	var created int
	for i := 0; i < n; i++ {
		author := users[s.rng.Intn(len(users))]

		var communityID string
		if len(communities) > 0 && s.rng.Intn(2) == 0 {
			communityID = communities[s.rng.Intn(len(communities))].ExternalID
		}

		thread, err := s.threads.CreateThread(ctx, service.CreateThreadInput{
			Text:        gofakeit.Paragraph(1, 3, 8, " "),
			AuthorID:    author.ExternalID,
			CommunityID: communityID,
		})
		if err != nil {
			return fmt.Errorf("seeding thread %d: %w", i, err)
		}
		created++

		parentID := thread.ID.Hex()
		for r := 0; r < s.rng.Intn(maxReplies+1); r++ {
			replier := users[s.rng.Intn(len(users))]
			reply, err := s.threads.AddComment(ctx, service.AddCommentInput{
				ThreadID: parentID,
				Text:     gofakeit.Sentence(12),
				UserID:   replier.ExternalID,
			})
			if err != nil {
				return err
			}
			created++
			// Occasionally nest the next reply under this one.
			if s.rng.Intn(3) == 0 {
				parentID = reply.ID.Hex()
			}
		}
	}
	observability.GlobalLogger.InfoContext(ctx, "seeded threads", "count", created)
	return nil
}

// Run executes a full seeding pass per the options.
func (s *Seeder) Run(ctx context.Context, opts Options) error {
	users, err := s.SeedUsers(ctx, opts.NumUsers)
	if err != nil {
		return err
	}
	communities, err := s.SeedCommunities(ctx, users, opts.NumCommunities)
	if err != nil {
		return err
	}
	return s.SeedThreads(ctx, users, communities, opts.NumThreads, opts.MaxReplies)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/settlement/internal/config"
	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/events"
	"github.com/jafarshop/settlement/internal/repository/postgres"
	"github.com/jafarshop/settlement/internal/service"
	"github.com/jafarshop/settlement/pkg/errors"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run cmd/payout-batch/main.go <admin-id> <period-start> <period-end>")
		fmt.Println("Example: go run cmd/payout-batch/main.go 6f1c0e4e-0d8a-4b8e-9a53-2f5d6c1b7a10 2024-03-01 2024-03-31")
		os.Exit(1)
	}

	adminID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid admin id: %v\n", err)
		os.Exit(1)
	}
	start, err := time.Parse(dateLayout, os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid period start: %v\n", err)
		os.Exit(1)
	}
	end, err := time.Parse(dateLayout, os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid period end: %v\n", err)
		os.Exit(1)
	}
	// the end date is inclusive
	end = end.Add(24*time.Hour - time.Nanosecond)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)
	ctx := context.Background()

	admin, err := repos.Principal.GetByID(ctx, adminID)
	if err != nil || admin.Role != domain.RoleAdmin {
		fmt.Fprintf(os.Stderr, "Principal %s is not an admin\n", adminID)
		os.Exit(1)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	}
	defer publisher.Close()

	payouts := service.NewPayoutService(cfg.Settlement, repos, publisher, logger)

	sellers, err := repos.Principal.ListByRole(ctx, domain.RoleSeller)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list sellers: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Settling %d sellers for %s to %s\n\n", len(sellers), os.Args[2], os.Args[3])

	created, failed := 0, 0
	for _, seller := range sellers {
		payout, err := payouts.CreatePayout(ctx, admin.ID, service.CreatePayoutRequest{
			SellerID:    seller.ID,
			PeriodStart: start,
			PeriodEnd:   end,
		})
		if err != nil {
			var noItems *errors.ErrNoEligibleItems
			if errors.As(err, &noItems) {
				fmt.Printf("  %-30s nothing to settle\n", seller.Name)
				continue
			}
			fmt.Printf("  %-30s FAILED: %v\n", seller.Name, err)
			failed++
			continue
		}
		created++
		fmt.Printf("  %-30s payout %s: %d items, gross %s, net %s\n",
			seller.Name, payout.ID, payout.ItemCount,
			payout.GrossEarnings.StringFixed(2), payout.NetEarnings.StringFixed(2))
	}

	fmt.Printf("\n%d payouts created, %d failed\n", created, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

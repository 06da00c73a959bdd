package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rl1809/stock-sync/internal/adapter/storage"
	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/core/service"
	"github.com/rl1809/stock-sync/internal/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loadgen",
	Short: "Drive concurrent inventory writes and check the change feed keeps up",
	Long: `loadgen creates and then updates items for a throwaway owner through
MySQL, publishing change events on Redis, while a subscriber counts the
events that arrive. Every successful write must produce exactly one event.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.String("mysql-dsn", "root:root@tcp(localhost:3306)/stocksync?parseTime=true", "MySQL DSN")
	f.String("redis-addr", "localhost:6379", "Redis address")
	f.String("owner", "", "owner id (random when empty)")
	f.Int("items", 50, "number of items to create")
	f.Int("updates", 4, "stock updates per item")
	f.Duration("settle", 3*time.Second, "how long to wait for trailing events")
	f.Bool("cleanup", true, "delete created items afterwards")
}

type counters struct {
	ok   atomic.Int32
	fail atomic.Int32
}

func run(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	dsn, _ := f.GetString("mysql-dsn")
	redisAddr, _ := f.GetString("redis-addr")
	ownerID, _ := f.GetString("owner")
	itemCount, _ := f.GetInt("items")
	updates, _ := f.GetInt("updates")
	settle, _ := f.GetDuration("settle")
	cleanup, _ := f.GetBool("cleanup")
	if ownerID == "" {
		ownerID = "loadgen-" + uuid.NewString()
	}

	ctx := context.Background()
	logger := log.WithComponent("loadgen")

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	mysqlStore := storage.NewMySQLStore(db, logger)
	if err := mysqlStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	stream := storage.NewRedisEventStream(rdb, storage.DefaultSubscribeTimeout, logger)
	crud := service.NewCrudService(storage.NewPublishingStore(mysqlStore, stream, logger), ownerID, service.DefaultBulkConcurrency, logger)

	sub, err := stream.Subscribe(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	var received atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range sub.Events() {
			received.Add(1)
		}
	}()

	start := time.Now()

	var creates counters
	ids := make([]string, itemCount)
	var wg sync.WaitGroup
	for i := 0; i < itemCount; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			item, err := crud.Create(ctx, domain.ItemFields{
				Name:     fmt.Sprintf("Load item %03d", n),
				Category: "loadgen",
				Unit:     "pcs",
				Stock:    float64(10 + n%7),
				Minimum:  5,
			})
			if err != nil {
				creates.fail.Add(1)
				logger.Debug().Err(err).Int("n", n).Msg("create failed")
				return
			}
			creates.ok.Add(1)
			ids[n] = item.ID
		}(i)
	}
	wg.Wait()

	var writes counters
	for _, id := range ids {
		if id == "" {
			continue
		}
		for u := 0; u < updates; u++ {
			wg.Add(1)
			go func(id string, stock float64) {
				defer wg.Done()
				if _, err := crud.Update(ctx, id, domain.ItemPatch{Stock: &stock}); err != nil {
					writes.fail.Add(1)
					return
				}
				writes.ok.Add(1)
			}(id, float64(u))
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	time.Sleep(settle)
	_ = sub.Close()
	<-done

	expected := creates.ok.Load() + writes.ok.Load()
	got := received.Load()

	fmt.Println("========== LOAD TEST RESULTS ==========")
	fmt.Printf("Owner:            %s\n", ownerID)
	fmt.Printf("Creates:          %d ok / %d failed\n", creates.ok.Load(), creates.fail.Load())
	fmt.Printf("Updates:          %d ok / %d failed\n", writes.ok.Load(), writes.fail.Load())
	fmt.Printf("Events received:  %d\n", got)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=======================================")

	if got == expected {
		fmt.Printf("PASS: every write produced one event (%d)\n", got)
	} else {
		fmt.Printf("FAIL: expected %d events, got %d\n", expected, got)
	}

	final, err := crud.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if int32(len(final)) == creates.ok.Load() {
		fmt.Printf("PASS: store holds %d items\n", len(final))
	} else {
		fmt.Printf("FAIL: expected %d items, store holds %d\n", creates.ok.Load(), len(final))
	}

	if cleanup && len(final) > 0 {
		all := make([]string, 0, len(final))
		for _, item := range final {
			all = append(all, item.ID)
		}
		if err := crud.BulkDelete(ctx, all); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}
	return nil
}

// Command admin inspects and clears the Redis dead-letter records left by
// dropped batches.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	redisclient "github.com/vietddude/geyserpg/internal/infra/redis"
)

func main() {
	redisURL := flag.String("redis", os.Getenv("REDIS_URL"), "Redis connection URL")
	limit := flag.Int64("limit", 50, "Maximum dead letters to list")
	clear := flag.Bool("clear", false, "Delete all dead letters instead of listing")
	flag.Parse()

	if *redisURL == "" {
		fmt.Fprintln(os.Stderr, "redis URL required (-redis or REDIS_URL)")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(redisclient.Config{URL: *redisURL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	sink := redisclient.NewDeadLetterSink(client)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *clear {
		if err := sink.Clear(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to clear dead letters: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Dead letters cleared")
		return
	}

	letters, err := sink.List(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list dead letters: %v\n", err)
		os.Exit(1)
	}
	if len(letters) == 0 {
		fmt.Println("No dead letters")
		return
	}
	for _, dl := range letters {
		fmt.Printf("%s  %-13s  records=%-5d attempts=%d  reason=%s  %s\n",
			dl.DroppedAt.Format(time.RFC3339), dl.Kind, dl.Records, dl.Attempts, dl.Reason, dl.Error)
	}
}

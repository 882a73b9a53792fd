// Program throttledemo replays a schedule of labels through a throttled
// consumer and prints the values the consumer acted on.
//
// Usage:
//
//	throttledemo [--interval 1s] [--schedule "0:a,600:b,..."] [--linger d]
//
// Each schedule item is "ms:label", sent ms milliseconds after the start.
// The consumer acts on the most recent label at most once per interval.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/creachadair/latest"
	"github.com/creachadair/latest/record"
	"github.com/creachadair/latest/replay"
	"github.com/creachadair/latest/throttle"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const defaultSchedule = "0:a,600:b,1200:c,1800:d,2050:e,2075:f,2100:g,2150:h,2200:i"

var (
	interval = pflag.DurationP("interval", "i", time.Second, "Minimum time between consumer actions")
	schedule = pflag.StringP("schedule", "s", defaultSchedule, "Comma-separated ms:label items to send")
	linger   = pflag.Duration("linger", 0, "Time to keep the channel open after the last send (default interval+100ms)")
	slop     = pflag.Duration("slop", 20*time.Millisecond, "Timing tolerance when checking the output")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("throttledemo: ")
	pflag.Parse()

	steps, err := replay.Parse(*schedule)
	if err != nil {
		log.Fatalf("Invalid schedule: %v", err)
	}
	if *linger <= 0 {
		*linger = *interval + 100*time.Millisecond
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	fmt.Println("Throttled receiver pattern below!")
	start := time.Now()
	out := record.NewLog[string](start)
	tx, rx := latest.New("")
	loop := throttle.New(rx, *interval, func(e throttle.Event[string]) error {
		if err := out.Add(e); err != nil {
			return err
		}
		fmt.Printf("%-8s sent=%6dms read=%6dms\n", e.Value,
			e.Sent.Sub(start).Milliseconds(), e.Read.Sub(start).Milliseconds())
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error {
		defer tx.Close()
		if err := replay.Run(gctx, tx, steps); err != nil {
			return err
		}
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-time.After(*linger):
			return nil
		}
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	ents := out.Entries()
	if err := record.Check(ents, *interval, *slop); err != nil {
		log.Fatalf("Timing check failed:\n%v", err)
	}
	log.Printf("%d of %d values processed", len(ents), len(steps))
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/sita/pkg/autoplay"
	"github.com/Mindburn-Labs/sita/pkg/demo"
)

var (
	autoplaySeed     int
	autoplayScale    float64
	autoplayActivity bool
)

var autoplayCmd = &cobra.Command{
	Use:     "autoplay",
	Short:   "Run the cinematic autoplay and print its narration",
	GroupID: "demo",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runAutoplay(ctx, cmd.OutOrStdout(), autoplaySeed, autoplayScale, autoplayActivity)
	},
}

func init() {
	autoplayCmd.Flags().IntVar(&autoplaySeed, "seed", demo.DefaultSettings().Seed, "demo seed")
	autoplayCmd.Flags().Float64Var(&autoplayScale, "scale", 1, "delay multiplier; 0.1 runs ten times faster")
	autoplayCmd.Flags().BoolVar(&autoplayActivity, "activity", false, "also print activity log entries")
}

func runAutoplay(ctx context.Context, out io.Writer, seed int, scale float64, activity bool) error {
	if scale <= 0 {
		return fmt.Errorf("--scale must be positive")
	}
	settings := demo.DefaultSettings()
	settings.Seed = seed
	store := demo.NewStore(demo.Options{Settings: &settings, Logger: quietLogger()})
	defer store.Close()

	player := autoplay.NewPlayer(store, autoplay.Options{
		Scale:  scale,
		Logger: quietLogger(),
		OnStep: func(i int, _ autoplay.Step) {
			if jsonOutput {
				return
			}
			fmt.Fprintf(out, "%s\n", colorize(colorGray, fmt.Sprintf("step %d", i+1)))
		},
	})
	store.AttachDirector(player)

	done := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var (
		narration string
		lastSeq   uint64
		started   bool
		final     demo.Snapshot
	)
	unsub := store.Subscribe(func(snap demo.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		final = snap
		if snap.Narration != "" && snap.Narration != narration && !jsonOutput {
			fmt.Fprintf(out, "%s %s\n", colorize(colorCyan, "▸"), snap.Narration)
		}
		narration = snap.Narration
		if activity && !jsonOutput {
			for _, e := range snap.Activity {
				if e.Seq > lastSeq {
					fmt.Fprintf(out, "  %s %s\n", colorize(colorYellow, "["+string(e.Type)+"]"), e.Message)
				}
			}
		}
		if n := len(snap.Activity); n > 0 {
			lastSeq = snap.Activity[n-1].Seq
		}
		if snap.Autoplay {
			started = true
		} else if started {
			once.Do(func() { close(done) })
		}
	})
	defer unsub()

	store.StartAutoplay()
	select {
	case <-done:
	case <-ctx.Done():
		store.StopAutoplay()
	}

	mu.Lock()
	snap := final
	mu.Unlock()
	if jsonOutput {
		return printJSON(out, map[string]any{
			"completed": snap.Completed,
			"receipts":  snap.Receipts,
			"narration": snap.Narration,
		})
	}
	fmt.Fprintf(out, "\n%s %d receipts minted\n", colorize(colorBold+colorGreen, "done:"), len(snap.Receipts))
	return nil
}

// quietLogger drops engine logs below WARN so narration stays readable.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

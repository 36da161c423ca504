package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/pkg/simulator"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic readsb feed",
	Long: `Run a simulated receiver that:
- Keeps a fleet of fake aircraft moving around the receiver location
- Occasionally switches a flight to squawk 7700
- Serves /data/aircraft.json over HTTP, or rewrites a local file`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().String("listen", ":8080", "HTTP listen address (ignored with --file)")
	simulateCmd.Flags().String("file", "", "Write aircraft.json to this path instead of serving it")
	simulateCmd.Flags().Int("aircraft", simulator.DefaultAircraft, "Number of simulated aircraft")
	simulateCmd.Flags().Float64("radius", simulator.DefaultRadiusNM, "Airspace radius in nautical miles")
	simulateCmd.Flags().Float64("emergency-rate", 0.001, "Per-step probability of a 7700 squawk")
	simulateCmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	simulateCmd.Flags().Duration("step", time.Second, "Simulation step")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	log := GetLogger()
	flags := cmd.Flags()

	count, _ := flags.GetInt("aircraft")
	radius, _ := flags.GetFloat64("radius")
	rate, _ := flags.GetFloat64("emergency-rate")
	seed, _ := flags.GetUint64("seed")
	step, _ := flags.GetDuration("step")
	if step <= 0 {
		return errors.New("step must be greater than 0")
	}

	sim, err := simulator.New(&simulator.Config{
		Receiver: adsb.Receiver{
			Latitude:  viper.GetFloat64("receiver.lat"),
			Longitude: viper.GetFloat64("receiver.lon"),
		},
		Seed:          seed,
		Aircraft:      count,
		RadiusNM:      radius,
		EmergencyRate: rate,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	path, _ := flags.GetString("file")
	var srv *http.Server
	if path == "" {
		listen, _ := flags.GetString("listen")
		mux := http.NewServeMux()
		mux.Handle("GET /data/aircraft.json", sim)
		srv = &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server error", "error", err)
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("serving simulated feed", "address", listen, "aircraft", sim.Len())
	} else {
		log.Info("writing simulated feed", "path", path, "aircraft", sim.Len())
	}

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("simulator stopped")
			return nil
		case <-ticker.C:
			if err := sim.Step(step); err != nil {
				return fmt.Errorf("simulation step failed: %w", err)
			}
			if path != "" {
				if err := sim.WriteFile(path); err != nil {
					log.Error("failed to write feed file", "error", err)
				}
			}
		}
	}
}

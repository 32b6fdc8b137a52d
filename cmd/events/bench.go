package events

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/evkv/cmd/util"
	"github.com/ValentinKolb/evkv/lib/eventstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Performance testing tool for event stores",
		Args:    cobra.NoArgs,
		RunE:    runBench,
		PreRunE: processBenchConfig,
	}
	benchStorePrefix       = "__bench"
	benchLargeEventSizeKB  = 10
	benchNumThreads        = 10
	benchKeySpread         = 100
	benchSkip              = make([]string, 0)
	benchTests             = []string{"append", "append-large", "get", "mixed", "flush"}
	benchFlushEventsPerKey = 10
)

type benchResult struct {
	test   string
	result testing.BenchmarkResult
}

func init() {
	key := "skip"
	benchCmd.Flags().String(key, "", util.WrapString(fmt.Sprintf("Benchmarks to skip (comma separated - %s)", strings.Join(benchTests, ","))))
	key = "threads"
	benchCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-event-size"
	benchCmd.Flags().Int(key, 10, util.WrapString("How large the event for the append-large test should be (in KB)"))
	key = "keys"
	benchCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	benchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	benchLargeEventSizeKB = viper.GetInt("large-event-size")
	benchKeySpread = max(viper.GetInt("keys"), 1)
	benchNumThreads = max(viper.GetInt("threads"), 1)
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runBench(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for event stores")

	settings, esSettings, err := getSettings()
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(settings.String())
	fmt.Println(esSettings.String())
	fmt.Printf("Threads: %d\n", benchNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	var results []benchResult
	record := func(test string, fn func(b *testing.B, s *eventstore.CachingStore[string, string])) error {
		if shouldSkip(test) {
			results = append(results, benchResult{test: test})
			printResult(test, testing.BenchmarkResult{})
			return nil
		}
		s, err := openStore(fmt.Sprintf("%s-%s", benchStorePrefix, test))
		if err != nil {
			return err
		}
		r := testing.Benchmark(func(b *testing.B) {
			fn(b, s)
		})
		results = append(results, benchResult{test: test, result: r})
		printResult(test, r)
		return nil
	}

	err = record("append", func(b *testing.B, s *eventstore.CachingStore[string, string]) {
		getKey, iter := getKeys("append")
		b.Cleanup(func() { deleteKeys(s, "append", iter) })

		b.SetParallelism(benchNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := s.Append(getKey(counter), "event"); err != nil {
					log.Errorf("(append) - error appending event: %v", err)
				}
				counter++
			}
		})
	})
	if err != nil {
		return err
	}

	err = record("append-large", func(b *testing.B, s *eventstore.CachingStore[string, string]) {
		largeEvent := strings.Repeat("x", benchLargeEventSizeKB*1024)
		getKey, iter := getKeys("append-large")
		b.Cleanup(func() { deleteKeys(s, "append-large", iter) })

		b.SetParallelism(benchNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := s.Append(getKey(counter), largeEvent); err != nil {
					log.Errorf("(append-large) - error appending event: %v", err)
				}
				counter++
			}
		})
	})
	if err != nil {
		return err
	}

	err = record("get", func(b *testing.B, s *eventstore.CachingStore[string, string]) {
		getKey, iter := getKeys("get")

		// every key gets a few persisted events
		iter(func(k string) {
			for i := 0; i < benchFlushEventsPerKey; i++ {
				if err := s.Append(k, strconv.Itoa(i)); err != nil {
					log.Errorf("(get) - error appending event: %v", err)
				}
			}
		})
		if err := s.ForceFlush(); err != nil {
			log.Errorf("(get) - error flushing: %v", err)
		}
		b.Cleanup(func() { deleteKeys(s, "get", iter) })

		b.SetParallelism(benchNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := s.GetAll(getKey(counter)); err != nil {
					log.Errorf("(get) - error reading events: %v", err)
				}
				counter++
			}
		})
	})
	if err != nil {
		return err
	}

	err = record("mixed", func(b *testing.B, s *eventstore.CachingStore[string, string]) {
		getKey, iter := getKeys("mixed")
		b.Cleanup(func() { deleteKeys(s, "mixed", iter) })

		b.SetParallelism(benchNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := getKey(counter)
				var err error
				switch counter % 4 {
				case 0, 1: // append
					err = s.Append(key, "event")
				case 2: // get
					_, err = s.GetAll(key)
				case 3: // flush
					err = s.Flush()
				}
				if err != nil {
					log.Errorf("(mixed) - error performing operation (%d): %v", counter%4, err)
				}
				counter++
			}
		})
	})
	if err != nil {
		return err
	}

	err = record("flush", func(b *testing.B, s *eventstore.CachingStore[string, string]) {
		getKey, iter := getKeys("flush")
		b.Cleanup(func() { deleteKeys(s, "flush", iter) })

		for i := 0; i < b.N; i++ {
			b.StopTimer()
			for j := 0; j < benchKeySpread; j++ {
				if err := s.Append(getKey(j), "event"); err != nil {
					log.Errorf("(flush) - error appending event: %v", err)
				}
			}
			b.StartTimer()

			if err := s.ForceFlush(); err != nil {
				log.Errorf("(flush) - error flushing: %v", err)
			}
		}
	})
	if err != nil {
		return err
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

func shouldSkip(test string) bool {
	return slices.Contains(benchSkip, test)
}

func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, benchKeySpread)
	for i := 0; i < benchKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%d", prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%benchKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

func deleteKeys(s *eventstore.CachingStore[string, string], test string, iter func(func(string))) {
	iter(func(k string) {
		if err := s.DeleteAll(k); err != nil {
			log.Errorf("(%s) - error deleting key: %v", test, err)
		}
	})
}

func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []benchResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"DefaultBackend", "Compression", "SoftLimit", "HardLimit", "FlushBatchSize",
		"Threads", "LargeEventSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if r.result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(r.result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			r.test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			viper.GetString("default-backend"),
			viper.GetString("compression"),
			strconv.Itoa(viper.GetInt("soft-limit")),
			strconv.Itoa(viper.GetInt("hard-limit")),
			strconv.Itoa(viper.GetInt("flush-batch")),
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchLargeEventSizeKB),
			strconv.Itoa(benchKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", r.test, err)
		}
	}

	return writer.Error()
}

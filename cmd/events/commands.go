package events

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ValentinKolb/evkv/lib/eventstore"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var log = logger.GetLogger("cli")

var (
	appendCmd = &cobra.Command{
		Use:   "append [store] [key] [events...]",
		Short: "Appends events to the event list of a key",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(args[0], func(s *eventstore.CachingStore[string, string]) error {
				for _, e := range args[2:] {
					if err := s.Append(args[1], e); err != nil {
						return err
					}
				}
				fmt.Printf("appended %d events\n", len(args)-2)
				return nil
			})
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [store] [key]",
		Short: "Prints all events of a key in append order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(args[0], func(s *eventstore.CachingStore[string, string]) error {
				evs, err := s.GetAll(args[1])
				if err != nil {
					return err
				}
				for i, e := range evs {
					fmt.Printf("%d: %s\n", i, e)
				}
				fmt.Printf("(%d events)\n", len(evs))
				return nil
			})
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [store] [key]",
		Short: "Deletes all events of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(args[0], func(s *eventstore.CachingStore[string, string]) error {
				if err := s.DeleteAll(args[1]); err != nil {
					return err
				}
				fmt.Println("delete successfully")
				return nil
			})
		},
	}
	flushCmd = &cobra.Command{
		Use:   "flush [store]",
		Short: "Force flushes a store and prints its statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(args[0], func(s *eventstore.CachingStore[string, string]) error {
				if err := s.ForceFlush(); err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(s.Stats())
			})
		},
	}
)

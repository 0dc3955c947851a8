// coop-debug is an offline inspection tool: it opens a persisted config
// blob read-only and prints its fields, the event table resolved against
// a supplied date, and the RTC drift sample history. It never opens the
// GPIO chip or an RTC — mirroring the teacher's own cmd/debug, which
// talks only to the sqlite state file, never to hardware.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/coopd/internal/config"
	"github.com/thatsimonsguy/coopd/internal/drift"
	"github.com/thatsimonsguy/coopd/internal/model"
	"github.com/thatsimonsguy/coopd/internal/resolver"
	"github.com/thatsimonsguy/coopd/internal/solar"
)

func main() {
	var blobPath, command, driftDBPath string
	var year, month, day, driftLimit int
	flag.StringVar(&blobPath, "config", "/var/lib/coopd/config.bin", "Path to the persisted binary config blob")
	flag.StringVar(&command, "cmd", "", "Command to run: show-config, show-events, show-drift")
	flag.StringVar(&driftDBPath, "drift-db", "/var/lib/coopd/drift.db", "Path to the sqlite RTC drift log")
	flag.IntVar(&year, "year", 0, "Calendar year to resolve events against (show-events)")
	flag.IntVar(&month, "month", 0, "Calendar month, 1-12 (show-events)")
	flag.IntVar(&day, "day", 0, "Calendar day of month (show-events)")
	flag.IntVar(&driftLimit, "limit", 20, "Number of drift samples to print, newest first")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of coop-debug:")
		fmt.Println("  -config string\tPath to the persisted binary config blob")
		fmt.Println("  -cmd string\tCommand to run: show-config, show-events, show-drift")
		fmt.Println("  -drift-db string\tPath to the sqlite RTC drift log")
		fmt.Println("  -year, -month, -day int\tCalendar date to resolve events against (show-events)")
		fmt.Println("  -limit int\tNumber of drift samples to print (show-drift)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "show-config":
		err = showConfig(blobPath)
	case "show-events":
		err = showEvents(blobPath, year, month, day)
	case "show-drift":
		err = showDrift(driftDBPath, driftLimit)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func showConfig(blobPath string) error {
	data, err := os.ReadFile(blobPath)
	if err != nil {
		return fmt.Errorf("read config blob: %w", err)
	}
	cfg, err := config.Decode(data)
	if err != nil {
		return fmt.Errorf("decode config blob: %w", err)
	}

	fmt.Printf("latitude:        %.4f\n", float64(cfg.LatitudeE4)/1e4)
	fmt.Printf("longitude:       %.4f\n", float64(cfg.LongitudeE4)/1e4)
	fmt.Printf("tz_hours:        %d\n", cfg.TZHours)
	fmt.Printf("honor_dst:       %v\n", cfg.HonorDST)
	fmt.Printf("rtc_set_epoch:   %d\n", cfg.RTCSetEpoch)
	fmt.Printf("door_travel_ms:  %d\n", cfg.DoorTravelMs)
	fmt.Printf("lock_pulse_ms:   %d\n", cfg.LockPulseMs)
	fmt.Printf("door_settle_ms:  %d\n", cfg.DoorSettleMs)
	fmt.Printf("lock_settle_ms:  %d\n", cfg.LockSettleMs)

	count := 0
	for _, ev := range cfg.Events {
		if !ev.Empty() {
			count++
		}
	}
	fmt.Printf("events in use:   %d/%d\n", count, model.MaxEvents)
	return nil
}

func showEvents(blobPath string, year, month, day int) error {
	data, err := os.ReadFile(blobPath)
	if err != nil {
		return fmt.Errorf("read config blob: %w", err)
	}
	cfg, err := config.Decode(data)
	if err != nil {
		return fmt.Errorf("decode config blob: %w", err)
	}

	var snapshot *model.SolarSnapshot
	if year != 0 && month != 0 && day != 0 {
		if mins, ok := solar.Compute(year, time.Month(month), day, float64(cfg.LatitudeE4)/1e4, float64(cfg.LongitudeE4)/1e4, 0); ok {
			snapshot = &model.SolarSnapshot{
				SunriseMinute:   mins.SunriseMinute,
				SunsetMinute:    mins.SunsetMinute,
				CivilDawnMinute: mins.CivilDawnMinute,
				CivilDuskMinute: mins.CivilDuskMinute,
			}
		} else {
			fmt.Println("warning: solar computation failed for the given date, latitude/longitude")
		}
	}

	any := false
	for _, ev := range cfg.Events {
		if ev.Empty() {
			continue
		}
		any = true
		minute, ok := resolver.Resolve(ev.When, snapshot)
		resolved := "unresolved"
		if ok {
			resolved = fmt.Sprintf("%02d:%02d UTC", minute/60, minute%60)
		}
		fmt.Printf("#%-3d %-8s %-4s ref=%-10s offset=%-5d %s\n",
			ev.Refnum, ev.DeviceID.String(), ev.Action.String(), ev.When.Ref.String(), ev.When.OffsetMinutes, resolved)
	}
	if !any {
		fmt.Println("(no events scheduled)")
	}
	return nil
}

func showDrift(driftDBPath string, limit int) error {
	store, err := drift.Open(driftDBPath)
	if err != nil {
		return fmt.Errorf("open drift database: %w", err)
	}
	defer store.Close()

	samples, err := store.History(limit)
	if err != nil {
		return fmt.Errorf("read drift history: %w", err)
	}

	if len(samples) == 0 {
		fmt.Println("(no drift samples recorded)")
		return nil
	}
	for _, s := range samples {
		fmt.Printf("%s  prior=%d  new=%d  drift=%+ds\n",
			s.SetAt.Format("2006-01-02T15:04:05Z"), s.PriorEpoch, s.NewEpoch, s.DriftSeconds)
	}
	return nil
}

// mgpoll polls a MaxiGauge TPG 256A and prints one line per scan, optionally
// appending the lines to a logfile.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexkolodchuk/maxigauge/output"
	"github.com/alexkolodchuk/maxigauge/output/logfile"
	"github.com/alexkolodchuk/maxigauge/tpg"

	"github.com/theckman/yacspin"
)

func scanToRecord(t time.Time, ps []tpg.PressureReading) output.Record {
	rec := output.Record{Time: t}
	for i, pr := range ps {
		if pr.Status.Usable() {
			rec.Pressures[i] = pr.Pressure
		} else {
			rec.Pressures[i] = math.NaN()
		}
	}
	return rec
}

func main() {
	var (
		addr     = flag.String("addr", "/dev/ttyUSB0", "serial device path, or host:port with -tcp")
		tcp      = flag.Bool("tcp", false, "connect over TCP instead of a serial port")
		interval = flag.Duration("interval", time.Second, "time between scans")
		logPath  = flag.String("log", "", "append scans to this file")
		count    = flag.Int("n", 0, "number of scans to take, 0 for unlimited")
	)
	flag.Parse()

	ctrl := tpg.NewController(*addr, !*tcp)
	var sink *logfile.Logfile
	if *logPath != "" {
		var err error
		sink, err = logfile.New(*logPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	spin, err := yacspin.New(yacspin.Config{
		Frequency: 100 * time.Millisecond,
		CharSet:   yacspin.CharSets[59],
		Prefix:    *addr + " "})
	if err != nil {
		log.Fatal(err)
	}
	spin.Start()
	done := func() {
		spin.Stop()
		if sink != nil {
			if err := sink.Close(); err != nil {
				log.Println("error closing logfile,", err)
			}
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(*interval)
	scans := 0
	for {
		select {
		case <-sig:
			done()
			return
		case t := <-ticker.C:
			ps, err := ctrl.Pressures()
			if err != nil {
				// transient faults should not kill a long logging session
				spin.Message(err.Error())
				continue
			}
			rec := scanToRecord(t, ps)
			line := logfile.FormatLine(rec)
			spin.Message(line)
			if sink != nil {
				if err := sink.Publish(rec); err != nil {
					spin.Message(err.Error())
				}
			}
			scans++
			if *count > 0 && scans >= *count {
				done()
				fmt.Println(line)
				return
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/yanun0323/logs"

	"tradecore/internal/recorder"
	"tradecore/internal/schema"
)

func main() {
	dir := flag.String("dir", "var/events", "Recorded segment directory")
	prefix := flag.String("prefix", "", "Segment file prefix (default: events)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Print decoded payloads")
	flag.Parse()

	cursor, err := recorder.OpenCursor(recorder.CursorConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		logs.Errorf("open %s, err: %+v", *dir, err)
		os.Exit(1)
	}
	defer cursor.Close()

	counts := make(map[schema.Kind]int)
	var index int
	for {
		ev, _, err := cursor.Next(context.Background(), schema.NoTime)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logs.Errorf("replay stopped after %d events, err: %+v", index, err)
				os.Exit(1)
			}
			break
		}
		index++
		h := ev.Header
		counts[h.Kind]++
		fmt.Printf("%06d seq=%d kind=%s src=%d ts_event=%s ts_recv=%s\n", index, h.Seq, h.Kind, h.Source, h.TsEvent, h.TsRecv)
		if *decode && ev.Payload != nil {
			fmt.Printf("  %+v\n", ev.Payload)
		}
	}
	logs.Infof("replayed %d events, undecodable %d, by kind %v", index, cursor.Undecodable(), counts)
}

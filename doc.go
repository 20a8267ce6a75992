// Package wsmesh implements the delivery core of a mesh weather
// station: it sends short telemetry messages over an unreliable
// multi-hop radio mesh and tracks, without a synchronous reply
// channel, whether each message was actually delivered.
//
// The Station facade orchestrates send → register → await resolution →
// retry-or-confirm. The host drives it from a single cooperative loop:
//
//	cfg, _ := config.Load("config.yaml")
//	entries, _ := cfg.Directory()
//	dir, _ := nodes.NewDirectory(entries)
//
//	station, err := wsmesh.New(&wsmesh.Options{
//	    Directory: dir,
//	    Transport: radio,
//	    Stats:     snrstats.NewStore(cfg.Stats.File, cfg.Stats.AutosaveEvery),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer station.Kill()
//
//	station.OnDelivered(func(node string, snr float64, hasSNR bool) {
//	    fmt.Printf("%s got it\n", node)
//	})
//
//	for {
//	    station.Send(cfg.Settings.SelectedNode, buildMessage())
//	    station.Iterate(time.Now())
//	    time.Sleep(cfg.UpdateInterval())
//	}
//
// Delivery events arrive on the transport's own goroutine; everything
// else runs on the host loop. The pending-message registry and the
// statistics store are the only shared state and are safe under that
// pair of writers.
package wsmesh

// Package watcher rebuilds the index when the document corpus changes.
//
// A Watcher reports changes to document files under a directory, using
// fsnotify when available and polling otherwise. Rapid changes are coalesced
// by a Debouncer into batches. A Rebuilder turns every batch into one full
// index rebuild; a batch arriving while a rebuild runs schedules exactly one
// follow-up rebuild.
//
// Usage:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Start(ctx, root) }()
//	defer w.Stop()
//
//	r := watcher.NewRebuilder(builder, logger)
//	return r.Run(ctx, w.Events())
package watcher

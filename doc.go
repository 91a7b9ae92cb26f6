// Package contentsync mirrors a local directory tree onto a destination
// location by content hash.
//
// A sync run builds a content tree for the source and for the destination,
// marks every file or directory that must be copied or deleted, and then
// carries the marks out: copies first, deletes second. Files are identified
// by the SHA-256 of their content, so unchanged files are never transferred.
//
// # Locations
//
// The source is always local (location/local). The destination may be another
// local directory, a directory reachable over SSH (location/ssh), or an S3
// bucket prefix (location/s3).
//
// # Snapshots
//
// Each location may be given a snapshot cache (package snapshot). The source
// snapshot lets unchanged files skip rehashing. The destination snapshot
// replaces remote listing altogether: after a successful run the destination
// mirrors the source, so the source snapshot is copied over it.
//
// # Usage
//
//	src, _ := local.New(billy.NewBaseOSFS(), "/srv/site")
//	dst, _ := local.New(billy.NewBaseOSFS(), "/mnt/mirror")
//	syncer := contentsync.NewSyncer(src, dst,
//		contentsync.WithLogger(logger),
//		contentsync.WithSourceCache(snapshot.NewCache(fsys, "/var/lib/contentsync/src.snap")),
//	)
//	defer syncer.Close()
//
//	result, err := syncer.Sync(ctx, contentsync.Config{DryRun: true})
//
// A Syncer runs one sync at a time; concurrent calls to Sync are serialized.
package contentsync

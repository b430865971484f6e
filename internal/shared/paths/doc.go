// Package paths derives the names of every piece of external state owned
// by one scatter-gather round.
//
// # Directory Structure
//
//	<runtime dir>/psearch-<run id>/
//	  ├── task-0000.frame   (FileChannel artifacts, one per task)
//	  ├── gate.lock         (MutualExclusionGate)
//	  ├── coord.sock        (SocketChannel endpoint)
//	  └── region.shm        (SharedMemoryChannel, when /dev/shm is absent)
//	/dev/shm/psearch-<run id>.region
//
// # Usage
//
//	run := paths.ForRun(os.TempDir(), id.NewRunID())
//	if err := run.Create(); err != nil { ... }
//	defer run.Remove()
//	sock, err := run.SocketPath()
package paths

/*
Package coordinator runs scatter-gather rounds.

A round turns a target word and a sorted list of files into one report:

 1. one task per file, indexed in dispatch order
 2. one channel set of the configured kind (file, pipe, shm or socket)
 3. one worker per task, started by the Pool through a Launcher
 4. deliveries collected while the workers run
 5. every worker reaped, then each delivery attributed to its task
 6. the report published atomically in dispatch order

# Launchers

ExecLauncher re-executes the running binary in the worker role, one
process per task. InProcessLauncher runs the worker role on goroutines and
is what tests use when they do not need real processes.

# Failures

A task that fails is never silently dropped. Input errors either abort
the run (the default) or, under the mark policy, become marker lines at
the task's position. Transport, spawn and synchronization failures always
abort, and no report is written.
*/
package coordinator

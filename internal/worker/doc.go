/*
Package worker is the entry point of a worker process.

The coordinator re-executes its own binary once per task with PSEARCH_ROLE
set to "worker" and the task and channel endpoint encoded as flags. A
worker searches its one file, sends exactly one envelope (a result, or the
input error that prevented one) and exits:

	0  result delivered
	1  input error delivered
	2  the envelope could not be delivered
	3  invalid invocation

A pipe endpoint arrives as inherited descriptor 3.
*/
package worker

// Package service supervises simulation jobs: it prepares the job directory,
// launches the compiled script in an isolated worker and streams the worker
// output back to the caller.
//
// Overview
// A Supervisor belongs to one caller session and holds at most one live Job.
// Start supersedes the previous job: its worker is killed and its unread
// output dropped. Sessions maps session ids to supervisors.
//
// A Launcher starts the script. ProcessLauncher runs it as a child process
// through Runner, DockerLauncher runs it in a fresh container with the job
// directory mounted at /work. Both copy stdout and stderr into the job's
// output.Channel.
//
// Data flow:
//
//	Supervisor              Job                 Launcher/Worker
//	    |                    |                        |
//	Start -> compile         |                        |
//	    | mkdir, copy ------>| Running                |
//	    | Launch ------------------------------------>| exec / container
//	    |                    |<--- output chunks -----| stdout+stderr
//	Poll <-------------------| Channel.Poll           |
//	    |                    |<------ Done -----------| exit
//	    | watch: finish ---->| Completed|Failed       |
//	    | archive + upload   |                        |
//	Cancel ----------------->| Cancelled, Discard --->| Kill
//
// Invariants:
//   - Compile errors are returned by Start before anything is touched.
//   - Setup errors after that are sent through the output stream, followed
//     by its end.
//   - Poll never blocks; it is absent before the first Start, after the
//     stream ended and was drained, and after Cancel.
//   - Each job reaches exactly one terminal state.
//   - Results are uploaded only for jobs which exited with status zero.
//
// internal/service/supervisor_test.go is the best source about how to use
// the Supervisor.
package service

/*
Package vsbisect locates the build that introduced an issue by binary
searching the published builds of Visual Studio Code.

A session is assembled from a [Config] and the components built on top of it:
a [Catalog] that talks to the update service, a [Cache] that downloads and
verifies artifacts, and a [Launcher] that starts builds under the configured
runtime. [NewSession] wires them together with an [Oracle], which answers one
[Verdict] per launched build.

The session's [Session.Run] resolves the configured good and bad boundaries
into an ordered candidate range, then repeatedly launches the middle build,
asks the oracle whether it is good or bad and halves the range, until two
adjacent builds straddle the change that introduced the issue. The returned
[Outcome] carries those two builds, or states that every examined build was
good or bad when the boundaries never both materialized.

Oracles decide how verdicts are collected. The bundled commands answer them
from a terminal prompt or over a small REST API, and programs embedding this
package can implement the interface to automate verdicts entirely.
*/
package vsbisect

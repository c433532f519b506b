/*
Core implements the single-threaded event coordinator.

# Module
  - scheduler: fires due timers before every event is classified
  - classifier: explicit (family, kind) table turning raw feed payloads into normalized updates
  - dispatchers: one ordered multicast per update kind (market, order, tape, time, user message, wakeup)
  - admin state: per-symbol halt/resume coalesced and flushed once per iteration
  - pumps: simulated transports delivering acknowledgements that fell due

# Source
 1. live events from the in-memory bus queue
 2. synthetic market data from the paper generator
 3. WAL replay through the recorder cursor

# Produce
  - normalized updates to registered listeners
  - order updates through the order manager callbacks

# Termination
  - a stop request (or a KindStop event) carrying COMPLETE, STOPPED or FAILURE;
    Run is the only place that turns it into a returned status
*/
package core
